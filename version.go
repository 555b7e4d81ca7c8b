package cartshare

// Version information, overridden at build time with -ldflags "-X".
var (
	// Version is the client version
	Version = "development"

	// APIVersion is the backend API the client targets
	APIVersion = "v1"

	// BuildDate is set during build time
	BuildDate = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)
