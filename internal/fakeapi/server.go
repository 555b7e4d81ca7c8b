// Package fakeapi is an in-memory stand-in for the shopping backend. It
// serves the same REST surface with seeded products, bcrypt-hashed accounts
// and header sessions, plus admin endpoints that inject faults.
package fakeapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/itsneelabh/cartshare/core"
	"github.com/itsneelabh/cartshare/telemetry"
)

const (
	ServiceName = "cartshare-fakeapi"

	DefaultSessionTTL = 24 * time.Hour
)

// Server wires the store, handlers and fault injection into one http.Handler.
type Server struct {
	store   *Store
	faults  *Faults
	handler http.Handler
	logger  core.Logger
}

type options struct {
	logger       core.Logger
	passwordCost int
	sessionTTL   time.Duration
	now          func() time.Time
	seed         bool
}

// Option configures a Server
type Option func(*options)

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPasswordCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithPasswordCost(cost int) Option {
	return func(o *options) { o.passwordCost = cost }
}

// WithSessionTTL sets how long a session lives after login.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *options) { o.sessionTTL = ttl }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithoutSeed starts with an empty catalog.
func WithoutSeed() Option {
	return func(o *options) { o.seed = false }
}

// New creates a server.
func New(opts ...Option) *Server {
	o := &options{
		passwordCost: bcrypt.DefaultCost,
		sessionTTL:   DefaultSessionTTL,
		seed:         true,
	}
	for _, opt := range opts {
		opt(o)
	}

	logger := core.ComponentLogger(o.logger, "fakeapi")
	store := NewStore(o.passwordCost, o.sessionTTL, o.now)
	if o.seed {
		store.Seed()
	}

	s := &Server{
		store:  store,
		faults: NewFaults(logger),
		logger: logger,
	}
	s.handler = telemetry.ServerMiddleware(ServiceName, telemetry.ServerOptions{
		SkipPaths: []string{"/health"},
	})(s.routes())
	return s
}

// Store exposes the backing store for test setup.
func (s *Server) Store() *Store {
	return s.store
}

// Faults exposes fault injection.
func (s *Server) Faults() *Faults {
	return s.faults
}

// Handler is the full HTTP surface.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": ServiceName})
	})

	admin := r.Group("/admin")
	admin.POST("/inject-error", s.faults.injectHandler)
	admin.GET("/status", s.faults.statusHandler)
	admin.POST("/reset", s.faults.resetHandler)

	h := NewHandler(s.store)
	r.Use(s.faults.Middleware())

	user := r.Group("/api/user")
	user.PUT("/register", h.Register)
	user.POST("/login", h.Login)
	user.POST("/reset-password", h.ResetPassword)
	authed := user.Group("", h.RequireSession())
	authed.POST("/change-password", h.ChangePassword)
	authed.POST("/change-username", h.ChangeUsername)
	authed.GET("/me", h.Me)

	basket := r.Group("/api/basket", h.RequireSession())
	basket.POST("/create", h.CreateBasket)
	basket.POST("/add", h.AddItems)
	basket.GET("/current", h.Current)
	basket.GET("/get/user/carts", h.UserCarts)
	basket.POST("/select/cart", h.Select)
	basket.PATCH("/quantity", h.UpdateQuantity)
	basket.DELETE("/item/:productId", h.RemoveItem)
	basket.POST("/join", h.Join)
	basket.PATCH("/toggle", h.TogglePurchased)

	products := r.Group("/api/products")
	products.GET("/categories", h.Categories)
	products.GET("/search", h.Search)
	products.GET("/compare/:id", h.Compare)
	products.GET("/:id", h.Product)

	history := r.Group("/api/history", h.RequireSession())
	history.POST("/checkout", h.Checkout)
	history.GET("/all", h.AllHistory)
	history.GET("/recent", h.RecentHistory)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.DebugWithContext(c.Request.Context(), "Request served", map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}

// ListenAndServe serves on addr until ctx is done. ready, when non-nil,
// receives the bound address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(addr string)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting fake backend", map[string]interface{}{
		"address": ln.Addr().String(),
	})
	if ready != nil {
		ready(ln.Addr().String())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
