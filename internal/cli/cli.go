// Package cli is the cartshare terminal front-end. Every page of the shop
// is a command; commands that need an account are guarded, and the shell
// command keeps one application alive so the query cache spans commands.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/cartshare"
	"github.com/itsneelabh/cartshare/auth"
	"github.com/itsneelabh/cartshare/cart"
	"github.com/itsneelabh/cartshare/client"
	"github.com/itsneelabh/cartshare/core"
)

// ErrNotFound is returned for unknown commands.
var ErrNotFound = errors.New("page not found")

// message is a failure whose text is shown to the user as is.
type message string

func (m message) Error() string { return string(m) }

// CLI carries state shared by every command of one process.
type CLI struct {
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	configOpts []core.Option
	appOpts    []cartshare.AppOption

	flags   globalFlags
	cfg     *core.Config
	app     *cartshare.App
	inShell bool
}

type globalFlags struct {
	configFile string
	envFile    string
	profile    string
	apiURL     string
	logLevel   string
	dev        bool
}

// Option configures a CLI
type Option func(*CLI)

// WithIO replaces stdin, stdout and stderr.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(c *CLI) {
		c.in = bufio.NewReader(in)
		c.out = out
		c.errOut = errOut
	}
}

// WithConfigOptions adds options applied after the flag-derived ones.
func WithConfigOptions(opts ...core.Option) Option {
	return func(c *CLI) { c.configOpts = append(c.configOpts, opts...) }
}

// WithAppOptions is passed to cartshare.New.
func WithAppOptions(opts ...cartshare.AppOption) Option {
	return func(c *CLI) { c.appOpts = append(c.appOpts, opts...) }
}

// New creates a CLI on the process standard streams.
func New(opts ...Option) *CLI {
	c := &CLI{
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		errOut: os.Stderr,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs one command line, closes the application and returns the
// process exit code.
func (c *CLI) Execute(ctx context.Context, args []string) int {
	defer c.Close(context.Background())
	return c.Run(ctx, args)
}

// Close releases the application if one was built.
func (c *CLI) Close(ctx context.Context) {
	if c.app == nil {
		return
	}
	if err := c.app.Close(ctx); err != nil {
		c.app.Logger.Warn("Failed to close application", map[string]interface{}{
			"error": err.Error(),
		})
	}
	c.app = nil
}

// Run executes one command line and keeps the application open for the next.
func (c *CLI) Run(ctx context.Context, args []string) int {
	if args == nil {
		// cobra falls back to os.Args on nil
		args = []string{}
	}
	root := c.NewRootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintln(c.errOut, describeError(err))
	return 1
}

// describeError turns a command failure into the line shown to the user.
func describeError(err error) string {
	var (
		verr *auth.ValidationError
		msg  message
	)
	switch {
	case errors.As(err, &msg):
		return string(msg)
	case errors.As(err, &verr):
		return verr.Message
	case errors.Is(err, ErrNotFound):
		return err.Error() + ". Run `cartshare help` to see the available pages."
	case errors.Is(err, client.ErrSessionInvalid):
		return "Your session has ended. Sign in again with `cartshare login`."
	case errors.Is(err, core.ErrNotAuthenticated):
		return "Please sign in first: `cartshare login`."
	case errors.Is(err, cart.ErrPartialApply):
		return "The original item was removed but the cheaper one could not be added. Add it again with `cartshare cart add`."
	}
	if _, ok := client.AsAPIError(err); ok {
		return client.MessageOf(err, "Request failed")
	}
	return "Error: " + err.Error()
}

// NewRootCommand builds the command tree bound to c.
func (c *CLI) NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "cartshare",
		Short: "Shared shopping carts with price comparison",
		Long: `cartshare keeps shared shopping baskets in sync with the shop backend.

Sign in, create or join a basket, add products found by comparing store
prices, swap lines for cheaper offers and check out into your order history.`,
		Version:       cartshare.Version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%w: %s", ErrNotFound, strings.Join(args, " "))
			}
			return c.runHome(cmd, args)
		},
	}
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.errOut)
	root.SetVersionTemplate("cartshare {{.Version}}\n")
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.configFile, "config", "", "config file (JSON or YAML)")
	pf.StringVar(&c.flags.envFile, "env-file", "", "dotenv file loaded before the config")
	pf.StringVar(&c.flags.profile, "profile", "", "session profile, for several accounts side by side")
	pf.StringVar(&c.flags.apiURL, "api-url", "", "backend base URL")
	pf.StringVar(&c.flags.logLevel, "log-level", "", "debug, info, warn or error")
	pf.BoolVar(&c.flags.dev, "dev", false, "development mode with debug logs")

	root.AddCommand(
		c.homeCommand(),
		c.loginCommand(),
		c.registerCommand(),
		c.forgotPasswordCommand(),
		c.aboutCommand(),
		c.contactCommand(),
		c.profileCommand(),
		c.logoutCommand(),
		c.cartsCommand(),
		c.cartCommand(),
		c.productsCommand(),
		c.historyCommand(),
		c.shellCommand(),
		c.devServerCommand(),
		c.versionCommand(),
	)
	return root
}

// config resolves the configuration once per process.
func (c *CLI) config() (*core.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	var opts []core.Option
	if c.flags.envFile != "" {
		opts = append(opts, core.WithEnvFile(c.flags.envFile))
	}
	if c.flags.configFile != "" {
		opts = append(opts, core.WithConfigFile(c.flags.configFile))
	}
	if c.flags.profile != "" {
		opts = append(opts, core.WithProfile(c.flags.profile))
	}
	if c.flags.apiURL != "" {
		opts = append(opts, core.WithAPIBaseURL(c.flags.apiURL))
	}
	if c.flags.dev {
		opts = append(opts, core.WithDevelopmentMode(true))
	}
	if c.flags.logLevel != "" {
		opts = append(opts, core.WithLogLevel(c.flags.logLevel))
	}
	opts = append(opts, c.configOpts...)

	cfg, err := core.NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

// application builds the App on first use and reuses it afterwards.
func (c *CLI) application(ctx context.Context) (*cartshare.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	app, err := cartshare.New(ctx, cfg, c.appOpts...)
	if err != nil {
		return nil, err
	}
	c.app = app
	return app, nil
}

type runFunc func(ctx context.Context, app *cartshare.App, args []string) error

// open runs fn with the application and no guard.
func (c *CLI) open(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := c.application(cmd.Context())
		if err != nil {
			return err
		}
		return fn(cmd.Context(), app, args)
	}
}

// guest runs fn only while signed out. A signed-in user is told so and
// nothing else happens.
func (c *CLI) guest(fn runFunc) func(*cobra.Command, []string) error {
	return c.open(func(ctx context.Context, app *cartshare.App, args []string) error {
		if app.Auth.IsAuthenticated() {
			c.printf("You are already signed in as %s.\n", displayName(app.Auth.User()))
			return nil
		}
		return fn(ctx, app, args)
	})
}

// authed runs fn only while signed in.
func (c *CLI) authed(fn runFunc) func(*cobra.Command, []string) error {
	return c.open(func(ctx context.Context, app *cartshare.App, args []string) error {
		if !app.Auth.IsAuthenticated() {
			return fmt.Errorf("sign in first: %w", core.ErrNotAuthenticated)
		}
		return fn(ctx, app, args)
	})
}

func (c *CLI) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *CLI) println(args ...interface{}) {
	fmt.Fprintln(c.out, args...)
}

// prompt reads one line, showing label first. Flags win over prompts.
func (c *CLI) prompt(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(c.out, label+": ")
	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// confirm asks a yes/no question, defaulting to no.
func (c *CLI) confirm(question string) (bool, error) {
	answer, err := c.prompt(question+" [y/N]", "")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func displayName(u *cartshare.User) string {
	if u == nil {
		return "guest"
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}
