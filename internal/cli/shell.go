package cli

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/cartshare"
	"github.com/itsneelabh/cartshare/core"
	"github.com/itsneelabh/cartshare/internal/fakeapi"
)

func (c *CLI) shellCommand() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive session that keeps the cache between commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.inShell {
				c.println("Already in the shell.")
				return nil
			}
			if metricsAddr != "" {
				c.configOpts = append(c.configOpts, core.WithMetrics(metricsAddr))
			}
			app, err := c.application(cmd.Context())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if metricsAddr != "" {
				if err := c.serveMetrics(ctx, app, metricsAddr); err != nil {
					return err
				}
			}

			c.inShell = true
			defer func() { c.inShell = false }()
			return c.loop(ctx, app)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
	return cmd
}

func (c *CLI) serveMetrics(ctx context.Context, app *cartshare.App, addr string) error {
	if app.Metrics == nil {
		c.println("Metrics are disabled for this session.")
		return nil
	}
	srv, err := app.Metrics.Listen(addr, app.Logger)
	if err != nil {
		return err
	}
	go func() {
		if err := srv.Serve(ctx); err != nil {
			app.Logger.Error("Metrics server stopped", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
	c.printf("Metrics on http://%s/metrics\n", srv.Addr())
	return nil
}

func (c *CLI) loop(ctx context.Context, app *cartshare.App) error {
	c.println("cartshare shell. Type `help` for the commands and `exit` to leave.")
	for ctx.Err() == nil {
		c.printf("%s> ", shellPrompt(app))
		line, err := c.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := errors.Is(err, io.EOF)

		args, perr := splitArgs(line)
		switch {
		case perr != nil:
			c.println(perr.Error())
		case len(args) == 0:
		case args[0] == "exit" || args[0] == "quit":
			return nil
		default:
			c.Run(ctx, args)
		}
		if eof {
			c.println()
			return nil
		}
	}
	return nil
}

func shellPrompt(app *cartshare.App) string {
	if u := app.Auth.User(); u != nil {
		return displayName(u) + "@cartshare"
	}
	return "cartshare"
}

// splitArgs splits a shell line on spaces, keeping quoted text together.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quote   rune
		inArg   bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, message("Unterminated quote.")
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}

func (c *CLI) devServerCommand() *cobra.Command {
	var (
		addr       string
		sessionTTL time.Duration
		empty      bool
	)
	cmd := &cobra.Command{
		Use:   "dev-server",
		Short: "Run an in-memory backend for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			logger := core.NewProductionLogger(cfg.Logging, cfg.Development, fakeapi.ServiceName)

			opts := []fakeapi.Option{fakeapi.WithLogger(logger), fakeapi.WithSessionTTL(sessionTTL)}
			if empty {
				opts = append(opts, fakeapi.WithoutSeed())
			}
			srv := fakeapi.New(opts...)
			return srv.ListenAndServe(cmd.Context(), addr, func(bound string) {
				c.printf("Fake backend listening on http://%s (Ctrl+C to stop)\n", bound)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "localhost:8081", "listen address")
	f.DurationVar(&sessionTTL, "session-ttl", fakeapi.DefaultSessionTTL, "how long a login stays valid")
	f.BoolVar(&empty, "empty", false, "start without the sample catalog")
	return cmd
}

func (c *CLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			c.printf("cartshare %s (api %s, commit %s, built %s)\n",
				cartshare.Version, cartshare.APIVersion, cartshare.GitCommit, cartshare.BuildDate)
		},
	}
}
