// Package cartshare builds a ready-to-use shared shopping cart client from a
// single core.Config.
//
// Most programs only need New:
//
//	cfg, err := core.NewConfig(core.WithAPIBaseURL("https://shop.example.com"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	app, err := cartshare.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Close(ctx)
//
//	res := app.Auth.Login(ctx, "ana@example.com", "secret1")
//
// The packages can also be wired by hand:
//   - github.com/itsneelabh/cartshare/client - HTTP client and forced logouts
//   - github.com/itsneelabh/cartshare/api - typed REST services
//   - github.com/itsneelabh/cartshare/cart - cached queries and mutations
//   - github.com/itsneelabh/cartshare/auth - signed-in state
package cartshare

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/itsneelabh/cartshare/api"
	"github.com/itsneelabh/cartshare/auth"
	"github.com/itsneelabh/cartshare/cache"
	"github.com/itsneelabh/cartshare/cart"
	"github.com/itsneelabh/cartshare/client"
	"github.com/itsneelabh/cartshare/core"
	"github.com/itsneelabh/cartshare/metrics"
	"github.com/itsneelabh/cartshare/resilience"
	"github.com/itsneelabh/cartshare/session"
	"github.com/itsneelabh/cartshare/telemetry"
)

// Re-export the types most callers touch
type (
	Config = core.Config
	Option = core.Option
	Logger = core.Logger

	User           = session.User
	Result         = auth.Result
	RegisterResult = auth.RegisterResult
	Suggestion     = cart.Suggestion
	Totals         = cart.Totals
)

var (
	NewConfig     = core.NewConfig
	DefaultConfig = core.DefaultConfig
)

// App holds every component built from one configuration.
type App struct {
	Config   *core.Config
	Logger   core.Logger
	Client   *client.Client
	Services *api.Services
	Sessions *session.Manager
	Cache    *cache.Cache
	Auth     *auth.Manager
	Cart     *cart.Service

	// Metrics is nil unless metrics are enabled.
	Metrics *metrics.Collector

	telemetry *telemetry.Provider
	unwatch   func()
}

type appOptions struct {
	logger    core.Logger
	store     session.Store
	transport http.RoundTripper
	telemetry []telemetry.ProviderOption
}

// AppOption customizes New
type AppOption func(*appOptions)

// WithLogger replaces the logrus logger built from cfg.Logging.
func WithLogger(logger core.Logger) AppOption {
	return func(o *appOptions) { o.logger = logger }
}

// WithSessionStore replaces the store selected by cfg.Session.
func WithSessionStore(store session.Store) AppOption {
	return func(o *appOptions) { o.store = store }
}

// WithTransport sets the innermost round tripper, under tracing and the
// circuit breaker.
func WithTransport(rt http.RoundTripper) AppOption {
	return func(o *appOptions) { o.transport = rt }
}

// WithTelemetryOptions passes options to the tracer provider started when
// cfg.Telemetry is enabled, e.g. telemetry.WithSpanExporter.
func WithTelemetryOptions(opts ...telemetry.ProviderOption) AppOption {
	return func(o *appOptions) { o.telemetry = append(o.telemetry, opts...) }
}

// New wires the application and hydrates the stored session.
func New(ctx context.Context, cfg *core.Config, opts ...AppOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required: %w", core.ErrMissingConfiguration)
	}
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		logger = core.NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)
	}

	app := &App{Config: cfg, Logger: logger}

	if cfg.Telemetry.Enabled {
		popts := append([]telemetry.ProviderOption{
			telemetry.WithLogger(logger),
			telemetry.WithServiceVersion(Version),
		}, o.telemetry...)
		provider, err := telemetry.NewProvider(ctx, cfg.Telemetry, popts...)
		if err != nil {
			return nil, fmt.Errorf("failed to start telemetry: %w", err)
		}
		app.telemetry = provider
	}

	if cfg.Metrics.Enabled {
		app.Metrics = metrics.New(cfg.Metrics.Namespace)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = session.NewStore(cfg.Session, logger)
		if err != nil {
			app.shutdownTelemetry(ctx)
			return nil, err
		}
	}
	app.Sessions = session.NewManager(store, logger)
	if err := app.Sessions.Hydrate(ctx); err != nil {
		logger.Warn("Starting signed out", map[string]interface{}{
			"error": err.Error(),
		})
	}

	transport, err := app.transport(o.transport)
	if err != nil {
		_ = app.Sessions.Close()
		app.shutdownTelemetry(ctx)
		return nil, err
	}

	clientOpts := []client.Option{client.WithLogger(logger), client.WithTransport(transport)}
	if app.Metrics != nil {
		clientOpts = append(clientOpts, client.WithMetrics(app.Metrics))
	}
	app.Client = client.New(cfg.API, app.Sessions, clientOpts...)
	app.Services = api.NewServices(app.Client)

	cacheOpts := []cache.Option{cache.WithStaleTime(cfg.Cache.StaleTime), cache.WithLogger(logger)}
	if app.Metrics != nil {
		cacheOpts = append(cacheOpts, cache.WithObserver(app.Metrics))
	}
	app.Cache = cache.New(cacheOpts...)

	app.Auth = auth.NewManager(app.Services.User, app.Sessions, app.Cache, auth.WithLogger(logger))
	app.unwatch = app.Auth.Watch(app.Client)

	cartOpts := []cart.Option{cart.WithLogger(logger)}
	if app.telemetry != nil {
		cartOpts = append(cartOpts, cart.WithTelemetry(app.telemetry))
	}
	app.Cart = cart.NewService(app.Services, app.Cache, cartOpts...)

	logger.Debug("Application ready", map[string]interface{}{
		"api":           cfg.API.BaseURL,
		"session_store": cfg.Session.Provider,
		"authenticated": app.Sessions.IsAuthenticated(),
	})
	return app, nil
}

// transport puts the circuit breaker over base. The client adds the tracing
// layer on top, so each request gets one client span.
func (a *App) transport(base http.RoundTripper) (http.RoundTripper, error) {
	if base == nil {
		base = http.DefaultTransport
	}
	cbCfg := a.Config.Resilience.CircuitBreaker
	if !cbCfg.Enabled {
		return base, nil
	}
	breakerCfg := resilience.ConfigFromCore(cbCfg)
	breakerCfg.Logger = core.ComponentLogger(a.Logger, "resilience")
	if a.Metrics != nil {
		breakerCfg.Metrics = a.Metrics
	}
	breaker, err := resilience.NewCircuitBreaker(breakerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create circuit breaker: %w", err)
	}
	return resilience.NewTransport(base, breaker), nil
}

// Close unsubscribes from the client, releases the session store and
// flushes pending spans.
func (a *App) Close(ctx context.Context) error {
	if a.unwatch != nil {
		a.unwatch()
		a.unwatch = nil
	}
	var errs []error
	if a.Sessions != nil {
		if err := a.Sessions.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session store: %w", err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) shutdownTelemetry(ctx context.Context) {
	if a.telemetry != nil {
		_ = a.telemetry.Shutdown(ctx)
	}
}
