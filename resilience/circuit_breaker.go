// Package resilience provides the circuit breaker that can guard the backend
// API transport. Requests are never retried: a breaker only decides whether a
// request may be attempted at all.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/cartshare/core"
)

// CircuitState is closed (calls flow), open (calls fail fast) or half-open
// (a few probes decide which way to go).
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MetricsCollector receives breaker events; metrics.Collector implements it.
type MetricsCollector interface {
	RecordSuccess(name string)
	RecordFailure(name string, errorType string)
	RecordStateChange(name string, from, to string)
	RecordRejection(name string)
}

type noopMetrics struct{}

func (n *noopMetrics) RecordSuccess(name string)                      {}
func (n *noopMetrics) RecordFailure(name string, errorType string)    {}
func (n *noopMetrics) RecordStateChange(name string, from, to string) {}
func (n *noopMetrics) RecordRejection(name string)                    {}

// ErrorClassifier reports whether err counts toward the failure threshold.
type ErrorClassifier func(error) bool

// DefaultErrorClassifier counts transport failures and 5xx responses. Bad
// configuration and calls the user canceled are not the backend's fault.
func DefaultErrorClassifier(err error) bool {
	switch {
	case err == nil:
		return false
	case core.IsConfigurationError(err):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, core.ErrContextCanceled):
		return false
	}
	return true
}

// CircuitBreakerConfig tunes a breaker. HalfOpenRequests is both the number
// of concurrent probes and the number of probe successes needed to close.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int           // consecutive failures that open the circuit
	SleepWindow      time.Duration // time spent open before probing
	HalfOpenRequests int
	ErrorClassifier  ErrorClassifier
	Logger           core.Logger
	Metrics          MetricsCollector
}

// DefaultConfig returns the defaults used for the API transport
func DefaultConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             "cartshare-api",
		FailureThreshold: 5,
		SleepWindow:      30 * time.Second,
		HalfOpenRequests: 1,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           &core.NoOpLogger{},
		Metrics:          &noopMetrics{},
	}
}

// ConfigFromCore maps the circuit breaker section of core.Config.
func ConfigFromCore(cfg core.CircuitBreakerConfig) *CircuitBreakerConfig {
	c := DefaultConfig()
	if cfg.Threshold > 0 {
		c.FailureThreshold = cfg.Threshold
	}
	if cfg.Timeout > 0 {
		c.SleepWindow = cfg.Timeout
	}
	if cfg.HalfOpenRequests > 0 {
		c.HalfOpenRequests = cfg.HalfOpenRequests
	}
	return c
}

// Validate rejects thresholds and windows the breaker cannot work with.
func (c *CircuitBreakerConfig) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return &core.OpError{
			Op:      "resilience.Validate",
			Kind:    "config",
			Message: fmt.Sprintf(format, args...),
			Err:     core.ErrInvalidConfiguration,
		}
	}
	switch {
	case c.FailureThreshold < 1:
		return invalid("failure threshold must be at least 1, got %d", c.FailureThreshold)
	case c.SleepWindow <= 0:
		return invalid("sleep window must be positive, got %s", c.SleepWindow)
	case c.HalfOpenRequests < 1:
		return invalid("half-open requests must be at least 1, got %d", c.HalfOpenRequests)
	}
	return nil
}

// CircuitBreaker counts consecutive failures and fails fast while open.
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	mu                sync.Mutex
	state             CircuitState
	stateChangedAt    time.Time
	consecutiveFails  int
	halfOpenInFlight  int
	halfOpenSuccesses int

	totalExecutions    uint64
	rejectedExecutions uint64

	listeners []func(name string, from, to CircuitState)

	now func() time.Time
}

// NewCircuitBreaker creates a circuit breaker; a nil config uses DefaultConfig.
func NewCircuitBreaker(config *CircuitBreakerConfig) (*CircuitBreaker, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("circuit breaker %q: %w", config.Name, err)
	}

	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultErrorClassifier
	}
	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &noopMetrics{}
	}

	cb := &CircuitBreaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
	cb.stateChangedAt = cb.now()

	return cb, nil
}

// Name returns the configured name
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Execute runs fn with circuit breaker protection. While open it returns an
// error wrapping core.ErrCircuitBreakerOpen without calling fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	halfOpen, allowed := cb.acquire()
	if !allowed {
		cb.config.Metrics.RecordRejection(cb.config.Name)
		return fmt.Errorf("%s: %w", cb.config.Name, core.ErrCircuitBreakerOpen)
	}

	err := fn()
	cb.complete(ctx, halfOpen, err)
	return err
}

// acquire decides whether a call may proceed and whether it is a half-open probe.
func (cb *CircuitBreaker) acquire() (halfOpen bool, allowed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalExecutions++

	if cb.state == StateOpen && cb.now().Sub(cb.stateChangedAt) >= cb.config.SleepWindow {
		cb.transitionLocked(StateHalfOpen)
	}

	switch cb.state {
	case StateClosed:
		return false, true
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.config.HalfOpenRequests {
			cb.rejectedExecutions++
			return true, false
		}
		cb.halfOpenInFlight++
		return true, true
	default:
		cb.rejectedExecutions++
		return false, false
	}
}

func (cb *CircuitBreaker) complete(ctx context.Context, halfOpen bool, err error) {
	failure := cb.config.ErrorClassifier(err)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if halfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	if !failure {
		cb.config.Metrics.RecordSuccess(cb.config.Name)
		cb.consecutiveFails = 0
		if halfOpen && cb.state == StateHalfOpen {
			cb.halfOpenSuccesses++
			if cb.halfOpenSuccesses >= cb.config.HalfOpenRequests {
				cb.transitionLocked(StateClosed)
			}
		}
		return
	}

	cb.config.Metrics.RecordFailure(cb.config.Name, errorType(err))
	cb.consecutiveFails++

	switch {
	case cb.state == StateHalfOpen:
		cb.transitionLocked(StateOpen)
	case cb.state == StateClosed && cb.consecutiveFails >= cb.config.FailureThreshold:
		cb.config.Logger.WarnWithContext(ctx, "Backend failing, pausing requests", map[string]interface{}{
			"breaker":  cb.config.Name,
			"failures": cb.consecutiveFails,
			"error":    err.Error(),
		})
		cb.transitionLocked(StateOpen)
	}
}

// errorType maps an error to a low-cardinality label
func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, core.ErrTimeout):
		return "timeout"
	case errors.Is(err, core.ErrConnectionFailed):
		return "connection"
	default:
		var se *ServerError
		if errors.As(err, &se) {
			return "server_error"
		}
		return "other"
	}
}

// transitionLocked changes state; cb.mu must be held
func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.stateChangedAt = cb.now()
	cb.halfOpenInFlight = 0
	cb.halfOpenSuccesses = 0
	if to == StateClosed {
		cb.consecutiveFails = 0
	}

	cb.config.Logger.Info("Circuit breaker state changed", map[string]interface{}{
		"breaker": cb.config.Name,
		"from":    from.String(),
		"to":      to.String(),
	})
	cb.config.Metrics.RecordStateChange(cb.config.Name, from.String(), to.String())

	for _, listener := range cb.listeners {
		listener(cb.config.Name, from, to)
	}
}

// AddStateChangeListener registers a callback invoked on every transition.
// Listeners run with the breaker lock held and must not call back into it.
func (cb *CircuitBreaker) AddStateChangeListener(listener func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, listener)
}

// GetState returns the current state name
func (cb *CircuitBreaker) GetState() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// CanExecute reports whether a call would currently be let through
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		return cb.now().Sub(cb.stateChangedAt) >= cb.config.SleepWindow
	default:
		return cb.halfOpenInFlight < cb.config.HalfOpenRequests
	}
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name                string
	State               string
	ConsecutiveFailures int
	Executions          uint64
	Rejected            uint64
	Since               time.Time
}

// Snapshot returns the breaker's counters.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		Name:                cb.config.Name,
		State:               cb.state.String(),
		ConsecutiveFailures: cb.consecutiveFails,
		Executions:          cb.totalExecutions,
		Rejected:            cb.rejectedExecutions,
		Since:               cb.stateChangedAt,
	}
}

// Reset closes the circuit and clears counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(StateClosed)
	cb.consecutiveFails = 0
	cb.totalExecutions = 0
	cb.rejectedExecutions = 0
}
