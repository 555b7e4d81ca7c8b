package resilience

import (
	"fmt"
	"net/http"
)

// ServerError marks a 5xx response as a breaker failure. The response itself
// is still handed back to the caller so the body can be inspected.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: HTTP %d", e.StatusCode)
}

// Transport wraps an http.RoundTripper with circuit breaker protection.
// Server errors (5xx) and transport failures count toward the threshold;
// client errors (4xx) do not.
type Transport struct {
	base    http.RoundTripper
	breaker *CircuitBreaker
}

// NewTransport wraps base; a nil base uses http.DefaultTransport.
func NewTransport(base http.RoundTripper, breaker *CircuitBreaker) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, breaker: breaker}
}

// Breaker exposes the underlying circuit breaker
func (t *Transport) Breaker() *CircuitBreaker {
	return t.breaker
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := t.breaker.Execute(req.Context(), func() error {
		var rtErr error
		resp, rtErr = t.base.RoundTrip(req)
		if rtErr != nil {
			return rtErr
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return &ServerError{StatusCode: resp.StatusCode}
		}
		return nil
	})
	if err != nil {
		if _, ok := err.(*ServerError); ok {
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}
