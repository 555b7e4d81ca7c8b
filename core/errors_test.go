package core

import (
	"errors"
	"fmt"
	"testing"
)

// Test IsRetryable function
func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "ErrTimeout is retryable",
			err:      ErrTimeout,
			expected: true,
		},
		{
			name:     "ErrConnectionFailed is retryable",
			err:      ErrConnectionFailed,
			expected: true,
		},
		{
			name:     "ErrCircuitBreakerOpen is retryable",
			err:      ErrCircuitBreakerOpen,
			expected: true,
		},
		{
			name:     "wrapped retryable error is retryable",
			err:      fmt.Errorf("operation failed: %w", ErrTimeout),
			expected: true,
		},
		{
			name:     "ErrNotAuthenticated is not retryable",
			err:      ErrNotAuthenticated,
			expected: false,
		},
		{
			name:     "ErrInvalidConfiguration is not retryable",
			err:      ErrInvalidConfiguration,
			expected: false,
		},
		{
			name:     "custom error is not retryable",
			err:      errors.New("custom error"),
			expected: false,
		},
		{
			name:     "nil error is not retryable",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRetryable(tt.err)
			if result != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestIsConfigurationError(t *testing.T) {
	if !IsConfigurationError(fmt.Errorf("load: %w", ErrMissingConfiguration)) {
		t.Error("wrapped ErrMissingConfiguration should be a configuration error")
	}
	if IsConfigurationError(ErrTimeout) {
		t.Error("ErrTimeout should not be a configuration error")
	}
}

func TestIsAuthStateError(t *testing.T) {
	if !IsAuthStateError(ErrAlreadyAuthenticated) {
		t.Error("ErrAlreadyAuthenticated should be an auth state error")
	}
	if IsAuthStateError(ErrRequestFailed) {
		t.Error("ErrRequestFailed should not be an auth state error")
	}
}

func TestOpError(t *testing.T) {
	tests := []struct {
		name string
		err  *OpError
		want string
	}{
		{
			name: "op and wrapped error",
			err:  &OpError{Op: "session.Hydrate", Err: ErrConnectionFailed},
			want: "session.Hydrate: connection failed",
		},
		{
			name: "op with id",
			err:  &OpError{Op: "cart.Select", ID: "b-1", Err: ErrNotFound},
			want: "cart.Select [b-1]: not found",
		},
		{
			name: "op with message",
			err:  &OpError{Op: "Config.Validate", Message: "bad url", Err: ErrInvalidConfiguration},
			want: "Config.Validate: bad url: invalid configuration",
		},
		{
			name: "message only",
			err:  &OpError{Message: "plain"},
			want: "plain",
		},
		{
			name: "kind only",
			err:  &OpError{Kind: "config"},
			want: "config error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}

	wrapped := NewOpError("client.Do", "transport", ErrTimeout)
	if !errors.Is(wrapped, ErrTimeout) {
		t.Error("NewOpError should unwrap to the underlying error")
	}
	var fe *OpError
	if !errors.As(fmt.Errorf("outer: %w", wrapped), &fe) || fe.Kind != "transport" {
		t.Error("errors.As should find the OpError through wrapping")
	}
}
