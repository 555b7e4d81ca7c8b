package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultErrorMessage is used when a failed response carries no message.
const DefaultErrorMessage = "An unexpected error occurred"

// ErrSessionInvalid matches every error produced by a forced logout.
var ErrSessionInvalid = errors.New("session invalid")

// Backend error codes the client reacts to.
const (
	CodeSuccess         = 1000
	CodeAlreadyLoggedIn = 5002
	CodeSessionInvalid  = 5003
	CodeSessionExpired  = 5004
	CodeSessionNotFound = 5005
)

// sessionErrorCodes force a logout whatever the HTTP status.
var sessionErrorCodes = map[int]bool{
	CodeSessionInvalid:  true,
	CodeSessionExpired:  true,
	CodeSessionNotFound: true,
}

// sessionPhrases force a logout when found in a response message.
var sessionPhrases = []string{"session invalid", "session expired", "session not found"}

// serverSessionHints force a logout when a 500 response mentions them.
var serverSessionHints = []string{"session", "invalid", "expired"}

// APIError is the normalized failure returned by every call.
//
// ErrorCode is the backend errorCode when present, otherwise the HTTP status,
// otherwise 500 for failures that never produced a response.
type APIError struct {
	Status         int    `json:"-"`
	ErrorCode      int    `json:"errorCode"`
	Message        string `json:"message"`
	Timestamp      string `json:"timestamp,omitempty"`
	Path           string `json:"path,omitempty"`
	SessionInvalid bool   `json:"-"`

	// Err is the transport failure, when there was one
	Err error `json:"-"`
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("api error %d: %s: %v", e.ErrorCode, e.Message, e.Err)
	}
	return fmt.Sprintf("api error %d: %s", e.ErrorCode, e.Message)
}

// Unwrap exposes ErrSessionInvalid for forced logouts and the transport cause otherwise.
func (e *APIError) Unwrap() []error {
	var errs []error
	if e.SessionInvalid {
		errs = append(errs, ErrSessionInvalid)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// AsAPIError extracts an *APIError from err.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// MessageOf returns the user-facing message carried by err, or fallback.
func MessageOf(err error, fallback string) string {
	if apiErr, ok := AsAPIError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// envelope is the subset of every response body the client inspects.
type envelope struct {
	ErrorCode *Code  `json:"errorCode"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}

// Code accepts an error code encoded as a JSON number or a numeric string.
type Code int

// UnmarshalJSON implements json.Unmarshaler
func (c *Code) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		var f float64
		if ferr := json.Unmarshal([]byte(s), &f); ferr != nil {
			return fmt.Errorf("invalid error code %s: %w", data, err)
		}
		n = int(f)
	}
	*c = Code(n)
	return nil
}

// parseEnvelope reads errorCode/message from an object body. Arrays, strings
// and malformed bodies yield ok == false.
func parseEnvelope(body []byte) (env envelope, ok bool) {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return envelope{}, false
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, false
	}
	return env, true
}

// sessionFailureReason classifies a response as a forced-logout trigger.
// It returns "" when the response does not invalidate the session.
func sessionFailureReason(status int, env envelope) string {
	if status == 401 {
		return ReasonUnauthorized
	}
	if env.ErrorCode != nil && sessionErrorCodes[int(*env.ErrorCode)] {
		return ReasonSessionErrorCode
	}
	msg := strings.ToLower(env.Message)
	for _, phrase := range sessionPhrases {
		if strings.Contains(msg, phrase) {
			return ReasonSessionMessage
		}
	}
	if status == 500 {
		for _, hint := range serverSessionHints {
			if strings.Contains(msg, hint) {
				return ReasonServerSessionError
			}
		}
	}
	return ""
}

// normalize builds the APIError for a failed response.
func normalize(status int, env envelope) *APIError {
	apiErr := &APIError{
		Status:    status,
		ErrorCode: status,
		Message:   env.Message,
		Timestamp: env.Timestamp,
		Path:      env.Path,
	}
	if env.ErrorCode != nil {
		apiErr.ErrorCode = int(*env.ErrorCode)
	}
	if apiErr.ErrorCode == 0 {
		apiErr.ErrorCode = 500
	}
	if apiErr.Message == "" {
		apiErr.Message = DefaultErrorMessage
	}
	return apiErr
}
