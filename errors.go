package monitor

import (
	"fmt"
	"net/http"
)

// Flow error codes as constants
const (
	ErrorCodeInvalidSession    = "invalid_session"
	ErrorCodeUpstreamAuth      = "upstream_auth_failure"
	ErrorCodeProfileData       = "profile_data_invalid"
	ErrorCodeStore             = "store_failure"
	ErrorCodeRateLimitExceeded = "rate_limit_exceeded"
)

// FlowError is an error surfaced by the sign-in flow with a stable code and
// the HTTP status the handler responds with.
type FlowError struct {
	Code        string
	Description string
	Status      int

	// Err is the underlying cause, when one exists.
	Err error
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Unwrap returns the underlying cause.
func (e *FlowError) Unwrap() error {
	return e.Err
}

// NewFlowError creates a new flow error.
func NewFlowError(code, description string, status int, err error) *FlowError {
	return &FlowError{
		Code:        code,
		Description: description,
		Status:      status,
		Err:         err,
	}
}

var (
	// ErrInvalidSession indicates a missing or mismatched anti-replay state
	// token. Returned before any upstream call is made.
	ErrInvalidSession = func(desc string) *FlowError {
		return NewFlowError(ErrorCodeInvalidSession, desc, http.StatusUnauthorized, nil)
	}

	// ErrUpstreamAuth indicates the code exchange with the identity provider
	// failed.
	ErrUpstreamAuth = func(desc string, err error) *FlowError {
		return NewFlowError(ErrorCodeUpstreamAuth, desc, http.StatusBadGateway, err)
	}

	// ErrProfileData indicates the provider returned a profile payload that
	// could not be parsed or carries no email.
	ErrProfileData = func(desc string, err error) *FlowError {
		return NewFlowError(ErrorCodeProfileData, desc, http.StatusBadGateway, err)
	}

	// ErrStore indicates a subscriber store read or write failed.
	ErrStore = func(desc string, err error) *FlowError {
		return NewFlowError(ErrorCodeStore, desc, http.StatusInternalServerError, err)
	}

	// ErrRateLimitExceeded indicates the client exceeded the per-IP request
	// limit.
	ErrRateLimitExceeded = func(desc string) *FlowError {
		return NewFlowError(ErrorCodeRateLimitExceeded, desc, http.StatusTooManyRequests, nil)
	}
)
