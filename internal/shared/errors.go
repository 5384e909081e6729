package shared

import (
	"fmt"
	"net/http"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrRefreshFailed    = fmt.Errorf("session refresh failed")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrServerOffline      = fmt.Errorf("media server unreachable")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// Pipeline errors
	ErrSetup                  = fmt.Errorf("synthesis setup failed")
	ErrNoSession              = fmt.Errorf("no valid session")
	ErrMalformedSuggestions   = fmt.Errorf("malformed suggestion payload")
	ErrAcquisitionUnavailable = fmt.Errorf("acquisition tool unavailable")
	ErrScanTimeout            = fmt.Errorf("library scan did not finish in time")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// StatusError is returned by HTTP clients when a remote service answers with a non-success status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%v: status %d %s", ErrAPIRequest, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%v: status %d: %s", ErrAPIRequest, e.StatusCode, e.Body)
}

// Unwrap lets callers match [ErrAPIRequest] and, for 401 and 403 responses, [ErrAuthFailed].
func (e *StatusError) Unwrap() []error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return []error{ErrAPIRequest, ErrAuthFailed}
	}
	return []error{ErrAPIRequest}
}
