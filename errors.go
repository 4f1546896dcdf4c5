package chatrelay

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors.
var (
	ErrUnauthenticated    = errors.New("chatrelay: no identity")
	ErrQuotaExceeded      = errors.New("chatrelay: usage limit reached")
	ErrContextExceeded    = errors.New("chatrelay: model maximum context reached")
	ErrUnknownModel       = errors.New("chatrelay: unknown model")
	ErrUpstreamOpenFailed = errors.New("chatrelay: upstream stream open failed")
	ErrUpstreamStream     = errors.New("chatrelay: upstream stream failed mid-flight")
)

// RelayError wraps an error with request context.
type RelayError struct {
	Err      error
	Provider string
	Model    string
	UserID   string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("chatrelay: provider=%s model=%s user=%s: %v",
		e.Provider, e.Model, e.UserID, e.Err)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps a pre-stream relay error to a transport status code.
// Mid-stream failures have no status: the response is already committed.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrQuotaExceeded), errors.Is(err, ErrContextExceeded):
		return http.StatusForbidden
	case errors.Is(err, ErrUnknownModel):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstreamOpenFailed):
		return http.StatusFailedDependency
	default:
		return http.StatusBadGateway
	}
}
