package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork covers timeouts, refused connections and an open circuit.
	// It never means the credentials are bad.
	ErrNetwork = errors.New("network error")

	// ErrUnauthorized matches any APIError with status 401 or 403.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRefreshRejected means the refresh endpoint itself answered 401/403:
	// the refresh token is confirmed invalid.
	ErrRefreshRejected = errors.New("refresh token rejected")

	ErrMalformedResponse = errors.New("malformed response")
)

// APIError is a non-2xx answer or a {"success": false} envelope.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && IsAuthStatus(e.Status)
}

// IsAuthStatus reports whether status is 401 or 403
func IsAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
