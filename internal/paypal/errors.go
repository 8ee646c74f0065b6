package paypal

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for classification with errors.Is.
var (
	ErrUnauthorized  = errors.New("paypal: unauthorized")
	ErrRateLimited   = errors.New("paypal: rate limited")
	ErrNoCredentials = errors.New("paypal: client id and secret are required")
	ErrNotAnObject   = errors.New("paypal: record is not a JSON object")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("paypal: HTTP %d: %s", e.StatusCode, body)
}

// Is maps status codes onto the package sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}
