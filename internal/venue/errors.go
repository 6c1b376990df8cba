package venue

import (
	"errors"
	"fmt"
)

// ErrNoCredentials marks an authenticated call attempted on a connector
// constructed without API keys. Public market-data calls never return it.
var ErrNoCredentials = errors.New("authenticated call without credentials")

// APIError is a venue-level rejection: a non-2xx HTTP status or a nonzero
// venue status code with the venue's own message attached.
type APIError struct {
	Venue   string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s api error (status %d): %s", e.Venue, e.Status, e.Message)
	}
	return fmt.Sprintf("%s api error: %s", e.Venue, e.Message)
}

// AuthError wraps ErrNoCredentials with the venue and call for context.
type AuthError struct {
	Venue string
	Op    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Venue, e.Op, ErrNoCredentials)
}

func (e *AuthError) Unwrap() error { return ErrNoCredentials }
