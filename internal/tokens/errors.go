package tokens

import "fmt"

// RefreshError is returned when the identity provider rejects a refresh grant.
// The stored record has already been cleared; the user must re-authenticate.
type RefreshError struct {
	UserID      string
	StatusCode  int
	Description string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("keycloak token refresh failed: %s", e.Description)
}

// Code returns the provider's HTTP status.
func (e *RefreshError) Code() int { return e.StatusCode }
