package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrNoToken is returned before any request is sent when the token manager has
// no usable token for the local user.
var ErrNoToken = errors.New("no valid Keycloak token available for User Service request")

// HTTPError is a non-2xx response from the directory that the operation does not tolerate.
type HTTPError struct {
	StatusCode int
	Body       string
	Message    string
	Data       map[string]any
}

func newHTTPError(status int, body []byte) *HTTPError {
	e := &HTTPError{StatusCode: status, Body: string(body)}
	if err := json.Unmarshal(body, &e.Data); err == nil {
		if m, ok := e.Data["message"].(string); ok && m != "" {
			e.Message = m
		} else if m, ok := e.Data["error"].(string); ok && m != "" {
			e.Message = m
		}
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("HTTP Error %d", status)
	}
	return e
}

func (e *HTTPError) Error() string {
	return "User Service error: " + e.Message
}

// RegistrationDisabledError is returned by CreateOrUpdateUser when no remote
// record matches the subject and creating one is administratively disabled.
type RegistrationDisabledError struct {
	Subject string
}

func (e *RegistrationDisabledError) Error() string {
	return fmt.Sprintf("registration is disabled; no User Service record for subject %s", e.Subject)
}

type coder interface{ Code() int }

// ErrorCode returns the numeric code carried in sync notifications.
func ErrorCode(err error) int {
	var herr *HTTPError
	var rerr *RegistrationDisabledError
	var c coder
	switch {
	case err == nil:
		return 0
	case errors.As(err, &herr):
		return herr.StatusCode
	case errors.Is(err, ErrNoToken):
		return http.StatusUnauthorized
	case errors.As(err, &rerr):
		return http.StatusForbidden
	case errors.As(err, &c):
		return c.Code()
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the directory.
func IsNotFound(err error) bool {
	var herr *HTTPError
	return errors.As(err, &herr) && herr.StatusCode == http.StatusNotFound
}
