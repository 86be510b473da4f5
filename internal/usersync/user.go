package usersync

import (
	"errors"
	"strings"

	"github.com/spf13/cast"
)

// ErrInvalidInput is returned when a sync request lacks a local id or a provider subject.
var ErrInvalidInput = errors.New("invalid sync input")

// ProviderUser is the identity provider's view of a user, as handed over after login.
type ProviderUser struct {
	Subject    string
	Attributes map[string]any
	Raw        map[string]any
}

// NewProviderUser normalizes a loosely shaped provider payload. The subject is
// read from "id" then "sub"; raw attributes from "user" then "attributes".
func NewProviderUser(m map[string]any) ProviderUser {
	p := ProviderUser{Attributes: m}
	if m == nil {
		p.Attributes = map[string]any{}
	}
	p.Subject = firstString(m, "id", "sub")
	for _, k := range []string{"user", "attributes"} {
		if raw, ok := m[k].(map[string]any); ok {
			p.Raw = raw
			break
		}
	}
	if p.Raw == nil {
		p.Raw = map[string]any{}
	}
	return p
}

// Tokens extracts a token payload carried on the provider user itself, in
// either snake_case or the camelCase used by OAuth login callbacks. Nil when
// the payload has no access token.
func (p ProviderUser) Tokens() map[string]any {
	access := firstString(p.Attributes, "access_token", "accessToken", "token")
	if access == "" {
		return nil
	}
	out := map[string]any{"access_token": access}
	if v := firstString(p.Attributes, "refresh_token", "refreshToken"); v != "" {
		out["refresh_token"] = v
	}
	if v := firstString(p.Raw, "id_token"); v != "" {
		out["id_token"] = v
	}
	if v, ok := firstValue(p.Attributes, "expires_in", "expiresIn"); ok {
		out["expires_in"] = v
	}
	return out
}

// LocalUser is the caller's own user record.
type LocalUser struct {
	ID     string
	Fields map[string]any
}

// NewLocalUser reads the id from "id"; numeric ids are formatted as strings.
func NewLocalUser(m map[string]any) LocalUser {
	u := LocalUser{Fields: m, ID: firstString(m, "id")}
	if u.Fields == nil {
		u.Fields = map[string]any{}
	}
	return u
}

func firstValue(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(cast.ToString(m[k])); s != "" {
			return s
		}
	}
	return ""
}
