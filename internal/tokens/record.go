package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cast"
)

// defaultLifetime is used when the provider payload carries no expires_in.
const defaultLifetime int64 = 300

// Record is the token set held for one local user.
// ExpiresAt is unix seconds and already has the safety buffer subtracted.
type Record struct {
	AccessToken  string `json:"access_token" bson:"accessToken"`
	RefreshToken string `json:"refresh_token,omitempty" bson:"refreshToken,omitempty"`
	IDToken      string `json:"id_token,omitempty" bson:"idToken,omitempty"`
	ExpiresAt    int64  `json:"expires_at" bson:"expiresAt"`
	ProviderID   string `json:"keycloak_id,omitempty" bson:"keycloakId,omitempty"`
}

// Expired reports whether the access token must not be used at now.
func (r *Record) Expired(now time.Time) bool {
	return now.Unix() >= r.ExpiresAt
}

// Expiry returns ExpiresAt as a time.
func (r *Record) Expiry() time.Time {
	return time.Unix(r.ExpiresAt, 0)
}

// normalizePayload reads a loosely shaped token payload (callback data from the
// identity provider, snake_case or camelCase) into a Record without ExpiresAt,
// and returns the reported lifetime in seconds.
func normalizePayload(p map[string]any) (Record, int64) {
	rec := Record{
		AccessToken:  cast.ToString(first(p, "access_token", "accessToken", "token")),
		RefreshToken: cast.ToString(first(p, "refresh_token", "refreshToken")),
		IDToken:      cast.ToString(first(p, "id_token", "idToken")),
		ProviderID:   cast.ToString(first(p, "keycloak_id", "sub", "provider_id")),
	}
	if rec.ProviderID == "" {
		rec.ProviderID = subjectFromJWT(rec.AccessToken)
	}

	lifetime := defaultLifetime
	if v := first(p, "expires_in", "expiresIn"); v != nil {
		if n, err := cast.ToInt64E(v); err == nil {
			lifetime = n
		}
	}
	return rec, lifetime
}

func first(p map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// subjectFromJWT reads the sub claim without verifying the signature. The token
// was just handed to us by the provider; the claim is only used as a label.
func subjectFromJWT(raw string) string {
	if raw == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}
