package oidc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gogotex/usersync/pkg/middleware"
	"github.com/golang-jwt/jwt/v5"
)

type insecureToken struct {
	claims jwt.MapClaims
}

func (t *insecureToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// InsecureVerifier reads claims WITHOUT validating the signature. Only for
// local and integration runs behind ALLOW_INSECURE_TOKEN.
type InsecureVerifier struct {
	parser *jwt.Parser
}

func NewInsecureVerifier() *InsecureVerifier {
	return &InsecureVerifier{parser: jwt.NewParser()}
}

func (v *InsecureVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	claims := jwt.MapClaims{}
	if _, _, err := v.parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("invalid token format: %w", err)
	}
	return &insecureToken{claims: claims}, nil
}
