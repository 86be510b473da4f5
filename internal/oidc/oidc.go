// Package oidc verifies bearer tokens presented to the HTTP API.
package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gogotex/usersync/internal/config"
	"github.com/gogotex/usersync/pkg/middleware"
)

// Verifier checks tokens against the realm's published signing keys.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers the realm's OIDC configuration. Access tokens issued
// by Keycloak carry the client in "azp" rather than "aud", so the audience is
// only enforced when audience is non-empty.
func NewVerifier(ctx context.Context, kc config.KeycloakConfig, audience string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, kc.Issuer())
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	cfg := &oidc.Config{ClientID: audience, SkipClientIDCheck: audience == ""}
	return &Verifier{verifier: provider.Verifier(cfg)}, nil
}

func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	tok, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return tok, nil
}
