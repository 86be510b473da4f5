package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogotex/usersync/internal/config"
	"github.com/gogotex/usersync/pkg/logger"
	"github.com/gogotex/usersync/pkg/metrics"
)

const (
	defaultCachePrefix = "user_service_tokens"
	defaultCacheTTL    = 30 * 24 * time.Hour
)

// Manager owns the token lifecycle for local users: store, lazy refresh on
// read, clear and introspection.
//
// Refresh is not serialized. Two concurrent reads of the same expired record
// may both refresh; the last write wins.
type Manager struct {
	store    Store
	idp      IdentityProvider
	prefix   string
	cacheTTL time.Duration
	buffer   time.Duration
	now      func() time.Time
}

func NewManager(store Store, idp IdentityProvider, cfg config.TokenConfig) *Manager {
	m := &Manager{
		store:    store,
		idp:      idp,
		prefix:   cfg.CachePrefix,
		cacheTTL: cfg.CacheTTL,
		buffer:   cfg.Buffer,
		now:      time.Now,
	}
	if m.prefix == "" {
		m.prefix = defaultCachePrefix
	}
	if m.cacheTTL <= 0 {
		m.cacheTTL = defaultCacheTTL
	}
	return m
}

// WithClock replaces the time source. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) key(userID string) string {
	return m.prefix + ":" + userID
}

// StoreTokens normalizes a provider token payload and stores it for userID.
// expires_at is computed once here as now + expires_in - buffer.
func (m *Manager) StoreTokens(ctx context.Context, userID string, payload map[string]any) error {
	rec, lifetime := normalizePayload(payload)
	rec.ExpiresAt = m.now().Add(time.Duration(lifetime)*time.Second - m.buffer).Unix()

	if err := m.store.Put(ctx, m.key(userID), &rec, m.cacheTTL); err != nil {
		return fmt.Errorf("store tokens for user %s: %w", userID, err)
	}
	logger.WithFields(logger.Fields{"user_id": userID, "expires_at": rec.ExpiresAt}).Debugf("tokens stored")
	return nil
}

// TokenData returns the stored record, or nil when there is none. A record
// without an access token is reported as absent.
func (m *Manager) TokenData(ctx context.Context, userID string) (*Record, error) {
	rec, err := m.store.Get(ctx, m.key(userID))
	if err != nil {
		return nil, fmt.Errorf("load tokens for user %s: %w", userID, err)
	}
	if rec == nil || rec.AccessToken == "" {
		return nil, nil
	}
	return rec, nil
}

// GetValidToken returns an access token usable right now, refreshing it when
// expired. "" with a nil error means the user is unauthenticated.
func (m *Manager) GetValidToken(ctx context.Context, userID string) (string, error) {
	rec, err := m.TokenData(ctx, userID)
	if err != nil {
		return "", err
	}
	log := logger.WithFields(logger.Fields{"user_id": userID})
	if rec == nil {
		log.Warnf("no tokens found")
		return "", nil
	}
	if !rec.Expired(m.now()) {
		return rec.AccessToken, nil
	}

	log.Infof("token expired, attempting refresh")
	if rec.RefreshToken == "" {
		log.Errorf("no refresh token available")
		return "", nil
	}
	return m.RefreshToken(ctx, userID, rec.RefreshToken)
}

// RefreshToken exchanges refreshToken for a new token set and stores it.
//
// A provider rejection clears the record and returns *RefreshError. A transport
// failure also clears the record but returns ("", nil) so unrelated request
// paths degrade to "no token" instead of failing.
func (m *Manager) RefreshToken(ctx context.Context, userID, refreshToken string) (string, error) {
	log := logger.WithFields(logger.Fields{"user_id": userID})

	var providerID string
	prev, err := m.TokenData(ctx, userID)
	if err != nil {
		log.Warnf("failed to load previous token record, keycloak id not carried: %v", err)
	} else if prev != nil {
		providerID = prev.ProviderID
	}

	grant, err := m.idp.Refresh(ctx, refreshToken)
	if err != nil {
		var rerr *RefreshError
		if errors.As(err, &rerr) {
			rerr.UserID = userID
			metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
			log.Errorf("token refresh failed: status=%d error=%s", rerr.StatusCode, rerr.Description)
			m.clearQuietly(ctx, userID)
			return "", rerr
		}
		metrics.TokenRefreshes.WithLabelValues("transport").Inc()
		log.Errorf("token refresh exception: %v", err)
		m.clearQuietly(ctx, userID)
		return "", nil
	}

	payload := map[string]any{
		"access_token":  grant.AccessToken,
		"refresh_token": grant.RefreshToken,
		"id_token":      grant.IDToken,
		"keycloak_id":   providerID,
	}
	if grant.RefreshToken == "" {
		payload["refresh_token"] = refreshToken
	}
	if grant.ExpiresIn > 0 {
		payload["expires_in"] = grant.ExpiresIn
	}
	if err := m.StoreTokens(ctx, userID, payload); err != nil {
		return "", err
	}

	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	log.Infof("token refreshed successfully")
	return grant.AccessToken, nil
}

// ClearTokens deletes the record unconditionally.
func (m *Manager) ClearTokens(ctx context.Context, userID string) error {
	if err := m.store.Forget(ctx, m.key(userID)); err != nil {
		return fmt.Errorf("clear tokens for user %s: %w", userID, err)
	}
	logger.WithFields(logger.Fields{"user_id": userID}).Debugf("tokens cleared")
	return nil
}

func (m *Manager) clearQuietly(ctx context.Context, userID string) {
	if err := m.ClearTokens(ctx, userID); err != nil {
		logger.Warnf("%v", err)
	}
}

// HasValidTokens reports recoverable validity: a record exists and is either
// unexpired or carries a refresh token.
func (m *Manager) HasValidTokens(ctx context.Context, userID string) (bool, error) {
	rec, err := m.TokenData(ctx, userID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	if rec.Expired(m.now()) {
		return rec.RefreshToken != "", nil
	}
	return true, nil
}

// IntrospectToken returns the provider's claims for an active token, nil otherwise.
// It never fails.
func (m *Manager) IntrospectToken(ctx context.Context, token string) map[string]any {
	claims, err := m.idp.Introspect(ctx, token)
	if err != nil {
		logger.Errorf("token introspection failed: %v", err)
		return nil
	}
	if active, _ := claims["active"].(bool); !active {
		return nil
	}
	return claims
}
