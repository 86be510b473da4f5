package tokens

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"os"
	"testing"
	"time"

	"github.com/gogotex/usersync/internal/config"
	"github.com/gogotex/usersync/pkg/logger"
	"github.com/stretchr/testify/require"
)

// fakeKeycloak serves the realm token and introspection endpoints.
type fakeKeycloak struct {
	srv           *httptest.Server
	refreshCalls  atomic.Int32
	refreshStatus int
	refreshBody   map[string]any
	lastForm      map[string]string
	introspection map[string]any
}

func newFakeKeycloak(t *testing.T) *fakeKeycloak {
	t.Helper()
	f := &fakeKeycloak{
		refreshStatus: http.StatusOK,
		refreshBody: map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"expires_in":    600,
			"token_type":    "Bearer",
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/app/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.refreshCalls.Add(1)
		f.lastForm = map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
			"refresh_token": r.PostForm.Get("refresh_token"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.refreshStatus)
		_ = json.NewEncoder(w).Encode(f.refreshBody)
	})
	mux.HandleFunc("/realms/app/protocol/openid-connect/token/introspect", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if f.introspection == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.introspection)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeKeycloak) config() config.KeycloakConfig {
	return config.KeycloakConfig{BaseURL: f.srv.URL, Realm: "app", ClientID: "usersync", ClientSecret: "s3cret"}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestManager(t *testing.T, kc *fakeKeycloak) (*Manager, *MemoryStore, *clock) {
	t.Helper()
	store := NewMemoryStore()
	t.Cleanup(store.Close)
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	m := NewManager(store, NewKeycloakClient(kc.config(), 5*time.Second), config.TokenConfig{
		CachePrefix: "user_service_tokens",
		CacheTTL:    time.Hour,
		Buffer:      30 * time.Second,
	}).WithClock(clk.now)
	return m, store, clk
}

func TestStoreTokens_ExpiryBuffer(t *testing.T) {
	kc := newFakeKeycloak(t)
	m, store, clk := newTestManager(t, kc)
	ctx := context.Background()
	start := clk.t

	require.NoError(t, m.StoreTokens(ctx, "42", map[string]any{
		"access_token":  "stored-access",
		"refresh_token": "stored-refresh",
		"expires_in":    300,
	}))

	raw, err := store.Get(ctx, "user_service_tokens:42")
	require.NoError(t, err)
	require.NotNil(t, raw)
	require.Equal(t, start.Add(270*time.Second).Unix(), raw.ExpiresAt)

	clk.t = start.Add(269 * time.Second)
	tok, err := m.GetValidToken(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, "stored-access", tok)
	require.Equal(t, int32(0), kc.refreshCalls.Load())

	clk.t = start.Add(271 * time.Second)
	tok, err = m.GetValidToken(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, "new-access", tok)
	require.Equal(t, int32(1), kc.refreshCalls.Load())
	require.Equal(t, "refresh_token", kc.lastForm["grant_type"])
	require.Equal(t, "stored-refresh", kc.lastForm["refresh_token"])
	require.Equal(t, "usersync", kc.lastForm["client_id"])
	require.Equal(t, "s3cret", kc.lastForm["client_secret"])
}

func TestStoreTokens_TolerantPayload(t *testing.T) {
	kc := newFakeKeycloak(t)
	m, _, clk := newTestManager(t, kc)
	ctx := context.Background()

	require.NoError(t, m.StoreTokens(ctx, "7", map[string]any{
		"token":        "camel-access",
		"refreshToken": "camel-refresh",
		"expiresIn":    "120",
		"sub":          "kc-sub-7",
	}))
	rec, err := m.TokenData(ctx, "7")
	require.NoError(t, err)
	require.Equal(t, "camel-access", rec.AccessToken)
	require.Equal(t, "camel-refresh", rec.RefreshToken)
	require.Equal(t, "kc-sub-7", rec.ProviderID)
	require.Equal(t, clk.t.Add(90*time.Second).Unix(), rec.ExpiresAt)

	// no lifetime reported: default 300s
	require.NoError(t, m.StoreTokens(ctx, "8", map[string]any{"access_token": "a"}))
	rec, err = m.TokenData(ctx, "8")
	require.NoError(t, err)
	require.Equal(t, clk.t.Add(270*time.Second).Unix(), rec.ExpiresAt)
}

func TestGetValidToken_Missing(t *testing.T) {
	kc := newFakeKeycloak(t)
	m, _, _ := newTestManager(t, kc)
	tok, err := m.GetValidToken(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, tok)
}

func TestGetValidToken_RecordWithoutAccessTokenIsAbsent(t *testing.T) {
	kc := newFakeKeycloak(t)
	m, _, _ := newTestManager(t, kc)
	ctx := context.Background()
	require.NoError(t, m.StoreTokens(ctx, "5", map[string]any{"refresh_token": "r"}))

	tok, err := m.GetValidToken(ctx, "5")
	require.NoError(t, err)
	require.Empty(t, tok)
	ok, err := m.HasValidTokens(ctx, "5")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetValidToken_ExpiredWithoutRefreshToken(t *testing.T) {
	kc := newFakeKeycloak(t)
	m, _, clk := newTestManager(t, kc)
	ctx := context.Background()
	require.NoError(t, m.StoreTokens(ctx, "1", map[string]any{"access_token": "a", "expires_in": 60}))

	clk.t = clk.t.Add(time.Minute)
	tok, err := m.GetValidToken(ctx, "1")
	require.NoError(t, err)
	require.Empty(t, tok)
	require.Equal(t, int32(0), kc.refreshCalls.Load())
}

func TestRefreshToken_RejectedClearsRecord(t *testing.T) {
	kc := newFakeKeycloak(t)
	kc.refreshStatus = http.StatusBadRequest
	kc.refreshBody = map[string]any{"error": "invalid_grant", "error_description": "Token is not active"}
	m, store, clk := newTestManager(t, kc)
	ctx := context.Background()

	require.NoError(t, m.StoreTokens(ctx, "42", map[string]any{"access_token": "a", "refresh_token": "r", "expires_in": 60}))
	clk.t = clk.t.Add(time.Hour)

	tok, err := m.GetValidToken(ctx, "42")
	require.Empty(t, tok)
	var rerr *RefreshError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, http.StatusBadRequest, rerr.Code())
	require.Equal(t, "Token is not active", rerr.Description)
	require.Equal(t, "42", rerr.UserID)

	raw, err := store.Get(ctx, "user_service_tokens:42")
	require.NoError(t, err)
	require.Nil(t, raw)
}

func TestRefreshToken_TransportFailureDegradesToNoToken(t *testing.T) {
	kc := newFakeKeycloak(t)
	m, store, _ := newTestManager(t, kc)
	ctx := context.Background()
	require.NoError(t, m.StoreTokens(ctx, "42", map[string]any{"access_token": "a", "refresh_token": "r"}))

	kc.srv.Close()

	tok, err := m.RefreshToken(ctx, "42", "r")
	require.NoError(t, err)
	require.Empty(t, tok)
	raw, err := store.Get(ctx, "user_service_tokens:42")
	require.NoError(t, err)
	require.Nil(t, raw)
}

func TestRefreshToken_ReplacesRecord(t *testing.T) {
	kc := newFakeKeycloak(t)
	m, _, clk := newTestManager(t, kc)
	ctx := context.Background()
	require.NoError(t, m.StoreTokens(ctx, "42", map[string]any{
		"access_token":  "old-access",
		"refresh_token": "old-refresh",
		"id_token":      "old-id",
		"keycloak_id":   "kc-42",
	}))

	tok, err := m.RefreshToken(ctx, "42", "old-refresh")
	require.NoError(t, err)
	require.Equal(t, "new-access", tok)

	rec, err := m.TokenData(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, "new-access", rec.AccessToken)
	require.Equal(t, "new-refresh", rec.RefreshToken)
	require.Empty(t, rec.IDToken, "refresh replaces the whole record")
	require.Equal(t, "kc-42", rec.ProviderID)
	require.Equal(t, clk.t.Add(570*time.Second).Unix(), rec.ExpiresAt)
}

// unreadableStore fails every Get but still accepts writes.
type unreadableStore struct {
	*MemoryStore
}

func (unreadableStore) Get(context.Context, string) (*Record, error) {
	return nil, errors.New("connection reset")
}

func TestRefreshToken_LogsUnreadablePreviousRecord(t *testing.T) {
	var buf bytes.Buffer
	logger.Init("info")
	logger.SetOutput(&buf, "json")
	t.Cleanup(func() { logger.SetOutput(os.Stdout, "json") })

	kc := newFakeKeycloak(t)
	mem := NewMemoryStore()
	t.Cleanup(mem.Close)
	m := NewManager(unreadableStore{mem}, NewKeycloakClient(kc.config(), 5*time.Second), config.TokenConfig{
		CachePrefix: "user_service_tokens",
		CacheTTL:    time.Hour,
	})

	tok, err := m.RefreshToken(context.Background(), "42", "old-refresh")
	require.NoError(t, err)
	require.Equal(t, "new-access", tok)
	require.Contains(t, buf.String(), "failed to load previous token record")
	require.Contains(t, buf.String(), "connection reset")
	require.Contains(t, buf.String(), `"level":"warn"`)
}

func TestRefreshToken_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	kc := newFakeKeycloak(t)
	kc.refreshBody = map[string]any{"access_token": "new-access", "token_type": "Bearer"}
	m, _, clk := newTestManager(t, kc)
	ctx := context.Background()

	tok, err := m.RefreshToken(ctx, "42", "long-lived")
	require.NoError(t, err)
	require.Equal(t, "new-access", tok)
	rec, err := m.TokenData(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, "long-lived", rec.RefreshToken)
	require.Equal(t, clk.t.Add(270*time.Second).Unix(), rec.ExpiresAt)
}

func TestHasValidTokens(t *testing.T) {
	kc := newFakeKeycloak(t)
	m, _, clk := newTestManager(t, kc)
	ctx := context.Background()
	start := clk.t

	ok, err := m.HasValidTokens(ctx, "1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.StoreTokens(ctx, "1", map[string]any{"access_token": "a", "expires_in": 300}))
	require.NoError(t, m.StoreTokens(ctx, "2", map[string]any{"access_token": "a", "refresh_token": "r", "expires_in": 300}))

	ok, _ = m.HasValidTokens(ctx, "1")
	require.True(t, ok)

	clk.t = start.Add(time.Hour)
	ok, _ = m.HasValidTokens(ctx, "1")
	require.False(t, ok, "expired without refresh token is not recoverable")
	ok, _ = m.HasValidTokens(ctx, "2")
	require.True(t, ok, "expired with refresh token is recoverable")
	require.Equal(t, int32(0), kc.refreshCalls.Load())
}

func TestClearTokens(t *testing.T) {
	kc := newFakeKeycloak(t)
	m, _, _ := newTestManager(t, kc)
	ctx := context.Background()
	require.NoError(t, m.StoreTokens(ctx, "1", map[string]any{"access_token": "a"}))
	require.NoError(t, m.ClearTokens(ctx, "1"))
	rec, err := m.TokenData(ctx, "1")
	require.NoError(t, err)
	require.Nil(t, rec)
	// clearing again is fine
	require.NoError(t, m.ClearTokens(ctx, "1"))
}

func TestIntrospectToken(t *testing.T) {
	kc := newFakeKeycloak(t)
	m, _, _ := newTestManager(t, kc)
	ctx := context.Background()

	kc.introspection = map[string]any{"active": true, "sub": "kc-1", "scope": "openid"}
	claims := m.IntrospectToken(ctx, "tok")
	require.Equal(t, "kc-1", claims["sub"])

	kc.introspection = map[string]any{"active": false}
	require.Nil(t, m.IntrospectToken(ctx, "tok"))

	kc.introspection = nil
	require.Nil(t, m.IntrospectToken(ctx, "tok"))

	kc.srv.Close()
	require.Nil(t, m.IntrospectToken(ctx, "tok"))
}
