package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gogotex/usersync/internal/config"
	"github.com/gogotex/usersync/pkg/logger"
	"github.com/gogotex/usersync/pkg/metrics"
	"github.com/spf13/cast"
)

// User is a remote directory record as returned by the service.
type User map[string]any

// RemoteID returns the record's directory id from "id" or "data.id".
func (u User) RemoteID() string {
	if u == nil {
		return ""
	}
	if id := cast.ToString(u["id"]); id != "" {
		return id
	}
	if data, ok := u["data"].(map[string]any); ok {
		return cast.ToString(data["id"])
	}
	return ""
}

// TokenSource supplies a bearer token for a local user. "" means none is available.
type TokenSource interface {
	GetValidToken(ctx context.Context, userID string) (string, error)
}

// Client calls the remote user-management service on behalf of local users.
type Client struct {
	baseURL             string
	httpClient          *http.Client
	tokens              TokenSource
	registrationEnabled bool
}

func NewClient(cfg config.UserServiceConfig, tokens TokenSource, registrationEnabled bool) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:             strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:          &http.Client{Timeout: timeout},
		tokens:              tokens,
		registrationEnabled: registrationEnabled,
	}
}

// SetBaseURL points the client at another service root.
func (c *Client) SetBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// CreateUser registers a new remote user.
func (c *Client) CreateUser(ctx context.Context, localUserID string, data map[string]any) (User, error) {
	token, err := c.tokenOrFail(ctx, localUserID)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logger.Fields{"local_user_id": localUserID, "fields": fieldNames(data)}).Debugf("creating user in User Service")

	status, body, err := c.do(ctx, "create", http.MethodPost, "/users/register", token, data)
	if err != nil {
		return nil, err
	}
	if !success(status) {
		return nil, newHTTPError(status, body)
	}
	logger.WithFields(logger.Fields{"local_user_id": localUserID}).Infof("user created in User Service")
	return decodeUser(body)
}

// UpdateUser partially updates the remote record remoteID.
func (c *Client) UpdateUser(ctx context.Context, localUserID, remoteID string, data map[string]any) (User, error) {
	token, err := c.tokenOrFail(ctx, localUserID)
	if err != nil {
		return nil, err
	}
	log := logger.WithFields(logger.Fields{"local_user_id": localUserID, "user_service_id": remoteID})
	log.Debugf("updating user in User Service")

	status, body, err := c.do(ctx, "update", http.MethodPatch, "/users-management/"+url.PathEscape(remoteID), token, data)
	if err != nil {
		return nil, err
	}
	if !success(status) {
		return nil, newHTTPError(status, body)
	}
	log.Infof("user updated in User Service")
	return decodeUser(body)
}

// FindByProviderID looks a remote user up by identity provider subject. It
// returns nil on 404, and also nil when no token is available: existence checks
// are often speculative.
func (c *Client) FindByProviderID(ctx context.Context, localUserID, subject string) (User, error) {
	token, err := c.tokens.GetValidToken(ctx, localUserID)
	if err != nil {
		return nil, err
	}
	if token == "" {
		logger.WithFields(logger.Fields{"local_user_id": localUserID}).Warnf("no token for FindByProviderID")
		return nil, nil
	}

	status, body, err := c.do(ctx, "find", http.MethodGet, "/users-management/keycloak/"+url.PathEscape(subject), token, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if !success(status) {
		return nil, newHTTPError(status, body)
	}
	return decodeUser(body)
}

// UserExists reports whether a remote user exists for subject.
func (c *Client) UserExists(ctx context.Context, localUserID, subject string) (bool, error) {
	u, err := c.FindByProviderID(ctx, localUserID, subject)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return u != nil, nil
}

// GetUser fetches a remote user by directory id; nil on 404.
func (c *Client) GetUser(ctx context.Context, localUserID, remoteID string) (User, error) {
	token, err := c.tokenOrFail(ctx, localUserID)
	if err != nil {
		return nil, err
	}
	status, body, err := c.do(ctx, "get", http.MethodGet, "/users-management/"+url.PathEscape(remoteID), token, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if !success(status) {
		return nil, newHTTPError(status, body)
	}
	return decodeUser(body)
}

// DeleteUser removes a remote user. A 404 counts as already deleted.
func (c *Client) DeleteUser(ctx context.Context, localUserID, remoteID string) error {
	token, err := c.tokenOrFail(ctx, localUserID)
	if err != nil {
		return err
	}
	status, body, err := c.do(ctx, "delete", http.MethodDelete, "/users-management/"+url.PathEscape(remoteID), token, nil)
	if err != nil {
		return err
	}
	if !success(status) && status != http.StatusNotFound {
		return newHTTPError(status, body)
	}
	return nil
}

// CreateOrUpdateUser upserts the remote user keyed by identity provider subject.
// An existing match is always updated, whatever the registration policy; with no
// match it creates, or fails with *RegistrationDisabledError when registration
// is disabled. Re-running after a create converges to an update.
func (c *Client) CreateOrUpdateUser(ctx context.Context, localUserID, subject string, data map[string]any) (User, error) {
	existing, err := c.FindByProviderID(ctx, localUserID, subject)
	if err != nil {
		return nil, err
	}
	if id := existing.RemoteID(); id != "" {
		return c.UpdateUser(ctx, localUserID, id, data)
	}
	if !c.registrationEnabled {
		return nil, &RegistrationDisabledError{Subject: subject}
	}
	return c.CreateUser(ctx, localUserID, data)
}

func (c *Client) tokenOrFail(ctx context.Context, localUserID string) (string, error) {
	token, err := c.tokens.GetValidToken(ctx, localUserID)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (c *Client) do(ctx context.Context, op, method, path, token string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.DirectoryRequests.WithLabelValues(op, "error").Inc()
		return 0, nil, fmt.Errorf("failed to connect to User Service: %w", err)
	}
	defer resp.Body.Close()
	metrics.DirectoryRequests.WithLabelValues(op, statusClass(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s response: %w", op, err)
	}
	return resp.StatusCode, body, nil
}

func success(status int) bool { return status >= 200 && status <= 299 }

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}

func decodeUser(body []byte) (User, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return User{}, nil
	}
	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("decode User Service response: %w", err)
	}
	if u == nil {
		u = User{}
	}
	return u, nil
}

func fieldNames(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
