package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"greeks-dashboard/internal/models"
)

// Admin console endpoints.
const (
	PathAdminUsers  = "/api/admin/users"
	PathAdminCache  = "/api/admin/cache/refresh"
	PathAdminTokens = "/api/admin/tokens"
)

// CacheRefreshResult is the backend's answer to a cache refresh.
type CacheRefreshResult struct {
	Status    string `json:"status"`
	Refreshed int    `json:"refreshed"`
	Message   string `json:"message,omitempty"`
}

// ListUsers returns every dashboard account.
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.do(ctx, request{method: http.MethodGet, path: PathAdminUsers}, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// SetUserActive enables or disables an account.
func (c *Client) SetUserActive(ctx context.Context, userID string, active bool) (*models.User, error) {
	var user models.User
	err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   PathAdminUsers + "/" + url.PathEscape(userID),
		body:   map[string]bool{"active": active},
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// RefreshCache asks the backend to rebuild its Greeks cache. An empty index refreshes all.
func (c *Client) RefreshCache(ctx context.Context, index models.Index) (*CacheRefreshResult, error) {
	body := map[string]string{}
	if index != "" {
		body["index"] = string(index)
	}
	var result CacheRefreshResult
	if err := c.do(ctx, request{method: http.MethodPost, path: PathAdminCache, body: body}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GenerateToken mints an API token for userID valid for ttl.
func (c *Client) GenerateToken(ctx context.Context, userID string, ttl time.Duration) (*models.AccessToken, error) {
	var token models.AccessToken
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   PathAdminTokens,
		body: map[string]interface{}{
			"user_id":     userID,
			"ttl_seconds": int64(ttl / time.Second),
		},
	}, &token)
	if err != nil {
		return nil, err
	}
	return &token, nil
}
