package api

import (
	"context"
	"net/http"
	"time"

	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/models"
)

// PathLogout ends the backend session.
const PathLogout = "/api/auth/logout"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token       string      `json:"token"`
	AccessToken string      `json:"access_token"`
	User        models.User `json:"user"`
	ExpiresIn   int64       `json:"expires_in"` // seconds
	ExpiresAt   *time.Time  `json:"expires_at"`
}

// Login exchanges credentials for a session. Wrong credentials yield
// ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, username, password string) (*models.Session, error) {
	var resp loginResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   PathLogin,
		body:   loginRequest{Username: username, Password: password},
	}, &resp)
	if err != nil {
		if errors.Is(err, errors.ErrNotAuthenticated) || errors.Is(err, errors.ErrForbidden) {
			return nil, errors.Wrap(errors.ErrInvalidCredentials, err.Error())
		}
		return nil, err
	}

	token := resp.Token
	if token == "" {
		token = resp.AccessToken
	}
	if token == "" {
		return nil, errors.NewDataError("response", PathLogin, "login response has no token", nil)
	}

	now := time.Now()
	s := &models.Session{Token: token, User: resp.User, IssuedAt: now}
	if s.User.Username == "" {
		s.User.Username = username
	}
	if s.User.Role == "" {
		s.User.Role = models.RoleViewer
	}
	switch {
	case resp.ExpiresAt != nil:
		s.ExpiresAt = *resp.ExpiresAt
	case resp.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return s, nil
}

// Logout revokes the current token. An already-invalid token is not an error.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, request{method: http.MethodPost, path: PathLogout}, nil)
	if errors.Is(err, errors.ErrNotAuthenticated) || errors.Is(err, errors.ErrSessionExpired) {
		return nil
	}
	return err
}
