package api

import (
	"context"
	"net/http"
	"strings"

	"greeks-dashboard/internal/errors"
)

// Interceptor inspects or rewrites every outgoing request before it is sent.
// Returning an error aborts the call without touching the network.
type Interceptor interface {
	Intercept(req *http.Request) error
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(req *http.Request) error

// Intercept calls f(req).
func (f InterceptorFunc) Intercept(req *http.Request) error { return f(req) }

// ResponseObserver is implemented by interceptors that also want the status
// code of the response.
type ResponseObserver interface {
	Observe(req *http.Request, status int)
}

// Paths that must work without a session.
const (
	PathLogin  = "/api/auth/login"
	PathHealth = "/api/health"
)

// Credentials is what SessionGuard needs from the session owner.
type Credentials interface {
	Token() (string, error)
	Touch()
	OnUnauthorized()
}

// SessionGuard blocks requests while there is no live session, attaches the
// bearer token otherwise, and expires the session when the backend answers 401.
type SessionGuard struct {
	creds  Credentials
	public map[string]bool
}

// NewSessionGuard creates a guard over creds.
func NewSessionGuard(creds Credentials) *SessionGuard {
	return &SessionGuard{
		creds:  creds,
		public: map[string]bool{PathLogin: true, PathHealth: true},
	}
}

// Intercept implements Interceptor.
func (g *SessionGuard) Intercept(req *http.Request) error {
	if g.isPublic(req) {
		return nil
	}
	token, err := g.creds.Token()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	g.creds.Touch()
	return nil
}

// Observe implements ResponseObserver.
func (g *SessionGuard) Observe(req *http.Request, status int) {
	if status == http.StatusUnauthorized && !g.isPublic(req) {
		g.creds.OnUnauthorized()
	}
}

func (g *SessionGuard) isPublic(req *http.Request) bool {
	return g.public[strings.TrimRight(req.URL.Path, "/")] || strings.HasSuffix(req.URL.Path, PathLogin)
}

type tokenKey struct{}

// WithToken stores a caller's bearer token in ctx for ForwardToken.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the token stored by WithToken.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

// ForwardToken attaches the per-request token carried in the request context.
// The HTTP service uses it to pass each browser's own credentials upstream.
func ForwardToken(required bool) Interceptor {
	return InterceptorFunc(func(req *http.Request) error {
		token := TokenFromContext(req.Context())
		if token == "" {
			if required && !strings.HasSuffix(req.URL.Path, PathHealth) {
				return errors.ErrNotAuthenticated
			}
			return nil
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	})
}

// BearerFromHeader extracts the token from an Authorization header value.
func BearerFromHeader(h string) string {
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
