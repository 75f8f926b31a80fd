// Package session tracks the logged-in dashboard session: token, role,
// inactivity timeout and the expiry countdown.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/logging"
	"greeks-dashboard/internal/models"
	"greeks-dashboard/internal/security"
)

// Expiry reasons reported to OnExpire callbacks and the audit log.
const (
	ReasonIdle         = "idle_timeout"
	ReasonTokenExpired = "token_expired"
	ReasonUnauthorized = "unauthorized"
)

// Options configures a Manager.
type Options struct {
	IdleTimeout time.Duration
	WarnBefore  time.Duration
	Vault       *security.Vault       // nil disables persistence
	Audit       *security.AuditLogger // nil disables auditing
	Logger      zerolog.Logger
	Now         func() time.Time
}

// persisted is the vault document.
type persisted struct {
	Session      models.Session `json:"session"`
	LastActivity time.Time      `json:"last_activity"`
}

// Status is a point-in-time view for status lines and countdowns.
type Status struct {
	Authenticated bool          `json:"authenticated"`
	Username      string        `json:"username,omitempty"`
	Role          models.Role   `json:"role,omitempty"`
	Remaining     time.Duration `json:"remaining"`
	Warning       bool          `json:"warning"`
	ExpiresAt     time.Time     `json:"expires_at,omitempty"`
}

// Manager owns the current session. Safe for concurrent use.
type Manager struct {
	opts Options

	mu           sync.Mutex
	current      *models.Session
	lastActivity time.Time
	onExpire     []func(reason string)
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{opts: opts}
}

// OnExpire registers a callback invoked after the session expires.
func (m *Manager) OnExpire(fn func(reason string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = append(m.onExpire, fn)
}

// Start installs a freshly issued session and persists it.
func (m *Manager) Start(s *models.Session) error {
	if s == nil || s.Token == "" {
		return errors.ErrNotAuthenticated
	}
	m.mu.Lock()
	cp := *s
	m.current = &cp
	m.lastActivity = m.opts.Now()
	m.mu.Unlock()

	logging.LogSession(m.opts.Logger, "started", s.User.Username)
	return m.Persist()
}

// Restore loads a persisted session from the vault. An expired session is
// discarded and reported as ErrSessionExpired.
func (m *Manager) Restore() error {
	if m.opts.Vault == nil {
		return errors.ErrNotAuthenticated
	}
	var doc persisted
	if err := m.opts.Vault.Load(&doc); err != nil {
		if errors.Is(err, errors.ErrDataNotFound) {
			return errors.ErrNotAuthenticated
		}
		return err
	}

	m.mu.Lock()
	m.current = &doc.Session
	m.lastActivity = doc.LastActivity
	m.mu.Unlock()

	_, err := m.Current()
	return err
}

// Persist writes the session to the vault, if one is configured.
func (m *Manager) Persist() error {
	if m.opts.Vault == nil {
		return nil
	}
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil
	}
	doc := persisted{Session: *m.current, LastActivity: m.lastActivity}
	m.mu.Unlock()
	return m.opts.Vault.Save(doc)
}

// Current returns the live session, expiring it first if it has lapsed.
func (m *Manager) Current() (*models.Session, error) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil, errors.ErrNotAuthenticated
	}
	if reason := m.expiredLocked(m.opts.Now()); reason != "" {
		m.mu.Unlock()
		m.Expire(reason)
		return nil, errors.ErrSessionExpired
	}
	cp := *m.current
	m.mu.Unlock()
	return &cp, nil
}

// Token returns the bearer token of the live session.
func (m *Manager) Token() (string, error) {
	s, err := m.Current()
	if err != nil {
		return "", err
	}
	return s.Token, nil
}

// IsAuthenticated reports whether a live session exists.
func (m *Manager) IsAuthenticated() bool {
	_, err := m.Current()
	return err == nil
}

// Touch records user activity and restarts the inactivity timer.
func (m *Manager) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.lastActivity = m.opts.Now()
	}
}

// OnUnauthorized is called by the API client when the backend answers 401.
func (m *Manager) OnUnauthorized() {
	m.mu.Lock()
	active := m.current != nil
	m.mu.Unlock()
	if active {
		m.Expire(ReasonUnauthorized)
	}
}

// Remaining returns the time until the session lapses, whichever of
// inactivity or token expiry comes first. Zero when logged out.
func (m *Manager) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remainingLocked(m.opts.Now())
}

// Status returns a snapshot for display.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Now()
	if m.current == nil || m.expiredLocked(now) != "" {
		return Status{}
	}
	remaining := m.remainingLocked(now)
	return Status{
		Authenticated: true,
		Username:      m.current.User.Username,
		Role:          m.current.User.Role,
		Remaining:     remaining,
		Warning:       remaining <= m.opts.WarnBefore,
		ExpiresAt:     now.Add(remaining),
	}
}

// Expire ends the session because it lapsed or was rejected.
func (m *Manager) Expire(reason string) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return
	}
	username := m.current.User.Username
	m.current = nil
	callbacks := append([]func(string){}, m.onExpire...)
	m.mu.Unlock()

	m.clearVault()
	_ = m.opts.Audit.LogSessionExpired(context.Background(), username, reason)
	m.opts.Logger.Warn().Str("user", username).Str("reason", reason).Msg("Session expired")

	for _, fn := range callbacks {
		fn(reason)
	}
}

// Clear ends the session on logout.
func (m *Manager) Clear() {
	m.mu.Lock()
	var username string
	if m.current != nil {
		username = m.current.User.Username
	}
	m.current = nil
	m.mu.Unlock()

	m.clearVault()
	if username != "" {
		logging.LogSession(m.opts.Logger, "cleared", username)
	}
}

func (m *Manager) clearVault() {
	if m.opts.Vault == nil {
		return
	}
	if err := m.opts.Vault.Clear(); err != nil {
		m.opts.Logger.Warn().Err(err).Msg("Could not remove session vault")
	}
}

func (m *Manager) expiredLocked(now time.Time) string {
	if m.current.Expired(now) {
		return ReasonTokenExpired
	}
	if now.Sub(m.lastActivity) >= m.opts.IdleTimeout {
		return ReasonIdle
	}
	return ""
}

func (m *Manager) remainingLocked(now time.Time) time.Duration {
	if m.current == nil {
		return 0
	}
	remaining := m.opts.IdleTimeout - now.Sub(m.lastActivity)
	if !m.current.ExpiresAt.IsZero() {
		if abs := m.current.ExpiresAt.Sub(now); abs < remaining {
			remaining = abs
		}
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}
