package session

import (
	"path/filepath"
	"testing"
	"time"

	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/models"
	"greeks-dashboard/internal/security"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T, vault *security.Vault) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
	m := NewManager(Options{
		IdleTimeout: 30 * time.Minute,
		WarnBefore:  2 * time.Minute,
		Vault:       vault,
		Now:         clock.Now,
	})
	return m, clock
}

func testSession(expires time.Time) *models.Session {
	return &models.Session{
		Token:     "token-abcdefgh",
		User:      models.User{Username: "analyst", Role: models.RoleViewer},
		ExpiresAt: expires,
	}
}

func TestManagerIdleTimeout(t *testing.T) {
	m, clock := newTestManager(t, nil)

	if _, err := m.Token(); !errors.Is(err, errors.ErrNotAuthenticated) {
		t.Fatalf("logged out err = %v", err)
	}

	var reasons []string
	m.OnExpire(func(reason string) { reasons = append(reasons, reason) })

	if err := m.Start(testSession(time.Time{})); err != nil {
		t.Fatal(err)
	}
	if tok, err := m.Token(); err != nil || tok != "token-abcdefgh" {
		t.Fatalf("Token = %q, %v", tok, err)
	}

	clock.Advance(20 * time.Minute)
	m.Touch()
	clock.Advance(29 * time.Minute)
	if !m.IsAuthenticated() {
		t.Fatal("Touch should restart the idle timer")
	}
	if got := m.Remaining(); got != time.Minute {
		t.Errorf("Remaining = %v, want 1m", got)
	}
	if st := m.Status(); !st.Warning || st.Username != "analyst" {
		t.Errorf("Status = %+v, want warning", st)
	}

	clock.Advance(time.Minute)
	if _, err := m.Current(); !errors.Is(err, errors.ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if len(reasons) != 1 || reasons[0] != ReasonIdle {
		t.Errorf("reasons = %v", reasons)
	}
	if _, err := m.Current(); !errors.Is(err, errors.ErrNotAuthenticated) {
		t.Errorf("after expiry err = %v, want ErrNotAuthenticated", err)
	}
}

func TestManagerTokenExpiryWins(t *testing.T) {
	m, clock := newTestManager(t, nil)
	_ = m.Start(testSession(clock.Now().Add(10 * time.Minute)))

	if got := m.Remaining(); got != 10*time.Minute {
		t.Errorf("Remaining = %v, want 10m", got)
	}
	clock.Advance(10 * time.Minute)
	if m.IsAuthenticated() {
		t.Error("session should expire with its token")
	}
}

func TestManagerOnUnauthorized(t *testing.T) {
	m, _ := newTestManager(t, nil)
	var got string
	m.OnExpire(func(reason string) { got = reason })
	_ = m.Start(testSession(time.Time{}))

	m.OnUnauthorized()
	if got != ReasonUnauthorized || m.IsAuthenticated() {
		t.Errorf("reason = %q, authenticated = %v", got, m.IsAuthenticated())
	}
}

func TestManagerPersistsThroughVault(t *testing.T) {
	vault := security.NewVault(filepath.Join(t.TempDir(), "session.enc"), "test-passphrase")

	m, clock := newTestManager(t, vault)
	if err := m.Start(testSession(time.Time{})); err != nil {
		t.Fatal(err)
	}

	restored := NewManager(Options{IdleTimeout: 30 * time.Minute, Vault: vault, Now: clock.Now})
	if err := restored.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if st := restored.Status(); st.Username != "analyst" {
		t.Errorf("restored status = %+v", st)
	}

	clock.Advance(time.Hour)
	stale := NewManager(Options{IdleTimeout: 30 * time.Minute, Vault: vault, Now: clock.Now})
	if err := stale.Restore(); !errors.Is(err, errors.ErrSessionExpired) {
		t.Fatalf("stale Restore err = %v, want ErrSessionExpired", err)
	}
	if vault.Exists() {
		t.Error("expired session should be removed from the vault")
	}
}

func TestManagerClear(t *testing.T) {
	m, _ := newTestManager(t, nil)
	_ = m.Start(testSession(time.Time{}))
	m.Clear()
	if m.IsAuthenticated() || m.Remaining() != 0 {
		t.Error("Clear should log out")
	}
}
