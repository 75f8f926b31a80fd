package security

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/logging"
	"greeks-dashboard/internal/models"
)

type vaultDoc struct {
	Token string    `json:"token"`
	User  string    `json:"user"`
	At    time.Time `json:"at"`
}

func TestVaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.enc")
	v := NewVault(path, "correct horse")

	var empty vaultDoc
	if err := v.Load(&empty); !errors.Is(err, errors.ErrDataNotFound) {
		t.Fatalf("missing vault err = %v, want ErrDataNotFound", err)
	}

	in := vaultDoc{Token: "tok-123456789", User: "analyst", At: time.Date(2024, 1, 15, 9, 15, 0, 0, time.UTC)}
	if err := v.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, _ := os.ReadFile(path)
	if bytes.Contains(raw, []byte("tok-123456789")) {
		t.Fatal("vault file contains plaintext token")
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0600 {
		t.Errorf("vault perms = %v, want 0600", info.Mode().Perm())
	}

	var out vaultDoc
	if err := v.Load(&out); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out != in {
		t.Errorf("Load = %+v, want %+v", out, in)
	}

	var wrong vaultDoc
	err := NewVault(path, "battery staple").Load(&wrong)
	var secErr *errors.SecurityError
	if !errors.As(err, &secErr) {
		t.Errorf("wrong passphrase err = %v, want SecurityError", err)
	}

	if err := v.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if v.Exists() {
		t.Error("vault still exists after Clear")
	}
	if err := v.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func TestAuditLoggerWritesJSONLines(t *testing.T) {
	buf := nopCloser{&bytes.Buffer{}}
	al := NewAuditLoggerWithWriter(buf)
	al.SetUserID("admin")

	ctx := logging.WithRequestID(context.Background(), "req-9")
	_ = al.LogLogin(ctx, "analyst", nil)
	_ = al.LogLogin(ctx, "analyst", errors.New("bad password=hunter2"))
	_ = al.LogAdmin(ctx, AuditUserToggled, "u-1", map[string]interface{}{"active": false}, nil)

	var events []AuditEvent
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var e AuditEvent
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("decode: %v", err)
		}
		events = append(events, e)
	}

	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].EventType != AuditLogin || !events[0].Success || events[0].UserID != "analyst" {
		t.Errorf("login event = %+v", events[0])
	}
	if events[1].EventType != AuditAuthFailed || strings.Contains(events[1].ErrorMsg, "hunter2") {
		t.Errorf("failed login event = %+v", events[1])
	}
	if events[2].UserID != "admin" || events[2].Target != "u-1" || events[2].RequestID != "req-9" {
		t.Errorf("admin event = %+v", events[2])
	}
	if events[0].SessionID == "" || events[0].SessionID != al.SessionID() {
		t.Errorf("session id = %q", events[0].SessionID)
	}
}

func TestNilAuditLoggerIsNoop(t *testing.T) {
	var al *AuditLogger
	if err := al.LogLogout(context.Background(), "x"); err != nil {
		t.Errorf("nil logger err = %v", err)
	}
}

func TestMasking(t *testing.T) {
	if got := MaskToken("abcdefghijkl"); got != "abcd****ijkl" {
		t.Errorf("MaskToken = %q", got)
	}
	if got := MaskToken("short"); got != "*****" {
		t.Errorf("MaskToken(short) = %q", got)
	}

	in := `login failed: password=hunter2222 Authorization: Bearer abcdefghijklmnop`
	out := MaskSecrets(in)
	if strings.Contains(out, "hunter2222") || strings.Contains(out, "abcdefghijklmnop") {
		t.Errorf("MaskSecrets leaked: %q", out)
	}

	red := RedactFields(map[string]interface{}{"token": "abcdefghijkl", "index": "NIFTY", "password": 42})
	if red["token"] != "abcd****ijkl" || red["index"] != "NIFTY" || red["password"] != "***" {
		t.Errorf("RedactFields = %v", red)
	}
}

func TestAccessController(t *testing.T) {
	ac := NewAccessController(nil)
	ctx := context.Background()
	viewer := &models.Session{Token: "t", User: models.User{Username: "v", Role: models.RoleViewer}}
	admin := &models.Session{Token: "t", User: models.User{Username: "a", Role: models.RoleAdmin}}

	if err := ac.CheckPermission(ctx, nil, OpViewSeries); !errors.Is(err, errors.ErrNotAuthenticated) {
		t.Errorf("nil session err = %v", err)
	}
	if err := ac.CheckPermission(ctx, viewer, OpViewSeries); err != nil {
		t.Errorf("viewer view err = %v", err)
	}
	if err := ac.CheckPermission(ctx, viewer, OpRefreshCache); !errors.Is(err, errors.ErrForbidden) {
		t.Errorf("viewer admin err = %v, want ErrForbidden", err)
	}
	if err := ac.CheckPermission(ctx, admin, OpGenerateToken); err != nil {
		t.Errorf("admin err = %v", err)
	}
}

func TestValidators(t *testing.T) {
	if idx, err := ValidateIndex(" banknifty "); err != nil || idx != models.IndexBankNifty {
		t.Errorf("ValidateIndex = %q, %v", idx, err)
	}
	if _, err := ValidateIndex("DOW"); !errors.Is(err, errors.ErrInputValidation) {
		t.Errorf("ValidateIndex(DOW) err = %v", err)
	}

	for _, ok := range []string{"", "25jan", "25JAN2024", "2024-01-25", "4APR24"} {
		if _, err := ValidateExpiry(ok); err != nil {
			t.Errorf("ValidateExpiry(%q) err = %v", ok, err)
		}
	}
	for _, bad := range []string{"JAN", "25JAN;DROP", "../etc"} {
		if _, err := ValidateExpiry(bad); err == nil {
			t.Errorf("ValidateExpiry(%q) accepted", bad)
		}
	}

	if src, err := ValidateSource(""); err != nil || src != models.SourceLive {
		t.Errorf("ValidateSource(\"\") = %q, %v", src, err)
	}
	if err := ValidateUserID("../admin"); err == nil {
		t.Error("ValidateUserID accepted path traversal")
	}
}
