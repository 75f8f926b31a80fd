package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"greeks-dashboard/internal/api"
	"greeks-dashboard/internal/config"
	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/models"
)

// fakeBackend serves the analytics backend endpoints the CLI calls.
type fakeBackend struct {
	*httptest.Server

	mu          sync.Mutex
	role        string
	greeksCalls int
	authHeaders []string
	loggedOut   bool
}

func newFakeBackend(t *testing.T, role string) *fakeBackend {
	t.Helper()
	b := &fakeBackend{role: role}
	mux := http.NewServeMux()
	mux.HandleFunc(api.PathLogin, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "secret" {
			http.Error(w, `{"detail":"bad credentials"}`, http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]interface{}{
			"token":      "tok-1",
			"expires_in": 3600,
			"user":       map[string]string{"id": "u1", "username": body.Username, "role": b.role},
		})
	})
	mux.HandleFunc(api.PathLogout, func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.loggedOut = true
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc(api.PathGreeks, func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.greeksCalls++
		b.authHeaders = append(b.authHeaders, r.Header.Get("Authorization"))
		b.mu.Unlock()
		writeJSON(w, map[string]interface{}{"data": []map[string]interface{}{
			{"timestamp": "2024-01-15T09:15:00+05:30", "call_vega": 2.0, "put_vega": -3.0, "call_delta": 0.5, "put_delta": -0.4},
			{"timestamp": "2024-01-15T09:20:00+05:30", "call_vega": 4.0, "put_vega": -1.0},
		}})
	})
	mux.HandleFunc(api.PathExpiries, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []string{"25JAN", "01FEB"})
	})
	mux.HandleFunc(api.PathAdminUsers, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]interface{}{{"id": "u1", "username": "alice", "role": "admin", "active": true}})
	})
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func (b *fakeBackend) calls() (int, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.greeksCalls, append([]string(nil), b.authHeaders...)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func testConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.Backend.URL = backendURL
	cfg.Backend.MaxRetries = 0
	cfg.Store.RetentionDays = 0
	cfg.Logging.Audit = false
	return cfg
}

// run executes one command line against a fresh App, like a new process would.
func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	app := NewApp(cfg, zerolog.Nop())
	defer app.Close()

	var out bytes.Buffer
	cmd := NewRootCmd(app)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionJSON(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	out, err := run(t, cfg, "version", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil || v["version"] != Version {
		t.Errorf("output = %q", out)
	}
}

func TestConfigCommands(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Credentials.Backend.Password = "hunter2"

	out, err := run(t, cfg, "config", "path")
	if err != nil || strings.TrimSpace(out) != cfg.Dir() {
		t.Errorf("config path = %q, %v", out, err)
	}
	out, err = run(t, cfg, "config", "show", "--json")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "hunter2") {
		t.Error("config show leaked the password")
	}
	if _, err := run(t, cfg, "config", "validate"); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestSeriesRequiresLogin(t *testing.T) {
	backend := newFakeBackend(t, "viewer")
	cfg := testConfig(t, backend.URL)

	_, err := run(t, cfg, "series", "--date", "2024-01-15")
	if !errors.Is(err, errors.ErrNotAuthenticated) {
		t.Fatalf("err = %v, want not authenticated", err)
	}
	if n, _ := backend.calls(); n != 0 {
		t.Errorf("backend called %d times without a session", n)
	}
}

func TestLoginSeriesExportLogout(t *testing.T) {
	backend := newFakeBackend(t, "viewer")
	cfg := testConfig(t, backend.URL)

	out, err := run(t, cfg, "login", "--username", "alice", "--password", "secret")
	if err != nil {
		t.Fatalf("login: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Logged in as alice") {
		t.Errorf("login output = %q", out)
	}

	// A new process picks the session up from the vault.
	out, err = run(t, cfg, "series", "--date", "2024-01-15", "--index", "nifty", "--json")
	if err != nil {
		t.Fatalf("series: %v\n%s", err, out)
	}
	var series struct {
		Query   models.SeriesQuery   `json:"query"`
		Summary models.SeriesSummary `json:"summary"`
	}
	if err := json.Unmarshal([]byte(out), &series); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if series.Query.Index != models.IndexNifty || series.Summary.TotalSlots != 376 || series.Summary.FilledSlots != 2 {
		t.Errorf("series = %+v", series)
	}
	if series.Summary.LatestTrend == models.TrendNone {
		t.Error("latest trend missing")
	}

	n, auth := backend.calls()
	if n != 1 || auth[0] != "Bearer tok-1" {
		t.Fatalf("calls=%d auth=%v", n, auth)
	}

	// A closed day is served from the local sample cache the second time.
	out, err = run(t, cfg, "series", "--date", "2024-01-15")
	if err != nil {
		t.Fatalf("series table: %v", err)
	}
	if !strings.Contains(out, "09:20") || !strings.Contains(out, "NET VEGA") {
		t.Errorf("table output = %q", out)
	}
	if n, _ := backend.calls(); n != 1 {
		t.Errorf("backend calls = %d, want cached", n)
	}

	out, err = run(t, cfg, "trend", "--date", "2024-01-15")
	if err != nil || !strings.Contains(out, "Net Vega") {
		t.Errorf("trend = %q, %v", out, err)
	}

	file := filepath.Join(t.TempDir(), "out.csv")
	if _, err := run(t, cfg, "export", "--date", "2024-01-15", "--out", file, "--order", "asc"); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "time,") || !strings.HasPrefix(lines[1], "09:15,") {
		t.Errorf("csv = %q", data)
	}

	out, err = run(t, cfg, "expiries", "--json")
	if err != nil || !strings.Contains(out, "25JAN") {
		t.Errorf("expiries = %q, %v", out, err)
	}

	if _, err := run(t, cfg, "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	backend.mu.Lock()
	loggedOut := backend.loggedOut
	backend.mu.Unlock()
	if !loggedOut {
		t.Error("backend logout not called")
	}
	if _, err := run(t, cfg, "series", "--date", "2024-01-15"); !errors.Is(err, errors.ErrNotAuthenticated) {
		t.Errorf("after logout err = %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	backend := newFakeBackend(t, "viewer")
	cfg := testConfig(t, backend.URL)

	_, err := run(t, cfg, "login", "--username", "alice", "--password", "nope")
	if !errors.Is(err, errors.ErrInvalidCredentials) {
		t.Errorf("err = %v", err)
	}
	out, _ := run(t, cfg, "status")
	if !strings.Contains(out, "Not logged in") {
		t.Errorf("status = %q", out)
	}
}

func TestAdminNeedsAdminRole(t *testing.T) {
	backend := newFakeBackend(t, "viewer")
	cfg := testConfig(t, backend.URL)
	if _, err := run(t, cfg, "login", "-u", "bob", "-p", "secret"); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, cfg, "admin", "users", "list"); !errors.Is(err, errors.ErrForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}

	admin := newFakeBackend(t, "admin")
	cfg = testConfig(t, admin.URL)
	if _, err := run(t, cfg, "login", "-u", "alice", "-p", "secret"); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, cfg, "admin", "users", "list")
	if err != nil || !strings.Contains(out, "alice") {
		t.Errorf("users list = %q, %v", out, err)
	}
}

func TestInvalidSelection(t *testing.T) {
	backend := newFakeBackend(t, "viewer")
	cfg := testConfig(t, backend.URL)

	for _, args := range [][]string{
		{"series", "--index", "DOWJONES"},
		{"series", "--source", "replay"},
		{"trend", "--expiry", "25 JAN!"},
	} {
		if _, err := run(t, cfg, args...); !errors.Is(err, errors.ErrInputValidation) {
			t.Errorf("%v: err = %v, want input validation", args, err)
		}
	}
	for _, args := range [][]string{
		{"series", "--date", "15/01/2024"},
		{"export", "--order", "sideways"},
	} {
		if _, err := run(t, cfg, args...); err == nil {
			t.Errorf("%v: expected an error", args)
		}
	}
	if n, _ := backend.calls(); n != 0 {
		t.Errorf("backend called %d times for invalid input", n)
	}
}

func TestLocalCacheRefresh(t *testing.T) {
	backend := newFakeBackend(t, "viewer")
	cfg := testConfig(t, backend.URL)
	if _, err := run(t, cfg, "login", "-u", "alice", "-p", "secret"); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, cfg, "series", "--date", "2024-01-15"); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, cfg, "admin", "cache", "list", "--json")
	if err != nil || !strings.Contains(out, `"sample_count": 2`) {
		t.Errorf("cache list = %q, %v", out, err)
	}
	out, err = run(t, cfg, "admin", "cache", "refresh", "--local", "--json")
	if err != nil || !strings.Contains(out, `"purged": 1`) {
		t.Errorf("refresh = %q, %v", out, err)
	}
	if _, err := run(t, cfg, "series", "--date", "2024-01-15"); err != nil {
		t.Fatal(err)
	}
	if n, _ := backend.calls(); n != 2 {
		t.Errorf("backend calls = %d, want refetch after purge", n)
	}
}
