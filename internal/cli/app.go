package cli

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"greeks-dashboard/internal/api"
	"greeks-dashboard/internal/config"
	"greeks-dashboard/internal/dashboard"
	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/metrics"
	"greeks-dashboard/internal/models"
	"greeks-dashboard/internal/notify"
	"greeks-dashboard/internal/resilience"
	"greeks-dashboard/internal/security"
	"greeks-dashboard/internal/session"
	"greeks-dashboard/internal/store"
	"greeks-dashboard/pkg/utils"
)

// App holds the application dependencies. Backend-facing pieces are built
// on first use so offline commands never touch the network or the database.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Session *session.Manager
	Audit   *security.AuditLogger
	Access  *security.AccessController
	Metrics *metrics.Recorder
	Now     func() time.Time

	mu      sync.Mutex
	breaker *resilience.CircuitBreaker
	client  *api.Client
	store   store.SampleStore
	storeOK bool
}

// NewApp wires the session, audit log and metrics from cfg and restores a
// persisted login if there is one.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		Now:     time.Now,
	}

	if cfg.Logging.Audit {
		auditCfg := security.DefaultAuditConfig()
		auditCfg.LogDir = filepath.Join(cfg.Dir(), "audit")
		audit, err := security.NewAuditLogger(auditCfg)
		if err != nil {
			logger.Warn().Err(err).Msg("Audit log unavailable")
		} else {
			app.Audit = audit
		}
	}
	app.Access = security.NewAccessController(app.Audit)

	var vault *security.Vault
	if cfg.Session.Persist {
		vault = security.NewVault(filepath.Join(cfg.Dir(), "session.vault"), "")
	}
	app.Session = session.NewManager(session.Options{
		IdleTimeout: cfg.Session.IdleTimeout,
		WarnBefore:  cfg.Session.WarnBefore,
		Vault:       vault,
		Audit:       app.Audit,
		Logger:      logger,
		Now:         func() time.Time { return app.Now() },
	})
	if err := app.Session.Restore(); err != nil && !errors.Is(err, errors.ErrNotAuthenticated) {
		logger.Debug().Err(err).Msg("No usable saved session")
	}
	return app
}

// Breaker returns the circuit breaker shared by every backend client.
func (a *App) Breaker() *resilience.CircuitBreaker {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.breakerLocked()
}

func (a *App) breakerLocked() *resilience.CircuitBreaker {
	if a.breaker != nil {
		return a.breaker
	}
	states := []string{string(resilience.CircuitClosed), string(resilience.CircuitOpen), string(resilience.CircuitHalfOpen)}
	cfg := resilience.DefaultCircuitBreakerConfig()
	if a.Config.Backend.BreakerThreshold > 0 {
		cfg.FailureThreshold = a.Config.Backend.BreakerThreshold
	}
	if a.Config.Backend.BreakerCooldown > 0 {
		cfg.Timeout = a.Config.Backend.BreakerCooldown
	}
	cfg.IsFailure = api.IsTransient
	cfg.OnStateChange = func(name string, from, to resilience.CircuitState) {
		a.Logger.Warn().Str("breaker", name).Str("from", string(from)).Str("to", string(to)).Msg("Circuit breaker state changed")
		a.Metrics.RecordBreakerState(name, string(to), states)
	}
	a.breaker = resilience.NewCircuitBreaker("backend", cfg)
	a.Metrics.RecordBreakerState("backend", string(resilience.CircuitClosed), states)
	return a.breaker
}

// clientOptions are the transport settings shared by the CLI and server clients.
func (a *App) clientOptions(interceptors ...api.Interceptor) []api.Option {
	cfg := a.Config.Backend
	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries + 1

	opts := []api.Option{
		api.WithTimeout(cfg.Timeout),
		api.WithRateLimit(cfg.RateLimit, cfg.Burst),
		api.WithCircuitBreaker(a.breakerLocked()),
		api.WithRetry(retry),
		api.WithLogger(a.Logger),
	}
	for _, i := range interceptors {
		opts = append(opts, api.WithInterceptor(i))
	}
	return opts
}

// Client returns the backend client for CLI commands. Requests carry the
// logged-in session's token and are refused once it has expired.
func (a *App) Client() (*api.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}
	c, err := api.New(a.Config.Backend.URL, a.clientOptions(api.NewSessionGuard(a.Session))...)
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

// ServerClient returns a backend client that forwards each browser's token.
// Without requireAuth, requests that carry no token fall back to the CLI
// session, if one is logged in.
func (a *App) ServerClient(requireAuth bool) (*api.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	interceptors := []api.Interceptor{api.ForwardToken(requireAuth)}
	if !requireAuth {
		interceptors = append(interceptors, api.InterceptorFunc(func(req *http.Request) error {
			if req.Header.Get("Authorization") != "" {
				return nil
			}
			if token, err := a.Session.Token(); err == nil {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			return nil
		}))
	}
	return api.New(a.Config.Backend.URL, a.clientOptions(interceptors...)...)
}

// Store opens the SQLite sample cache once. It returns nil when disabled or
// unavailable; callers then always go to the backend.
func (a *App) Store() store.SampleStore {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.storeOK || !a.Config.Store.Enabled {
		return a.store
	}
	a.storeOK = true

	st, err := store.NewSQLiteStore(a.Config.StorePath())
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Sample cache unavailable, fetching from backend")
		return nil
	}
	a.store = st
	a.pruneStore(st)
	return st
}

// pruneStore drops sample sets older than the retention window, at most once a day.
func (a *App) pruneStore(st store.SampleStore) {
	days := a.Config.Store.RetentionDays
	if days <= 0 {
		return
	}
	now := a.Now()
	if f := store.CheckFreshness(st, store.SyncTypePurge, 24*time.Hour, now); f.IsFresh {
		return
	}
	cutoff := utils.DateOnly(now).AddDate(0, 0, -days)
	n, err := st.PurgeSamples(context.Background(), cutoff)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Sample cache purge failed")
		return
	}
	if n > 0 {
		a.Logger.Info().Int64("sets", n).Time("before", cutoff).Msg("Purged old sample sets")
	}
}

// Fetcher is the backend client behind the sample cache.
func (a *App) Fetcher(upstream dashboard.Fetcher) dashboard.Fetcher {
	st := a.Store()
	if st == nil {
		return upstream
	}
	return dashboard.NewCachingFetcher(upstream, st, a.Metrics, a.Logger)
}

// Service builds the dashboard service over the CLI client.
func (a *App) Service() (*dashboard.Service, error) {
	client, err := a.Client()
	if err != nil {
		return nil, err
	}
	return dashboard.NewService(a.Fetcher(client),
		dashboard.WithMetrics(a.Metrics),
		dashboard.WithLogger(a.Logger),
		dashboard.WithClock(a.Now),
	), nil
}

// RequireSession returns the live session or explains how to get one.
func (a *App) RequireSession() (*models.Session, error) {
	s, err := a.Session.Current()
	if err != nil {
		return nil, errors.Wrap(err, "run 'greeks login' first")
	}
	return s, nil
}

// Authorize checks op against the logged-in role before calling the backend.
func (a *App) Authorize(ctx context.Context, op security.OperationType) (*models.Session, error) {
	s, err := a.RequireSession()
	if err != nil {
		return nil, err
	}
	if err := a.Access.CheckPermission(ctx, s, op); err != nil {
		return nil, err
	}
	return s, nil
}

// Notifier sends watch alerts to the terminal and the configured webhook.
func (a *App) Notifier(output *Output) notify.Notifier {
	mn := notify.NewMultiNotifier(a.Config.Notify)
	mn.AddChannel(notify.NewTerminalNotifier(output.Writer(), a.Config.Notify.Bell, output.colorEnabled))
	return mn
}

// Health registers the probes the server exposes on /healthz.
func (a *App) Health(client *api.Client) *resilience.Checker {
	checker := resilience.NewChecker(3 * time.Second)
	checker.Register("backend", resilience.PingCheck("backend", time.Second, client.Ping))
	checker.Register("backend_breaker", resilience.BreakerCheck(a.Breaker()))
	if st := a.Store(); st != nil {
		checker.Register("sample_cache", resilience.PingCheck("sample_cache", 200*time.Millisecond, st.Ping))
	}
	return checker
}

// Close releases the store and audit log.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.Logger.Debug().Err(err).Msg("Closing sample cache")
		}
		a.store = nil
	}
	if a.Audit != nil {
		_ = a.Audit.Close()
		a.Audit = nil
	}
}
