package resilience

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name    string        `json:"name"`
	Status  HealthStatus  `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency_ns"`
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) ComponentHealth

// SystemHealth is the aggregate answer for /healthz.
type SystemHealth struct {
	Status     HealthStatus      `json:"status"`
	Uptime     time.Duration     `json:"uptime_ns"`
	CheckedAt  time.Time         `json:"checked_at"`
	Components []ComponentHealth `json:"components"`
}

// Checker runs registered health checks on demand.
type Checker struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheck
	timeout   time.Duration
	startTime time.Time
}

// NewChecker creates a checker whose probes are bounded by timeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{
		checks:    make(map[string]HealthCheck),
		timeout:   timeout,
		startTime: time.Now(),
	}
}

// Register adds or replaces the check for a component.
func (c *Checker) Register(name string, check HealthCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Check runs every probe concurrently. Any unhealthy component makes the
// system unhealthy; any degraded one makes it degraded.
func (c *Checker) Check(ctx context.Context) SystemHealth {
	c.mu.RLock()
	checks := make(map[string]HealthCheck, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]ComponentHealth, 0, len(checks))
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()
			h := check(ctx)
			if h.Name == "" {
				h.Name = name
			}
			mu.Lock()
			results = append(results, h)
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	status := HealthStatusHealthy
	for _, h := range results {
		switch h.Status {
		case HealthStatusUnhealthy:
			status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if status == HealthStatusHealthy {
				status = HealthStatusDegraded
			}
		}
	}

	return SystemHealth{
		Status:     status,
		Uptime:     time.Since(c.startTime),
		CheckedAt:  time.Now(),
		Components: results,
	}
}

// PingCheck creates a health check for anything with a Ping, such as the
// SQLite store or the Redis cache.
func PingCheck(name string, slow time.Duration, ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		health := ComponentHealth{Name: name}

		start := time.Now()
		err := ping(ctx)
		health.Latency = time.Since(start)

		if err != nil {
			health.Status = HealthStatusUnhealthy
			health.Message = fmt.Sprintf("ping failed: %v", err)
			return health
		}

		if slow > 0 && health.Latency > slow {
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("slow: %v", health.Latency)
			return health
		}

		health.Status = HealthStatusHealthy
		return health
	}
}

// BreakerCheck reports an open circuit as degraded: the service still answers
// from cache while the backend recovers.
func BreakerCheck(cb *CircuitBreaker) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		stats := cb.Stats()
		health := ComponentHealth{Name: cb.Name(), Status: HealthStatusHealthy}
		switch stats.State {
		case CircuitOpen:
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("circuit open since %s", stats.LastStateChange.Format(time.RFC3339))
		case CircuitHalfOpen:
			health.Status = HealthStatusDegraded
			health.Message = "circuit probing backend"
		}
		return health
	}
}
