// Package health aggregates component checks into one report for the
// API's /healthz and /readyz endpoints.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"grimm.is/ruleaudit/internal/analyzer"
	"grimm.is/ruleaudit/internal/clock"
	"grimm.is/ruleaudit/internal/ruleset"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// DefaultTTL is how long a report is served from cache.
const DefaultTTL = 5 * time.Second

// Check represents a single health check.
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ns"`
}

// Report represents the overall health report.
type Report struct {
	Status    Status           `json:"status"`
	Version   string           `json:"version,omitempty"`
	Uptime    string           `json:"uptime,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp time.Time        `json:"timestamp"`
}

// CheckFunc is a function that performs a health check.
type CheckFunc func(ctx context.Context) Check

// Checker runs registered checks concurrently and caches the report.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	cache   *Report
	ttl     time.Duration
	version string
	started time.Time
}

// NewChecker creates a checker with the analyzer self-test registered.
func NewChecker(version string) *Checker {
	c := &Checker{
		checks:  make(map[string]CheckFunc),
		ttl:     DefaultTTL,
		version: version,
		started: clock.Now(),
	}
	c.Register("analyzer", CheckAnalyzer)
	return c
}

// SetTTL changes the cache lifetime; zero disables caching.
func (c *Checker) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
	c.cache = nil
}

// Register adds a health check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
	c.cache = nil
}

// Check runs all health checks and returns a report.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	if c.cache != nil && clock.Since(c.cache.Timestamp) < c.ttl {
		report := *c.cache
		c.mu.RUnlock()
		return c.withUptime(report)
	}
	checkFuncs := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checkFuncs[name] = fn
	}
	c.mu.RUnlock()

	checks := make(map[string]Check)
	overallStatus := StatusHealthy

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, fn := range checkFuncs {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			check := fn(ctx)
			check.Name = name

			mu.Lock()
			checks[name] = check
			if check.Status == StatusUnhealthy {
				overallStatus = StatusUnhealthy
			} else if check.Status == StatusDegraded && overallStatus != StatusUnhealthy {
				overallStatus = StatusDegraded
			}
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	report := Report{
		Status:    overallStatus,
		Version:   c.version,
		Checks:    checks,
		Timestamp: clock.Now(),
	}

	c.mu.Lock()
	if c.ttl > 0 {
		c.cache = &report
	}
	c.mu.Unlock()

	return c.withUptime(report)
}

func (c *Checker) withUptime(r Report) Report {
	r.Uptime = clock.Since(c.started).Round(time.Second).String()
	return r
}

// Handler serves the full report: 200 when healthy or degraded, 503 when
// unhealthy.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		report := c.Check(ctx)

		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}

// ReadinessHandler returns a handler for readiness checks.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		report := c.Check(ctx)
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("NOT READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	}
}

// Pinger is anything that can report its own reachability, such as the
// history store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck turns a Pinger into a check. A failing ping degrades the
// service rather than failing it: audits still work without history.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) Check {
		start := clock.Now()
		check := Check{LastChecked: start, Status: StatusHealthy, Message: "reachable"}
		if err := p.Ping(ctx); err != nil {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("ping failed: %v", err)
		}
		check.Duration = clock.Since(start)
		return check
	}
}

// CheckAnalyzer analyzes a two-rule set with one known redundancy.
func CheckAnalyzer(ctx context.Context) Check {
	start := clock.Now()
	check := Check{LastChecked: start}

	res, err := selfTest(ctx)
	switch {
	case err != nil:
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("self-test failed: %v", err)
	case res.Count(analyzer.KindRedundant) != 1:
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("self-test found %d redundant rules, want 1", res.Count(analyzer.KindRedundant))
	default:
		check.Status = StatusHealthy
		check.Message = "self-test passed"
	}

	check.Duration = clock.Since(start)
	return check
}

func selfTest(ctx context.Context) (*analyzer.Result, error) {
	ssh := ruleset.Port(22)
	rules := []ruleset.Rule{
		{Table: "filter", Chain: "INPUT", Position: 1, Action: ruleset.ActionAccept, Protocol: ruleset.ProtoTCP, DestPorts: ssh},
		{Table: "filter", Chain: "INPUT", Position: 2, Action: ruleset.ActionAccept, Protocol: ruleset.ProtoTCP, DestPorts: ssh},
	}
	opts := analyzer.DefaultOptions()
	opts.Workers = 1
	engine, err := analyzer.New(opts, nil)
	if err != nil {
		return nil, err
	}
	return engine.Analyze(ctx, rules)
}
