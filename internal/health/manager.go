package health

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds each check.
const DefaultTimeout = 5 * time.Second

// Manager runs registered checks in parallel and reports them in
// registration order.
type Manager struct {
	checkers []Checker
	timeout  time.Duration
	mu       sync.RWMutex
}

// NewManager creates a new health check manager with DefaultTimeout.
func NewManager() *Manager {
	return &Manager{
		checkers: make([]Checker, 0),
		timeout:  DefaultTimeout,
	}
}

// WithTimeout sets a custom timeout for health checks.
func (m *Manager) WithTimeout(timeout time.Duration) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return m
}

// AddChecker registers a new health checker.
func (m *Manager) AddChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// Count returns the number of registered checkers.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.checkers)
}

// NamedResult pairs a check with its result.
type NamedResult struct {
	Name   string `json:"name" yaml:"name"`
	Result `yaml:",inline"`
}

// Report is the outcome of one Check run.
type Report struct {
	Status Status        `json:"status" yaml:"status"`
	Checks []NamedResult `json:"checks" yaml:"checks"`
}

// Check runs all registered checks. A check that overruns the timeout is
// reported unhealthy.
func (m *Manager) Check(ctx context.Context) *Report {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	timeout := m.timeout
	m.mu.RUnlock()

	results := make([]NamedResult, len(checkers))
	var wg sync.WaitGroup

	for i, checker := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			result := c.Check(checkCtx)
			if result == nil {
				result = Unhealthy("check returned no result")
			}
			if checkCtx.Err() != nil && result.Status == StatusHealthy {
				result = Unhealthy("check timed out").WithDetail("timeout", timeout.String())
			}
			if result.Latency == 0 {
				result.Latency = time.Since(start)
			}

			results[i] = NamedResult{Name: c.Name(), Result: *result}
		}(i, checker)
	}

	wg.Wait()
	return &Report{Status: OverallStatus(results), Checks: results}
}

// OverallStatus is the worst status among results; healthy when empty.
func OverallStatus(results []NamedResult) Status {
	status := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// Healthy reports whether nothing is unhealthy.
func (r *Report) Healthy() bool {
	return r.Status != StatusUnhealthy
}

func (r *Report) String() string {
	var b strings.Builder
	for _, c := range r.Checks {
		fmt.Fprintf(&b, "%s %-13s %s\n", statusIcon(c.Status), c.Name, c.Message)
		if s, ok := c.Details["suggestion"].(string); ok {
			fmt.Fprintf(&b, "  %-13s → %s\n", "", s)
		}
	}
	fmt.Fprintf(&b, "\nOverall: %s\n", r.Status)
	return b.String()
}

func statusIcon(s Status) string {
	switch s {
	case StatusHealthy:
		return "✓"
	case StatusDegraded:
		return "!"
	default:
		return "✗"
	}
}
