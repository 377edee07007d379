package health

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockChecker is a test double for health checks
type mockChecker struct {
	name   string
	result *Result
	delay  time.Duration
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(ctx context.Context) *Result {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return Unhealthy("check cancelled").
				WithDetail("error", ctx.Err().Error())
		}
	}
	return m.result
}

func TestManagerDefaults(t *testing.T) {
	manager := NewManager()
	assert.Equal(t, DefaultTimeout, manager.timeout)
	assert.Equal(t, 0, manager.Count())

	assert.Same(t, manager, manager.WithTimeout(time.Second))
	assert.Equal(t, time.Second, manager.timeout)
}

func TestManagerCheckKeepsOrder(t *testing.T) {
	manager := NewManager()
	manager.AddChecker(&mockChecker{name: "slow", result: Healthy("ok"), delay: 30 * time.Millisecond})
	manager.AddChecker(&mockChecker{name: "fast", result: Degraded("meh")})
	manager.AddChecker(&mockChecker{name: "last", result: Healthy("ok")})

	report := manager.Check(context.Background())

	require.Len(t, report.Checks, 3)
	assert.Equal(t, "slow", report.Checks[0].Name)
	assert.Equal(t, "fast", report.Checks[1].Name)
	assert.Equal(t, "last", report.Checks[2].Name)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.True(t, report.Healthy())
	assert.Greater(t, report.Checks[0].Latency, time.Duration(0))
}

func TestManagerTimeout(t *testing.T) {
	manager := NewManager().WithTimeout(20 * time.Millisecond)
	manager.AddChecker(&mockChecker{name: "stuck", result: Healthy("ok"), delay: time.Second})

	report := manager.Check(context.Background())

	require.Len(t, report.Checks, 1)
	assert.Equal(t, StatusUnhealthy, report.Checks[0].Status)
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.False(t, report.Healthy())
}

func TestManagerNilResult(t *testing.T) {
	manager := NewManager()
	manager.AddChecker(&mockChecker{name: "broken"})

	report := manager.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Checks[0].Status)
}

func TestOverallStatus(t *testing.T) {
	named := func(statuses ...Status) []NamedResult {
		out := make([]NamedResult, len(statuses))
		for i, s := range statuses {
			out[i] = NamedResult{Name: string(s), Result: *NewResult(s, "")}
		}
		return out
	}

	tests := []struct {
		name    string
		results []NamedResult
		want    Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", named(StatusHealthy, StatusHealthy), StatusHealthy},
		{"one degraded", named(StatusHealthy, StatusDegraded), StatusDegraded},
		{"unhealthy wins", named(StatusDegraded, StatusUnhealthy, StatusHealthy), StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OverallStatus(tt.results))
		})
	}
}

func TestReportString(t *testing.T) {
	report := &Report{
		Status: StatusDegraded,
		Checks: []NamedResult{
			{Name: "config", Result: *Healthy("api.url is https://registry.example.org")},
			{Name: "token-store", Result: *Degraded("not logged in").WithDetail("suggestion", "Run 'ckdreg auth login'")},
		},
	}

	out := report.String()
	assert.Contains(t, out, "✓ config")
	assert.Contains(t, out, "! token-store")
	assert.Contains(t, out, "→ Run 'ckdreg auth login'")
	assert.True(t, strings.HasSuffix(out, "Overall: degraded\n"))
}
