package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestCheckerRegistry(t *testing.T) {
	checker := NewChecker("1.2.3")
	checker.Register("custom", func(ctx context.Context) Check {
		return Check{Status: StatusHealthy, Message: "OK"}
	})

	report := checker.Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, "1.2.3", report.Version)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "custom", report.Checks["custom"].Name)
	assert.Equal(t, "self-test passed", report.Checks["analyzer"].Message)
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		expected Status
	}{
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Checker{checks: make(map[string]CheckFunc)}
			for i, s := range tt.statuses {
				c.Register(string(rune('a'+i)), func(context.Context) Check { return Check{Status: s} })
			}
			assert.Equal(t, tt.expected, c.Check(context.Background()).Status)
		})
	}
}

func TestCheckCaches(t *testing.T) {
	checker := NewChecker("dev")
	var calls atomic.Int32
	checker.Register("counted", func(context.Context) Check {
		calls.Add(1)
		return Check{Status: StatusHealthy}
	})

	checker.Check(context.Background())
	checker.Check(context.Background())
	assert.Equal(t, int32(1), calls.Load())

	checker.SetTTL(0)
	checker.Check(context.Background())
	checker.Check(context.Background())
	assert.Equal(t, int32(3), calls.Load())
}

func TestPingCheck(t *testing.T) {
	ok := PingCheck(fakePinger{})(context.Background())
	assert.Equal(t, StatusHealthy, ok.Status)

	bad := PingCheck(fakePinger{err: errors.New("database is locked")})(context.Background())
	assert.Equal(t, StatusDegraded, bad.Status)
	assert.Contains(t, bad.Message, "database is locked")
}

func TestHandlers(t *testing.T) {
	checker := NewChecker("dev")
	checker.SetTTL(time.Minute)

	rr := httptest.NewRecorder()
	checker.Handler()(rr, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"healthy"`)

	checker.Register("broken", func(context.Context) Check { return Check{Status: StatusUnhealthy} })

	rr = httptest.NewRecorder()
	checker.Handler()(rr, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	checker.ReadinessHandler()(rr, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "NOT READY", rr.Body.String())
}
