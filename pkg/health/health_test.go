package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_EmptyIsUnknown(t *testing.T) {
	assert.Equal(t, StatusUnknown, Aggregate(nil))
}

func TestAggregate_AnyUnhealthyWins(t *testing.T) {
	indicators := []HealthIndicator{
		{Name: "a", Status: StatusHealthy},
		{Name: "b", Status: StatusDegraded},
		{Name: "c", Status: StatusUnhealthy},
	}
	assert.Equal(t, StatusUnhealthy, Aggregate(indicators))
}

func TestAggregate_DegradedBeatsHealthyWhenNoUnhealthy(t *testing.T) {
	indicators := []HealthIndicator{
		{Name: "a", Status: StatusHealthy},
		{Name: "b", Status: StatusDegraded},
	}
	assert.Equal(t, StatusDegraded, Aggregate(indicators))
}

func TestAggregate_AllHealthy(t *testing.T) {
	indicators := []HealthIndicator{
		{Name: "a", Status: StatusHealthy},
		{Name: "b", Status: StatusHealthy},
	}
	assert.Equal(t, StatusHealthy, Aggregate(indicators))
}

// fakeChecker is a minimal Checker test double.
type fakeChecker struct {
	name    string
	result  []HealthIndicator
	delay   time.Duration
	calledN int
}

func (f *fakeChecker) Name() string { return f.name }

func (f *fakeChecker) CheckHealth() []HealthIndicator {
	f.calledN++
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.result
}

func TestMonitor_CheckNowAggregatesAcrossCheckers(t *testing.T) {
	m := NewMonitor(time.Hour, time.Second)
	m.Register(&fakeChecker{name: "db", result: []HealthIndicator{{Name: "db", Status: StatusHealthy}}})
	m.Register(&fakeChecker{name: "queue", result: []HealthIndicator{{Name: "queue", Status: StatusDegraded}}})

	report := m.CheckNow(context.Background())
	require.Len(t, report.Components, 2)
	assert.Equal(t, StatusDegraded, report.Status)
}

func TestMonitor_TimeoutSynthesizesUnhealthyIndicator(t *testing.T) {
	m := NewMonitor(time.Hour, 10*time.Millisecond)
	m.Register(&fakeChecker{name: "slow", delay: 50 * time.Millisecond, result: []HealthIndicator{{Name: "slow", Status: StatusHealthy}}})

	report := m.CheckNow(context.Background())
	require.Len(t, report.Components, 1)
	comp := report.Components[0]
	assert.Equal(t, StatusUnhealthy, comp.Status)
	require.Len(t, comp.Indicators, 1)
	assert.Equal(t, "health check timed out", comp.Indicators[0].Message)
	assert.Equal(t, StatusUnhealthy, report.Status)
}

func TestMonitor_SnapshotReturnsLastSweepWithoutRechecking(t *testing.T) {
	checker := &fakeChecker{name: "db", result: []HealthIndicator{{Name: "db", Status: StatusHealthy}}}
	m := NewMonitor(time.Hour, time.Second)
	m.Register(checker)

	m.CheckNow(context.Background())
	assert.Equal(t, 1, checker.calledN)

	snap := m.Snapshot()
	assert.Equal(t, 1, checker.calledN)
	assert.Equal(t, StatusHealthy, snap.Status)
}

func TestMonitor_StartStopsOnExplicitStop(t *testing.T) {
	m := NewMonitor(5*time.Millisecond, time.Second)
	m.Register(&fakeChecker{name: "db", result: []HealthIndicator{{Name: "db", Status: StatusHealthy}}})

	done := make(chan struct{})
	go func() {
		m.Start(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	m.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestMonitor_HandlerServesSnapshotAsJSON(t *testing.T) {
	m := NewMonitor(time.Hour, time.Second)
	m.Register(&fakeChecker{name: "db", result: []HealthIndicator{{Name: "db", Status: StatusHealthy}}})
	m.CheckNow(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestMonitor_HandlerReturns503WhenUnhealthy(t *testing.T) {
	m := NewMonitor(time.Hour, time.Second)
	m.Register(&fakeChecker{name: "db", result: []HealthIndicator{{Name: "db", Status: StatusUnhealthy}}})
	m.CheckNow(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetrics_ObserveExposesPrometheusText(t *testing.T) {
	m := NewMonitor(time.Hour, time.Second)
	m.Register(&fakeChecker{name: "db", result: []HealthIndicator{{Name: "db", Status: StatusHealthy}}})

	metrics := NewMetrics("llmspell")
	m.WithMetrics(metrics)
	m.CheckNow(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "llmspell_health_component_status")
	assert.Contains(t, body, "llmspell_health_system_healthy 1")
}
