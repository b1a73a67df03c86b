package health_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/abakirov/outdialer/internal/health"
	"github.com/prometheus/client_golang/prometheus"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

func newTestChecker(deps map[string]health.Pinger) (*health.Checker, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return health.NewChecker(deps, slog.Default(), reg), reg
}

func testGauge(t *testing.T, reg *prometheus.Registry, name, dep string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "dependency" && l.GetValue() == dep {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{dependency=%q} not found", name, dep)
	return 0
}

func TestLiveness_AlwaysUp(t *testing.T) {
	c, _ := newTestChecker(map[string]health.Pinger{
		"postgres": &mockPinger{err: errors.New("db down")},
	})

	result := c.Liveness(context.Background())
	if result.Status != "up" {
		t.Fatalf("expected status up, got %s", result.Status)
	}
	if result.Checks != nil {
		t.Fatalf("expected no checks, got %v", result.Checks)
	}
}

func TestReadiness_AllUp(t *testing.T) {
	c, reg := newTestChecker(map[string]health.Pinger{
		"postgres": &mockPinger{},
		"amqp":     &mockPinger{},
	})

	result := c.Readiness(context.Background())
	if result.Status != "up" {
		t.Fatalf("expected status up, got %s", result.Status)
	}
	for _, dep := range []string{"postgres", "amqp"} {
		check, ok := result.Checks[dep]
		if !ok {
			t.Fatalf("missing %s check", dep)
		}
		if check.Status != "up" {
			t.Errorf("expected %s up, got %s", dep, check.Status)
		}
		if g := testGauge(t, reg, "outdialer_health_check_up", dep); g != 1 {
			t.Errorf("expected %s gauge 1, got %f", dep, g)
		}
	}
}

func TestReadiness_OneDependencyDown(t *testing.T) {
	c, reg := newTestChecker(map[string]health.Pinger{
		"postgres": &mockPinger{},
		"amqp":     &mockPinger{err: errors.New("connection refused")},
	})

	result := c.Readiness(context.Background())
	if result.Status != "down" {
		t.Fatalf("expected status down, got %s", result.Status)
	}
	if result.Checks["postgres"].Status != "up" {
		t.Errorf("postgres should stay up")
	}
	amqp := result.Checks["amqp"]
	if amqp.Status != "down" {
		t.Errorf("expected amqp down, got %s", amqp.Status)
	}
	if amqp.Error == "" {
		t.Error("expected error message on the failing check")
	}
	if g := testGauge(t, reg, "outdialer_health_check_up", "amqp"); g != 0 {
		t.Errorf("expected amqp gauge 0, got %f", g)
	}
}
