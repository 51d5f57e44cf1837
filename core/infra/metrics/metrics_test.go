package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func withTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	origReg := prometheus.DefaultRegisterer
	origGather := prometheus.DefaultGatherer
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGather
	})
	return reg
}

func TestNoopMetrics(t *testing.T) {
	var m Noop
	m.IncJobsEnqueued("api")
	m.IncJobsCompleted("success")
	m.IncJobsRetried()
	m.IncJobsDeadLettered()
	m.IncStepsExecuted("slack", "success")
	m.ObserveExecutionDuration("wf-1", 0.1)
}

func TestPromMetrics(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewProm("workbridge")
	m.IncJobsEnqueued("webhook")
	m.IncJobsCompleted("success")
	m.IncJobsRetried()
	m.IncJobsDeadLettered()
	m.IncStepsExecuted("slack", "success")
	m.ObserveExecutionDuration("wf-1", 0.5)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasMetric(families, "workbridge_jobs_enqueued_total", map[string]string{"source": "webhook"}) {
		t.Fatalf("expected jobs_enqueued metric")
	}
	if !hasMetric(families, "workbridge_jobs_completed_total", map[string]string{"status": "success"}) {
		t.Fatalf("expected jobs_completed metric")
	}
	if !hasMetric(families, "workbridge_jobs_retried_total", nil) {
		t.Fatalf("expected jobs_retried metric")
	}
	if !hasMetric(families, "workbridge_jobs_dead_lettered_total", nil) {
		t.Fatalf("expected jobs_dead_lettered metric")
	}
	if !hasMetric(families, "workbridge_steps_executed_total", map[string]string{"integration": "slack", "status": "success"}) {
		t.Fatalf("expected steps_executed metric")
	}
	if !hasMetric(families, "workbridge_execution_duration_seconds", map[string]string{"workflow": "wf-1"}) {
		t.Fatalf("expected execution_duration metric")
	}
}

func TestHandler(t *testing.T) {
	withTestRegistry(t)
	m := NewProm("workbridge")
	m.IncJobsEnqueued("api")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected metrics output")
	}
}

func hasMetric(families []*dto.MetricFamily, name string, labels map[string]string) bool {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return true
			}
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(labels) == 0 {
		return true
	}
	found := 0
	for _, pair := range pairs {
		if val, ok := labels[pair.GetName()]; ok && pair.GetValue() == val {
			found++
		}
	}
	return found == len(labels)
}
