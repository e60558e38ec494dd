// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// counterValue gathers registry and returns the counter named name
// whose labels match labels exactly.
func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelsMatch(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, pair := range pairs {
		if want[pair.GetName()] != pair.GetValue() {
			return false
		}
	}
	return true
}

func TestPromCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	prom, err := NewProm("registry", registry)
	if err != nil {
		t.Fatalf("NewProm: %v", err)
	}

	prom.ObservePublish(OutcomeOK, 20*time.Millisecond)
	prom.ObservePublish(OutcomeOK, 30*time.Millisecond)
	prom.ObservePublish(OutcomeForbidden, time.Millisecond)
	prom.IncRateLimited("publish-new")
	prom.IncJob("sync_to_git_index", ResultOK)
	prom.IncIndexUpload(ResultSkipped)

	if got := counterValue(t, registry, "registry_publish_total", map[string]string{"outcome": OutcomeOK}); got != 2 {
		t.Errorf("publish_total{ok} = %v, want 2", got)
	}
	if got := counterValue(t, registry, "registry_publish_total", map[string]string{"outcome": OutcomeForbidden}); got != 1 {
		t.Errorf("publish_total{forbidden} = %v, want 1", got)
	}
	if got := counterValue(t, registry, "registry_rate_limited_total", map[string]string{"action": "publish-new"}); got != 1 {
		t.Errorf("rate_limited_total = %v, want 1", got)
	}
	if got := counterValue(t, registry, "registry_jobs_total", map[string]string{"job_type": "sync_to_git_index", "result": ResultOK}); got != 1 {
		t.Errorf("jobs_total = %v, want 1", got)
	}
	if got := counterValue(t, registry, "registry_index_uploads_total", map[string]string{"result": ResultSkipped}); got != 1 {
		t.Errorf("index_uploads_total = %v, want 1", got)
	}
}

func TestNewPromRejectsDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	if _, err := NewProm("registry", registry); err != nil {
		t.Fatal(err)
	}
	if _, err := NewProm("registry", registry); err == nil {
		t.Error("second registration in the same registry succeeded")
	}
}

func TestHandlerFor(t *testing.T) {
	registry := prometheus.NewRegistry()
	prom, err := NewProm("registry", registry)
	if err != nil {
		t.Fatal(err)
	}
	prom.IncJob("render_and_upload_readme", ResultFailed)

	server := httptest.NewServer(HandlerFor(registry))
	defer server.Close()
	response, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatal(err)
	}
	want := `registry_jobs_total{job_type="render_and_upload_readme",result="failed"} 1`
	if !strings.Contains(string(body), want) {
		t.Errorf("exposition missing %q:\n%s", want, body)
	}
}

func TestNoopSatisfiesMetrics(t *testing.T) {
	var m Metrics = Noop{}
	m.ObservePublish(OutcomeOK, time.Second)
	m.IncRateLimited("publish-new")
	m.IncJob("x", ResultOK)
	m.IncIndexUpload(ResultOK)
}
