// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the registry's operational counters and
// their Prometheus implementation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Publish outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeInput       = "input"
	OutcomeForbidden   = "forbidden"
	OutcomeRateLimited = "rate_limited"
	OutcomeTooLarge    = "too_large"
	OutcomeUnverified  = "unverified"
	OutcomeInternal    = "internal"
)

// Job and upload results.
const (
	ResultOK      = "ok"
	ResultRetry   = "retry"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Metrics receives registry events.
type Metrics interface {
	ObservePublish(outcome string, duration time.Duration)
	IncRateLimited(action string)
	IncJob(jobType, result string)
	IncIndexUpload(result string)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) ObservePublish(string, time.Duration) {}
func (Noop) IncRateLimited(string)                {}
func (Noop) IncJob(string, string)                {}
func (Noop) IncIndexUpload(string)                {}

// Prom implements Metrics with Prometheus collectors.
type Prom struct {
	publishTotal    *prometheus.CounterVec
	publishDuration prometheus.Histogram
	rateLimited     *prometheus.CounterVec
	jobs            *prometheus.CounterVec
	indexUploads    *prometheus.CounterVec
}

// NewProm creates the collectors under namespace and registers them
// with registerer. Pass prometheus.DefaultRegisterer in binaries and a
// fresh prometheus.NewRegistry() in tests.
func NewProm(namespace string, registerer prometheus.Registerer) (*Prom, error) {
	p := &Prom{
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Publish requests by outcome",
		}, []string{"outcome"}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Publish request latency",
			Buckets:   prometheus.DefBuckets,
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the publish rate limiter",
		}, []string{"action"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Background job executions by type and result",
		}, []string{"job_type", "result"}),
		indexUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_uploads_total",
			Help:      "Index file uploads by result",
		}, []string{"result"}),
	}
	for _, collector := range []prometheus.Collector{p.publishTotal, p.publishDuration, p.rateLimited, p.jobs, p.indexUploads} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prom) ObservePublish(outcome string, duration time.Duration) {
	p.publishTotal.WithLabelValues(outcome).Inc()
	p.publishDuration.Observe(duration.Seconds())
}

func (p *Prom) IncRateLimited(action string) {
	p.rateLimited.WithLabelValues(action).Inc()
}

func (p *Prom) IncJob(jobType, result string) {
	p.jobs.WithLabelValues(jobType, result).Inc()
}

func (p *Prom) IncIndexUpload(result string) {
	p.indexUploads.WithLabelValues(result).Inc()
}

// Handler serves the default registry's metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves gatherer's metrics.
func HandlerFor(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
