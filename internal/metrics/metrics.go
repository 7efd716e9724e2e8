// Package metrics counts pipeline outcomes on a private Prometheus registry.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	registry    *prometheus.Registry
	processed   *prometheus.CounterVec
	llmAttempts *prometheus.CounterVec
	organizer   *prometheus.CounterVec
	extractDur  prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoices_processed_total",
			Help: "Invoice files processed, by outcome.",
		}, []string{"outcome"}),
		llmAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_attempts_total",
			Help: "Model calls made for field extraction, by provider and result.",
		}, []string{"provider", "result"}),
		organizer: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "organizer_files_total",
			Help: "Destination files handled by the organizer, by result.",
		}, []string{"result"}),
		extractDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "invoice_extract_duration_seconds",
			Help:    "Time spent turning one PDF into a record.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	m.registry.MustRegister(m.processed, m.llmAttempts, m.organizer, m.extractDur,
		collectors.NewGoCollector())
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FileProcessed(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(outcome).Inc()
	m.extractDur.Observe(took.Seconds())
}

func (m *Metrics) LLMAttempts(provider, result string, attempts int) {
	if m == nil || attempts <= 0 {
		return
	}
	m.llmAttempts.WithLabelValues(provider, result).Add(float64(attempts))
}

func (m *Metrics) OrganizerFile(result string) {
	if m == nil {
		return
	}
	m.organizer.WithLabelValues(result).Inc()
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
