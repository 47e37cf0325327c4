package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for a scrape run.
type Metrics struct {
	Registry            *prometheus.Registry
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     prometheus.Histogram
	CollectionsTotal    *prometheus.CounterVec
	CardsExtractedTotal prometheus.Counter
	CardsRejectedTotal  *prometheus.CounterVec
	RetriesTotal        prometheus.Counter
	ErrorsTotal         *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	collections := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_collections_total",
			Help: "Collections handled by the run, by outcome.",
		},
		[]string{"status"},
	)
	cardsExtracted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_cards_extracted_total",
			Help: "Cards accepted into the dataset.",
		},
	)
	cardsRejected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_cards_rejected_total",
			Help: "Cards dropped at extraction time, by reason.",
		},
		[]string{"reason"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of fetch retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, collections, cardsExtracted, cardsRejected, retries, errorsTotal)

	return &Metrics{
		Registry:            registry,
		RequestsTotal:       requests,
		RequestDuration:     requestDuration,
		CollectionsTotal:    collections,
		CardsExtractedTotal: cardsExtracted,
		CardsRejectedTotal:  cardsRejected,
		RetriesTotal:        retries,
		ErrorsTotal:         errorsTotal,
	}
}

// IncRequest increments the requests counter for a fetch phase.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncCollection increments the collections counter for an outcome.
func (m *Metrics) IncCollection(status string) {
	if m == nil {
		return
	}
	m.CollectionsTotal.WithLabelValues(status).Inc()
}

// AddCardsExtracted counts cards accepted into the dataset.
func (m *Metrics) AddCardsExtracted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CardsExtractedTotal.Add(float64(n))
}

// AddCardsRejected counts cards dropped for a reason.
func (m *Metrics) AddCardsRejected(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CardsRejectedTotal.WithLabelValues(reason).Add(float64(n))
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
