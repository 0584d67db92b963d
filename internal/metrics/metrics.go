// Package metrics содержит счётчики Prometheus для рабочего процесса RFP.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "procurement"

var (
	RFPsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rfps_created_total",
		Help:      "RFPs created from free-text requests.",
	})

	// result: sent|failed
	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatches_total",
		Help:      "Per-vendor RFP e-mail dispatches.",
	}, []string{"result"})

	ProposalsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proposals_recorded_total",
		Help:      "Vendor proposals persisted (new or amended).",
	})

	// result: ok|unavailable|skipped
	PollerScans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poller_scans_total",
		Help:      "Mailbox scans by outcome.",
	}, []string{"result"})

	// outcome: recorded|ignored|failed|deferred
	InboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbound_messages_total",
		Help:      "Inbound mailbox messages by processing outcome.",
	}, []string{"outcome"})

	ExtractionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "extraction_attempts_total",
		Help:      "Model invocations by extraction operation.",
	}, []string{"op"})

	ExtractionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "extraction_failures_total",
		Help:      "Extractions that exhausted the retry budget.",
	}, []string{"op"})

	ExtractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "extraction_duration_seconds",
		Help:      "Wall time of extraction operations including retries.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"op"})
)
