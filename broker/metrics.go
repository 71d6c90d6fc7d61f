package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the broker service.
type Metrics struct {
	notifies   prometheus.Counter
	credits    prometheus.Counter
	duplicates prometheus.Counter
	heartbeats prometheus.Counter
}

// NewMetrics creates the collectors and registers them. If registry is nil,
// prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		notifies: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_notify_processed_total",
			Help: "Number of NOTIFY events processed to completion",
		}),
		credits: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_credits_applied_total",
			Help: "Number of user credits applied to the ledger",
		}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_duplicate_credits_total",
			Help: "Number of NOTIFY transactions aborted on a duplicate credit",
		}),
		heartbeats: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_heartbeats_total",
			Help: "Number of HEARTBEAT events absorbed",
		}),
	}
}
