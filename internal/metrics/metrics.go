package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "teams",
			Name:      "notification_dispatch",
			Help:      "Time taken to resolve and deliver one execution event",
			Buckets:   []float64{.005, .01, .025, .05, .075, .1, .15, .2, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"state", "error"},
	)

	DeliveriesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "teams",
			Name:      "notification_deliveries_total",
			Help:      "Per recipient delivery attempts",
		},
		[]string{"error"},
	)

	CascadeRowsHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "teams",
			Name:      "subscription_cascade_rows",
			Help:      "Number of derived subscription rows touched by one cascade",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"operation"},
	)

	EventsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "teams",
			Name:      "consumed_events_total",
			Help:      "Hook events received from the message bus",
		},
		[]string{"subject", "error"},
	)
)

func CollectDispatchMetric(state string, err error, start time.Time) {
	DispatchHistogram.
		WithLabelValues(state, errLabelValue(err)).
		Observe(time.Since(start).Seconds())
}

func CollectDelivery(err error) {
	DeliveriesCounter.
		WithLabelValues(errLabelValue(err)).
		Inc()
}

func CollectCascadeRows(operation string, rows int) {
	CascadeRowsHistogram.
		WithLabelValues(operation).
		Observe(float64(rows))
}

func CollectEvent(subject string, err error) {
	EventsCounter.
		WithLabelValues(subject, errLabelValue(err)).
		Inc()
}

// errLabelValue returns string representation of error label value
func errLabelValue(err error) string {
	if err != nil {
		return "true"
	}
	return "false"
}
