package engine

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/SebampitakoDuncan/order-lifecycle-system/metrics"
	"github.com/SebampitakoDuncan/order-lifecycle-system/orchestrator"
)

// engineMetrics is the metric set the engine reports. Names are stable; the
// registry decides whether they are scraped or pushed.
type engineMetrics struct {
	started          metrics.Counter
	completed        metrics.CounterVec
	recovered        metrics.Counter
	purged           metrics.Counter
	activityAttempts metrics.CounterVec
	activityFailures metrics.CounterVec
	stepDuration     metrics.HistogramVec
}

func newEngineMetrics(registry metrics.Registry) (*engineMetrics, error) {
	m := &engineMetrics{}
	var err error

	m.started, err = registry.NewCounter(prometheus.CounterOpts{
		Name: "order_executions_started_total",
		Help: "Number of order executions accepted",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create started counter: %w", err)
	}

	m.completed, err = registry.NewCounterVec(prometheus.CounterOpts{
		Name: "order_executions_completed_total",
		Help: "Number of order executions reaching a terminal step, by status",
	}, []string{"status"})
	if err != nil {
		return nil, fmt.Errorf("failed to create completed counter: %w", err)
	}

	m.recovered, err = registry.NewCounter(prometheus.CounterOpts{
		Name: "order_executions_recovered_total",
		Help: "Number of non-terminal executions resumed after restart",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create recovered counter: %w", err)
	}

	m.purged, err = registry.NewCounter(prometheus.CounterOpts{
		Name: "order_executions_purged_total",
		Help: "Number of terminal executions removed by retention sweeps",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create purged counter: %w", err)
	}

	m.activityAttempts, err = registry.NewCounterVec(prometheus.CounterOpts{
		Name: "order_activity_attempts_total",
		Help: "Number of activity attempts, by activity",
	}, []string{"activity"})
	if err != nil {
		return nil, fmt.Errorf("failed to create attempts counter: %w", err)
	}

	m.activityFailures, err = registry.NewCounterVec(prometheus.CounterOpts{
		Name: "order_activity_failures_total",
		Help: "Number of failed activity attempts, by activity",
	}, []string{"activity"})
	if err != nil {
		return nil, fmt.Errorf("failed to create failures counter: %w", err)
	}

	m.stepDuration, err = registry.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "order_step_duration_seconds",
		Help:    "Wall-clock duration of order steps, including retries",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"step"})
	if err != nil {
		return nil, fmt.Errorf("failed to create step duration histogram: %w", err)
	}

	return m, nil
}

// observeAttempt feeds the activity executor's attempt observer.
func (m *engineMetrics) observeAttempt(name string, _ int, err error) {
	labels := prometheus.Labels{"activity": name}
	m.activityAttempts.With(labels).Inc()
	if err != nil {
		m.activityFailures.With(labels).Inc()
	}
}

// observeStep feeds the orchestrator's step observer.
func (m *engineMetrics) observeStep(step string, d time.Duration) {
	m.stepDuration.With(prometheus.Labels{"step": step}).Observe(d.Seconds())
}

func statusLabels(status orchestrator.Status) prometheus.Labels {
	return prometheus.Labels{"status": string(status)}
}
