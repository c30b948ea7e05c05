package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Kill-switch metrics
	KillSwitchCommandsTotal *prometheus.CounterVec // action, outcome
	VendorCallDuration      *prometheus.HistogramVec
	VendorCallErrors        *prometheus.CounterVec
	VehiclesPendingSync     prometheus.Gauge

	// Workflow metrics
	StepTransitionsTotal *prometheus.CounterVec // step_id, completed
	WorkflowsCompleted   prometheus.Counter
	PhotoGateRunsTotal   *prometheus.CounterVec // outcome

	// Override metrics
	OverridesTotal   *prometheus.CounterVec // outcome: requested|approved|denied|expired
	PendingOverrides prometheus.Gauge

	// Worker metrics
	WorkerRunsTotal   *prometheus.CounterVec
	WorkerRunDuration *prometheus.HistogramVec

	// Notification metrics
	NotificationsSent *prometheus.CounterVec // channel, status
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		KillSwitchCommandsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "killswitch_commands_total",
				Help: "Total kill-switch commands by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		VendorCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vendor_call_duration_seconds",
				Help:    "Telematics vendor call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"vendor", "action"},
		),
		VendorCallErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vendor_call_errors_total",
				Help: "Total failed telematics vendor calls",
			},
			[]string{"vendor", "action"},
		),
		VehiclesPendingSync: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vehicles_pending_sync",
				Help: "Vehicles whose local kill-switch state has not been confirmed by the vendor",
			},
		),
		StepTransitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_step_transitions_total",
				Help: "Total workflow step completion transitions",
			},
			[]string{"step_id", "completed"},
		),
		WorkflowsCompleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "workflows_completed_total",
				Help: "Total accident-report workflows completed",
			},
		),
		PhotoGateRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photo_gate_runs_total",
				Help: "Total photo validation gate runs by outcome",
			},
			[]string{"outcome"},
		),
		OverridesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "supervisor_overrides_total",
				Help: "Total supervisor override requests by outcome",
			},
			[]string{"outcome"},
		),
		PendingOverrides: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "supervisor_overrides_pending",
				Help: "Currently pending, unexpired supervisor override requests",
			},
		),
		WorkerRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_runs_total",
				Help: "Total background worker runs",
			},
			[]string{"worker", "status"},
		),
		WorkerRunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "worker_run_duration_seconds",
				Help:    "Background worker run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"worker"},
		),
		NotificationsSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_sent_total",
				Help: "Total notifications sent by channel and status",
			},
			[]string{"channel", "status"},
		),
	}
}
