package workers

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fleetsafety/immobilizer/internal/services"
	"github.com/fleetsafety/immobilizer/pkg/logger"
	"github.com/fleetsafety/immobilizer/pkg/metrics"
)

// OverrideExpirationWorker periodically sweeps pending override requests
// past their two-hour window into the expired terminal state
type OverrideExpirationWorker struct {
	overrideService *services.OverrideService
	logger          *logger.Logger
	metrics         *metrics.Metrics
	checkInterval   time.Duration
	stopCh          chan struct{}
	doneCh          chan struct{}
}

// NewOverrideExpirationWorker creates a new override expiration worker
func NewOverrideExpirationWorker(
	overrideService *services.OverrideService,
	log *logger.Logger,
	m *metrics.Metrics,
	checkInterval time.Duration,
) *OverrideExpirationWorker {
	if checkInterval == 0 {
		checkInterval = 5 * time.Minute
	}

	return &OverrideExpirationWorker{
		overrideService: overrideService,
		logger:          log,
		metrics:         m,
		checkInterval:   checkInterval,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// Start starts the worker in the background
func (w *OverrideExpirationWorker) Start(ctx context.Context) {
	w.logger.Info("Starting override expiration worker",
		logger.String("interval", w.checkInterval.String()),
	)

	go w.run(ctx)
}

// Stop stops the worker gracefully
func (w *OverrideExpirationWorker) Stop() {
	w.logger.Info("Stopping override expiration worker")
	close(w.stopCh)
	<-w.doneCh
	w.logger.Info("Override expiration worker stopped")
}

// run is the main worker loop
func (w *OverrideExpirationWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			w.sweep(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *OverrideExpirationWorker) sweep(ctx context.Context) {
	start := time.Now()
	status := "success"

	expired, err := w.overrideService.ExpireOverdue(ctx)
	if err != nil {
		status = "error"
		w.logger.Errorf("Failed to expire override requests: %v", err)
	} else if expired > 0 {
		w.logger.Info("Override expiration sweep completed",
			logger.Int("expired", expired),
		)
	}

	if w.metrics != nil {
		w.metrics.WorkerRunsTotal.With(prometheus.Labels{
			"worker": "override_expiration", "status": status,
		}).Inc()
		w.metrics.WorkerRunDuration.With(prometheus.Labels{
			"worker": "override_expiration",
		}).Observe(time.Since(start).Seconds())
	}
}
