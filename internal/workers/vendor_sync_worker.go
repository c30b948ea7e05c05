package workers

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fleetsafety/immobilizer/internal/services"
	"github.com/fleetsafety/immobilizer/pkg/logger"
	"github.com/fleetsafety/immobilizer/pkg/metrics"
)

// VendorSyncWorker periodically replays the local kill-switch state of
// pending_sync vehicles to their telematics vendors. This closes the gap
// left by vendor outages during engage and disengage calls.
type VendorSyncWorker struct {
	killSwitchService *services.KillSwitchService
	logger            *logger.Logger
	metrics           *metrics.Metrics
	syncInterval      time.Duration
	batchSize         int
	stopCh            chan struct{}
	doneCh            chan struct{}
}

// NewVendorSyncWorker creates a new vendor sync worker
func NewVendorSyncWorker(
	killSwitchService *services.KillSwitchService,
	log *logger.Logger,
	m *metrics.Metrics,
	syncInterval time.Duration,
	batchSize int,
) *VendorSyncWorker {
	if syncInterval == 0 {
		syncInterval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 50
	}

	return &VendorSyncWorker{
		killSwitchService: killSwitchService,
		logger:            log,
		metrics:           m,
		syncInterval:      syncInterval,
		batchSize:         batchSize,
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
	}
}

// Start starts the worker in the background
func (w *VendorSyncWorker) Start(ctx context.Context) {
	w.logger.Info("Starting vendor sync worker",
		logger.String("interval", w.syncInterval.String()),
		logger.Int("batch_size", w.batchSize),
	)

	go w.run(ctx)
}

// Stop stops the worker gracefully
func (w *VendorSyncWorker) Stop() {
	w.logger.Info("Stopping vendor sync worker")
	close(w.stopCh)
	<-w.doneCh
	w.logger.Info("Vendor sync worker stopped")
}

// run is the main worker loop
func (w *VendorSyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.syncInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.reconcile(ctx)

	for {
		select {
		case <-ticker.C:
			w.reconcile(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *VendorSyncWorker) reconcile(ctx context.Context) {
	start := time.Now()
	status := "success"

	if _, err := w.killSwitchService.Reconcile(ctx, w.batchSize); err != nil {
		status = "error"
		w.logger.Errorf("Vendor sync pass failed: %v", err)
	}

	if w.metrics != nil {
		w.metrics.WorkerRunsTotal.With(prometheus.Labels{
			"worker": "vendor_sync", "status": status,
		}).Inc()
		w.metrics.WorkerRunDuration.With(prometheus.Labels{
			"worker": "vendor_sync",
		}).Observe(time.Since(start).Seconds())
	}
}
