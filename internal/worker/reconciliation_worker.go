package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/retail-banking/internal/observability"
	"github.com/ayo6706/retail-banking/internal/service"
	"go.uber.org/zap"
)

const workerName = "reconciliation"

// Reconciler is the work performed on every tick.
type Reconciler interface {
	Run(ctx context.Context) (*service.ReconciliationReport, error)
}

// ReconciliationWorker compares stored balances against the ledger on a ticker.
// It only reports drift and never adjusts balances.
type ReconciliationWorker struct {
	svc        Reconciler
	interval   time.Duration
	runTimeout time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	stopOnce   sync.Once
}

// NewReconciliationWorker constructs a worker with a default hourly interval.
func NewReconciliationWorker(svc Reconciler) *ReconciliationWorker {
	return &ReconciliationWorker{
		svc:        svc,
		interval:   time.Hour,
		runTimeout: 30 * time.Second,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and runs reconciliation at the configured interval, once
// immediately at startup.
func (w *ReconciliationWorker) Start(ctx context.Context) {
	defer close(w.doneCh)
	zap.L().Info("reconciliation worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("reconciliation worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("reconciliation worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop signals the loop to exit and waits for the in-flight run to finish.
func (w *ReconciliationWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	<-w.doneCh
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ReconciliationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *ReconciliationWorker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
	defer cancel()

	report, err := w.svc.Run(runCtx)
	if err != nil {
		observability.IncrementWorkerRun(workerName, "failed")
		zap.L().Error("reconciliation run failed", zap.Error(err))
		return
	}
	if len(report.Drifted) > 0 {
		observability.IncrementWorkerRun(workerName, "drift")
		return
	}
	observability.IncrementWorkerRun(workerName, "success")
}
