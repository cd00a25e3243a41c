package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samaanhq/shipyard/internal/shell/store"
)

// WorkerConfig controls the run queue polling loop.
type WorkerConfig struct {
	// Interval is how often the queue is polled for work.
	Interval time.Duration
	// RunTimeout bounds the execution of a single run.
	RunTimeout time.Duration
	// InitialDelay is how long to wait before the first poll.
	InitialDelay time.Duration
}

// DefaultWorkerConfig returns the default polling configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Interval:     5 * time.Second,
		RunTimeout:   30 * time.Minute,
		InitialDelay: 2 * time.Second,
	}
}

// Worker polls the store for queued runs and executes them one at a time.
// Runs execute in queue order; a failed run never blocks the next one.
type Worker struct {
	store  store.Store
	runner *Runner
	config WorkerConfig
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a run queue worker.
func NewWorker(st store.Store, r *Runner, config WorkerConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:  st,
		runner: r,
		config: config,
		logger: logger.With("component", "run_worker"),
	}
}

// Start begins polling in a background goroutine.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("run worker started", "interval", w.config.Interval)
}

// Stop halts polling and waits for an in-flight run to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("run worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-time.After(w.config.InitialDelay):
	}

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runCycle(ctx)
		}
	}
}

// runCycle drains the queue, executing runs until it is empty.
func (w *Worker) runCycle(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !w.executeNext(ctx) {
			return
		}
	}
}

// executeNext claims and executes the oldest queued run. It reports whether
// a run was found.
func (w *Worker) executeNext(ctx context.Context) bool {
	run, err := w.store.NextQueuedRun(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			w.logger.Error("failed to poll run queue", "error", err)
		}
		return false
	}

	runCtx, cancel := context.WithTimeout(ctx, w.config.RunTimeout)
	defer cancel()

	if err := w.runner.Execute(runCtx, run); err != nil {
		w.logger.Error("run execution failed", "run_id", run.ID, "error", err)
	}
	return true
}
