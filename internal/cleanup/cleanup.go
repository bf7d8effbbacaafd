// Package cleanup runs periodic reclamation of abandoned image staging files.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const runTimeout = 5 * time.Minute

// Reclaimer removes staging artifacts older than a threshold and reports how
// many it removed. media.Pipeline satisfies it.
type Reclaimer interface {
	ReclaimStaging(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Config holds cleanup worker configuration.
type Config struct {
	// Interval is how often to run cleanup. Defaults to 1 hour.
	Interval time.Duration
	// StaleAfter is the minimum age of a reclaimed artifact. Defaults to 1 hour.
	StaleAfter time.Duration
}

// Worker performs periodic cleanup of staging artifacts.
type Worker struct {
	reclaimer  Reclaimer
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup

	mu      sync.RWMutex
	lastRun time.Time
	removed int64
	errors  int64
}

// NewWorker creates a new cleanup worker.
func NewWorker(reclaimer Reclaimer, cfg Config, logger *slog.Logger) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Hour
	}
	return &Worker{
		reclaimer:  reclaimer,
		interval:   cfg.Interval,
		staleAfter: cfg.StaleAfter,
		logger:     logger.With("component", "cleanup"),
		done:       make(chan struct{}),
	}
}

// Start begins the cleanup worker.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop stops the worker and waits for a run in progress to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.runCleanup(w.staleAfter)
		}
	}
}

func (w *Worker) runCleanup(olderThan time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	count, err := w.reclaimer.ReclaimStaging(ctx, olderThan)

	w.mu.Lock()
	w.lastRun = time.Now()
	w.removed += count
	if err != nil {
		w.errors++
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Failed to reclaim staging files", "error", err)
		return
	}
	if count > 0 {
		w.logger.Info("Reclaimed staging files", "count", count)
	}
}

// RunNow triggers an immediate cleanup of stale artifacts.
func (w *Worker) RunNow() {
	w.runCleanup(w.staleAfter)
}

// ReclaimAll removes every staging artifact regardless of age. Only safe
// before any capture can be in flight, i.e. at startup.
func (w *Worker) ReclaimAll() {
	w.runCleanup(0)
}

// Stats holds cleanup statistics.
type Stats struct {
	LastRun time.Time
	Removed int64
	Errors  int64
}

// Stats returns the current cleanup statistics.
func (w *Worker) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return Stats{
		LastRun: w.lastRun,
		Removed: w.removed,
		Errors:  w.errors,
	}
}
