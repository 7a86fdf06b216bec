// Package worker runs the polling loops that claim jobs from the queues,
// dispatch them through a Router and apply the retry and dead-letter policy.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/cashback-jobs/internal/queue"
	"github.com/cuongbtq/cashback-jobs/internal/worker/domain"
)

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Queue       *queue.Client
	Router      *Router
	WorkerID    string
	Queues      []string // defaults to every queue the router serves
	Concurrency int      // goroutines per queue
	PollTimeout time.Duration
	IdleSleep   time.Duration
	MaxAttempts int
	JobTimeout  time.Duration // zero disables the per-job deadline
}

// Worker represents the background job worker
type Worker struct {
	logger      *slog.Logger
	queue       *queue.Client
	router      *Router
	workerID    string
	queues      []string
	concurrency int
	pollTimeout time.Duration
	idleSleep   time.Duration
	maxAttempts int
	jobTimeout  time.Duration
	wg          sync.WaitGroup
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:      cfg.Logger,
		queue:       cfg.Queue,
		router:      cfg.Router,
		workerID:    cfg.WorkerID,
		queues:      cfg.Queues,
		concurrency: cfg.Concurrency,
		pollTimeout: cfg.PollTimeout,
		idleSleep:   cfg.IdleSleep,
		maxAttempts: cfg.MaxAttempts,
		jobTimeout:  cfg.JobTimeout,
		stopChan:    make(chan struct{}),
	}

	if w.workerID == "" {
		w.workerID = "worker"
	}
	if len(w.queues) == 0 {
		w.queues = w.router.Queues()
	}
	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	if w.pollTimeout <= 0 {
		w.pollTimeout = domain.DefaultPollTimeout
	}
	if w.idleSleep <= 0 {
		w.idleSleep = domain.DefaultIdleSleep
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = domain.MaxAttempts
	}

	return w
}

// Start spawns the worker pool and blocks until ctx is canceled or Stop is called
func (w *Worker) Start(ctx context.Context) error {
	if len(w.queues) == 0 {
		return errors.New("worker has no queues to consume")
	}

	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Any("queues", w.queues),
		slog.Int("concurrency", w.concurrency),
		slog.Int("max_attempts", w.maxAttempts),
		slog.Duration("poll_timeout", w.pollTimeout),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	w.spawnWorkerPool(ctx)

	select {
	case <-ctx.Done():
		w.logger.Info("Worker context canceled, stopping...")
	case <-w.stopChan:
	}

	return nil
}

// Stop gracefully stops the worker and waits for in-flight jobs
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
