package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// spawnWorkerPool starts concurrency goroutines for every queue
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for _, queueName := range w.queues {
		for i := 0; i < w.concurrency; i++ {
			w.wg.Add(1)
			go w.workerLoop(ctx, queueName, i)
		}
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency*len(w.queues)),
	)
}

// workerLoop polls one queue until the worker stops
func (w *Worker) workerLoop(ctx context.Context, queueName string, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%s-%d", w.workerID, queueName, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
		slog.String("queue", queueName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		default:
		}

		processed, err := w.ProcessOne(ctx, queueName)
		if err != nil && ctx.Err() == nil {
			w.logger.Error("Queue poll failed",
				slog.String("worker_name", workerName),
				slog.String("queue", queueName),
				slog.Any("error", err),
			)
		}

		if !processed {
			w.idle(ctx)
		}
	}
}

// idle sleeps briefly so an empty or unreachable queue is not busy-polled
func (w *Worker) idle(ctx context.Context) {
	timer := time.NewTimer(w.idleSleep)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-w.stopChan:
	case <-ctx.Done():
	}
}
