package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sjperalta/tesoreria-api/pkg/logger"
)

// Job represents a background task
type Job func(ctx context.Context) error

// Worker runs queued jobs on a fixed pool, fire-and-forget jobs on bounded
// goroutines, and periodic jobs on tickers.
type Worker struct {
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	queue         chan Job
	asyncSem      chan struct{}
	maxConcurrent int
	stats         WorkerStats
	statsMu       sync.RWMutex
	closeOnce     sync.Once

	// mu guards closed; senders hold the read lock so the queue is never closed under them
	mu     sync.RWMutex
	closed bool
}

// WorkerStats holds statistics about the worker.
// FinishedJobs counts every job that ran, FailedJobs is the subset that returned an error or panicked.
type WorkerStats struct {
	ActiveJobs    int   `json:"active_jobs"`
	FinishedJobs  int64 `json:"finished_jobs"`
	FailedJobs    int64 `json:"failed_jobs"`
	QueueLength   int   `json:"queue_length"`
	MaxConcurrent int   `json:"max_concurrent"`
}

// NewWorker creates a worker with numWorkers queue processors
func NewWorker(numWorkers int) *Worker {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	asyncLimit := numWorkers * 2
	if asyncLimit < 10 {
		asyncLimit = 10
	}

	w := &Worker{
		ctx:           ctx,
		cancel:        cancel,
		queue:         make(chan Job, 100),
		asyncSem:      make(chan struct{}, asyncLimit),
		maxConcurrent: asyncLimit,
	}

	for i := 0; i < numWorkers; i++ {
		w.wg.Add(1)
		go w.process(i)
	}

	return w
}

// Enqueue adds a job to the pool queue. When the queue is full the job runs on
// the caller's goroutine. Jobs enqueued after Shutdown are dropped.
func (w *Worker) Enqueue(job Job) {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		logger.Warn("worker stopped, dropping job", "source", "queue")
		return
	}
	select {
	case w.queue <- job:
		w.mu.RUnlock()
		return
	default:
	}
	w.mu.RUnlock()

	logger.Warn("worker queue full, running job inline")
	w.run("inline", job)
}

// EnqueueAsync runs a job in its own goroutine, bounded by a semaphore
func (w *Worker) EnqueueAsync(job Job) {
	if !w.track("async") {
		return
	}
	go func() {
		defer w.wg.Done()

		select {
		case w.asyncSem <- struct{}{}:
		case <-w.ctx.Done():
			return
		}
		defer func() { <-w.asyncSem }()

		w.run("async", job)
	}()
}

func (w *Worker) process(workerID int) {
	defer w.wg.Done()
	source := fmt.Sprintf("pool-%d", workerID)
	for {
		select {
		case <-w.ctx.Done():
			return
		case job, ok := <-w.queue:
			if !ok {
				return
			}
			w.run(source, job)
		}
	}
}

// ScheduleEvery runs a job at fixed intervals. The first run happens after the interval.
func (w *Worker) ScheduleEvery(interval time.Duration, job Job) {
	if !w.track("scheduler") {
		return
	}
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				w.run("scheduler", job)
			}
		}
	}()
}

// track registers a goroutine with the wait group unless the worker is stopped
func (w *Worker) track(source string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		logger.Warn("worker stopped, dropping job", "source", source)
		return false
	}
	w.wg.Add(1)
	return true
}

// run executes job with stats tracking and panic recovery
func (w *Worker) run(source string, job Job) {
	w.trackJobStart()
	start := time.Now()
	failed := false

	defer func() {
		if r := recover(); r != nil {
			logger.Error("background job panic", "source", source, "panic", fmt.Sprint(r))
			failed = true
		}
		w.trackJobEnd(failed)
	}()

	if err := job(w.ctx); err != nil {
		failed = true
		logger.Error("background job failed", "source", source, "error", err)
		return
	}
	logger.Debug("background job finished", "source", source, "elapsed", time.Since(start))
}

// Shutdown cancels running jobs and waits for every goroutine to exit
func (w *Worker) Shutdown() {
	w.closeOnce.Do(func() {
		w.cancel()
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()
	})
	w.wg.Wait()
}

// GetStats returns the current worker statistics
func (w *Worker) GetStats() WorkerStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	stats := w.stats
	stats.QueueLength = len(w.queue)
	stats.MaxConcurrent = w.maxConcurrent
	return stats
}

func (w *Worker) trackJobStart() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.ActiveJobs++
}

func (w *Worker) trackJobEnd(failed bool) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.ActiveJobs--
	w.stats.FinishedJobs++
	if failed {
		w.stats.FailedJobs++
	}
}
