package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sjperalta/pharmavault-api/pkg/logger"
)

// Job represents a background task. Jobs never mutate workflow state.
type Job func(ctx context.Context) error

// Worker runs notification fan-out and scheduled integrity sweeps
type Worker struct {
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	queue         chan namedJob
	asyncSem      chan struct{}
	maxConcurrent int
	stats         WorkerStats
	statsMu       sync.RWMutex
	closeOnce     sync.Once
}

type namedJob struct {
	name string
	run  Job
}

// WorkerStats holds statistics about the worker
type WorkerStats struct {
	ActiveJobs    int       `json:"active_jobs"`
	CompletedJobs int64     `json:"completed_jobs"`
	FailedJobs    int64     `json:"failed_jobs"`
	QueueLength   int       `json:"queue_length"`
	MaxConcurrent int       `json:"max_concurrent"`
	LastFailure   string    `json:"last_failure,omitempty"`
	LastFailureAt time.Time `json:"last_failure_at,omitempty"`
}

// NewWorker creates a worker with N concurrent processors
func NewWorker(numWorkers int) *Worker {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	// Allow 2x workers for async jobs
	asyncLimit := numWorkers * 2
	if asyncLimit < 10 {
		asyncLimit = 10
	}

	w := &Worker{
		ctx:           ctx,
		cancel:        cancel,
		queue:         make(chan namedJob, 100),
		asyncSem:      make(chan struct{}, asyncLimit),
		maxConcurrent: asyncLimit,
	}

	// Start worker goroutines
	for i := 0; i < numWorkers; i++ {
		w.wg.Add(1)
		go w.process(i)
	}

	return w
}

// Enqueue adds a job to be processed by the worker pool
func (w *Worker) Enqueue(name string, job Job) {
	select {
	case w.queue <- namedJob{name: name, run: job}:
	default:
		logger.Warn("worker queue full, running job synchronously", slog.String("job", name))
		w.run("inline", namedJob{name: name, run: job})
	}
}

// EnqueueAsync runs a job in a new goroutine (fire-and-forget), bounded by semaphore
func (w *Worker) EnqueueAsync(name string, job Job) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		// Acquire semaphore to limit concurrency
		select {
		case w.asyncSem <- struct{}{}:
		case <-w.ctx.Done():
			return
		}
		defer func() { <-w.asyncSem }()

		w.run("async", namedJob{name: name, run: job})
	}()
}

// process handles jobs from the queue
func (w *Worker) process(workerID int) {
	defer w.wg.Done()
	source := fmt.Sprintf("worker-%d", workerID)
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
func (w *Worker) ScheduleEvery(name string, interval time.Duration, job Job) {
	w.schedule(name, interval, job, false)
}

// ScheduleEveryImmediate runs a job once at startup, then at fixed intervals
func (w *Worker) ScheduleEveryImmediate(name string, interval time.Duration, job Job) {
	w.schedule(name, interval, job, true)
}

func (w *Worker) schedule(name string, interval time.Duration, job Job, immediate bool) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if immediate {
			w.run("scheduler", namedJob{name: name, run: job})
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				w.run("scheduler", namedJob{name: name, run: job})
			}
		}
	}()
}

func (w *Worker) run(source string, job namedJob) {
	w.trackJobStart()
	defer w.trackJobEnd()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panic", slog.String("source", source), slog.String("job", job.name), slog.Any("panic", r))
			w.trackJobFailure(job.name, fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	if err := job.run(w.ctx); err != nil {
		logger.Error("job failed", slog.String("source", source), slog.String("job", job.name), slog.String("error", err.Error()))
		w.trackJobFailure(job.name, err)
		return
	}
	logger.Debug("job completed", slog.String("source", source), slog.String("job", job.name), slog.Duration("elapsed", time.Since(start)))
}

// Shutdown gracefully stops all workers
func (w *Worker) Shutdown() {
	w.closeOnce.Do(func() {
		w.cancel()
		close(w.queue)
		w.wg.Wait()
	})
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

// trackJobEnd counts every finished job; FailedJobs is the failing subset
func (w *Worker) trackJobEnd() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.ActiveJobs--
	w.stats.CompletedJobs++
}

func (w *Worker) trackJobFailure(name string, err error) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.FailedJobs++
	w.stats.LastFailure = name + ": " + err.Error()
	w.stats.LastFailureAt = time.Now()
}
