package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wordclip/wordclip/internal/job"
	"github.com/wordclip/wordclip/internal/logger"
)

// Pool schedules queued search jobs onto a bounded set of concurrent
// tasks. A single driver goroutine polls the job store when idle and
// re-polls immediately whenever a job finishes, so sustained throughput
// equals the concurrency bound.
type Pool struct {
	jobs     JobStore
	pipeline *Pipeline
	logger   *logger.Logger

	maxConcurrent int
	pollInterval  time.Duration

	running   map[string]struct{} // fingerprints with an in-flight task
	runningMu sync.Mutex

	wake     chan struct{}
	shutdown chan struct{}
	wg       sync.WaitGroup

	activeCount atomic.Int32
}

// NewPool creates a worker pool. Call Start to begin scheduling and
// Shutdown to stop; in-flight jobs are allowed to finish.
func NewPool(jobs JobStore, pipeline *Pipeline, maxConcurrent int, pollInterval time.Duration, log *logger.Logger) *Pool {
	return &Pool{
		jobs:          jobs,
		pipeline:      pipeline,
		logger:        log.WithComponent("worker-pool"),
		maxConcurrent: maxConcurrent,
		pollInterval:  pollInterval,
		running:       make(map[string]struct{}),
		wake:          make(chan struct{}, 1),
		shutdown:      make(chan struct{}),
	}
}

// Start launches the driver goroutine.
func (p *Pool) Start() {
	p.wg.Add(1)
	go p.driver()
	p.logger.Info("worker pool started",
		slog.Int("max_concurrent", p.maxConcurrent),
		slog.Duration("poll_interval", p.pollInterval))
}

// driver polls the queue and dispatches eligible jobs. It never blocks
// on a running job.
func (p *Pool) driver() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		p.dispatch()

		select {
		case <-p.shutdown:
			return
		case <-p.wake:
			// A job just finished; re-poll without delay.
		case <-ticker.C:
		}
	}
}

// dispatch claims queued jobs up to the concurrency bound. A job is
// eligible iff it is queued and no running task holds its fingerprint.
func (p *Pool) dispatch() {
	free := p.maxConcurrent - int(p.activeCount.Load())
	if free <= 0 {
		return
	}

	ctx := context.Background()
	queued, err := p.jobs.ListQueued(ctx)
	if err != nil {
		p.logger.Error("failed to list queued jobs", slog.String("error", err.Error()))
		return
	}

	for _, j := range queued {
		if free <= 0 {
			return
		}
		if !p.claim(j.Fingerprint) {
			continue
		}
		free--
		p.activeCount.Add(1)
		p.wg.Add(1)
		go p.runJob(j)
	}
}

// claim marks a fingerprint as running. Returns false when another task
// already holds it.
func (p *Pool) claim(fp string) bool {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()
	if _, exists := p.running[fp]; exists {
		return false
	}
	p.running[fp] = struct{}{}
	return true
}

// runJob executes one job and releases its claim.
func (p *Pool) runJob(j job.Job) {
	defer p.wg.Done()
	defer func() {
		p.runningMu.Lock()
		delete(p.running, j.Fingerprint)
		p.runningMu.Unlock()
		p.activeCount.Add(-1)

		// Nudge the driver so a waiting job starts immediately.
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in job task",
				slog.Any("panic", r),
				slog.String("job_id", j.ID))
			if err := p.jobs.SetError(context.Background(), j.Fingerprint, "Internal error while processing search"); err != nil {
				p.logger.Error("failed to mark panicked job failed", slog.String("error", err.Error()))
			}
		}
	}()

	start := time.Now()
	p.logger.Info("job task started",
		slog.String("job_id", j.ID),
		slog.Int("active", int(p.activeCount.Load())))

	p.pipeline.Run(context.Background(), j)

	p.logger.Info("job task finished",
		slog.String("job_id", j.ID),
		slog.Duration("duration", time.Since(start)))
}

// ActiveCount returns the number of in-flight job tasks.
func (p *Pool) ActiveCount() int {
	return int(p.activeCount.Load())
}

// Shutdown stops the driver and waits for in-flight jobs to finish, up
// to a 30-second grace period. Jobs are never hard-killed.
func (p *Pool) Shutdown() {
	p.logger.Info("shutting down worker pool",
		slog.Int("active", int(p.activeCount.Load())))

	close(p.shutdown)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool shut down")
	case <-time.After(30 * time.Second):
		p.logger.Warn("worker pool shutdown timed out, jobs may still be running")
	}
}
