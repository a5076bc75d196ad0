package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"scenecap/internal/models"
	"scenecap/internal/pkg/errors"
	"scenecap/internal/pkg/logger"
)

// JobProcessor runs one job to completion. It must not panic and must report
// the outcome itself.
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *models.Job)
}

// Dispatcher runs each accepted job in its own goroutine.
type Dispatcher struct {
	proc  JobProcessor
	sem   *semaphore.Weighted
	limit int
	log   *logger.Logger

	base   context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	mu       sync.RWMutex
	draining bool

	active    atomic.Int64
	waiting   atomic.Int64
	submitted atomic.Int64
}

// Stats is a point-in-time view used by the health check.
type Stats struct {
	Active    int64 `json:"active"`
	Waiting   int64 `json:"waiting"`
	Submitted int64 `json:"total"`
	Limit     int   `json:"limit"`
}

// NewDispatcher creates a dispatcher. maxConcurrent <= 0 means no cap.
func NewDispatcher(proc JobProcessor, maxConcurrent int, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault()
	}
	// Los jobs no heredan el contexto del request HTTP.
	base, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		proc:   proc,
		limit:  maxConcurrent,
		log:    log.WithComponent("dispatcher"),
		base:   base,
		cancel: cancel,
	}
	if maxConcurrent > 0 {
		d.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return d
}

// Submit hands job off and returns immediately. It fails only while draining.
func (d *Dispatcher) Submit(job *models.Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.draining {
		return errors.New(errors.CodeUnavailable, "service is shutting down")
	}

	d.wg.Add(1)
	d.submitted.Add(1)
	go d.run(job)
	return nil
}

func (d *Dispatcher) run(job *models.Job) {
	defer d.wg.Done()

	ctx := logger.ContextWithJobID(d.base, job.ID)
	log := d.log.WithJobID(job.ID)

	if d.sem != nil {
		d.waiting.Add(1)
		err := d.sem.Acquire(ctx, 1)
		d.waiting.Add(-1)
		if err != nil {
			// Ctx cancelado durante el drain: se procesa igual para que el job
			// reciba su callback de fallo.
			log.Warn("job started without a session slot", "error", err.Error())
		} else {
			defer d.sem.Release(1)
		}
	}

	d.active.Add(1)
	defer d.active.Add(-1)

	start := time.Now()
	log.Info("processing job")
	d.proc.ProcessJob(ctx, job)
	log.Info("job completed",
		"status", string(job.Status),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	s := Stats{
		Active:    d.active.Load(),
		Waiting:   d.waiting.Load(),
		Submitted: d.submitted.Load(),
	}
	if d.sem != nil {
		s.Limit = d.limit
	}
	return s
}

// Drain stops accepting jobs and waits for in-flight ones. When ctx ends
// first, running jobs are canceled (they still send their failure callback)
// and Drain returns ctx.Err().
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	d.log.Info("draining jobs", "active", d.active.Load(), "waiting", d.waiting.Load())

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.log.Warn("drain timeout, canceling running jobs", "active", d.active.Load())
		d.cancel()
		// dar tiempo a que los callbacks de fallo salgan
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
		return ctx.Err()
	}
}
