package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Pool executes jobs on a fixed number of workers with bounded retries
type Pool struct {
	opts    Options
	jobs    chan Job
	backoff func(retry int) time.Duration
	log     *zap.Logger

	wg   sync.WaitGroup
	quit chan struct{}

	mu      sync.RWMutex
	stopped bool

	completed atomic.Int64
	retried   atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a new worker pool. Call Start before enqueueing.
func NewPool(opts Options, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()
	p := &Pool{
		opts: opts,
		jobs: make(chan Job, opts.QueueSize),
		log:  log.Named("queue"),
		quit: make(chan struct{}),
	}
	p.backoff = func(retry int) time.Duration {
		return calculateBackoff(retry, opts.BackoffBase, opts.BackoffMax)
	}
	return p
}

// Start starts the workers
func (p *Pool) Start() {
	p.log.Info("starting side effect workers", zap.Int("workers", p.opts.Workers))
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.process(i)
	}
}

// Stop stops accepting jobs and waits for queued and running jobs to finish.
// Jobs waiting for a retry are abandoned.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.quit)
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("side effect workers stopped", zap.Int64("completed", p.completed.Load()), zap.Int64("failed", p.failed.Load()))
}

// Enqueue never blocks the caller. When the buffer is full the job runs on its own goroutine.
func (p *Pool) Enqueue(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.log.Warn("dropping job, pool stopped", zap.String("job", job.Name))
		return ErrPoolStopped
	}

	select {
	case p.jobs <- job:
	default:
		p.log.Warn("side effect queue full, running job directly", zap.String("job", job.Name))
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(job)
		}()
	}
	return nil
}

// Stats returns the pool counters
func (p *Pool) Stats() Stats {
	return Stats{
		Queued:    len(p.jobs),
		Completed: p.completed.Load(),
		Retried:   p.retried.Load(),
		Failed:    p.failed.Load(),
	}
}

// process runs jobs until Stop, then drains what is left in the buffer
func (p *Pool) process(workerID int) {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobs:
			p.run(job)
		case <-p.quit:
			for {
				select {
				case job := <-p.jobs:
					p.run(job)
				default:
					p.log.Debug("worker stopped", zap.Int("worker", workerID))
					return
				}
			}
		}
	}
}

func (p *Pool) run(job Job) {
	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
		err := job.Run(ctx)
		cancel()
		if err == nil {
			p.completed.Add(1)
			jobsTotal.WithLabelValues("completed").Inc()
			return
		}

		if attempt >= p.opts.MaxRetries {
			p.failed.Add(1)
			jobsTotal.WithLabelValues("failed").Inc()
			p.log.Error("side effect failed", zap.String("job", job.Name), zap.Int("attempts", attempt+1), zap.Error(err))
			return
		}

		delay := p.backoff(attempt)
		p.retried.Add(1)
		jobsTotal.WithLabelValues("retried").Inc()
		p.log.Warn("side effect failed, retrying",
			zap.String("job", job.Name), zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))

		select {
		case <-time.After(delay):
		case <-p.quit:
			p.failed.Add(1)
			jobsTotal.WithLabelValues("abandoned").Inc()
			p.log.Error("side effect abandoned on shutdown", zap.String("job", job.Name), zap.Error(err))
			return
		}
	}
}
