package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/bookvoice/internal/metrics"
)

// prefetchJob asks for pages of one specific load of a coordinator.
type prefetchJob struct {
	coord *Coordinator
	doc   *document
	pages []int
}

// Prefetcher is a fixed pool of workers draining a bounded job queue. It is
// shared by every session.
type Prefetcher struct {
	queue   chan prefetchJob
	workers int
	delay   time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPrefetcher creates the pool. delay is the pause between consecutive
// pages of one job.
func NewPrefetcher(workers, queueSize int, delay time.Duration, log *slog.Logger, m *metrics.Metrics) *Prefetcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Prefetcher{
		queue:   make(chan prefetchJob, queueSize),
		workers: workers,
		delay:   delay,
		log:     log.With("component", "prefetch"),
		metrics: m,
	}
}

// Start launches worker goroutines.
func (p *Prefetcher) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for range p.workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-p.queue:
					if !ok {
						return
					}
					p.metrics.SetPrefetchQueueDepth(len(p.queue))
					p.run(workerCtx, job)
				}
			}
		}()
	}
}

func (p *Prefetcher) run(ctx context.Context, job prefetchJob) {
	defer func() {
		// A prefetch failure must never take the worker down.
		if r := recover(); r != nil {
			p.log.Error("prefetch job panicked", "panic", r)
		}
	}()
	job.coord.prefetch(ctx, job, p.delay)
}

// Stop cancels in-flight work and waits for workers to exit. Later Submits
// are dropped.
func (p *Prefetcher) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Submit enqueues job without blocking. It returns false when the queue is
// full or the pool is stopped.
func (p *Prefetcher) Submit(job prefetchJob) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	select {
	case p.queue <- job:
		p.metrics.SetPrefetchQueueDepth(len(p.queue))
		return true
	default:
		p.metrics.PrefetchDropped()
		return false
	}
}

// QueueDepth returns the number of jobs waiting for a worker.
func (p *Prefetcher) QueueDepth() int {
	return len(p.queue)
}
