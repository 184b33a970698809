package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kengibson1111/go-test-content-cache/internal"
)

// ErrPopulatorClosed is returned by Submit after Close.
var ErrPopulatorClosed = errors.New("populator closed")

// ErrPopulateQueueFull is returned by Submit when the queue has no room.
var ErrPopulateQueueFull = errors.New("populate queue full")

type populateJob struct {
	key   string
	data  []byte
	ttl   time.Duration
	queue time.Time
}

// Populator performs cache writes off the request path. Submit never
// blocks; jobs that do not fit the queue are dropped and counted as errors.
type Populator struct {
	client  internal.RedisClientInterface
	stats   *StatsCollector
	logger  *zap.Logger
	timeout time.Duration

	jobs chan populateJob
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPopulator starts workers goroutines draining a queue of queueSize jobs.
func NewPopulator(client internal.RedisClientInterface, stats *StatsCollector, logger *zap.Logger, workers, queueSize int, timeout time.Duration) *Populator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = internal.DefaultConfig().RequestTimeout
	}

	p := &Populator{
		client:  client,
		stats:   stats,
		logger:  logger.With(zap.String("component", "populator")),
		timeout: timeout,
		jobs:    make(chan populateJob, queueSize),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues an already serialized snapshot.
func (p *Populator) Submit(key string, data []byte, ttl time.Duration) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.stats.RecordError()
		p.logger.Warn("cache write dropped, populator closed", zap.String("key", key))
		return ErrPopulatorClosed
	}

	select {
	case p.jobs <- populateJob{key: key, data: data, ttl: ttl, queue: time.Now()}:
		return nil
	default:
		p.stats.RecordError()
		p.logger.Warn("cache write dropped, queue full", zap.String("key", key), zap.Int("queue_size", cap(p.jobs)))
		return ErrPopulateQueueFull
	}
}

func (p *Populator) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.write(job)
	}
}

// write runs detached from the request that produced the job.
func (p *Populator) write(job populateJob) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.client.Set(ctx, job.key, job.data, job.ttl); err != nil {
		p.stats.RecordError()
		p.logger.Warn("background cache write failed", zap.String("key", job.key), zap.Error(err))
		return
	}

	p.stats.RecordSet()
	p.logger.Debug("cached",
		zap.String("key", job.key),
		zap.Duration("ttl", job.ttl),
		zap.Duration("queued_for", time.Since(job.queue)))
}

// Pending returns the number of queued jobs.
func (p *Populator) Pending() int {
	return len(p.jobs)
}

// Close stops accepting jobs, lets the workers drain the queue and waits
// for them until ctx is done.
func (p *Populator) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
