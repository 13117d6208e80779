package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"healthmate/internal/logger"
	"healthmate/internal/metrics"
	"healthmate/internal/models"
)

// Pool errors
var (
	ErrQueueFull   = errors.New("evaluation queue is full")
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// Handler processes one reading
type Handler interface {
	Process(ctx context.Context, m *models.Measurement) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, m *models.Measurement) error

func (f HandlerFunc) Process(ctx context.Context, m *models.Measurement) error { return f(ctx, m) }

// Pool runs a fixed number of workers over a bounded queue of readings
type Pool struct {
	handler    Handler
	queue      chan *models.Measurement
	workers    int
	jobTimeout time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// mu orders Submit's send against Stop so nothing lands after the drain
	mu      sync.RWMutex
	stopped bool

	// Metrics
	processed atomic.Uint64
	failed    atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Handler    Handler
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	metrics.WorkerQueueCapacity.Set(float64(cfg.QueueSize))

	return &Pool{
		handler:    cfg.Handler,
		queue:      make(chan *models.Measurement, cfg.QueueSize),
		workers:    cfg.Workers,
		jobTimeout: cfg.JobTimeout,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.workers).
		Int("queue_size", cap(p.queue)).
		Msg("starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues a reading without blocking
func (p *Pool) Submit(m *models.Measurement) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.queue <- m:
		metrics.WorkerQueueSize.Set(float64(len(p.queue)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop stops accepting readings, lets the workers finish what is queued and waits
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	log := logger.WithComponent("worker_pool")
	log.Info().Int("pending", len(p.queue)).Msg("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	log.Info().Msg("worker pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()
	log.Debug().Msg("worker started")
	defer log.Debug().Msg("worker stopped")

	for {
		select {
		case m := <-p.queue:
			p.run(m)
		case <-p.ctx.Done():
			// drain whatever was accepted before Stop
			for {
				select {
				case m := <-p.queue:
					p.run(m)
				default:
					return
				}
			}
		}
	}
}

// run processes one reading. A panic fails the reading, not the worker.
func (p *Pool) run(m *models.Measurement) {
	metrics.WorkerQueueSize.Set(float64(len(p.queue)))
	start := time.Now()

	// the job context outlives Stop so queued readings still complete
	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), p.jobTimeout)
	defer cancel()

	err := p.safeProcess(ctx, m)
	metrics.WorkerJobDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		log := logger.WithMeasurement("worker", m.UserID, m.ID)
		log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("failed to process reading")
		p.failed.Add(1)
		metrics.WorkerFailedTotal.Inc()
		return
	}
	p.processed.Add(1)
	metrics.WorkerProcessedTotal.Inc()
}

func (p *Pool) safeProcess(ctx context.Context, m *models.Measurement) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log := logger.WithComponent("worker")
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.handler.Process(ctx, m)
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Queued:    len(p.queue),
		Capacity:  cap(p.queue),
	}
}

// Stats holds worker pool counters
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Queued    int    `json:"queued"`
	Capacity  int    `json:"capacity"`
}
