package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"healthmate/internal/alerts"
	"healthmate/internal/config"
	"healthmate/internal/handlers"
	"healthmate/internal/kafka"
	"healthmate/internal/logger"
	"healthmate/internal/middleware"
	"healthmate/internal/models"
	"healthmate/internal/notify"
	"healthmate/internal/relay"
	"healthmate/internal/signals"
	"healthmate/internal/storage"
	"healthmate/internal/worker"
)

// Processor is the high-level coordinator for ingesting, evaluating, and alerting.
type Processor struct {
	cfg *config.Config

	repo       *storage.SQLite
	producer   *kafka.Producer
	consumer   *kafka.Consumer
	hub        *signals.Hub
	workerPool *worker.Pool
	httpServer *http.Server

	mu        sync.Mutex
	listener  net.Listener
	ready     chan struct{}
	readyOnce sync.Once
}

// New constructs a Processor with given config.
func New(cfg *config.Config) *Processor {
	return &Processor{cfg: cfg, ready: make(chan struct{})}
}

// Run opens the database, starts the workers, the HTTP server, the Kafka
// reading consumer and the retention sweeper, and blocks until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	log := logger.WithComponent("processor")
	log.Info().Str("app", p.cfg.AppName).Msg("processor starting")

	defer p.markReady()

	if err := p.init(); err != nil {
		log.Error().Err(err).Msg("failed to initialize")
		p.closeResources()
		return err
	}

	p.workerPool.Start()

	ln, err := net.Listen("tcp", p.cfg.HTTPAddr)
	if err != nil {
		p.workerPool.Stop()
		p.closeResources()
		return fmt.Errorf("failed to listen on %s: %w", p.cfg.HTTPAddr, err)
	}
	p.mu.Lock()
	p.listener = ln
	p.mu.Unlock()
	p.markReady()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("starting HTTP server")
		if err := p.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return p.httpServer.Shutdown(shutdownCtx)
	})

	if p.consumer != nil {
		g.Go(func() error {
			return p.consumer.Start(gctx)
		})
	}

	if p.cfg.Retention.Enabled {
		sweeper := storage.NewSweeper(p.repo, p.cfg.Retention)
		g.Go(func() error {
			return sweeper.Run(gctx)
		})
	}

	g.Go(func() error {
		p.reportStats(gctx)
		return nil
	})

	err = g.Wait()
	if err != nil {
		log.Error().Err(err).Msg("processor component failed")
	}

	p.shutdown()
	return err
}

func (p *Processor) markReady() {
	p.readyOnce.Do(func() { close(p.ready) })
}

// Addr blocks until Run is listening and returns the bound HTTP address.
// It returns "" if Run failed before listening.
func (p *Processor) Addr() string {
	<-p.ready
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

func (p *Processor) init() error {
	log := logger.WithComponent("processor")

	repo, err := storage.NewSQLite(p.cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	p.repo = repo
	log.Info().Str("path", p.cfg.DatabasePath).Msg("database opened")

	// local notifications always land in the on-device store; the push topic is optional
	sinks := notify.Fanout{repo}
	if p.cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(p.cfg.Kafka.Brokers, p.cfg.Kafka.NotificationTopic, p.cfg.Kafka.Producer)
		if err != nil {
			return fmt.Errorf("failed to initialize producer: %w", err)
		}
		p.producer = producer
		sinks = append(sinks, notify.NewKafkaSink(producer))
		log.Info().
			Strs("brokers", p.cfg.Kafka.Brokers).
			Str("topic", p.cfg.Kafka.NotificationTopic).
			Msg("kafka producer initialized")
	}

	p.hub = signals.NewHub()

	dispatcher := alerts.NewDispatcher(alerts.DispatcherConfig{
		AppName: p.cfg.AppName,
		Mailer:  relay.NewClient(p.cfg.Relay.BaseURL, p.cfg.Relay.Timeout),
		Sink:    sinks,
		Signals: p.hub,
	})

	p.workerPool = worker.NewPool(worker.Config{
		Handler:   NewPipeline(repo, dispatcher, p.hub),
		Workers:    p.cfg.Pipeline.Workers,
		QueueSize:  p.cfg.Pipeline.QueueSize,
		JobTimeout: p.cfg.Pipeline.JobTimeout,
	})

	if p.cfg.Kafka.Enabled {
		consumer, err := kafka.NewConsumer(p.cfg.Kafka.Brokers, p.cfg.Kafka.ReadingsTopic, p.cfg.Kafka.GroupID, p.ingestFromBroker)
		if err != nil {
			return fmt.Errorf("failed to initialize consumer: %w", err)
		}
		p.consumer = consumer
		log.Info().Str("topic", p.cfg.Kafka.ReadingsTopic).Msg("kafka consumer initialized")
	}

	p.initHTTPServer()
	return nil
}

// ingestFromBroker stores a device reading and waits for room in the queue.
// A redelivered reading that was already queued is acknowledged without re-alerting.
// If it cannot be queued the row is removed so the redelivery evaluates it.
func (p *Processor) ingestFromBroker(ctx context.Context, m *models.Measurement) error {
	if err := p.repo.InsertMeasurement(ctx, m); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil
		}
		return err
	}

	err := p.enqueue(ctx, m)
	if err != nil {
		if derr := p.repo.DeleteMeasurement(context.WithoutCancel(ctx), m.ID); derr != nil {
			log := logger.WithMeasurement("processor", m.UserID, m.ID)
			log.Error().Err(derr).Msg("failed to roll back unqueued reading")
		}
	}
	return err
}

func (p *Processor) enqueue(ctx context.Context, m *models.Measurement) error {
	backoff := 10 * time.Millisecond
	for {
		err := p.workerPool.Submit(m)
		if !errors.Is(err, worker.ErrQueueFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			if backoff < time.Second {
				backoff *= 2
			}
		}
	}
}

// initHTTPServer initializes the HTTP server with handlers
func (p *Processor) initHTTPServer() {
	mux := http.NewServeMux()

	handlers.NewReadingsHandler(handlers.ReadingsConfig{
		Store: p.repo,
		Queue: p.workerPool,
	}).Register(mux)
	handlers.NewSettingsHandler(p.repo).Register(mux)
	mux.Handle("GET /ws", p.hub)

	mux.HandleFunc("GET /health", p.healthHandler)
	mux.HandleFunc("GET /stats", p.statsHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	p.httpServer = &http.Server{
		Addr: p.cfg.HTTPAddr,
		Handler: middleware.Chain(mux,
			middleware.RequestID,
			middleware.Logging,
			middleware.Recovery,
		),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// shutdown drains the workers before closing what they write to
func (p *Processor) shutdown() {
	log := logger.WithComponent("processor")
	log.Info().Msg("initiating graceful shutdown")

	done := make(chan struct{})
	go func() {
		p.workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("workers stopped gracefully")
	case <-time.After(p.shutdownWait()):
		log.Warn().Msg("worker shutdown timeout - forcing exit")
	}

	p.closeResources()
	log.Info().Msg("processor stopped gracefully")
}

// shutdownWait gives an in-flight reading its full job timeout plus a grace period
func (p *Processor) shutdownWait() time.Duration {
	return max(p.cfg.Pipeline.JobTimeout, 10*time.Second) + 5*time.Second
}

func (p *Processor) closeResources() {
	log := logger.WithComponent("processor")
	if p.consumer != nil {
		if err := p.consumer.Stop(); err != nil {
			log.Error().Err(err).Msg("consumer close error")
		}
	}
	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			log.Error().Err(err).Msg("producer close error")
		}
	}
	if p.repo != nil {
		if err := p.repo.Close(); err != nil {
			log.Error().Err(err).Msg("database close error")
		}
	}
}

// reportStats periodically logs statistics
func (p *Processor) reportStats(ctx context.Context) {
	log := logger.WithComponent("processor")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := p.stats()
			ev := log.Info().
				Uint64("worker_processed", s.Worker.Processed).
				Uint64("worker_failed", s.Worker.Failed).
				Int("queue_size", s.Worker.Queued)
			if s.Producer != nil {
				ev = ev.
					Uint64("producer_sent", s.Producer.MessagesSent).
					Uint64("producer_failed", s.Producer.MessagesFailed)
			}
			ev.Msg("stats")
		}
	}
}

// Stats is the body of GET /stats
type Stats struct {
	Worker   worker.Stats         `json:"worker"`
	Producer *kafka.ProducerStats `json:"producer,omitempty"`
}

func (p *Processor) stats() Stats {
	s := Stats{Worker: p.workerPool.Stats()}
	if p.producer != nil {
		ps := p.producer.Stats()
		s.Producer = &ps
	}
	return s
}

// healthHandler handles health check requests
func (p *Processor) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := p.repo.Ping(ctx); err != nil {
		http.Error(w, fmt.Sprintf("unhealthy: database: %v", err), http.StatusServiceUnavailable)
		return
	}
	if p.producer != nil {
		if err := p.producer.HealthCheck(ctx); err != nil {
			http.Error(w, fmt.Sprintf("unhealthy: kafka: %v", err), http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// statsHandler returns current statistics
func (p *Processor) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p.stats())
}
