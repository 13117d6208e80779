package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"healthmate/internal/config"
	"healthmate/internal/logger"
	"healthmate/internal/metrics"
)

// Producer errors
var (
	ErrProducerClosed = errors.New("producer is closed")
	ErrEmptyKey       = errors.New("message key is required")
)

// messageWriter is the part of *kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes keyed messages to one topic through a small pool of writers
type Producer struct {
	cfg     config.ProducerConfig
	topic   string
	writers []messageWriter
	pool    chan messageWriter
	closed  atomic.Bool

	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
	bytesWritten   atomic.Uint64
}

// ProducerOption is a functional option for configuring the producer
type ProducerOption func(*Producer)

// withWriters replaces the kafka writers, used by tests
func withWriters(ws ...messageWriter) ProducerOption {
	return func(p *Producer) {
		p.writers = ws
		p.pool = make(chan messageWriter, len(ws))
		for _, w := range ws {
			p.pool <- w
		}
	}
}

// NewProducer creates a producer for topic
func NewProducer(brokers []string, topic string, cfg config.ProducerConfig, opts ...ProducerOption) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 2
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	p := &Producer{
		cfg:   cfg,
		topic: topic,
		pool:  make(chan messageWriter, cfg.PoolSize),
	}

	compression := getCompression(cfg.Compression)
	for i := 0; i < cfg.PoolSize; i++ {
		w := &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  compression,
			MaxAttempts:  1, // retries are ours
		}
		p.writers = append(p.writers, w)
		p.pool <- w
	}

	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func getCompression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

// Publish writes one message. Messages with the same key land on the same partition.
func (p *Producer) Publish(ctx context.Context, key string, value []byte, headers map[string]string) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if key == "" {
		return ErrEmptyKey
	}

	msg := kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: toHeaders(headers),
		Time:    time.Now().UTC(),
	}

	var w messageWriter
	select {
	case w = <-p.pool:
		defer func() { p.pool <- w }()
	case <-ctx.Done():
		p.messagesFailed.Add(1)
		metrics.KafkaPublishTotal.WithLabelValues("failed").Inc()
		return ctx.Err()
	}

	start := time.Now()
	err := p.publishWithRetry(ctx, w, msg)
	metrics.KafkaPublishDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.messagesFailed.Add(1)
		metrics.KafkaPublishTotal.WithLabelValues("failed").Inc()
		return err
	}

	p.messagesSent.Add(1)
	p.bytesWritten.Add(uint64(len(value)))
	metrics.KafkaPublishTotal.WithLabelValues("success").Inc()
	return nil
}

// toHeaders sorts by key so message headers are stable
func toHeaders(h map[string]string) []kafka.Header {
	if len(h) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		out = append(out, kafka.Header{Key: k, Value: []byte(h[k])})
	}
	return out
}

// publishWithRetry publishes a single message with exponential backoff
func (p *Producer) publishWithRetry(ctx context.Context, w messageWriter, msg kafka.Message) error {
	log := logger.WithComponent("kafka_producer")
	var lastErr error
	backoff := p.cfg.RetryBackoff

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Str("key", string(msg.Key)).
				Msg("retrying kafka publish")
			metrics.KafkaPublishRetries.Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := w.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	log.Error().
		Err(lastErr).
		Str("topic", p.topic).
		Int("attempts", p.cfg.MaxRetries+1).
		Msg("kafka publish failed after all retries")

	return fmt.Errorf("failed after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

// Close closes all writers in the pool
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	var errs []error
	for _, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ProducerStats holds producer counters
type ProducerStats struct {
	MessagesSent   uint64 `json:"messages_sent"`
	MessagesFailed uint64 `json:"messages_failed"`
	BytesWritten   uint64 `json:"bytes_written"`
}

// Stats returns producer statistics
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.messagesSent.Load(),
		MessagesFailed: p.messagesFailed.Load(),
		BytesWritten:   p.bytesWritten.Load(),
	}
}

// HealthCheck reports whether the producer can still accept messages
func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	select {
	case w := <-p.pool:
		p.pool <- w
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
