package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"healthmate/internal/logger"
	"healthmate/internal/metrics"
	"healthmate/internal/models"
)

// ErrInvalidEnvelope marks a payload that is not a device envelope
var ErrInvalidEnvelope = errors.New("invalid device envelope")

// Handler receives each reading decoded from the readings topic
type Handler func(ctx context.Context, m *models.Measurement) error

// messageReader is the part of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads device readings from Kafka and hands them to a Handler
type Consumer struct {
	reader       messageReader
	handler      Handler
	now          func() time.Time
	retryBackoff time.Duration
}

const maxRetryBackoff = 5 * time.Second

// NewConsumer creates a group consumer over topic
func NewConsumer(brokers []string, topic, groupID string, handler Handler) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" || groupID == "" {
		return nil, errors.New("topic and group id are required")
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	return newConsumer(r, handler), nil
}

func newConsumer(r messageReader, handler Handler) *Consumer {
	return &Consumer{reader: r, handler: handler, now: time.Now, retryBackoff: 100 * time.Millisecond}
}

// Start consumes until ctx is cancelled. Bad payloads are committed and skipped
// so one message cannot stall the partition. A reading the handler fails on is
// retried and its offset is only committed once it is handled.
func (c *Consumer) Start(ctx context.Context) error {
	log := logger.WithComponent("kafka_consumer")
	log.Info().Msg("consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if !c.process(ctx, msg) {
			// left uncommitted so the group redelivers it
			log.Info().Int64("offset", msg.Offset).Msg("consumer stopped before reading was handled")
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Int64("offset", msg.Offset).Msg("failed to commit offset")
		}
	}
}

// process retries the handler with backoff. It reports false if ctx ended first.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	backoff := c.retryBackoff
	for {
		if err := c.handle(ctx, msg); err == nil {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
			if backoff < maxRetryBackoff {
				backoff *= 2
			}
		}
	}
}

// handle returns an error only when the reading should be retried
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	log := logger.WithComponent("kafka_consumer")

	env, m, err := DecodeReading(msg, c.now())
	if err != nil {
		log.Warn().
			Err(err).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("skipping invalid reading")
		metrics.KafkaConsumedTotal.WithLabelValues("invalid").Inc()
		metrics.ReadingsReceivedTotal.WithLabelValues("kafka", "rejected").Inc()
		return nil
	}

	if err := c.handler(ctx, m); err != nil {
		log.Error().
			Err(err).
			Str("device_id", env.DeviceID).
			Str("measurement_id", m.ID).
			Msg("reading handler failed, will retry")
		metrics.KafkaConsumedTotal.WithLabelValues("retried").Inc()
		return err
	}

	metrics.KafkaConsumedTotal.WithLabelValues("accepted").Inc()
	metrics.ReadingsReceivedTotal.WithLabelValues("kafka", "accepted").Inc()
	return nil
}

// Stop closes the reader
func (c *Consumer) Stop() error {
	return c.reader.Close()
}

// DecodeReading parses a device envelope and converts its reading.
// A reading without an ID is keyed on its topic position, so a redelivered
// message maps to the same measurement.
func DecodeReading(msg kafka.Message, now time.Time) (*models.DeviceEnvelope, *models.Measurement, error) {
	var env models.DeviceEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if strings.TrimSpace(env.Reading.ID) == "" {
		env.Reading.ID = MessageReadingID(msg)
	}
	m, err := env.Reading.Measurement(now)
	if err != nil {
		return &env, nil, err
	}
	return &env, m, nil
}

// MessageReadingID derives a stable measurement ID from a message's position
func MessageReadingID(msg kafka.Message) string {
	name := fmt.Sprintf("kafka://%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
