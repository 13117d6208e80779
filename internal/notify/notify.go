// Package notify delivers local user-facing notifications. Every sink must
// treat Notification.ID as a duplicate-safe key.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"healthmate/internal/models"
)

// Sink enqueues a notification for the user
type Sink interface {
	Enqueue(ctx context.Context, n models.Notification) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, n models.Notification) error

func (f SinkFunc) Enqueue(ctx context.Context, n models.Notification) error { return f(ctx, n) }

// Fanout enqueues into every sink and joins the failures
type Fanout []Sink

func (f Fanout) Enqueue(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, s := range f {
		if err := s.Enqueue(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publisher is the broker side of KafkaSink
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte, headers map[string]string) error
}

// KafkaSink hands notifications to the push service over the broker.
// The message key is the notification ID so the topic can be compacted.
type KafkaSink struct {
	publisher Publisher
}

// NewKafkaSink creates a sink publishing through p
func NewKafkaSink(p Publisher) *KafkaSink {
	return &KafkaSink{publisher: p}
}

func (k *KafkaSink) Enqueue(ctx context.Context, n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to serialize notification: %w", err)
	}
	return k.publisher.Publish(ctx, n.ID, data, map[string]string{
		"user_id":         n.UserID,
		"notification_id": n.ID,
	})
}
