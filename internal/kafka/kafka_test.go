package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthmate/internal/config"
	"healthmate/internal/models"
)

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	err      error
	written  []kafka.Message
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testProducer(t *testing.T, w *fakeWriter, retries int) *Producer {
	t.Helper()
	cfg := config.ProducerConfig{PoolSize: 1, MaxRetries: retries, RetryBackoff: time.Millisecond}
	p, err := NewProducer([]string{"localhost:9092"}, "healthmate.notifications", cfg, withWriters(w))
	require.NoError(t, err)
	return p
}

func TestNewProducerValidation(t *testing.T) {
	_, err := NewProducer(nil, "topic", config.ProducerConfig{})
	assert.Error(t, err)

	_, err = NewProducer([]string{"localhost:9092"}, "", config.ProducerConfig{})
	assert.Error(t, err)
}

func TestPublish(t *testing.T) {
	w := &fakeWriter{}
	p := testProducer(t, w, 0)

	err := p.Publish(context.Background(), "vital-1", []byte(`{}`), map[string]string{
		"user_id":         "u-1",
		"notification_id": "vital-1",
	})
	require.NoError(t, err)

	require.Len(t, w.written, 1)
	msg := w.written[0]
	assert.Equal(t, "vital-1", string(msg.Key))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "notification_id", msg.Headers[0].Key)
	assert.Equal(t, "user_id", msg.Headers[1].Key)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.MessagesSent)
	assert.Equal(t, uint64(2), stats.BytesWritten)
}

func TestPublishRetries(t *testing.T) {
	w := &fakeWriter{failures: 2, err: errors.New("leader not available")}
	p := testProducer(t, w, 3)

	require.NoError(t, p.Publish(context.Background(), "k", []byte("v"), nil))
	assert.Len(t, w.written, 1)
}

func TestPublishGivesUp(t *testing.T) {
	w := &fakeWriter{failures: 10, err: errors.New("broker down")}
	p := testProducer(t, w, 1)

	err := p.Publish(context.Background(), "k", []byte("v"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
	assert.Equal(t, uint64(1), p.Stats().MessagesFailed)
}

func TestPublishRejectsEmptyKey(t *testing.T) {
	p := testProducer(t, &fakeWriter{}, 0)
	assert.ErrorIs(t, p.Publish(context.Background(), "", []byte("v"), nil), ErrEmptyKey)
}

func TestPublishAfterClose(t *testing.T) {
	w := &fakeWriter{}
	p := testProducer(t, w, 0)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), "k", nil, nil), ErrProducerClosed)
	assert.ErrorIs(t, p.HealthCheck(context.Background()), ErrProducerClosed)
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := f.msgs[0]
	f.msgs = f.msgs[1:]
	return msg, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func envelopeBytes(t *testing.T, in models.ReadingInput) []byte {
	t.Helper()
	data, err := json.Marshal(models.NewDeviceEnvelope(in, "cuff-7"))
	require.NoError(t, err)
	return data
}

func TestConsumerSkipsInvalidAndCommitsAll(t *testing.T) {
	sys, dia := 150, 95
	level := 65
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: envelopeBytes(t, models.ReadingInput{UserID: "u-1", Kind: "blood_pressure", Systolic: &sys, Diastolic: &dia})},
		{Offset: 2, Value: []byte("not json")},
		{Offset: 3, Value: envelopeBytes(t, models.ReadingInput{UserID: "u-1", Kind: "blood_sugar", Level: &level})},
		{Offset: 4, Value: envelopeBytes(t, models.ReadingInput{UserID: "u-1", Kind: "blood_sugar", Level: &level, Context: "fasting"})},
	}}

	var got []*models.Measurement
	ctx, cancel := context.WithCancel(context.Background())
	c := newConsumer(r, func(_ context.Context, m *models.Measurement) error {
		got = append(got, m)
		if len(got) == 2 {
			cancel()
		}
		return nil
	})

	require.NoError(t, c.Start(ctx))
	require.Len(t, got, 2)
	assert.Equal(t, models.BloodPressure{Systolic: 150, Diastolic: 95}, got[0].Vital)
	assert.Equal(t, models.BloodSugar{Level: 65, Context: models.Fasting}, got[1].Vital)
	assert.Equal(t, []int64{1, 2, 3}, r.committed[:3])

	require.NoError(t, c.Stop())
	assert.True(t, r.closed)
}

func TestConsumerRetriesFailedReadingBeforeCommit(t *testing.T) {
	level := 120
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 7, Value: envelopeBytes(t, models.ReadingInput{ID: "r-7", UserID: "u-1", Kind: "blood_sugar", Level: &level, Context: "fasting"})},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	c := newConsumer(r, func(_ context.Context, m *models.Measurement) error {
		calls++
		if calls < 3 {
			return errors.New("queue busy")
		}
		cancel()
		return nil
	})
	c.retryBackoff = time.Millisecond

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int64{7}, r.committed)
}

func TestConsumerLeavesUnhandledReadingUncommitted(t *testing.T) {
	level := 120
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 9, Value: envelopeBytes(t, models.ReadingInput{UserID: "u-1", Kind: "blood_sugar", Level: &level, Context: "fasting"})},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newConsumer(r, func(_ context.Context, _ *models.Measurement) error {
		cancel()
		return errors.New("worker pool is stopped")
	})
	c.retryBackoff = time.Millisecond

	require.NoError(t, c.Start(ctx))
	assert.Empty(t, r.committed)
}

func TestDecodeReading(t *testing.T) {
	_, _, err := DecodeReading(kafka.Message{Value: []byte("{")}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	level := 120
	data := envelopeBytes(t, models.ReadingInput{ID: "r-1", UserID: "u-1", Kind: "blood_sugar", Level: &level, Context: "after meal"})
	env, m, err := DecodeReading(kafka.Message{Value: data}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "cuff-7", env.DeviceID)
	assert.Equal(t, "r-1", m.ID)
	assert.Equal(t, models.AfterMeal, m.Vital.(models.BloodSugar).Context)
}

func TestDecodeReadingDerivesStableID(t *testing.T) {
	level := 120
	data := envelopeBytes(t, models.ReadingInput{UserID: "u-1", Kind: "blood_sugar", Level: &level, Context: "fasting"})
	msg := kafka.Message{Topic: "healthmate.readings", Partition: 2, Offset: 41, Value: data}

	_, first, err := DecodeReading(msg, time.Now())
	require.NoError(t, err)
	_, again, err := DecodeReading(msg, time.Now())
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "redelivery keeps the measurement id")
	assert.Equal(t, MessageReadingID(msg), first.ID)

	msg.Offset = 42
	_, next, err := DecodeReading(msg, time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, next.ID)
}
