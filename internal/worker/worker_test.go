package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"healthmate/internal/models"
)

// MockHandler counts processed readings
type MockHandler struct {
	processed  atomic.Uint64
	shouldFail bool
	block      chan struct{}
}

func (m *MockHandler) Process(ctx context.Context, _ *models.Measurement) error {
	if m.block != nil {
		<-m.block
	}
	if m.shouldFail {
		return errors.New("evaluation failed")
	}
	m.processed.Add(1)
	return nil
}

func reading(id string) *models.Measurement {
	return &models.Measurement{
		ID:      id,
		UserID:  "user-1",
		TakenAt: time.Now(),
		Vital:   models.BloodPressure{Systolic: 120, Diastolic: 80},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWorkerPool_ProcessReadings(t *testing.T) {
	mock := &MockHandler{}
	pool := NewPool(Config{Handler: mock, Workers: 2, QueueSize: 100})
	pool.Start()
	defer pool.Stop()

	numReadings := 25
	for i := 0; i < numReadings; i++ {
		if err := pool.Submit(reading("r")); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	waitFor(t, func() bool { return pool.Stats().Processed == uint64(numReadings) })

	if mock.processed.Load() != uint64(numReadings) {
		t.Errorf("expected %d processed, got %d", numReadings, mock.processed.Load())
	}
}

func TestWorkerPool_QueueFull(t *testing.T) {
	mock := &MockHandler{block: make(chan struct{})}
	pool := NewPool(Config{Handler: mock, Workers: 1, QueueSize: 2})
	pool.Start()

	// one in flight, two queued
	if err := pool.Submit(reading("a")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return pool.Stats().Queued == 0 })
	for _, id := range []string{"b", "c"} {
		if err := pool.Submit(reading(id)); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}

	if err := pool.Submit(reading("d")); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	close(mock.block)
	pool.Stop()

	if mock.processed.Load() != 3 {
		t.Errorf("expected 3 processed, got %d", mock.processed.Load())
	}
}

func TestWorkerPool_GracefulShutdown(t *testing.T) {
	mock := &MockHandler{}
	pool := NewPool(Config{Handler: mock, Workers: 2, QueueSize: 100})
	pool.Start()

	for i := 0; i < 7; i++ {
		if err := pool.Submit(reading("r")); err != nil {
			t.Fatal(err)
		}
	}

	// Stop drains what was accepted
	pool.Stop()

	if mock.processed.Load() != 7 {
		t.Errorf("expected 7 processed after shutdown, got %d", mock.processed.Load())
	}
	if err := pool.Submit(reading("late")); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped, got %v", err)
	}
}

func TestWorkerPool_ErrorHandling(t *testing.T) {
	mock := &MockHandler{shouldFail: true}
	pool := NewPool(Config{Handler: mock, Workers: 1, QueueSize: 10})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 5; i++ {
		_ = pool.Submit(reading("r"))
	}

	waitFor(t, func() bool { return pool.Stats().Failed == 5 })
}

func TestWorkerPool_PanicRecovery(t *testing.T) {
	var calls atomic.Int32
	pool := NewPool(Config{
		Handler: HandlerFunc(func(ctx context.Context, m *models.Measurement) error {
			if calls.Add(1) == 1 {
				panic("boom")
			}
			return nil
		}),
		Workers:   1,
		QueueSize: 10,
	})
	pool.Start()
	defer pool.Stop()

	_ = pool.Submit(reading("a"))
	_ = pool.Submit(reading("b"))

	waitFor(t, func() bool {
		s := pool.Stats()
		return s.Failed == 1 && s.Processed == 1
	})
}

func TestWorkerPool_SubmitRacingStop(t *testing.T) {
	for round := 0; round < 20; round++ {
		mock := &MockHandler{}
		pool := NewPool(Config{Handler: mock, Workers: 2, QueueSize: 1000})
		pool.Start()

		var accepted atomic.Uint64
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 500; i++ {
				if err := pool.Submit(reading("r")); err == nil {
					accepted.Add(1)
				}
			}
		}()

		pool.Stop()
		<-done

		if got, want := mock.processed.Load(), accepted.Load(); got != want {
			t.Fatalf("round %d: processed %d of %d accepted readings", round, got, want)
		}
		if err := pool.Submit(reading("late")); !errors.Is(err, ErrPoolStopped) {
			t.Fatalf("Submit after Stop = %v, want ErrPoolStopped", err)
		}
	}
}
