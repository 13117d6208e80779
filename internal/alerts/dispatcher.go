package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"healthmate/internal/logger"
	"healthmate/internal/metrics"
	"healthmate/internal/models"
	"healthmate/internal/notify"
	"healthmate/internal/relay"
	"healthmate/internal/state"
)

// Dispatch errors
var (
	ErrNoContacts          = errors.New("no emergency contacts configured")
	ErrDeliveryFailed      = errors.New("alert delivery failed")
	ErrSerializationFailed = fmt.Errorf("%w: payload serialization failed", ErrDeliveryFailed)
	ErrNotificationFailed  = errors.New("local notification failed")
)

// DefaultDedupeTTL matches the reading retention window
const DefaultDedupeTTL = 30 * 24 * time.Hour

// Mailer sends an email request to the relay
type Mailer interface {
	Send(ctx context.Context, email relay.Email) error
}

// Signaler receives UI-facing signals
type Signaler interface {
	NoContacts(userID string)
}

// State is the terminal state of one dispatch invocation
type State string

const (
	StateSkipped         State = "skipped"
	StateContactsMissing State = "contacts_missing"
	StateDone            State = "done"
)

// SkipReason explains why nothing was delivered
type SkipReason string

const (
	ReasonNone       SkipReason = ""
	ReasonInRange    SkipReason = "in_range"
	ReasonNoContacts SkipReason = "no_contacts"
)

// FailureKind classifies a failed step
type FailureKind string

const (
	FailureNone          FailureKind = ""
	FailureTransport     FailureKind = "transport"
	FailureStatus        FailureKind = "status"
	FailureSerialization FailureKind = "serialization"
	FailureNotification  FailureKind = "notification"
)

// StepResult is the result of the delivery or the notification step
type StepResult struct {
	Attempted bool
	// Duplicate is set when the notification key was already enqueued
	Duplicate bool
	Kind      FailureKind
	Err       error
}

// OK reports whether the step was attempted and succeeded
func (r StepResult) OK() bool {
	return r.Attempted && r.Err == nil
}

// Outcome is the structured result of Dispatch. Dispatch never returns an error.
type Outcome struct {
	State          State
	Reason         SkipReason
	NotificationID string
	Delivery       StepResult
	Notification   StepResult
}

// Skipped reports whether dispatch stopped before delivery
func (o Outcome) Skipped() bool {
	return o.State == StateSkipped || o.State == StateContactsMissing
}

// Err joins every reported failure, or nil
func (o Outcome) Err() error {
	if o.State == StateContactsMissing {
		return ErrNoContacts
	}
	return errors.Join(o.Delivery.Err, o.Notification.Err)
}

// DispatcherConfig holds the collaborators of a Dispatcher
type DispatcherConfig struct {
	AppName string
	Mailer  Mailer
	Sink    notify.Sink
	// Signals may be nil when no UI is attached
	Signals Signaler
	// Dedupe guards the notification key; nil uses an in-memory store
	Dedupe    state.StateStore
	DedupeTTL time.Duration
}

// Dispatcher sends alerts for out-of-range verdicts
type Dispatcher struct {
	appName   string
	mailer    Mailer
	sink      notify.Sink
	signals   Signaler
	dedupe    state.StateStore
	dedupeTTL time.Duration
	now       func() time.Time
}

// NewDispatcher creates a dispatcher
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Dedupe == nil {
		cfg.Dedupe = state.NewMemoryStore()
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = DefaultDedupeTTL
	}
	return &Dispatcher{
		appName:   cfg.AppName,
		mailer:    cfg.Mailer,
		sink:      cfg.Sink,
		signals:   cfg.Signals,
		dedupe:    cfg.Dedupe,
		dedupeTTL: cfg.DedupeTTL,
		now:       time.Now,
	}
}

// Dispatch runs Evaluating -> Delivering -> Notifying for one reading.
// Cancellation of ctx is ignored: once started the dispatch runs to completion.
// A deadline on ctx still bounds the relay call.
// The notification step always runs after the delivery attempt, whatever its result.
func (d *Dispatcher) Dispatch(ctx context.Context, m *models.Measurement, v Verdict, settings *models.UserSettings) Outcome {
	parent := ctx
	ctx = context.WithoutCancel(ctx)
	log := logger.WithMeasurement("dispatcher", m.UserID, m.ID)

	if !v.OutOfRange {
		metrics.DispatchTotal.WithLabelValues(string(StateSkipped)).Inc()
		return Outcome{State: StateSkipped, Reason: ReasonInRange}
	}

	if settings == nil || !settings.HasContacts() {
		log.Info().Str("value", v.FormattedValue).Msg("out-of-range reading but no emergency contacts configured")
		if d.signals != nil {
			d.signals.NoContacts(m.UserID)
		}
		metrics.DispatchTotal.WithLabelValues(string(StateContactsMissing)).Inc()
		return Outcome{State: StateContactsMissing, Reason: ReasonNoContacts}
	}

	out := Outcome{
		State:          StateDone,
		NotificationID: NotificationID(m.ID),
	}

	deliverCtx := ctx
	if dl, ok := parent.Deadline(); ok {
		var cancel context.CancelFunc
		deliverCtx, cancel = context.WithDeadline(ctx, dl)
		defer cancel()
	}

	out.Delivery = d.deliver(deliverCtx, m, v, settings)
	if out.Delivery.OK() {
		metrics.DeliveryTotal.WithLabelValues("success").Inc()
		log.Info().Int("recipients", len(settings.Contacts)).Msg("alert email delivered")
	} else {
		metrics.DeliveryTotal.WithLabelValues(string(out.Delivery.Kind)).Inc()
		log.Error().Err(out.Delivery.Err).Str("failure", string(out.Delivery.Kind)).Msg("alert email delivery failed")
	}

	out.Notification = d.notify(ctx, m, v, out.Delivery.OK())
	switch {
	case out.Notification.Duplicate:
		metrics.NotificationsTotal.WithLabelValues("duplicate").Inc()
		log.Debug().Str("notification_id", out.NotificationID).Msg("notification already enqueued")
	case out.Notification.Err != nil:
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		log.Error().Err(out.Notification.Err).Str("notification_id", out.NotificationID).Msg("failed to enqueue notification")
	default:
		metrics.NotificationsTotal.WithLabelValues("enqueued").Inc()
	}

	metrics.DispatchTotal.WithLabelValues(string(StateDone)).Inc()
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, m *models.Measurement, v Verdict, settings *models.UserSettings) StepResult {
	email := BuildEmail(d.appName, m, v, settings)
	err := d.mailer.Send(ctx, email)
	if err == nil {
		return StepResult{Attempted: true}
	}

	var se *relay.StatusError
	switch {
	case errors.Is(err, relay.ErrSerialization):
		return StepResult{Attempted: true, Kind: FailureSerialization, Err: fmt.Errorf("%w: %w", ErrSerializationFailed, err)}
	case errors.As(err, &se):
		return StepResult{Attempted: true, Kind: FailureStatus, Err: fmt.Errorf("%w: %w", ErrDeliveryFailed, err)}
	default:
		return StepResult{Attempted: true, Kind: FailureTransport, Err: fmt.Errorf("%w: %w", ErrDeliveryFailed, err)}
	}
}

func (d *Dispatcher) notify(ctx context.Context, m *models.Measurement, v Verdict, delivered bool) StepResult {
	n := BuildNotification(m, v, delivered)
	n.CreatedAt = d.now().UTC()

	first, err := d.dedupe.SetIfAbsent(ctx, n.ID, d.dedupeTTL)
	if err != nil {
		// The sinks key on n.ID as well, so enqueueing without the guard stays duplicate-safe.
		log := logger.WithComponent("dispatcher")
		log.Warn().Err(err).Str("notification_id", n.ID).Msg("dedupe store unavailable")
		first = true
	}
	if !first {
		return StepResult{Duplicate: true}
	}

	if err := d.sink.Enqueue(ctx, n); err != nil {
		// release the key so a later dispatch of this reading can try again
		_ = d.dedupe.Delete(ctx, n.ID)
		return StepResult{Attempted: true, Kind: FailureNotification, Err: fmt.Errorf("%w: %w", ErrNotificationFailed, err)}
	}
	return StepResult{Attempted: true}
}
