package processor

import (
	"context"
	"errors"
	"fmt"

	"healthmate/internal/alerts"
	"healthmate/internal/logger"
	"healthmate/internal/metrics"
	"healthmate/internal/models"
)

// SettingsSource loads per-user settings, creating defaults on first access
type SettingsSource interface {
	Settings(ctx context.Context, userID string) (*models.UserSettings, error)
}

// Dispatcher sends alerts for a verdict
type Dispatcher interface {
	Dispatch(ctx context.Context, m *models.Measurement, v alerts.Verdict, settings *models.UserSettings) alerts.Outcome
}

// ReadingSignaler pushes evaluated readings to the app
type ReadingSignaler interface {
	ReadingEvaluated(userID string, data any)
}

// ReadingEvent is the payload of a reading.evaluated signal
type ReadingEvent struct {
	MeasurementID  string             `json:"measurement_id"`
	Kind           models.Kind        `json:"kind"`
	FormattedValue string             `json:"formatted_value"`
	OutOfRange     bool               `json:"out_of_range"`
	Description    string             `json:"description"`
	State          alerts.State       `json:"dispatch_state"`
	Delivered      bool               `json:"delivered"`
	NotificationID string             `json:"notification_id,omitempty"`
	Violations     []alerts.Violation `json:"violations,omitempty"`
}

// Pipeline evaluates one stored reading and dispatches alerts for it
type Pipeline struct {
	settings   SettingsSource
	dispatcher Dispatcher
	signals    ReadingSignaler
}

// NewPipeline creates a pipeline. signals may be nil.
func NewPipeline(settings SettingsSource, dispatcher Dispatcher, signals ReadingSignaler) *Pipeline {
	return &Pipeline{settings: settings, dispatcher: dispatcher, signals: signals}
}

// Process implements worker.Handler
func (p *Pipeline) Process(ctx context.Context, m *models.Measurement) error {
	log := logger.WithMeasurement("pipeline", m.UserID, m.ID)

	settings, err := p.settings.Settings(ctx, m.UserID)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	verdict, err := alerts.Evaluate(m, settings.Thresholds)
	if err != nil {
		return fmt.Errorf("failed to evaluate reading: %w", err)
	}
	metrics.EvaluationsTotal.WithLabelValues(string(m.Kind()), verdict.Label()).Inc()

	log.Debug().
		Str("verdict", verdict.Label()).
		Str("value", verdict.FormattedValue).
		Msg("reading evaluated")

	outcome := p.dispatcher.Dispatch(ctx, m, verdict, settings)

	if p.signals != nil {
		p.signals.ReadingEvaluated(m.UserID, ReadingEvent{
			MeasurementID:  m.ID,
			Kind:           verdict.Kind,
			FormattedValue: verdict.FormattedValue,
			OutOfRange:     verdict.OutOfRange,
			Description:    verdict.Describe(),
			State:          outcome.State,
			Delivered:      outcome.Delivery.OK(),
			NotificationID: outcome.NotificationID,
			Violations:     verdict.Violations,
		})
	}

	// a missing contact list is a user state, not a processing failure
	if outcome.Skipped() {
		return nil
	}
	return errors.Join(outcome.Delivery.Err, outcome.Notification.Err)
}
