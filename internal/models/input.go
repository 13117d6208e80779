package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SupportedTimestampFormats lists formats we attempt to parse
var SupportedTimestampFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

var ErrInvalidTimestamp = errors.New("invalid timestamp format")

// ReadingInput is the wire form of a reading. Pointer fields distinguish absent from zero.
type ReadingInput struct {
	ID        string `json:"id,omitempty"`
	UserID    string `json:"user_id"`
	Kind      string `json:"kind"`
	TakenAt   string `json:"taken_at,omitempty"`
	Systolic  *int   `json:"systolic,omitempty"`
	Diastolic *int   `json:"diastolic,omitempty"`
	Level     *int   `json:"level,omitempty"`
	Context   string `json:"context,omitempty"`
}

// Measurement converts the input into a validated measurement.
// A missing ID gets a fresh UUID and a missing time defaults to now.
func (in ReadingInput) Measurement(now time.Time) (*Measurement, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}

	takenAt := now.UTC()
	if strings.TrimSpace(in.TakenAt) != "" {
		ts, err := ParseTimestamp(in.TakenAt)
		if err != nil {
			return nil, fmt.Errorf("%w: taken_at: %v", ErrInvalidMeasurement, err)
		}
		takenAt = ts
	}

	vital, err := in.vital()
	if err != nil {
		return nil, err
	}

	return NewMeasurement(id, strings.TrimSpace(in.UserID), takenAt, vital)
}

func (in ReadingInput) vital() (Vital, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(in.Kind))) {
	case KindBloodPressure:
		if in.Systolic == nil {
			return nil, fmt.Errorf("%w: systolic is required", ErrInvalidMeasurement)
		}
		if in.Diastolic == nil {
			return nil, fmt.Errorf("%w: diastolic is required", ErrInvalidMeasurement)
		}
		return BloodPressure{Systolic: *in.Systolic, Diastolic: *in.Diastolic}, nil

	case KindBloodSugar:
		if in.Level == nil {
			return nil, fmt.Errorf("%w: level is required", ErrInvalidMeasurement)
		}
		ctx, ok := ParseReadingContext(in.Context)
		if !ok {
			return nil, ErrMissingContext
		}
		return BloodSugar{Level: *in.Level, Context: ctx}, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidMeasurement, in.Kind)
	}
}

// InputFrom renders a measurement back into its wire form
func InputFrom(m *Measurement) ReadingInput {
	in := ReadingInput{
		ID:      m.ID,
		UserID:  m.UserID,
		Kind:    string(m.Kind()),
		TakenAt: m.TakenAt.UTC().Format(time.RFC3339),
	}
	switch v := m.Vital.(type) {
	case BloodPressure:
		in.Systolic, in.Diastolic = intPtr(v.Systolic), intPtr(v.Diastolic)
	case BloodSugar:
		in.Level = intPtr(v.Level)
		in.Context = string(v.Context)
	}
	return in
}

// ParseReadingContext accepts the spellings clients send for a sugar context
func ParseReadingContext(s string) (ReadingContext, bool) {
	switch strings.ToLower(strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " ")) {
	case "fasting":
		return Fasting, true
	case "after meal", "aftermeal", "post meal", "postprandial":
		return AfterMeal, true
	default:
		return "", false
	}
}

// ParseTimestamp attempts to parse a timestamp string into time.Time
func ParseTimestamp(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)

	for _, format := range SupportedTimestampFormats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, ErrInvalidTimestamp
}

func intPtr(v int) *int { return &v }
