package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Kind identifies which vital a measurement carries
type Kind string

const (
	KindBloodPressure Kind = "blood_pressure"
	KindBloodSugar    Kind = "blood_sugar"
)

// Label returns the user-facing name of the measurement type
func (k Kind) Label() string {
	switch k {
	case KindBloodPressure:
		return "Blood Pressure"
	case KindBloodSugar:
		return "Blood Sugar"
	default:
		return string(k)
	}
}

// ReadingContext tells whether a sugar reading was taken fasting or after a meal
type ReadingContext string

const (
	Fasting   ReadingContext = "Fasting"
	AfterMeal ReadingContext = "After Meal"
)

// IsValid reports whether c is one of the known contexts
func (c ReadingContext) IsValid() bool {
	return c == Fasting || c == AfterMeal
}

// Validation errors
var (
	ErrInvalidMeasurement = errors.New("invalid measurement")
	ErrEmptyID            = fmt.Errorf("%w: id cannot be empty", ErrInvalidMeasurement)
	ErrEmptyUserID        = fmt.Errorf("%w: user id cannot be empty", ErrInvalidMeasurement)
	ErrZeroTakenAt        = fmt.Errorf("%w: reading time cannot be zero", ErrInvalidMeasurement)
	ErrMissingVital       = fmt.Errorf("%w: vital is required", ErrInvalidMeasurement)
	ErrMissingContext     = fmt.Errorf("%w: blood sugar reading context is required", ErrInvalidMeasurement)
	ErrNonPositiveValue   = fmt.Errorf("%w: values must be positive", ErrInvalidMeasurement)
)

// Vital is the closed set of measured values. Only this package implements it.
type Vital interface {
	Kind() Kind
	// Format renders the value with its unit, e.g. "150/95 mmHg"
	Format() string
	Validate() error
	isVital()
}

// BloodPressure is a systolic/diastolic pair in mmHg
type BloodPressure struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
}

func (BloodPressure) Kind() Kind { return KindBloodPressure }
func (BloodPressure) isVital()   {}

func (bp BloodPressure) Format() string {
	return strconv.Itoa(bp.Systolic) + "/" + strconv.Itoa(bp.Diastolic) + " mmHg"
}

func (bp BloodPressure) Validate() error {
	if bp.Systolic <= 0 || bp.Diastolic <= 0 {
		return ErrNonPositiveValue
	}
	return nil
}

// BloodSugar is a glucose level in mg/dL taken in a given context
type BloodSugar struct {
	Level   int            `json:"level"`
	Context ReadingContext `json:"context"`
}

func (BloodSugar) Kind() Kind { return KindBloodSugar }
func (BloodSugar) isVital()   {}

func (bs BloodSugar) Format() string {
	return fmt.Sprintf("%d mg/dL (%s)", bs.Level, bs.Context)
}

func (bs BloodSugar) Validate() error {
	if !bs.Context.IsValid() {
		return ErrMissingContext
	}
	if bs.Level <= 0 {
		return ErrNonPositiveValue
	}
	return nil
}

// Measurement is one logged reading owned by a user
type Measurement struct {
	ID      string
	UserID  string
	TakenAt time.Time
	Vital   Vital
}

// NewMeasurement builds a validated measurement
func NewMeasurement(id, userID string, takenAt time.Time, vital Vital) (*Measurement, error) {
	m := &Measurement{
		ID:      id,
		UserID:  userID,
		TakenAt: takenAt,
		Vital:   vital,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks that every field required by the vital variant is present
func (m *Measurement) Validate() error {
	if m.ID == "" {
		return ErrEmptyID
	}
	if m.UserID == "" {
		return ErrEmptyUserID
	}
	if m.TakenAt.IsZero() {
		return ErrZeroTakenAt
	}
	if m.Vital == nil {
		return ErrMissingVital
	}
	return m.Vital.Validate()
}

// Kind returns the kind of the carried vital
func (m *Measurement) Kind() Kind {
	return m.Vital.Kind()
}

// Date returns the calendar date of the reading, e.g. "Mar 5, 2024"
func (m *Measurement) Date() string {
	return m.TakenAt.Format("Jan 2, 2006")
}

// TimeOfDay returns the clock time of the reading, e.g. "8:30 AM"
func (m *Measurement) TimeOfDay() string {
	return m.TakenAt.Format("3:04 PM")
}
