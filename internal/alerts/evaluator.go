package alerts

import (
	"fmt"
	"strings"

	"healthmate/internal/models"
)

// Bound names one side of a threshold range
type Bound string

const (
	SystolicLow   Bound = "systolic_low"
	SystolicHigh  Bound = "systolic_high"
	DiastolicLow  Bound = "diastolic_low"
	DiastolicHigh Bound = "diastolic_high"
	SugarLow      Bound = "sugar_low"
	SugarHigh     Bound = "sugar_high"
)

// Violation records one failed bound
type Violation struct {
	Bound  Bound `json:"bound"`
	Actual int   `json:"actual"`
	Limit  int   `json:"limit"`
}

func (v Violation) String() string {
	name, dir := "", "above"
	switch v.Bound {
	case SystolicLow, SystolicHigh:
		name = "systolic"
	case DiastolicLow, DiastolicHigh:
		name = "diastolic"
	default:
		name = "blood sugar"
	}
	if v.Bound == SystolicLow || v.Bound == DiastolicLow || v.Bound == SugarLow {
		dir = "below"
	}
	return fmt.Sprintf("%s %d %s %d", name, v.Actual, dir, v.Limit)
}

// Verdict is the result of comparing a measurement to its threshold rule
type Verdict struct {
	Kind           models.Kind `json:"kind"`
	OutOfRange     bool        `json:"out_of_range"`
	FormattedValue string      `json:"formatted_value"`
	Violations     []Violation `json:"violations,omitempty"`
}

// Label returns "in_range" or "out_of_range"
func (v Verdict) Label() string {
	if v.OutOfRange {
		return "out_of_range"
	}
	return "in_range"
}

// Describe renders the verdict for people
func (v Verdict) Describe() string {
	if !v.OutOfRange {
		return v.FormattedValue + " is within range"
	}
	parts := make([]string, len(v.Violations))
	for i, viol := range v.Violations {
		parts[i] = viol.String()
	}
	return v.FormattedValue + " is out of range: " + strings.Join(parts, "; ")
}

// Evaluate compares m against rules. It is pure and safe for concurrent use.
// Every bound is checked so the verdict lists all violations, not just the first.
// A measurement that does not satisfy its variant contract is an error, never a silent in-range.
func Evaluate(m *models.Measurement, rules models.ThresholdRules) (Verdict, error) {
	if m == nil || m.Vital == nil {
		return Verdict{}, models.ErrMissingVital
	}

	switch v := m.Vital.(type) {
	case models.BloodPressure:
		return evaluateBloodPressure(v, rules.BloodPressure), nil
	case models.BloodSugar:
		th, ok := rules.SugarFor(v.Context)
		if !ok {
			return Verdict{}, models.ErrMissingContext
		}
		return evaluateSugar(v, th), nil
	default:
		return Verdict{}, fmt.Errorf("%w: unsupported vital %T", models.ErrInvalidMeasurement, m.Vital)
	}
}

func evaluateBloodPressure(bp models.BloodPressure, th models.BPThreshold) Verdict {
	var out []Violation
	if bp.Systolic < th.MinSystolic {
		out = append(out, Violation{Bound: SystolicLow, Actual: bp.Systolic, Limit: th.MinSystolic})
	}
	if bp.Systolic > th.MaxSystolic {
		out = append(out, Violation{Bound: SystolicHigh, Actual: bp.Systolic, Limit: th.MaxSystolic})
	}
	if bp.Diastolic < th.MinDiastolic {
		out = append(out, Violation{Bound: DiastolicLow, Actual: bp.Diastolic, Limit: th.MinDiastolic})
	}
	if bp.Diastolic > th.MaxDiastolic {
		out = append(out, Violation{Bound: DiastolicHigh, Actual: bp.Diastolic, Limit: th.MaxDiastolic})
	}
	return Verdict{
		Kind:           models.KindBloodPressure,
		OutOfRange:     len(out) > 0,
		FormattedValue: bp.Format(),
		Violations:     out,
	}
}

func evaluateSugar(bs models.BloodSugar, th models.SugarThreshold) Verdict {
	var out []Violation
	if bs.Level < th.Min {
		out = append(out, Violation{Bound: SugarLow, Actual: bs.Level, Limit: th.Min})
	}
	if bs.Level > th.Max {
		out = append(out, Violation{Bound: SugarHigh, Actual: bs.Level, Limit: th.Max})
	}
	return Verdict{
		Kind:           models.KindBloodSugar,
		OutOfRange:     len(out) > 0,
		FormattedValue: bs.Format(),
		Violations:     out,
	}
}
