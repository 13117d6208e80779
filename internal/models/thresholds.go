package models

import "fmt"

// BPThreshold bounds a normal blood pressure reading, inclusive
type BPThreshold struct {
	MinSystolic  int `json:"min_systolic" yaml:"min_systolic"`
	MaxSystolic  int `json:"max_systolic" yaml:"max_systolic"`
	MinDiastolic int `json:"min_diastolic" yaml:"min_diastolic"`
	MaxDiastolic int `json:"max_diastolic" yaml:"max_diastolic"`
}

// SugarThreshold bounds a normal blood sugar level, inclusive
type SugarThreshold struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// ThresholdRules is the per-user rule set
type ThresholdRules struct {
	BloodPressure BPThreshold    `json:"blood_pressure" yaml:"blood_pressure"`
	Fasting       SugarThreshold `json:"fasting" yaml:"fasting"`
	AfterMeal     SugarThreshold `json:"after_meal" yaml:"after_meal"`
}

// DefaultThresholdRules returns the ranges a new user starts with
func DefaultThresholdRules() ThresholdRules {
	return ThresholdRules{
		BloodPressure: BPThreshold{MinSystolic: 90, MaxSystolic: 120, MinDiastolic: 60, MaxDiastolic: 80},
		Fasting:       SugarThreshold{Min: 70, Max: 100},
		AfterMeal:     SugarThreshold{Min: 70, Max: 140},
	}
}

// SugarFor selects the sugar threshold for a reading context
func (r ThresholdRules) SugarFor(c ReadingContext) (SugarThreshold, bool) {
	switch c {
	case Fasting:
		return r.Fasting, true
	case AfterMeal:
		return r.AfterMeal, true
	default:
		return SugarThreshold{}, false
	}
}

// Validate checks that every range is well formed
func (r ThresholdRules) Validate() error {
	bp := r.BloodPressure
	if bp.MinSystolic > bp.MaxSystolic {
		return fmt.Errorf("systolic range inverted (%d > %d)", bp.MinSystolic, bp.MaxSystolic)
	}
	if bp.MinDiastolic > bp.MaxDiastolic {
		return fmt.Errorf("diastolic range inverted (%d > %d)", bp.MinDiastolic, bp.MaxDiastolic)
	}
	if r.Fasting.Min > r.Fasting.Max {
		return fmt.Errorf("fasting sugar range inverted (%d > %d)", r.Fasting.Min, r.Fasting.Max)
	}
	if r.AfterMeal.Min > r.AfterMeal.Max {
		return fmt.Errorf("after-meal sugar range inverted (%d > %d)", r.AfterMeal.Min, r.AfterMeal.Max)
	}
	return nil
}
