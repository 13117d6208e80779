package config

import (
	"fmt"
	"time"
)

// RetentionDays is the fixed window for logged readings.
// Readings taken before now-RetentionDays are purged by the sweeper.
const RetentionDays = 30

// RetentionConfig controls when the sweeper runs
type RetentionConfig struct {
	// IntervalHours is how often the sweeper runs.
	// Default: 24, Range: 1-168 (1 week)
	IntervalHours int

	// Enabled controls whether the background sweeper runs
	Enabled bool
}

// DefaultRetentionConfig returns the default 30-day window swept daily
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		IntervalHours: 24,
		Enabled:       true,
	}
}

// Validate checks if the retention values are in range
func (c RetentionConfig) Validate() error {
	if c.IntervalHours < 1 || c.IntervalHours > 168 {
		return fmt.Errorf("retention_interval_hours must be between 1 and 168 (got %d)", c.IntervalHours)
	}
	return nil
}

// Cutoff returns the instant before which readings are expired
func (c RetentionConfig) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -RetentionDays)
}

// Interval returns the sweep interval as a duration
func (c RetentionConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}
