package models

import (
	"time"
)

// DeviceEnvelope wraps a reading pushed by a paired device over the broker
type DeviceEnvelope struct {
	Reading  ReadingInput `json:"reading"`
	DeviceID string       `json:"device_id"`
	SentAt   time.Time    `json:"sent_at"`
}

// NewDeviceEnvelope creates a new envelope wrapping a reading
func NewDeviceEnvelope(reading ReadingInput, deviceID string) *DeviceEnvelope {
	return &DeviceEnvelope{
		Reading:  reading,
		DeviceID: deviceID,
		SentAt:   time.Now().UTC(),
	}
}

// PartitionKey keeps one user's readings in order on a single partition
func (e *DeviceEnvelope) PartitionKey() string {
	return e.Reading.UserID
}
