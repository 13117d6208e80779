package storage

import (
	"context"
	"errors"
	"time"

	"healthmate/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// Repository persists settings, readings and local notifications
type Repository interface {
	// Settings returns the user's settings, creating defaults on first access
	Settings(ctx context.Context, userID string) (*models.UserSettings, error)
	SaveSettings(ctx context.Context, s *models.UserSettings) error

	InsertMeasurement(ctx context.Context, m *models.Measurement) error
	GetMeasurement(ctx context.Context, id string) (*models.Measurement, error)
	// ListMeasurements returns the newest readings first; limit <= 0 means all
	ListMeasurements(ctx context.Context, userID string, limit int) ([]*models.Measurement, error)
	DeleteMeasurement(ctx context.Context, id string) error
	// PurgeBefore deletes readings taken before cutoff and returns how many were removed
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Enqueue stores a notification; a repeated ID is ignored
	Enqueue(ctx context.Context, n models.Notification) error
	ListNotifications(ctx context.Context, userID string) ([]models.Notification, error)

	Close() error
}
