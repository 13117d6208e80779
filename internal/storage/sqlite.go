package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"healthmate/internal/models"
)

// SQLite implements Repository on the on-device SQLite database
type SQLite struct {
	db *sql.DB
}

var _ Repository = (*SQLite)(nil)

// NewSQLite opens (or creates) the database at path and applies the schema
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Settings returns the user's settings, inserting defaults the first time a user is seen
func (s *SQLite) Settings(ctx context.Context, userID string) (*models.UserSettings, error) {
	if userID == "" {
		return nil, models.ErrSettingsNoUser
	}

	settings, err := s.loadSettings(ctx, userID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	def := models.DefaultSettings(userID)
	thresholds, err := json.Marshal(def.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("failed to encode thresholds: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, display_name, thresholds, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, def.DisplayName, string(thresholds), def.UpdatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to create default settings: %w", err)
	}

	// re-read in case a concurrent caller created the row first
	return s.loadSettings(ctx, userID)
}

func (s *SQLite) loadSettings(ctx context.Context, userID string) (*models.UserSettings, error) {
	var (
		settings   = &models.UserSettings{UserID: userID, Contacts: []models.EmergencyContact{}}
		thresholds string
		updatedAt  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT display_name, thresholds, updated_at FROM user_settings WHERE user_id = ?
	`, userID).Scan(&settings.DisplayName, &thresholds, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}

	if err := json.Unmarshal([]byte(thresholds), &settings.Thresholds); err != nil {
		return nil, fmt.Errorf("failed to decode thresholds for %s: %w", userID, err)
	}
	settings.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, email FROM emergency_contacts WHERE user_id = ? ORDER BY position
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.EmergencyContact
		if err := rows.Scan(&c.Name, &c.Email); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		settings.Contacts = append(settings.Contacts, c)
	}
	return settings, rows.Err()
}

// SaveSettings replaces the user's settings and contact list
func (s *SQLite) SaveSettings(ctx context.Context, settings *models.UserSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	thresholds, err := json.Marshal(settings.Thresholds)
	if err != nil {
		return fmt.Errorf("failed to encode thresholds: %w", err)
	}
	settings.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, display_name, thresholds, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			thresholds   = excluded.thresholds,
			updated_at   = excluded.updated_at
	`, settings.UserID, settings.DisplayName, string(thresholds), settings.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM emergency_contacts WHERE user_id = ?`, settings.UserID); err != nil {
		return fmt.Errorf("failed to clear contacts: %w", err)
	}
	for i, c := range settings.Contacts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO emergency_contacts (user_id, position, name, email) VALUES (?, ?, ?, ?)
		`, settings.UserID, i, c.Name, c.Email)
		if err != nil {
			return fmt.Errorf("failed to insert contact: %w", err)
		}
	}

	return tx.Commit()
}

// InsertMeasurement stores a validated reading. A reused ID returns ErrDuplicate.
func (s *SQLite) InsertMeasurement(ctx context.Context, m *models.Measurement) error {
	if err := m.Validate(); err != nil {
		return err
	}

	var systolic, diastolic, level sql.NullInt64
	var readingCtx sql.NullString
	switch v := m.Vital.(type) {
	case models.BloodPressure:
		systolic = sql.NullInt64{Int64: int64(v.Systolic), Valid: true}
		diastolic = sql.NullInt64{Int64: int64(v.Diastolic), Valid: true}
	case models.BloodSugar:
		level = sql.NullInt64{Int64: int64(v.Level), Valid: true}
		readingCtx = sql.NullString{String: string(v.Context), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO measurements (id, user_id, kind, taken_at, systolic, diastolic, level, context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, m.ID, m.UserID, string(m.Kind()), m.TakenAt.UnixMilli(), systolic, diastolic, level, readingCtx)
	if err != nil {
		return fmt.Errorf("failed to insert measurement: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("measurement %s: %w", m.ID, ErrDuplicate)
	}
	return nil
}

const measurementColumns = `id, user_id, kind, taken_at, systolic, diastolic, level, context`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeasurement(row rowScanner) (*models.Measurement, error) {
	var (
		id, userID, kind    string
		takenAt             int64
		systolic, diastolic sql.NullInt64
		level               sql.NullInt64
		readingCtx          sql.NullString
	)
	if err := row.Scan(&id, &userID, &kind, &takenAt, &systolic, &diastolic, &level, &readingCtx); err != nil {
		return nil, err
	}

	var vital models.Vital
	switch models.Kind(kind) {
	case models.KindBloodPressure:
		vital = models.BloodPressure{Systolic: int(systolic.Int64), Diastolic: int(diastolic.Int64)}
	case models.KindBloodSugar:
		vital = models.BloodSugar{Level: int(level.Int64), Context: models.ReadingContext(readingCtx.String)}
	default:
		return nil, fmt.Errorf("measurement %s has unknown kind %q", id, kind)
	}

	return &models.Measurement{
		ID:      id,
		UserID:  userID,
		TakenAt: time.UnixMilli(takenAt).UTC(),
		Vital:   vital,
	}, nil
}

// GetMeasurement returns one reading by ID
func (s *SQLite) GetMeasurement(ctx context.Context, id string) (*models.Measurement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+measurementColumns+` FROM measurements WHERE id = ?`, id)
	m, err := scanMeasurement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("measurement %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get measurement: %w", err)
	}
	return m, nil
}

// ListMeasurements returns the user's readings, newest first
func (s *SQLite) ListMeasurements(ctx context.Context, userID string, limit int) ([]*models.Measurement, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+measurementColumns+` FROM measurements
		WHERE user_id = ?
		ORDER BY taken_at DESC, id
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}
	defer rows.Close()

	var out []*models.Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMeasurement removes one reading
func (s *SQLite) DeleteMeasurement(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM measurements WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete measurement: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("measurement %s: %w", id, ErrNotFound)
	}
	return nil
}

// PurgeBefore deletes readings taken before cutoff
func (s *SQLite) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM measurements WHERE taken_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge measurements: %w", err)
	}
	return res.RowsAffected()
}

// Enqueue stores a local notification. The ID is the duplicate-safe key, so a
// second enqueue with the same ID leaves the first row untouched.
func (s *SQLite) Enqueue(ctx context.Context, n models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, body, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, n.ID, n.UserID, n.Title, n.Body, n.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

// ListNotifications returns the user's notifications, oldest first
func (s *SQLite) ListNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, body, created_at FROM notifications
		WHERE user_id = ? ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		var createdAt int64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountBefore returns how many readings PurgeBefore would remove
func (s *SQLite) CountBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements WHERE taken_at < ?`, cutoff.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count measurements: %w", err)
	}
	return n, nil
}

// Ping checks that the database is reachable
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
