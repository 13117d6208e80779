package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthmate/internal/models"
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "healthmate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSettingsCreatedLazily(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	s, err := db.Settings(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultThresholdRules(), s.Thresholds)
	assert.Empty(t, s.Contacts)
	assert.NotNil(t, s.Contacts)

	_, err = db.Settings(ctx, "")
	assert.ErrorIs(t, err, models.ErrSettingsNoUser)
}

func TestSettingsConcurrentFirstAccess(t *testing.T) {
	db := newTestDB(t)
	var wg sync.WaitGroup
	errs := make(chan error, 8)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.Settings(context.Background(), "u-1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestSaveSettingsKeepsContactOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	s := models.DefaultSettings("u-1")
	s.DisplayName = "Ayesha"
	s.Thresholds.Fasting = models.SugarThreshold{Min: 80, Max: 110}
	s.Contacts = []models.EmergencyContact{
		{Name: "Zed", Email: "zed@example.com"},
		{Name: "Amy", Email: "amy@example.com"},
	}
	require.NoError(t, db.SaveSettings(ctx, s))

	got, err := db.Settings(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Ayesha", got.DisplayName)
	assert.Equal(t, models.SugarThreshold{Min: 80, Max: 110}, got.Thresholds.Fasting)
	assert.Equal(t, []string{"zed@example.com", "amy@example.com"}, got.Recipients())

	// clearing contacts is a valid state
	got.Contacts = nil
	require.NoError(t, db.SaveSettings(ctx, got))
	again, err := db.Settings(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, again.HasContacts())
}

func TestSaveSettingsValidates(t *testing.T) {
	db := newTestDB(t)
	s := models.DefaultSettings("u-1")
	s.Thresholds.AfterMeal = models.SugarThreshold{Min: 200, Max: 100}
	assert.Error(t, db.SaveSettings(context.Background(), s))
}

func TestMeasurementCRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 5, 8, 30, 0, 0, time.UTC)

	bp, err := models.NewMeasurement("m-1", "u-1", base, models.BloodPressure{Systolic: 150, Diastolic: 95})
	require.NoError(t, err)
	sugar, err := models.NewMeasurement("m-2", "u-1", base.Add(time.Hour), models.BloodSugar{Level: 65, Context: models.Fasting})
	require.NoError(t, err)

	require.NoError(t, db.InsertMeasurement(ctx, bp))
	require.NoError(t, db.InsertMeasurement(ctx, sugar))
	assert.ErrorIs(t, db.InsertMeasurement(ctx, bp), ErrDuplicate)

	got, err := db.GetMeasurement(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, sugar.Vital, got.Vital)
	assert.True(t, sugar.TakenAt.Equal(got.TakenAt))

	list, err := db.ListMeasurements(ctx, "u-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "m-2", list[0].ID, "newest first")

	limited, err := db.ListMeasurements(ctx, "u-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, db.DeleteMeasurement(ctx, "m-1"))
	_, err = db.GetMeasurement(ctx, "m-1")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.ErrorIs(t, db.DeleteMeasurement(ctx, "m-1"), ErrNotFound)
}

func TestInsertRejectsInvalidMeasurement(t *testing.T) {
	db := newTestDB(t)
	m := &models.Measurement{ID: "m-1", UserID: "u-1", TakenAt: time.Now(), Vital: models.BloodSugar{Level: 90}}
	assert.ErrorIs(t, db.InsertMeasurement(context.Background(), m), models.ErrMissingContext)
}

func TestPurgeBefore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	for i, age := range []int{40, 31, 29, 1} {
		m, err := models.NewMeasurement(
			string(rune('a'+i)), "u-1", now.AddDate(0, 0, -age),
			models.BloodPressure{Systolic: 110, Diastolic: 70},
		)
		require.NoError(t, err)
		require.NoError(t, db.InsertMeasurement(ctx, m))
	}

	n, err := db.PurgeBefore(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := db.ListMeasurements(ctx, "u-1", 0)
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestEnqueueIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	n := models.Notification{ID: "vital-1", UserID: "u-1", Title: "first", Body: "b"}
	require.NoError(t, db.Enqueue(ctx, n))
	n.Title = "second"
	require.NoError(t, db.Enqueue(ctx, n))

	got, err := db.ListNotifications(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Title)
}
