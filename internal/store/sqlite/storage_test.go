package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamcal/internal/model"
	"teamcal/internal/store"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestStorage_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	berlin := mustZone(t, "Europe/Berlin")

	created, err := s.CreateEvent(ctx, model.Event{
		Title:          "Planning",
		Description:    "Quarterly",
		Start:          time.Date(2024, 3, 4, 10, 0, 0, 0, berlin),
		End:            time.Date(2024, 3, 4, 11, 30, 0, 0, berlin),
		TimeZone:       "Europe/Berlin",
		Recurrence:     model.RecurrenceWeekly,
		ExceptionDates: []model.Date{model.NewDate(2024, 3, 11)},
		TagIDs:         []string{"team", "eng"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := s.GetEvent(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, "Planning", got.Title)
	assert.Equal(t, "Quarterly", got.Description)
	assert.True(t, got.Start.Equal(created.Start))
	assert.True(t, got.End.Equal(created.End))
	assert.Equal(t, "Europe/Berlin", got.Start.Location().String())
	assert.Equal(t, model.RecurrenceWeekly, got.Recurrence)
	assert.Equal(t, []string{"eng", "team"}, got.TagIDs)
	assert.True(t, got.IsException(model.NewDate(2024, 3, 11)))
	assert.False(t, got.IsException(model.NewDate(2024, 3, 18)))
}

func TestStorage_GetMissing(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.GetEvent(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStorage_CreateRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	t.Run("end before start", func(t *testing.T) {
		_, err := s.CreateEvent(ctx, model.Event{Start: start, End: start.Add(-time.Hour)})
		assert.ErrorIs(t, err, model.ErrInvalidInterval)
	})
	t.Run("unknown zone", func(t *testing.T) {
		_, err := s.CreateEvent(ctx, model.Event{Start: start, End: start.Add(time.Hour), TimeZone: "Nowhere/Land"})
		assert.ErrorIs(t, err, model.ErrInvalidTimeZone)
	})
	t.Run("occurrence id", func(t *testing.T) {
		_, err := s.CreateEvent(ctx, model.Event{ID: "x@2024-03-04", Start: start, End: start.Add(time.Hour)})
		assert.ErrorIs(t, err, model.ErrInvalidID)
	})
}

func TestStorage_UpdateAndUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	ev, err := s.CreateEvent(ctx, model.Event{Title: "a", Start: start, End: start.Add(time.Hour), TagIDs: []string{"x"}})
	require.NoError(t, err)

	ev.Title = "b"
	ev.TagIDs = []string{"y"}
	require.NoError(t, s.UpdateEvent(ctx, ev))

	got, err := s.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Title)
	assert.Equal(t, []string{"y"}, got.TagIDs)

	missing := ev
	missing.ID = "missing"
	assert.ErrorIs(t, s.UpdateEvent(ctx, missing), model.ErrNotFound)

	upsert := model.Event{ID: "feed/uid-1", Title: "first", Start: start, End: start.Add(time.Hour)}
	require.NoError(t, s.UpsertEvent(ctx, upsert))
	upsert.Title = "second"
	require.NoError(t, s.UpsertEvent(ctx, upsert))

	got, err = s.GetEvent(ctx, "feed/uid-1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Title)

	assert.ErrorIs(t, s.UpsertEvent(ctx, model.Event{Start: start, End: start.Add(time.Hour)}), model.ErrInvalidID)
}

func TestStorage_ListEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	mk := func(id string, from, to time.Duration, rec model.Recurrence) {
		t.Helper()
		require.NoError(t, s.UpsertEvent(ctx, model.Event{
			ID: id, Title: id, Start: day.Add(from), End: day.Add(to), Recurrence: rec,
		}))
	}
	mk("inside", 9*time.Hour, 10*time.Hour, model.RecurrenceNone)
	mk("overnight-before", -2*time.Hour, time.Hour, model.RecurrenceNone)
	mk("ends-at-window-start", -2*time.Hour, 0, model.RecurrenceNone)
	mk("next-day", 24*time.Hour, 25*time.Hour, model.RecurrenceNone)
	mk("old-series", -30*24*time.Hour, -30*24*time.Hour+time.Hour, model.RecurrenceDaily)
	mk("future-series", 48*time.Hour, 49*time.Hour, model.RecurrenceDaily)

	events, err := s.ListEvents(ctx, model.TimeWindow{Start: day, End: day.Add(24 * time.Hour)})
	require.NoError(t, err)

	var ids []string
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{"old-series", "overnight-before", "inside"}, ids)
}

func TestStorage_DeleteAndExceptions(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	series, err := s.CreateEvent(ctx, model.Event{Title: "standup", Start: start, End: start.Add(15 * time.Minute), Recurrence: model.RecurrenceDaily})
	require.NoError(t, err)
	single, err := s.CreateEvent(ctx, model.Event{Title: "one-off", Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)

	t.Run("occurrence adds exception", func(t *testing.T) {
		occ := model.OccurrenceID(series.ID, model.NewDate(2024, 3, 6))
		require.NoError(t, store.DeleteOccurrence(ctx, s, occ))
		// idempotent
		require.NoError(t, store.DeleteOccurrence(ctx, s, occ))

		got, err := s.GetEvent(ctx, series.ID)
		require.NoError(t, err)
		assert.Len(t, got.ExceptionDates, 1)
		assert.True(t, got.IsException(model.NewDate(2024, 3, 6)))
	})

	t.Run("occurrence of single event", func(t *testing.T) {
		occ := model.OccurrenceID(single.ID, model.NewDate(2024, 3, 4))
		assert.ErrorIs(t, store.DeleteOccurrence(ctx, s, occ), model.ErrInvalidID)
	})

	t.Run("exception on missing template", func(t *testing.T) {
		assert.ErrorIs(t, s.AddException(ctx, "ghost", model.NewDate(2024, 3, 6)), model.ErrNotFound)
	})

	t.Run("whole event", func(t *testing.T) {
		require.NoError(t, store.DeleteOccurrence(ctx, s, series.ID))
		_, err := s.GetEvent(ctx, series.ID)
		assert.ErrorIs(t, err, model.ErrNotFound)
		assert.ErrorIs(t, s.DeleteEvent(ctx, series.ID), model.ErrNotFound)
	})
}

func TestStorage_ReimportKeepsUserExceptions(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	ny := mustZone(t, "America/New_York")
	start := time.Date(2025, 1, 6, 9, 0, 0, 0, ny)

	imported := model.Event{
		ID:             "feed/uid-1",
		Title:          "Sync",
		Start:          start,
		End:            start.Add(30 * time.Minute),
		TimeZone:       "America/New_York",
		Recurrence:     model.RecurrenceDaily,
		ExceptionDates: []model.Date{model.NewDate(2025, 1, 10)},
	}
	require.NoError(t, s.UpsertEvent(ctx, imported))
	require.NoError(t, store.DeleteOccurrence(ctx, s, "feed/uid-1@2025-01-07"))

	t.Run("same feed again", func(t *testing.T) {
		require.NoError(t, s.UpsertEvent(ctx, imported))

		got, err := s.GetEvent(ctx, imported.ID)
		require.NoError(t, err)
		assert.Equal(t, []model.Date{model.NewDate(2025, 1, 7), model.NewDate(2025, 1, 10)}, got.ExceptionDates)
	})

	t.Run("feed drops its exdate", func(t *testing.T) {
		changed := imported
		changed.ExceptionDates = nil
		require.NoError(t, s.UpsertEvent(ctx, changed))

		got, err := s.GetEvent(ctx, imported.ID)
		require.NoError(t, err)
		assert.Equal(t, []model.Date{model.NewDate(2025, 1, 7)}, got.ExceptionDates)
	})

	t.Run("user update owns all exceptions", func(t *testing.T) {
		changed := imported
		changed.ExceptionDates = []model.Date{model.NewDate(2025, 1, 8)}
		require.NoError(t, s.UpdateEvent(ctx, changed))

		got, err := s.GetEvent(ctx, imported.ID)
		require.NoError(t, err)
		assert.Equal(t, []model.Date{model.NewDate(2025, 1, 8)}, got.ExceptionDates)
	})
}

func TestStorage_CreateFromDraft(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	ev, err := store.CreateFromDraft(ctx, s, model.Draft{Title: "New event", Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)

	got, err := s.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "New event", got.Title)
}

func TestOpen_FilePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "cal.db")
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.UpsertEvent(ctx, model.Event{ID: "keep", Start: start, End: start.Add(time.Hour)}))
	require.NoError(t, s.Close())

	// Reopening must not re-run applied migrations.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.GetEvent(ctx, "keep")
	assert.NoError(t, err)

	var version int
	require.NoError(t, s.db.Get(&version, `PRAGMA user_version`))
	assert.Equal(t, len(migrations), version)
}
