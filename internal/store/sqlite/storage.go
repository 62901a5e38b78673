package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	appLog "teamcal/internal/log"
	"teamcal/internal/model"
	"teamcal/internal/store"
)

const DriverName = "sqlite3"

// Storage is a store.Store backed by SQLite.
type Storage struct {
	db *sqlx.DB
}

var _ store.Store = (*Storage)(nil)

// Open opens (creating if needed) the database file at path. ":memory:"
// gives a private in-memory database.
func Open(path string) (*Storage, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
		dsn = "file:" + path
	}
	db, err := sql.Open(DriverName, dsn+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// One connection: an in-memory database is per connection, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	s, err := NewStorage(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStorage wraps an open database and runs migrations.
func NewStorage(db *sql.DB) (*Storage, error) {
	s := &Storage{
		db: sqlx.NewDb(db, DriverName),
	}
	if err := s.RunMigrations(); err != nil {
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) CreateEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	if ev.ID == "" {
		ev.ID = store.NewID()
	}
	if err := store.Validate(ev); err != nil {
		return model.Event{}, err
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO events (id, title, description, starts_at, ends_at, time_zone, all_day, recurrence)
			VALUES (:id, :title, :description, :starts_at, :ends_at, :time_zone, :all_day, :recurrence)
		`, newEvent(ev))
		if err != nil {
			return err
		}
		return writeChildren(ctx, tx, ev, originUser)
	})
	if err != nil {
		return model.Event{}, fmt.Errorf("create event: %w", err)
	}

	appLog.Debug("store: event created", "id", ev.ID, "recurrence", ev.Recurrence.String())
	return ev.Clone(), nil
}

func (s *Storage) GetEvent(ctx context.Context, id string) (model.Event, error) {
	var row Event
	err := s.db.GetContext(ctx, &row, `
		SELECT id, title, description, starts_at, ends_at, time_zone, all_day, recurrence
		FROM events
		WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if err != nil {
		return model.Event{}, err
	}

	events, err := s.hydrate(ctx, []Event{row})
	if err != nil {
		return model.Event{}, err
	}
	return events[0], nil
}

func (s *Storage) UpdateEvent(ctx context.Context, ev model.Event) error {
	if err := store.Validate(ev); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			UPDATE events SET
				title = :title,
				description = :description,
				starts_at = :starts_at,
				ends_at = :ends_at,
				time_zone = :time_zone,
				all_day = :all_day,
				recurrence = :recurrence
			WHERE id = :id
		`, newEvent(ev))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", model.ErrNotFound, ev.ID)
		}
		return replaceChildren(ctx, tx, ev, originUser)
	})
}

// UpsertEvent writes an imported event. Its exception dates replace those of
// the previous import; exceptions added through AddException are kept.
func (s *Storage) UpsertEvent(ctx context.Context, ev model.Event) error {
	if ev.ID == "" {
		return fmt.Errorf("%w: upsert needs an id", model.ErrInvalidID)
	}
	if err := store.Validate(ev); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO events (id, title, description, starts_at, ends_at, time_zone, all_day, recurrence)
			VALUES (:id, :title, :description, :starts_at, :ends_at, :time_zone, :all_day, :recurrence)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				starts_at = excluded.starts_at,
				ends_at = excluded.ends_at,
				time_zone = excluded.time_zone,
				all_day = excluded.all_day,
				recurrence = excluded.recurrence
		`, newEvent(ev))
		if err != nil {
			return err
		}
		return replaceChildren(ctx, tx, ev, originFeed)
	})
}

func (s *Storage) DeleteEvent(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM event_tags WHERE event_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM event_exceptions WHERE event_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", model.ErrNotFound, id)
		}
		return nil
	})
}

func (s *Storage) AddException(ctx context.Context, templateID string, date model.Date) error {
	var exists int
	err := s.db.GetContext(ctx, &exists, `SELECT COUNT(1) FROM events WHERE id = ?`, templateID)
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", model.ErrNotFound, templateID)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO event_exceptions (event_id, date, origin) VALUES (?, ?, ?)
		ON CONFLICT(event_id, date) DO UPDATE SET origin = excluded.origin
	`, templateID, date.String(), originUser)
	return err
}

func (s *Storage) ListEvents(ctx context.Context, window model.TimeWindow) ([]model.Event, error) {
	var rows []Event
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, title, description, starts_at, ends_at, time_zone, all_day, recurrence
		FROM events
		WHERE starts_at < ?
			AND (recurrence != '' OR ends_at > ?)
		ORDER BY starts_at, id
	`, formatTime(window.End), formatTime(window.Start))
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, rows)
}

// hydrate converts rows and attaches their tags and exception dates.
func (s *Storage) hydrate(ctx context.Context, rows []Event) ([]model.Event, error) {
	out := make([]model.Event, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	var tags []tagRow
	if err := s.selectIn(ctx, &tags, `SELECT event_id, tag_id FROM event_tags WHERE event_id IN (?) ORDER BY tag_id`, ids); err != nil {
		return nil, err
	}
	var exceptions []exceptionRow
	if err := s.selectIn(ctx, &exceptions, `SELECT event_id, date FROM event_exceptions WHERE event_id IN (?) ORDER BY date`, ids); err != nil {
		return nil, err
	}

	tagsByID := make(map[string][]string)
	for _, t := range tags {
		tagsByID[t.EventID] = append(tagsByID[t.EventID], t.TagID)
	}
	exByID := make(map[string][]model.Date)
	for _, ex := range exceptions {
		d, err := model.ParseDate(ex.Date)
		if err != nil {
			appLog.Error("store: skipping malformed exception date", err, "id", ex.EventID)
			continue
		}
		exByID[ex.EventID] = append(exByID[ex.EventID], d)
	}

	for _, r := range rows {
		ev, err := r.Convert()
		if err != nil {
			return nil, err
		}
		ev.TagIDs = tagsByID[r.ID]
		ev.ExceptionDates = exByID[r.ID]
		out = append(out, ev)
	}
	return out, nil
}

func (s *Storage) selectIn(ctx context.Context, dest any, query string, ids []string) error {
	q, args, err := sqlx.In(query, ids)
	if err != nil {
		return err
	}
	return s.db.SelectContext(ctx, dest, s.db.Rebind(q), args...)
}

func (s *Storage) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func writeChildren(ctx context.Context, tx *sqlx.Tx, ev model.Event, origin string) error {
	tags := append([]string(nil), ev.TagIDs...)
	sort.Strings(tags)
	for _, tag := range tags {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO event_tags (event_id, tag_id) VALUES (?, ?)
			ON CONFLICT(event_id, tag_id) DO NOTHING
		`, ev.ID, tag)
		if err != nil {
			return fmt.Errorf("tag %s: %w", tag, err)
		}
	}

	for _, d := range ev.ExceptionDates {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO event_exceptions (event_id, date, origin) VALUES (?, ?, ?)
			ON CONFLICT(event_id, date) DO NOTHING
		`, ev.ID, d.String(), origin)
		if err != nil {
			return fmt.Errorf("exception %s: %w", d, err)
		}
	}
	return nil
}

// replaceChildren rewrites tags and the exceptions of the given origin. A
// user update owns every exception; a feed import only its own.
func replaceChildren(ctx context.Context, tx *sqlx.Tx, ev model.Event, origin string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM event_tags WHERE event_id = ?`, ev.ID); err != nil {
		return err
	}
	query := `DELETE FROM event_exceptions WHERE event_id = ? AND origin = ?`
	args := []any{ev.ID, origin}
	if origin == originUser {
		query = `DELETE FROM event_exceptions WHERE event_id = ?`
		args = args[:1]
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return writeChildren(ctx, tx, ev, origin)
}
