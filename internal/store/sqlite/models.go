package sqlite

import (
	"fmt"
	"time"

	"teamcal/internal/model"
)

// timeLayout is fixed-width so stored instants sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Event struct {
	ID          string `db:"id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	StartsAt    string `db:"starts_at"`
	EndsAt      string `db:"ends_at"`
	TimeZone    string `db:"time_zone"`
	AllDay      bool   `db:"all_day"`
	Recurrence  string `db:"recurrence"`
}

type tagRow struct {
	EventID string `db:"event_id"`
	TagID   string `db:"tag_id"`
}

type exceptionRow struct {
	EventID string `db:"event_id"`
	Date    string `db:"date"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func newEvent(ev model.Event) Event {
	return Event{
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		StartsAt:    formatTime(ev.Start),
		EndsAt:      formatTime(ev.End),
		TimeZone:    ev.TimeZone,
		AllDay:      ev.AllDay,
		Recurrence:  ev.Recurrence.String(),
	}
}

// Convert turns a row into a model event; instants come back in the event's
// declared zone.
func (e Event) Convert() (model.Event, error) {
	start, err := time.Parse(timeLayout, e.StartsAt)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %s: starts_at: %w", e.ID, err)
	}
	end, err := time.Parse(timeLayout, e.EndsAt)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %s: ends_at: %w", e.ID, err)
	}
	rec, err := model.ParseRecurrence(e.Recurrence)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %s: %w", e.ID, err)
	}

	ev := model.Event{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Start:       start,
		End:         end,
		TimeZone:    e.TimeZone,
		AllDay:      e.AllDay,
		Recurrence:  rec,
	}
	loc := ev.Location()
	ev.Start = start.In(loc)
	ev.End = end.In(loc)
	return ev, nil
}
