// Package store defines the record store the calendar persists events to.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"teamcal/internal/model"
)

// Store is the persistence collaborator. Recurring events are stored once as
// templates; single occurrences are addressed through exception dates.
type Store interface {
	CreateEvent(ctx context.Context, ev model.Event) (model.Event, error)
	GetEvent(ctx context.Context, id string) (model.Event, error)
	UpdateEvent(ctx context.Context, ev model.Event) error
	// UpsertEvent creates or replaces an event under its given id.
	UpsertEvent(ctx context.Context, ev model.Event) error
	DeleteEvent(ctx context.Context, id string) error
	// AddException excludes one date from a recurring template.
	AddException(ctx context.Context, templateID string, date model.Date) error
	// ListEvents returns every stored event that may produce an occurrence
	// inside window: recurring templates starting before its end and single
	// events intersecting it.
	ListEvents(ctx context.Context, window model.TimeWindow) ([]model.Event, error)
	Close() error
}

// NewID returns a fresh event id.
func NewID() string {
	return uuid.NewString()
}

// Validate checks the invariants every stored event must hold.
func Validate(ev model.Event) error {
	if !ev.End.After(ev.Start) {
		return fmt.Errorf("%w: %s..%s", model.ErrInvalidInterval,
			ev.Start.Format(time.RFC3339), ev.End.Format(time.RFC3339))
	}
	if ev.TimeZone != "" {
		if _, err := time.LoadLocation(ev.TimeZone); err != nil {
			return fmt.Errorf("%w: %q", model.ErrInvalidTimeZone, ev.TimeZone)
		}
	}
	if _, _, ok := model.SplitOccurrenceID(ev.ID); ok {
		return fmt.Errorf("%w: %q addresses an occurrence", model.ErrInvalidID, ev.ID)
	}
	return nil
}

// CreateFromDraft persists a committed ghost or API draft as a new event.
func CreateFromDraft(ctx context.Context, s Store, d model.Draft) (model.Event, error) {
	return s.CreateEvent(ctx, d.Event(""))
}

// DeleteOccurrence deletes a whole event, or a single occurrence of a
// recurring template when id is an occurrence id.
func DeleteOccurrence(ctx context.Context, s Store, id string) error {
	templateID, date, ok := model.SplitOccurrenceID(id)
	if !ok {
		return s.DeleteEvent(ctx, id)
	}
	tmpl, err := s.GetEvent(ctx, templateID)
	if err != nil {
		return err
	}
	if !tmpl.Recurrence.IsRecurring() {
		return fmt.Errorf("%w: %q is not recurring", model.ErrInvalidID, templateID)
	}
	return s.AddException(ctx, templateID, date)
}
