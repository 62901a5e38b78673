package view

import (
	"context"
	"sync"
	"time"

	"teamcal/internal/gesture"
	appLog "teamcal/internal/log"
	"teamcal/internal/model"
)

// DefaultTitle is given to drafts created by a bare click or drag.
const DefaultTitle = "New event"

// createTimeout bounds a single persistence call started from a gesture.
const createTimeout = 10 * time.Second

// CreateFunc persists a promoted draft.
type CreateFunc func(ctx context.Context, d model.Draft) (model.Event, error)

// Geometry is the pixel layout of the time grid the session is attached to.
type Geometry struct {
	Top    float64
	Height float64
}

// Session is one open calendar view with its own drag-to-create machine.
// Drafts are persisted in the background; PointerUp never waits for the
// store.
type Session struct {
	composer Composer
	geometry Geometry
	machine  *gesture.Machine
	create   CreateFunc

	onCreated func(model.Event)

	wg sync.WaitGroup
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithGestureOptions forwards options to the session's gesture machine.
func WithGestureOptions(opts ...gesture.Option) SessionOption {
	return func(s *Session) {
		s.machine = gesture.NewMachine(append(opts, gesture.WithOnCreate(s.commit))...)
	}
}

// WithOnCreated is called with every event the store accepted.
func WithOnCreated(fn func(model.Event)) SessionOption {
	return func(s *Session) {
		s.onCreated = fn
	}
}

func NewSession(c Composer, g Geometry, create CreateFunc, opts ...SessionOption) *Session {
	s := &Session{
		composer: c,
		geometry: g,
		create:   create,
	}
	s.machine = gesture.NewMachine(gesture.WithOnCreate(s.commit))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Grid returns the gesture grid of one day column.
func (s *Session) Grid(day model.Date) gesture.Grid {
	return gesture.Grid{
		Day:      day,
		Location: s.composer.location(),
		Hours:    s.composer.hours(),
		Top:      s.geometry.Top,
		Height:   s.geometry.Height,
	}
}

// PointerDown starts a gesture in column index of the view showing day.
func (s *Session) PointerDown(index int, day model.Date, p gesture.Pointer) bool {
	return s.machine.PointerDown(gesture.Cell{Grid: s.Grid(day), DayColumnIndex: &index}, p)
}

func (s *Session) PointerMove(p gesture.Pointer) (model.GhostEvent, bool) {
	return s.machine.PointerMove(p)
}

func (s *Session) PointerUp() (model.Draft, bool) {
	return s.machine.PointerUp()
}

func (s *Session) Escape() {
	s.machine.Escape()
}

func (s *Session) Ghost() (model.GhostEvent, bool) {
	return s.machine.Ghost()
}

func (s *Session) Phase() gesture.Phase {
	return s.machine.Phase()
}

// Close cancels any gesture and waits for drafts already handed to the
// store.
func (s *Session) Close() {
	s.machine.Close()
	s.wg.Wait()
}

func (s *Session) commit(d model.Draft) {
	if s.create == nil {
		return
	}
	if d.Title == "" {
		d.Title = DefaultTitle
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), createTimeout)
		defer cancel()

		ev, err := s.create(ctx, d)
		if err != nil {
			appLog.Error("view: failed to persist draft", err,
				"start", d.Start.Format(time.RFC3339),
				"end", d.End.Format(time.RFC3339),
			)
			return
		}
		appLog.Info("view: event created", "id", ev.ID, "start", ev.Start.Format(time.RFC3339))
		if s.onCreated != nil {
			s.onCreated(ev)
		}
	}()
}
