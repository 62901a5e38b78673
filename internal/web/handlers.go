package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	appLog "teamcal/internal/log"
	"teamcal/internal/model"
	"teamcal/internal/nowline"
	"teamcal/internal/recurrence"
	"teamcal/internal/store"
)

// maxDraftBody bounds POST /api/events bodies.
const maxDraftBody = 64 << 10

// maxListWindow bounds GET /api/events ranges.
const maxListWindow = 366 * 24 * time.Hour

func (s *Server) location() *time.Location {
	if s.composer.Location == nil {
		return time.UTC
	}
	return s.composer.Location
}

func (s *Server) today() model.Date {
	now := time.Now()
	if s.composer.Clock != nil {
		now = s.composer.Clock.Now()
	}
	return model.DateOf(now.In(s.location()))
}

// dateParam reads an optional YYYY-MM-DD query parameter, defaulting to today.
func (s *Server) dateParam(r *http.Request, name string) (model.Date, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return s.today(), nil
	}
	return model.ParseDate(v)
}

func (s *Server) templates(r *http.Request, window model.TimeWindow) ([]model.Event, error) {
	return s.store.ListEvents(r.Context(), window)
}

func (s *Server) handleDayView(w http.ResponseWriter, r *http.Request) {
	day, err := s.dateParam(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	loc := s.location()
	templates, err := s.templates(r, model.DayWindow(day, loc))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDayViewDTO(s.composer.Day(templates, day), loc))
}

func (s *Server) handleWeekView(w http.ResponseWriter, r *http.Request) {
	day, err := s.dateParam(r, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	loc := s.location()
	templates, err := s.templates(r, model.WeekWindow(day, s.composer.WeekStart, loc))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWeekViewDTO(s.composer.Week(templates, day), loc))
}

func (s *Server) handleMonthView(w http.ResponseWriter, r *http.Request) {
	loc := s.location()
	year, month := s.today().Year, s.today().Month
	if v := r.URL.Query().Get("month"); v != "" {
		t, err := time.Parse("2006-01", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("month must be YYYY-MM: %q", v))
			return
		}
		year, month = t.Year(), t.Month()
	}

	// The grid spans at most six weeks from the week containing the 1st.
	gridStart := model.NewDate(year, month, 1).StartOfWeek(s.composer.WeekStart)
	templates, err := s.templates(r, model.DaysWindow(gridStart, 42, loc))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMonthViewDTO(s.composer.Month(templates, year, month), loc))
}

func (s *Server) handleNow(w http.ResponseWriter, _ *http.Request) {
	today := s.today()
	var ind nowline.Indicator
	if s.now != nil {
		ind = s.now.Latest()
	} else {
		now := time.Now()
		if s.composer.Clock != nil {
			now = s.composer.Clock.Now()
		}
		ind = nowline.Compute(now, today, s.location(), s.composer.Hours)
	}
	writeJSON(w, http.StatusOK, nowDTO{
		Date:            today.String(),
		Visible:         ind.Visible,
		PositionPercent: ind.PositionPercent,
	})
}

// handleSettings reports the grid and drag-to-create settings the
// /api/gestures sessions snap with.
func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	hours := s.composer.Hours.Normalize()
	writeJSON(w, http.StatusOK, settingsDTO{
		TimeZone:               s.location().String(),
		WeekStart:              strings.ToLower(s.composer.WeekStart.String()),
		DayStartHour:           hours.Start,
		DayEndHour:             hours.End,
		SnapMinutes:            s.cfg.SnapMinutes,
		DefaultDurationMinutes: s.cfg.DefaultDurationMinutes,
		MinDurationMinutes:     s.cfg.MinDurationMinutes,
		DragThresholdPx:        s.cfg.DragThresholdPx,
	})
}

// handleListEvents returns materialized occurrences.
//
// GET /api/events?from=&to=
//   - from, to: RFC3339 instants or YYYY-MM-DD dates in the display zone
//   - default: the current week
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	loc := s.location()
	window := model.WeekWindow(s.today(), s.composer.WeekStart, loc)

	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := parseInstant(v, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		window.Start = t
	}
	if v := q.Get("to"); v != "" {
		t, err := parseInstant(v, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		window.End = t
	}
	if !window.End.After(window.Start) {
		writeError(w, http.StatusBadRequest, "to must be after from")
		return
	}
	if window.End.Sub(window.Start) > maxListWindow {
		writeError(w, http.StatusBadRequest, "window longer than a year")
		return
	}

	templates, err := s.templates(r, window)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	occ := recurrence.MaterializeAll(templates, window)

	appLog.Debug("api events request",
		"from", window.Start.Format(time.RFC3339),
		"to", window.End.Format(time.RFC3339),
		"occurrences", len(occ),
	)
	writeJSON(w, http.StatusOK, eventsResponse{
		From:        window.Start,
		To:          window.End,
		TimeZone:    loc.String(),
		Occurrences: toEventDTOs(occ, loc),
	})
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDraftBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid draft: "+err.Error())
		return
	}

	if req.TimeZone == "" {
		req.TimeZone = s.location().String()
	}
	draft := model.Draft{
		Title:      req.Title,
		Start:      req.Start,
		End:        req.End,
		AllDay:     req.AllDay,
		TimeZone:   req.TimeZone,
		Recurrence: req.Recurrence,
		TagIDs:     req.TagIDs,
	}
	if draft.AllDay {
		if loc, err := time.LoadLocation(draft.TimeZone); err == nil {
			draft.Start = model.DateOf(draft.Start.In(loc)).In(loc)
			draft.End = model.DateOf(draft.End.In(loc)).In(loc)
			if !draft.End.After(draft.Start) {
				draft.End = model.DateOf(draft.Start).AddDays(1).In(loc)
			}
		}
	}

	ev, err := store.CreateFromDraft(r.Context(), s.store, draft)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	appLog.Info("api: event created", "id", ev.ID, "recurrence", ev.Recurrence.String())
	writeJSON(w, http.StatusCreated, toEventDTO(ev, s.location()))
}

// handleDeleteEvent deletes an event, or one occurrence of a recurring
// template when the id carries an occurrence date.
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	if err := store.DeleteOccurrence(r.Context(), s.store, id); err != nil {
		writeStoreError(w, err)
		return
	}
	appLog.Info("api: event deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func parseInstant(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := model.ParseDate(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD: %q", v)
	}
	return d.In(loc), nil
}
