package model

import (
	"strings"
	"time"
)

// MinEventDuration is what layout assumes for an event whose end does not
// come after its start (stale or half-updated data during a re-render).
const MinEventDuration = time.Minute

// occurrenceSep separates the template id from the occurrence date.
const occurrenceSep = "@"

// Event is the unit the engine lays out. A recurring Event is a template;
// materialized occurrences are plain Events with derived ids.
type Event struct {
	ID          string
	Title       string
	Description string

	// Start / End are absolute instants; End is exclusive.
	Start time.Time
	End   time.Time

	// TimeZone is the IANA zone the event was declared in. Recurrence is
	// evaluated there.
	TimeZone string

	// AllDay events only carry dates; hour/minute are ignored.
	AllDay bool

	Recurrence Recurrence
	// ExceptionDates are calendar days, in the event's zone, on which a
	// recurring event has no occurrence.
	ExceptionDates []Date

	TagIDs []string
}

// Location resolves TimeZone, falling back to Start's location when the name
// is empty or unknown.
func (e Event) Location() *time.Location {
	if e.TimeZone != "" {
		if loc, err := time.LoadLocation(e.TimeZone); err == nil {
			return loc
		}
	}
	if loc := e.Start.Location(); loc != nil {
		return loc
	}
	return time.UTC
}

// EffectiveEnd is End, or Start+MinEventDuration when End <= Start.
func (e Event) EffectiveEnd() time.Time {
	if !e.End.After(e.Start) {
		return e.Start.Add(MinEventDuration)
	}
	return e.End
}

func (e Event) Duration() time.Duration {
	return e.EffectiveEnd().Sub(e.Start)
}

// Span returns the first and last calendar day the event occupies. Timed
// events are dated in loc; all-day events in their own zone. End is
// exclusive, so an event ending at midnight does not touch the next day.
func (e Event) Span(loc *time.Location) (first, last Date) {
	if e.AllDay {
		loc = e.Location()
	}
	start := e.Start.In(loc)
	end := e.EffectiveEnd().In(loc)
	first = DateOf(start)
	last = DateOf(end.Add(-time.Nanosecond))
	if last.Before(first) {
		last = first
	}
	return first, last
}

// IsMultiDay reports whether the event's first and last day differ in loc.
func (e Event) IsMultiDay(loc *time.Location) bool {
	first, last := e.Span(loc)
	return first != last
}

// IsRecurringInstance reports whether the id addresses one occurrence of a
// recurring template.
func (e Event) IsRecurringInstance() bool {
	_, _, ok := SplitOccurrenceID(e.ID)
	return ok
}

// IsException reports whether d is one of the template's exception dates.
func (e Event) IsException(d Date) bool {
	for _, ex := range e.ExceptionDates {
		if ex == d {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share slices with stored events.
func (e Event) Clone() Event {
	out := e
	if e.ExceptionDates != nil {
		out.ExceptionDates = append([]Date(nil), e.ExceptionDates...)
	}
	if e.TagIDs != nil {
		out.TagIDs = append([]string(nil), e.TagIDs...)
	}
	return out
}

// OccurrenceID derives the id of a single occurrence of a template.
func OccurrenceID(templateID string, d Date) string {
	return templateID + occurrenceSep + d.String()
}

// SplitOccurrenceID is the inverse of OccurrenceID.
func SplitOccurrenceID(id string) (templateID string, d Date, ok bool) {
	i := strings.LastIndex(id, occurrenceSep)
	if i <= 0 || i == len(id)-1 {
		return "", Date{}, false
	}
	d, err := ParseDate(id[i+1:])
	if err != nil {
		return "", Date{}, false
	}
	return id[:i], d, true
}

// HourRange is the band of hours a time grid shows, [Start, End).
type HourRange struct {
	Start int
	End   int
}

// DefaultHours covers the whole day.
var DefaultHours = HourRange{Start: 0, End: 24}

// Valid reports whether 0 <= Start < End <= 24.
func (h HourRange) Valid() bool {
	return h.Start >= 0 && h.End <= 24 && h.Start < h.End
}

// Normalize returns h if valid, else DefaultHours.
func (h HourRange) Normalize() HourRange {
	if !h.Valid() {
		return DefaultHours
	}
	return h
}

// Bounds returns the visible instants of day d in loc. Built from wall-clock
// hours so DST days keep their labels.
func (h HourRange) Bounds(d Date, loc *time.Location) (time.Time, time.Time) {
	h = h.Normalize()
	return d.At(h.Start, 0, loc), d.At(h.End, 0, loc)
}

// PositionedEvent is layout output for one timed event in one day column.
// Top/Height are fractions of the visible hours, Left/Width fractions of
// the day column.
type PositionedEvent struct {
	Event       Event
	Column      int
	ColumnCount int
	Top         float64
	Height      float64
	Left        float64
	Width       float64
	ZIndex      int
}

// GhostEvent is the provisional event of an in-progress drag-to-create.
type GhostEvent struct {
	StartTime      time.Time
	EndTime        time.Time
	DayColumnIndex *int
}

// Draft is a create request handed to persistence.
type Draft struct {
	Title          string
	Start          time.Time
	End            time.Time
	DayColumnIndex *int
	AllDay         bool
	TimeZone       string
	Recurrence     Recurrence
	TagIDs         []string
}

// DraftFromGhost promotes a ghost into a create request.
func DraftFromGhost(g GhostEvent) Draft {
	d := Draft{Start: g.StartTime, End: g.EndTime}
	if g.DayColumnIndex != nil {
		i := *g.DayColumnIndex
		d.DayColumnIndex = &i
	}
	if loc := g.StartTime.Location(); loc != nil && loc != time.Local {
		d.TimeZone = loc.String()
	}
	return d
}

// Event converts the draft into an event with the given id.
func (d Draft) Event(id string) Event {
	return Event{
		ID:         id,
		Title:      d.Title,
		Start:      d.Start,
		End:        d.End,
		TimeZone:   d.TimeZone,
		AllDay:     d.AllDay,
		Recurrence: d.Recurrence,
		TagIDs:     append([]string(nil), d.TagIDs...),
	}
}

// TimeWindow is a half-open query range [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Intersects reports whether [start, end) overlaps the window.
func (w TimeWindow) Intersects(start, end time.Time) bool {
	return start.Before(w.End) && end.After(w.Start)
}

// DayWindow covers the calendar day d in loc.
func DayWindow(d Date, loc *time.Location) TimeWindow {
	return DaysWindow(d, 1, loc)
}

// DaysWindow covers n consecutive days starting at d.
func DaysWindow(d Date, n int, loc *time.Location) TimeWindow {
	return TimeWindow{Start: d.In(loc), End: d.AddDays(n).In(loc)}
}

// WeekWindow covers the seven days of the week containing d.
func WeekWindow(d Date, weekStart time.Weekday, loc *time.Location) TimeWindow {
	return DaysWindow(d.StartOfWeek(weekStart), 7, loc)
}

// MonthWindow covers the calendar month.
func MonthWindow(year int, month time.Month, loc *time.Location) TimeWindow {
	first := NewDate(year, month, 1)
	next := NewDate(year, month+1, 1)
	return TimeWindow{Start: first.In(loc), End: next.In(loc)}
}
