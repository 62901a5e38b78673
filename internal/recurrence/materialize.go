// Package recurrence expands recurring event templates into the concrete
// occurrences that overlap a query window.
package recurrence

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "teamcal/internal/log"
	"teamcal/internal/model"
)

var weekdays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR}

// Materialize returns the occurrences of template that intersect window.
//
//   - Non-recurring templates are returned as-is when they intersect.
//   - Recurring series are unbounded; only the window is ever computed, so
//     the cost grows with the window, not with the age of the series.
//   - Exception dates are matched by calendar day in the template's zone.
//   - Each occurrence id is model.OccurrenceID(template.ID, date).
func Materialize(template model.Event, window model.TimeWindow) []model.Event {
	if !window.End.After(window.Start) {
		return nil
	}
	if !template.Recurrence.IsRecurring() {
		if window.Intersects(template.Start, template.EffectiveEnd()) {
			return []model.Event{template.Clone()}
		}
		return nil
	}

	loc := template.Location()
	dur := template.Duration()
	if template.AllDay {
		first, last := template.Span(loc)
		dur = time.Duration(first.DaysUntil(last)+1) * 24 * time.Hour
	}

	// An occurrence starting up to dur before the window still overlaps it.
	searchFrom := window.Start.Add(-dur)

	r, err := rrule.NewRRule(ruleOptions(template, loc, searchFrom))
	if err != nil {
		appLog.Error("recurrence: failed to build rule", err, "id", template.ID, "rule", template.Recurrence.String())
		return nil
	}

	starts := r.Between(searchFrom, window.End, true)

	out := make([]model.Event, 0, len(starts))
	for _, occStart := range starts {
		date := model.DateOf(occStart)
		if template.Recurrence == model.RecurrenceWeekdays && isWeekend(date) {
			// A DTSTART landing on a weekend is not an occurrence.
			continue
		}
		if template.IsException(date) {
			continue
		}

		occ := template.Clone()
		occ.ID = model.OccurrenceID(template.ID, date)
		occ.Recurrence = model.RecurrenceNone
		occ.ExceptionDates = nil
		if template.AllDay {
			occ.Start = date.In(loc)
			occ.End = date.AddDays(int(dur / (24 * time.Hour))).In(loc)
		} else {
			occ.Start = occStart
			occ.End = occStart.Add(dur)
		}

		if !window.Intersects(occ.Start, occ.End) {
			continue
		}
		out = append(out, occ)
	}
	return out
}

// ruleOptions translates the closed recurrence enum into an RRULE whose
// DTSTART is moved forward to the last period boundary before from, keeping
// the template's wall-clock time.
func ruleOptions(template model.Event, loc *time.Location, from time.Time) rrule.ROption {
	start := template.Start.In(loc)
	if template.AllDay {
		start = model.DateOf(start).In(loc)
	}

	opt := rrule.ROption{Dtstart: start}
	period := 1
	switch template.Recurrence {
	case model.RecurrenceDaily:
		opt.Freq = rrule.DAILY
	case model.RecurrenceWeekly:
		opt.Freq = rrule.WEEKLY
		period = 7
	case model.RecurrenceWeekdays:
		opt.Freq = rrule.DAILY
		opt.Byweekday = weekdays
	case model.RecurrenceNone:
		// Materialize never gets here with a single event.
		opt.Freq = rrule.DAILY
		opt.Count = 1
		return opt
	default:
		appLog.Error("recurrence: unhandled rule, treating as single event", nil, "id", template.ID, "rule", template.Recurrence.String())
		opt.Freq = rrule.DAILY
		opt.Count = 1
		return opt
	}

	skip := model.DateOf(start).DaysUntil(model.DateOf(from.In(loc))) - 1
	if skip >= period {
		skip -= skip % period
		opt.Dtstart = time.Date(start.Year(), start.Month(), start.Day()+skip,
			start.Hour(), start.Minute(), start.Second(), 0, loc)
	}
	return opt
}

func isWeekend(d model.Date) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// MaterializeAll expands every template and returns the occurrences sorted by
// start, then id.
func MaterializeAll(templates []model.Event, window model.TimeWindow) []model.Event {
	out := make([]model.Event, 0, len(templates))
	for _, t := range templates {
		out = append(out, Materialize(t, window)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	appLog.Debug("recurrence: materialized window",
		"templates", len(templates),
		"occurrences", len(out),
		"start", window.Start.Format(time.RFC3339),
		"end", window.End.Format(time.RFC3339),
	)
	return out
}
