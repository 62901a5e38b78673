package layout

import (
	"sort"
	"time"

	"teamcal/internal/model"
)

// AllDayEntry is one event's piece of the all-day row on one day. An event
// spanning N visible days yields N entries sharing the same Event.
type AllDayEntry struct {
	Event model.Event

	// IsFirstDay / IsLastDay are true only at the event's real edges; a bar
	// clipped by the visible range keeps square caps on the clipped side.
	IsFirstDay bool
	IsLastDay  bool

	// Lane is the row inside the all-day band. It is the same on every day
	// of one event so bars stay straight.
	Lane int

	// SpanDays is the event's total length in days, visible or not.
	SpanDays int
}

// DayRow holds the ordered all-day entries for one visible day.
type DayRow struct {
	Date    model.Date
	Entries []AllDayEntry
}

type rowItem struct {
	ev          model.Event
	first, last model.Date
	sortStart   time.Time
	spanDays    int
	lane        int
}

// AllDayRow builds the all-day band for consecutive visible days: all-day
// events plus timed events that cross midnight in loc. Entries are ordered
// by start, then longer spans first, then id.
func AllDayRow(events []model.Event, days []model.Date, loc *time.Location) []DayRow {
	rows := make([]DayRow, len(days))
	for i, d := range days {
		rows[i] = DayRow{Date: d, Entries: []AllDayEntry{}}
	}
	if len(days) == 0 {
		return rows
	}
	windowFirst, windowLast := days[0], days[len(days)-1]

	items := make([]*rowItem, 0)
	for _, ev := range events {
		if !ev.AllDay && !ev.IsMultiDay(loc) {
			continue
		}
		first, last := ev.Span(loc)
		if last.Before(windowFirst) || first.After(windowLast) {
			continue
		}
		sortStart := ev.Start
		if ev.AllDay {
			sortStart = first.In(loc)
		}
		items = append(items, &rowItem{
			ev:        ev,
			first:     first,
			last:      last,
			sortStart: sortStart,
			spanDays:  first.DaysUntil(last) + 1,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.sortStart.Equal(b.sortStart) {
			return a.sortStart.Before(b.sortStart)
		}
		if a.spanDays != b.spanDays {
			return a.spanDays > b.spanDays
		}
		return a.ev.ID < b.ev.ID
	})

	assignLanes(items, windowFirst)

	for i, d := range days {
		for _, it := range items {
			if d.Before(it.first) || d.After(it.last) {
				continue
			}
			rows[i].Entries = append(rows[i].Entries, AllDayEntry{
				Event:      it.ev,
				IsFirstDay: d == it.first,
				IsLastDay:  d == it.last,
				Lane:       it.lane,
				SpanDays:   it.spanDays,
			})
		}
	}
	return rows
}

// assignLanes packs bars into rows first-fit, the same way Day packs
// columns. Items must already be sorted.
func assignLanes(items []*rowItem, windowFirst model.Date) {
	var laneLast []model.Date // last visible day occupied per lane
	for _, it := range items {
		from := it.first
		if from.Before(windowFirst) {
			from = windowFirst
		}
		lane := -1
		for l, last := range laneLast {
			if last.Before(from) {
				lane = l
				break
			}
		}
		if lane == -1 {
			lane = len(laneLast)
			laneLast = append(laneLast, it.last)
		} else {
			laneLast[lane] = it.last
		}
		it.lane = lane
	}
}
