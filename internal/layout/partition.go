// Package layout turns resolved occurrences into grid geometry: columns for
// timed events inside one day, and lanes for the all-day row.
package layout

import (
	"sort"
	"time"

	"teamcal/internal/model"
)

// span is an event clipped to the visible window of one day.
type span struct {
	ev    model.Event
	start time.Time
	end   time.Time // exclusive, clipped
	full  time.Time // unclipped effective end, used for ordering
}

// Day lays out the timed events of day d (dated in loc) inside the visible
// hours. All-day and multi-day events belong to AllDayRow and are skipped
// here. The result is ordered by start time and never nil.
//
// Overlapping events are packed into the fewest columns: events are swept in
// start order and each takes the lowest column whose previous event has
// ended. ColumnCount is the width of the event's overlap cluster only, so a
// busy morning does not squeeze an unrelated afternoon meeting.
func Day(events []model.Event, d model.Date, loc *time.Location, hours model.HourRange) []model.PositionedEvent {
	visStart, visEnd := hours.Bounds(d, loc)
	visible := visEnd.Sub(visStart)

	spans := make([]span, 0, len(events))
	for _, ev := range events {
		if ev.AllDay || ev.IsMultiDay(loc) {
			continue
		}
		first, _ := ev.Span(loc)
		if first != d {
			continue
		}
		end := ev.EffectiveEnd()
		if !end.After(visStart) || !ev.Start.Before(visEnd) {
			continue
		}
		spans = append(spans, span{
			ev:    ev,
			start: maxTime(ev.Start, visStart),
			end:   minTime(end, visEnd),
			full:  end,
		})
	}

	sort.SliceStable(spans, func(i, j int) bool {
		a, b := spans[i], spans[j]
		if !a.ev.Start.Equal(b.ev.Start) {
			return a.ev.Start.Before(b.ev.Start)
		}
		da, db := a.full.Sub(a.ev.Start), b.full.Sub(b.ev.Start)
		if da != db {
			return da > db
		}
		return a.ev.ID < b.ev.ID
	})

	out := make([]model.PositionedEvent, len(spans))

	var (
		columnEnds   []time.Time // end of the last event placed in each column
		clusterEnd   time.Time
		clusterFirst int
	)
	closeCluster := func(upto int) {
		for k := clusterFirst; k < upto; k++ {
			out[k].ColumnCount = len(columnEnds)
		}
		columnEnds = columnEnds[:0]
		clusterFirst = upto
	}

	for i, s := range spans {
		if i > 0 && !s.start.Before(clusterEnd) {
			closeCluster(i)
		}

		col := -1
		for c, end := range columnEnds {
			if !end.After(s.start) {
				col = c
				break
			}
		}
		if col == -1 {
			col = len(columnEnds)
			columnEnds = append(columnEnds, s.end)
		} else {
			columnEnds[col] = s.end
		}
		if i == clusterFirst || s.end.After(clusterEnd) {
			clusterEnd = s.end
		}

		out[i] = model.PositionedEvent{
			Event:  s.ev,
			Column: col,
			Top:    fraction(s.start.Sub(visStart), visible),
			Height: fraction(s.end.Sub(s.start), visible),
			ZIndex: col + 1,
		}
	}
	closeCluster(len(spans))

	for i := range out {
		n := float64(out[i].ColumnCount)
		out[i].Left = float64(out[i].Column) / n
		out[i].Width = 1 / n
	}
	return out
}

func fraction(part, whole time.Duration) float64 {
	if whole <= 0 {
		return 0
	}
	f := float64(part) / float64(whole)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
