// Package view composes day, week and month screens from stored templates:
// it materializes the visible window once, then hands occurrences to the
// all-day row builder, the column partitioner and the now-line.
package view

import (
	"sort"
	"time"

	"teamcal/internal/clock"
	"teamcal/internal/layout"
	"teamcal/internal/model"
	"teamcal/internal/nowline"
	"teamcal/internal/recurrence"
)

// Composer holds the display settings shared by every view. The zero value
// shows whole days in UTC with weeks starting on Sunday.
type Composer struct {
	Location  *time.Location
	Hours     model.HourRange
	WeekStart time.Weekday
	Clock     clock.Clock
}

// DayColumn is one day of the time grid.
type DayColumn struct {
	Date    model.Date
	IsToday bool
	Events  []model.PositionedEvent
	NowLine nowline.Indicator
}

type DayView struct {
	Date   model.Date
	AllDay []layout.AllDayEntry
	Column DayColumn
}

type WeekView struct {
	Start  model.Date
	Days   []DayColumn
	AllDay []layout.DayRow
}

// MonthCell is one square of the month grid. AllDay holds all-day and
// multi-day entries with lanes computed per week row; Timed holds the
// remaining events starting that day, ordered by start then id.
type MonthCell struct {
	Date    model.Date
	InMonth bool
	IsToday bool
	AllDay  []layout.AllDayEntry
	Timed   []model.Event
}

type MonthView struct {
	Year  int
	Month time.Month
	Weeks [][]MonthCell
}

func (c Composer) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c Composer) hours() model.HourRange {
	if c.Hours == (model.HourRange{}) {
		return model.DefaultHours
	}
	return c.Hours.Normalize()
}

func (c Composer) now() time.Time {
	if c.Clock == nil {
		return time.Now()
	}
	return c.Clock.Now()
}

func (c Composer) today() model.Date {
	return model.DateOf(c.now().In(c.location()))
}

// Day composes a single day.
func (c Composer) Day(templates []model.Event, day model.Date) DayView {
	loc := c.location()
	occ := recurrence.MaterializeAll(templates, model.DayWindow(day, loc))

	return DayView{
		Date:   day,
		AllDay: layout.AllDayRow(occ, []model.Date{day}, loc)[0].Entries,
		Column: c.column(occ, day),
	}
}

// Week composes the seven days of the week containing anyDay.
func (c Composer) Week(templates []model.Event, anyDay model.Date) WeekView {
	loc := c.location()
	start := anyDay.StartOfWeek(c.WeekStart)
	occ := recurrence.MaterializeAll(templates, model.DaysWindow(start, 7, loc))

	days := make([]model.Date, 7)
	cols := make([]DayColumn, 7)
	for i := range days {
		days[i] = start.AddDays(i)
		cols[i] = c.column(occ, days[i])
	}

	return WeekView{
		Start:  start,
		Days:   cols,
		AllDay: layout.AllDayRow(occ, days, loc),
	}
}

// Month composes the weeks covering the month, at most six rows.
func (c Composer) Month(templates []model.Event, year int, month time.Month) MonthView {
	loc := c.location()
	first := model.NewDate(year, month, 1)
	last := model.NewDate(year, month+1, 0)
	gridStart := first.StartOfWeek(c.WeekStart)
	weeks := (gridStart.DaysUntil(last) + 7) / 7

	occ := recurrence.MaterializeAll(templates, model.DaysWindow(gridStart, weeks*7, loc))
	today := c.today()

	mv := MonthView{
		Year:  first.Year,
		Month: first.Month,
		Weeks: make([][]MonthCell, weeks),
	}
	for w := 0; w < weeks; w++ {
		days := make([]model.Date, 7)
		for i := range days {
			days[i] = gridStart.AddDays(w*7 + i)
		}
		rows := layout.AllDayRow(occ, days, loc)

		cells := make([]MonthCell, 7)
		for i, d := range days {
			cells[i] = MonthCell{
				Date:    d,
				InMonth: d.Month == first.Month && d.Year == first.Year,
				IsToday: d == today,
				AllDay:  rows[i].Entries,
				Timed:   timedOn(occ, d, loc),
			}
		}
		mv.Weeks[w] = cells
	}
	return mv
}

func (c Composer) column(occ []model.Event, d model.Date) DayColumn {
	loc := c.location()
	hours := c.hours()
	now := c.now()
	return DayColumn{
		Date:    d,
		IsToday: model.DateOf(now.In(loc)) == d,
		Events:  layout.Day(occ, d, loc, hours),
		NowLine: nowline.Compute(now, d, loc, hours),
	}
}

// timedOn returns the single-day timed events starting on d.
func timedOn(occ []model.Event, d model.Date, loc *time.Location) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range occ {
		if ev.AllDay || ev.IsMultiDay(loc) {
			continue
		}
		if first, _ := ev.Span(loc); first == d {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
