package gesture

import (
	"time"

	"teamcal/internal/model"
)

// Grid describes the pixel geometry of one day column of the time grid.
type Grid struct {
	Day      model.Date
	Location *time.Location
	Hours    model.HourRange

	// Top is the pixel offset of the first visible hour; Height spans all
	// visible hours.
	Top    float64
	Height float64
}

// Bounds returns the first and last visible instants of the column.
func (g Grid) Bounds() (time.Time, time.Time) {
	return g.Hours.Bounds(g.Day, g.location())
}

// TimeAt maps a vertical pixel position to an instant, clamped to the
// visible hours.
func (g Grid) TimeAt(y float64) time.Time {
	start, end := g.Bounds()
	if g.Height <= 0 {
		return start
	}
	f := (y - g.Top) / g.Height
	switch {
	case f <= 0:
		return start
	case f >= 1:
		return end
	}
	return start.Add(time.Duration(f * float64(end.Sub(start))))
}

// Clamp pins t into the visible hours.
func (g Grid) Clamp(t time.Time) time.Time {
	start, end := g.Bounds()
	if t.Before(start) {
		return start
	}
	if t.After(end) {
		return end
	}
	return t
}

func (g Grid) location() *time.Location {
	if g.Location == nil {
		return time.Local
	}
	return g.Location
}

// Snap rounds t to the nearest multiple of step on the wall clock of t's
// location, so zones with odd UTC offsets still land on :00/:15/:30/:45.
func Snap(t time.Time, step time.Duration) time.Time {
	if step <= 0 {
		return t
	}
	y, m, d := t.Date()
	wall := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	snapped := (wall + step/2) / step * step
	return time.Date(y, m, d, 0, 0, int(snapped/time.Second), 0, t.Location())
}
