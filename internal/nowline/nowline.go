// Package nowline positions the "current time" line on the time grid.
package nowline

import (
	"time"

	"teamcal/internal/model"
)

// Indicator is where the now-line sits on a day column.
type Indicator struct {
	Visible         bool    `json:"visible"`
	PositionPercent float64 `json:"position_percent"`
}

// Compute places now on the column for viewed. The line is hidden when viewed
// is not today in loc, or when now lies outside the visible hours.
func Compute(now time.Time, viewed model.Date, loc *time.Location, hours model.HourRange) Indicator {
	hours = hours.Normalize()
	local := now.In(loc)
	if model.DateOf(local) != viewed {
		return Indicator{}
	}

	nowHour := float64(local.Hour()) +
		float64(local.Minute())/60 +
		float64(local.Second())/3600
	start, end := float64(hours.Start), float64(hours.End)
	if nowHour < start || nowHour > end {
		return Indicator{}
	}

	pct := (nowHour - start) / (end - start) * 100
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}
	return Indicator{Visible: true, PositionPercent: pct}
}
