package web

import (
	"time"

	"teamcal/internal/layout"
	"teamcal/internal/model"
	"teamcal/internal/nowline"
	"teamcal/internal/view"
)

// eventDTO is the JSON shape of one event or occurrence.
type eventDTO struct {
	ID          string    `json:"id"`
	TemplateID  string    `json:"template_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TimeZone    string    `json:"time_zone,omitempty"`
	AllDay      bool      `json:"all_day"`
	Recurrence  string    `json:"recurrence"`
	TagIDs      []string  `json:"tag_ids"`
}

type positionedDTO struct {
	Event       eventDTO `json:"event"`
	Column      int      `json:"column"`
	ColumnCount int      `json:"column_count"`
	Top         float64  `json:"top"`
	Height      float64  `json:"height"`
	Left        float64  `json:"left"`
	Width       float64  `json:"width"`
	ZIndex      int      `json:"z_index"`
}

type allDayDTO struct {
	Event      eventDTO `json:"event"`
	IsFirstDay bool     `json:"is_first_day"`
	IsLastDay  bool     `json:"is_last_day"`
	Lane       int      `json:"lane"`
	SpanDays   int      `json:"span_days"`
}

type dayColumnDTO struct {
	Date    string            `json:"date"`
	IsToday bool              `json:"is_today"`
	Events  []positionedDTO   `json:"events"`
	NowLine nowline.Indicator `json:"now_line"`
}

type dayRowDTO struct {
	Date    string      `json:"date"`
	Entries []allDayDTO `json:"entries"`
}

type dayViewDTO struct {
	Date   string       `json:"date"`
	AllDay []allDayDTO  `json:"all_day"`
	Column dayColumnDTO `json:"column"`
}

type weekViewDTO struct {
	Start  string         `json:"start"`
	Days   []dayColumnDTO `json:"days"`
	AllDay []dayRowDTO    `json:"all_day"`
}

type monthCellDTO struct {
	Date    string      `json:"date"`
	InMonth bool        `json:"in_month"`
	IsToday bool        `json:"is_today"`
	AllDay  []allDayDTO `json:"all_day"`
	Timed   []eventDTO  `json:"timed"`
}

type monthViewDTO struct {
	Year  int              `json:"year"`
	Month int              `json:"month"`
	Weeks [][]monthCellDTO `json:"weeks"`
}

type nowDTO struct {
	Date            string  `json:"date"`
	Visible         bool    `json:"visible"`
	PositionPercent float64 `json:"position_percent"`
}

type settingsDTO struct {
	TimeZone               string  `json:"time_zone"`
	WeekStart              string  `json:"week_start"`
	DayStartHour           int     `json:"day_start_hour"`
	DayEndHour             int     `json:"day_end_hour"`
	SnapMinutes            int     `json:"snap_minutes"`
	DefaultDurationMinutes int     `json:"default_duration_minutes"`
	MinDurationMinutes     int     `json:"min_duration_minutes"`
	DragThresholdPx        float64 `json:"drag_threshold_px"`
}

type eventsResponse struct {
	From        time.Time  `json:"from"`
	To          time.Time  `json:"to"`
	TimeZone    string     `json:"time_zone"`
	Occurrences []eventDTO `json:"occurrences"`
}

// draftRequest is the body of POST /api/events.
type draftRequest struct {
	Title      string           `json:"title"`
	Start      time.Time        `json:"start"`
	End        time.Time        `json:"end"`
	AllDay     bool             `json:"all_day"`
	TimeZone   string           `json:"time_zone"`
	Recurrence model.Recurrence `json:"recurrence"`
	TagIDs     []string         `json:"tag_ids"`
}

func toEventDTO(ev model.Event, loc *time.Location) eventDTO {
	dto := eventDTO{
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		Start:       ev.Start.In(loc),
		End:         ev.End.In(loc),
		TimeZone:    ev.TimeZone,
		AllDay:      ev.AllDay,
		Recurrence:  ev.Recurrence.String(),
		TagIDs:      ev.TagIDs,
	}
	if dto.TagIDs == nil {
		dto.TagIDs = []string{}
	}
	if tmpl, _, ok := model.SplitOccurrenceID(ev.ID); ok {
		dto.TemplateID = tmpl
	}
	return dto
}

func toEventDTOs(events []model.Event, loc *time.Location) []eventDTO {
	out := make([]eventDTO, len(events))
	for i, ev := range events {
		out[i] = toEventDTO(ev, loc)
	}
	return out
}

func toAllDayDTOs(entries []layout.AllDayEntry, loc *time.Location) []allDayDTO {
	out := make([]allDayDTO, len(entries))
	for i, e := range entries {
		out[i] = allDayDTO{
			Event:      toEventDTO(e.Event, loc),
			IsFirstDay: e.IsFirstDay,
			IsLastDay:  e.IsLastDay,
			Lane:       e.Lane,
			SpanDays:   e.SpanDays,
		}
	}
	return out
}

func toColumnDTO(col view.DayColumn, loc *time.Location) dayColumnDTO {
	events := make([]positionedDTO, len(col.Events))
	for i, pe := range col.Events {
		events[i] = positionedDTO{
			Event:       toEventDTO(pe.Event, loc),
			Column:      pe.Column,
			ColumnCount: pe.ColumnCount,
			Top:         pe.Top,
			Height:      pe.Height,
			Left:        pe.Left,
			Width:       pe.Width,
			ZIndex:      pe.ZIndex,
		}
	}
	return dayColumnDTO{
		Date:    col.Date.String(),
		IsToday: col.IsToday,
		Events:  events,
		NowLine: col.NowLine,
	}
}

func toDayViewDTO(v view.DayView, loc *time.Location) dayViewDTO {
	return dayViewDTO{
		Date:   v.Date.String(),
		AllDay: toAllDayDTOs(v.AllDay, loc),
		Column: toColumnDTO(v.Column, loc),
	}
}

func toWeekViewDTO(v view.WeekView, loc *time.Location) weekViewDTO {
	out := weekViewDTO{
		Start:  v.Start.String(),
		Days:   make([]dayColumnDTO, len(v.Days)),
		AllDay: make([]dayRowDTO, len(v.AllDay)),
	}
	for i, col := range v.Days {
		out.Days[i] = toColumnDTO(col, loc)
	}
	for i, row := range v.AllDay {
		out.AllDay[i] = dayRowDTO{Date: row.Date.String(), Entries: toAllDayDTOs(row.Entries, loc)}
	}
	return out
}

func toMonthViewDTO(v view.MonthView, loc *time.Location) monthViewDTO {
	out := monthViewDTO{
		Year:  v.Year,
		Month: int(v.Month),
		Weeks: make([][]monthCellDTO, len(v.Weeks)),
	}
	for w, week := range v.Weeks {
		cells := make([]monthCellDTO, len(week))
		for i, c := range week {
			cells[i] = monthCellDTO{
				Date:    c.Date.String(),
				InMonth: c.InMonth,
				IsToday: c.IsToday,
				AllDay:  toAllDayDTOs(c.AllDay, loc),
				Timed:   toEventDTOs(c.Timed, loc),
			}
		}
		out.Weeks[w] = cells
	}
	return out
}
