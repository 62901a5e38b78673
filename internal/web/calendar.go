package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	appLog "teamcal/internal/log"
	"teamcal/internal/model"
	"teamcal/internal/view"
)

//go:embed templates/calendar.html
var templateFS embed.FS

var calendarTmpl = template.Must(template.New("calendar.html").Funcs(template.FuncMap{
	"clock": func(t time.Time) string { return t.Format("15:04") },
}).ParseFS(templateFS, "templates/calendar.html"))

type pageEvent struct {
	Title string
	Start time.Time
	End   time.Time
	Style template.CSS
}

type pageBar struct {
	Title string
	Style template.CSS
	Class string
}

type pageDay struct {
	Label   string
	IsToday bool
	Events  []pageEvent
	NowLine template.CSS
	AllDay  []pageBar
}

type pageData struct {
	Title    string
	TimeZone string
	Hours    []string
	Days     []pageDay
}

// handleCalendarPage renders the week containing ?date= as static HTML.
// The root carries data-ready="true" once rendered, which the snapshot
// capture waits for.
func (s *Server) handleCalendarPage(w http.ResponseWriter, r *http.Request) {
	day, err := s.dateParam(r, "date")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	loc := s.location()
	templates, err := s.templates(r, model.WeekWindow(day, s.composer.WeekStart, loc))
	if err != nil {
		appLog.Error("calendar page: list events failed", err)
		http.Error(w, "failed to load events", http.StatusInternalServerError)
		return
	}

	week := s.composer.Week(templates, day)
	data := buildPage(week, s.composer.Hours.Normalize(), loc)

	var buf bytes.Buffer
	if err := calendarTmpl.Execute(&buf, data); err != nil {
		appLog.Error("calendar page: render failed", err)
		http.Error(w, "failed to render calendar", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func buildPage(week view.WeekView, hours model.HourRange, loc *time.Location) pageData {
	data := pageData{
		Title:    "Week of " + week.Start.In(loc).Format("2 Jan 2006"),
		TimeZone: loc.String(),
		Days:     make([]pageDay, len(week.Days)),
	}
	for h := hours.Start; h < hours.End; h++ {
		data.Hours = append(data.Hours, fmt.Sprintf("%02d:00", h))
	}

	for i, col := range week.Days {
		pd := pageDay{
			Label:   col.Date.In(loc).Format("Mon 2"),
			IsToday: col.IsToday,
		}
		for _, pe := range col.Events {
			pd.Events = append(pd.Events, pageEvent{
				Title: pe.Event.Title,
				Start: pe.Event.Start.In(loc),
				End:   pe.Event.End.In(loc),
				Style: template.CSS(fmt.Sprintf("top:%.4f%%;height:%.4f%%;left:%.4f%%;width:%.4f%%;z-index:%d",
					pe.Top*100, pe.Height*100, pe.Left*100, pe.Width*100, pe.ZIndex)),
			})
		}
		if col.NowLine.Visible {
			pd.NowLine = template.CSS(fmt.Sprintf("top:%.4f%%", col.NowLine.PositionPercent))
		}
		if i < len(week.AllDay) {
			for _, e := range week.AllDay[i].Entries {
				class := "bar"
				if e.IsFirstDay {
					class += " first"
				}
				if e.IsLastDay {
					class += " last"
				}
				pd.AllDay = append(pd.AllDay, pageBar{
					Title: e.Event.Title,
					Class: class,
					Style: template.CSS(fmt.Sprintf("grid-row:%d", e.Lane+1)),
				})
			}
		}
		data.Days[i] = pd
	}
	return data
}
