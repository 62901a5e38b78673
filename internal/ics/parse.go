package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "teamcal/internal/log"
	"teamcal/internal/model"
)

// errUnsupportedRule marks an RRULE that has no equivalent in the closed
// recurrence set; such events are imported as a single occurrence.
var errUnsupportedRule = errors.New("unsupported rrule")

// ParseICS parses one ICS payload into calendar events.
//
//   - Event ids are "<source id>/<UID>" so re-imports replace earlier copies.
//   - DTSTART/DTEND honor TZID; floating times and dates use loc.
//   - RRULE is mapped onto model.Recurrence where an exact equivalent exists.
//   - EXDATE becomes exception dates; RECURRENCE-ID overrides become their
//     own events and exclude the overridden date from the series.
func ParseICS(src Source, body []byte, loc *time.Location) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.UTC
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]model.Event, 0)
	index := make(map[string]int)
	var overrides []override

	for _, comp := range cal.Events() {
		ev, rid, perr := parseVEvent(src, comp, loc)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		if rid != nil {
			overrides = append(overrides, override{baseID: ev.ID, recurrenceID: *rid, event: ev})
			continue
		}
		index[ev.ID] = len(events)
		events = append(events, ev)
	}

	for _, o := range overrides {
		i, ok := index[o.baseID]
		if !ok {
			// Orphan override: keep it as a standalone event.
			o.event.ID = o.overrideID()
			events = append(events, o.event)
			continue
		}
		base := &events[i]
		if base.Recurrence.IsRecurring() {
			base.ExceptionDates = append(base.ExceptionDates, model.DateOf(o.recurrenceID.In(base.Location())))
		}
		o.event.ID = o.overrideID()
		events = append(events, o.event)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

type override struct {
	baseID       string
	recurrenceID time.Time
	event        model.Event
}

func (o override) overrideID() string {
	return o.baseID + "/" + o.recurrenceID.Format("20060102T150405")
}

func parseVEvent(src Source, ve *ical.VEvent, loc *time.Location) (model.Event, *time.Time, error) {
	var out model.Event

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, nil, errors.New("missing UID")
	}
	out.ID = src.ID + "/" + uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return out, nil, errors.New("missing DTSTART")
	}
	start, allDay, err := parseTimeProp(startProp, loc)
	if err != nil {
		return out, nil, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start
	out.AllDay = allDay
	out.TimeZone = start.Location().String()

	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		end, _, err := parseTimeProp(endProp, loc)
		if err != nil {
			return out, nil, fmt.Errorf("DTEND: %w", err)
		}
		out.End = end
	}
	if !out.End.After(out.Start) {
		// No usable DTEND: a date lasts the day, a date-time one hour.
		if allDay {
			out.End = model.DateOf(start).AddDays(1).In(start.Location())
		} else {
			out.End = start.Add(time.Hour)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		rec, err := mapRule(p.Value, start)
		if err != nil {
			appLog.Info("ics rrule imported as single event", "id", out.ID, "rrule", p.Value, "reason", err.Error())
		}
		out.Recurrence = rec
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, _, err := parseTimeValue(part, p.ICalParameters, start.Location())
			if err != nil {
				appLog.Error("ics exdate skipped", err, "id", out.ID, "value", part)
				continue
			}
			// DATE values are already midnight in the event zone; DATE-TIME
			// values (often UTC) are dated where the series runs.
			out.ExceptionDates = append(out.ExceptionDates, model.DateOf(t.In(start.Location())))
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		rid, _, err := parseTimeProp(p, start.Location())
		if err != nil {
			return out, nil, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		out.Recurrence = model.RecurrenceNone
		out.ExceptionDates = nil
		return out, &rid, nil
	}

	return out, nil, nil
}

// mapRule maps an RRULE onto the closed recurrence set. Rules with no exact
// equivalent return RecurrenceNone and errUnsupportedRule.
func mapRule(value string, start time.Time) (model.Recurrence, error) {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return model.RecurrenceNone, err
	}
	if opt.Interval > 1 {
		return model.RecurrenceNone, fmt.Errorf("%w: INTERVAL=%d", errUnsupportedRule, opt.Interval)
	}
	if opt.Count > 0 || !opt.Until.IsZero() {
		return model.RecurrenceNone, fmt.Errorf("%w: bounded series", errUnsupportedRule)
	}
	if len(opt.Bymonth) > 0 || len(opt.Bymonthday) > 0 || len(opt.Byyearday) > 0 ||
		len(opt.Byweekno) > 0 || len(opt.Bysetpos) > 0 || len(opt.Byhour) > 0 ||
		len(opt.Byminute) > 0 || len(opt.Bysecond) > 0 || len(opt.Byeaster) > 0 {
		return model.RecurrenceNone, fmt.Errorf("%w: BYxxx parts", errUnsupportedRule)
	}

	switch {
	case isWorkweek(opt.Byweekday) && (opt.Freq == rrule.DAILY || opt.Freq == rrule.WEEKLY):
		return model.RecurrenceWeekdays, nil
	case opt.Freq == rrule.DAILY && len(opt.Byweekday) == 0:
		return model.RecurrenceDaily, nil
	case opt.Freq == rrule.WEEKLY && len(opt.Byweekday) == 0:
		return model.RecurrenceWeekly, nil
	case opt.Freq == rrule.WEEKLY && len(opt.Byweekday) == 1 && opt.Byweekday[0] == weekdayOf(start):
		return model.RecurrenceWeekly, nil
	}
	return model.RecurrenceNone, fmt.Errorf("%w: FREQ %v", errUnsupportedRule, opt.Freq)
}

var rruleWeekdays = [...]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

func weekdayOf(t time.Time) rrule.Weekday {
	return rruleWeekdays[t.Weekday()]
}

func isWorkweek(days []rrule.Weekday) bool {
	if len(days) != 5 {
		return false
	}
	seen := make(map[rrule.Weekday]bool, 5)
	for _, d := range days {
		seen[d] = true
	}
	return seen[rrule.MO] && seen[rrule.TU] && seen[rrule.WE] && seen[rrule.TH] && seen[rrule.FR]
}

func parseTimeProp(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	return parseTimeValue(p.Value, p.ICalParameters, loc)
}

// parseTimeValue parses an ICS DATE or DATE-TIME honoring VALUE and TZID.
// The bool reports a date-only value.
func parseTimeValue(v string, params map[string][]string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	if tz := firstParam(params, "TZID"); tz != "" {
		tzLoc, err := time.LoadLocation(tz)
		if err != nil {
			appLog.Debug("ics unknown TZID, using default zone", "tzid", tz, "zone", loc.String())
		} else {
			loc = tzLoc
		}
	}

	dateOnly := strings.EqualFold(firstParam(params, "VALUE"), "DATE") || !strings.Contains(v, "T")
	switch {
	case dateOnly:
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, true, err
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	default:
		t, err := time.ParseInLocation("20060102T150405", v, loc)
		return t, false, err
	}
}

func firstParam(params map[string][]string, key string) string {
	if vs, ok := params[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}
