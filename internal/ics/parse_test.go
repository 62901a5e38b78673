package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamcal/internal/model"
)

func calendar(events ...[]string) []byte {
	lines := []string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//teamcal//test//EN"}
	for _, ev := range events {
		lines = append(lines, "BEGIN:VEVENT")
		lines = append(lines, ev...)
		lines = append(lines, "END:VEVENT")
	}
	lines = append(lines, "END:VCALENDAR")
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func byID(events []model.Event) map[string]model.Event {
	out := make(map[string]model.Event, len(events))
	for _, ev := range events {
		out[ev.ID] = ev
	}
	return out
}

var teamSource = Source{ID: "team", URL: "https://calendar.example.com/team.ics?token=secret"}

func TestParseICS_WeeklyWithExdate(t *testing.T) {
	body := calendar([]string{
		"UID:planning",
		"SUMMARY:Planning",
		"DESCRIPTION:Sprint planning",
		"DTSTART;TZID=Europe/Berlin:20240304T100000",
		"DTEND;TZID=Europe/Berlin:20240304T110000",
		"RRULE:FREQ=WEEKLY",
		"EXDATE;TZID=Europe/Berlin:20240311T100000",
	})

	events, err := ParseICS(teamSource, body, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "team/planning", ev.ID)
	assert.Equal(t, "Planning", ev.Title)
	assert.Equal(t, "Sprint planning", ev.Description)
	assert.Equal(t, "Europe/Berlin", ev.TimeZone)
	assert.Equal(t, model.RecurrenceWeekly, ev.Recurrence)
	assert.Equal(t, time.Hour, ev.Duration())
	assert.Equal(t, 9, ev.Start.UTC().Hour())
	assert.True(t, ev.IsException(model.NewDate(2024, 3, 11)))
	assert.False(t, ev.AllDay)
}

func TestParseICS_ExdateDatedInSeriesZone(t *testing.T) {
	body := calendar([]string{
		"UID:sync",
		"DTSTART;TZID=America/New_York:20250106T090000",
		"DTEND;TZID=America/New_York:20250106T093000",
		"RRULE:FREQ=DAILY",
		// 14:00Z is 09:00 in New York on Jan 7.
		"EXDATE:20250107T140000Z",
		"EXDATE;VALUE=DATE:20250109",
	})

	events, err := ParseICS(teamSource, body, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []model.Date{model.NewDate(2025, 1, 7), model.NewDate(2025, 1, 9)}, events[0].ExceptionDates)
}

func TestParseICS_AllDay(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	body := calendar(
		[]string{
			"UID:offsite",
			"SUMMARY:Offsite",
			"DTSTART;VALUE=DATE:20240304",
			"DTEND;VALUE=DATE:20240306",
		},
		[]string{
			"UID:holiday",
			"SUMMARY:Holiday",
			"DTSTART;VALUE=DATE:20240308",
		},
	)

	events, err := ParseICS(teamSource, body, tokyo)
	require.NoError(t, err)
	got := byID(events)

	offsite := got["team/offsite"]
	assert.True(t, offsite.AllDay)
	assert.Equal(t, "Asia/Tokyo", offsite.TimeZone)
	first, last := offsite.Span(time.UTC)
	assert.Equal(t, model.NewDate(2024, 3, 4), first)
	assert.Equal(t, model.NewDate(2024, 3, 5), last)

	holiday := got["team/holiday"]
	assert.True(t, holiday.AllDay)
	assert.Equal(t, 24*time.Hour, holiday.Duration(), "missing DTEND lasts the day")
}

func TestParseICS_RuleMapping(t *testing.T) {
	// 2024-03-04 is a Monday.
	tests := []struct {
		name string
		rule string
		want model.Recurrence
	}{
		{name: "daily", rule: "FREQ=DAILY", want: model.RecurrenceDaily},
		{name: "weekly", rule: "FREQ=WEEKLY", want: model.RecurrenceWeekly},
		{name: "weekly on start day", rule: "FREQ=WEEKLY;BYDAY=MO", want: model.RecurrenceWeekly},
		{name: "weekly on other day", rule: "FREQ=WEEKLY;BYDAY=TU", want: model.RecurrenceNone},
		{name: "workweek", rule: "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR", want: model.RecurrenceWeekdays},
		{name: "daily workweek", rule: "FREQ=DAILY;BYDAY=MO,TU,WE,TH,FR", want: model.RecurrenceWeekdays},
		{name: "interval", rule: "FREQ=WEEKLY;INTERVAL=2", want: model.RecurrenceNone},
		{name: "explicit interval 1", rule: "FREQ=DAILY;INTERVAL=1", want: model.RecurrenceDaily},
		{name: "count", rule: "FREQ=DAILY;COUNT=5", want: model.RecurrenceNone},
		{name: "until", rule: "FREQ=DAILY;UNTIL=20240401T000000Z", want: model.RecurrenceNone},
		{name: "monthly", rule: "FREQ=MONTHLY", want: model.RecurrenceNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := calendar([]string{
				"UID:rule",
				"DTSTART:20240304T090000Z",
				"DTEND:20240304T093000Z",
				"RRULE:" + tt.rule,
			})
			events, err := ParseICS(teamSource, body, time.UTC)
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, tt.want, events[0].Recurrence)
		})
	}
}

func TestParseICS_Override(t *testing.T) {
	body := calendar(
		[]string{
			"UID:standup",
			"SUMMARY:Standup",
			"DTSTART:20240304T090000Z",
			"DTEND:20240304T091500Z",
			"RRULE:FREQ=DAILY",
		},
		[]string{
			"UID:standup",
			"SUMMARY:Standup (moved)",
			"RECURRENCE-ID:20240306T090000Z",
			"DTSTART:20240306T140000Z",
			"DTEND:20240306T141500Z",
		},
	)

	events, err := ParseICS(teamSource, body, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 2)
	got := byID(events)

	series := got["team/standup"]
	assert.Equal(t, model.RecurrenceDaily, series.Recurrence)
	assert.True(t, series.IsException(model.NewDate(2024, 3, 6)))

	moved, ok := got["team/standup/20240306T090000"]
	require.True(t, ok)
	assert.Equal(t, "Standup (moved)", moved.Title)
	assert.Equal(t, model.RecurrenceNone, moved.Recurrence)
	assert.Equal(t, 14, moved.Start.Hour())
	assert.False(t, moved.IsRecurringInstance())
}

func TestParseICS_SkipsBrokenEvents(t *testing.T) {
	body := calendar(
		[]string{"SUMMARY:no uid", "DTSTART:20240304T090000Z"},
		[]string{"UID:no-start", "SUMMARY:no start"},
		[]string{"UID:ok", "DTSTART:20240304T090000Z", "DTEND:20240304T100000Z"},
	)

	events, err := ParseICS(teamSource, body, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "team/ok", events[0].ID)
}

func TestParseICS_FloatingTimeUsesDefaultZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	body := calendar([]string{"UID:floating", "DTSTART:20240304T090000", "DTEND:20240304T100000"})
	events, err := ParseICS(teamSource, body, ny)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "America/New_York", events[0].TimeZone)
	assert.Equal(t, 14, events[0].Start.UTC().Hour())
}

func TestParseICS_Empty(t *testing.T) {
	_, err := ParseICS(teamSource, nil, time.UTC)
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://calendar.example.com/...(redacted)", redactURL(teamSource.URL))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
