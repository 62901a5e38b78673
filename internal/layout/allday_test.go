package layout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamcal/internal/model"
)

func week(first model.Date) []model.Date {
	days := make([]model.Date, 7)
	for i := range days {
		days[i] = first.AddDays(i)
	}
	return days
}

func allDay(id string, first model.Date, days int) model.Event {
	return model.Event{
		ID:       id,
		AllDay:   true,
		TimeZone: "UTC",
		Start:    first.In(time.UTC),
		End:      first.AddDays(days).In(time.UTC),
	}
}

func TestAllDayRow_EdgeFlags(t *testing.T) {
	monday := model.NewDate(2025, 1, 6)
	// Starts the Saturday before the visible week and ends Wednesday.
	ev := allDay("trip", monday.AddDays(-2), 5)

	rows := AllDayRow([]model.Event{ev}, week(monday), time.UTC)
	require.Len(t, rows, 7)

	for i, row := range rows {
		if i > 2 {
			assert.Empty(t, row.Entries, "day %d", i)
			continue
		}
		require.Len(t, row.Entries, 1, "day %d", i)
		e := row.Entries[0]
		assert.Equal(t, "trip", e.Event.ID)
		assert.False(t, e.IsFirstDay, "clipped start has no rounded cap")
		assert.Equal(t, i == 2, e.IsLastDay)
		assert.Equal(t, 5, e.SpanDays)
	}
}

func TestAllDayRow_SingleAllDayEvent(t *testing.T) {
	monday := model.NewDate(2025, 1, 6)
	rows := AllDayRow([]model.Event{allDay("holiday", monday.AddDays(3), 1)}, week(monday), time.UTC)
	e := rows[3].Entries
	require.Len(t, e, 1)
	assert.True(t, e[0].IsFirstDay)
	assert.True(t, e[0].IsLastDay)
	assert.Equal(t, 1, e[0].SpanDays)
}

func TestAllDayRow_TimedMultiDayIncludedSingleDaySkipped(t *testing.T) {
	monday := model.NewDate(2025, 1, 6)
	overnight := model.Event{ID: "night", Start: monday.At(22, 0, time.UTC), End: monday.AddDays(1).At(6, 0, time.UTC)}
	meeting := model.Event{ID: "mtg", Start: monday.At(9, 0, time.UTC), End: monday.At(10, 0, time.UTC)}

	rows := AllDayRow([]model.Event{overnight, meeting}, week(monday), time.UTC)
	require.Len(t, rows[0].Entries, 1)
	assert.Equal(t, "night", rows[0].Entries[0].Event.ID)
	assert.True(t, rows[0].Entries[0].IsFirstDay)
	assert.False(t, rows[0].Entries[0].IsLastDay)
	require.Len(t, rows[1].Entries, 1)
	assert.True(t, rows[1].Entries[0].IsLastDay)
}

func TestAllDayRow_OrderingAndLanes(t *testing.T) {
	monday := model.NewDate(2025, 1, 6)
	short := allDay("b-short", monday, 1)
	long := allDay("a-long", monday, 4)
	later := allDay("later", monday.AddDays(1), 2)
	afterShort := allDay("after-short", monday.AddDays(1), 1)

	rows := AllDayRow([]model.Event{short, later, afterShort, long}, week(monday), time.UTC)

	ids := func(row DayRow) []string {
		out := make([]string, len(row.Entries))
		for i, e := range row.Entries {
			out[i] = e.Event.ID
		}
		return out
	}
	assert.Equal(t, []string{"a-long", "b-short"}, ids(rows[0]))
	assert.Equal(t, []string{"a-long", "later", "after-short"}, ids(rows[1]))

	lanes := map[string]int{}
	for _, row := range rows {
		for _, e := range row.Entries {
			if prev, ok := lanes[e.Event.ID]; ok {
				assert.Equal(t, prev, e.Lane, "lane of %s changes across days", e.Event.ID)
			}
			lanes[e.Event.ID] = e.Lane
		}
	}
	assert.Equal(t, 0, lanes["a-long"])
	assert.Equal(t, 1, lanes["b-short"])
	// b-short is over by Tuesday, so "later" reuses its lane.
	assert.Equal(t, 1, lanes["later"])
	assert.Equal(t, 2, lanes["after-short"])
}

func TestAllDayRow_NoDays(t *testing.T) {
	assert.Empty(t, AllDayRow([]model.Event{allDay("x", model.NewDate(2025, 1, 1), 1)}, nil, time.UTC))
}
