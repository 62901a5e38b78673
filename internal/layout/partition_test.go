package layout

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamcal/internal/model"
)

var testDay = model.NewDate(2025, 1, 6)

func timed(id string, startH, startM, endH, endM int) model.Event {
	return model.Event{
		ID:    id,
		Start: testDay.At(startH, startM, time.UTC),
		End:   testDay.At(endH, endM, time.UTC),
	}
}

func byID(out []model.PositionedEvent) map[string]model.PositionedEvent {
	m := make(map[string]model.PositionedEvent, len(out))
	for _, p := range out {
		m[p.Event.ID] = p
	}
	return m
}

func TestDay_Empty(t *testing.T) {
	out := Day(nil, testDay, time.UTC, model.DefaultHours)
	require.NotNil(t, out)
	assert.Empty(t, out)
}

func TestDay_Fixtures(t *testing.T) {
	hours := model.HourRange{Start: 0, End: 24}

	t.Run("single event takes full width", func(t *testing.T) {
		out := Day([]model.Event{timed("a", 9, 0, 10, 0)}, testDay, time.UTC, hours)
		require.Len(t, out, 1)
		p := out[0]
		assert.Equal(t, 0, p.Column)
		assert.Equal(t, 1, p.ColumnCount)
		assert.InDelta(t, 0.0, p.Left, 1e-9)
		assert.InDelta(t, 1.0, p.Width, 1e-9)
		assert.InDelta(t, 9.0/24, p.Top, 1e-9)
		assert.InDelta(t, 1.0/24, p.Height, 1e-9)
	})

	t.Run("two overlapping split in half", func(t *testing.T) {
		out := byID(Day([]model.Event{
			timed("a", 9, 0, 10, 0),
			timed("b", 9, 30, 11, 0),
		}, testDay, time.UTC, hours))
		assert.Equal(t, 0, out["a"].Column)
		assert.Equal(t, 1, out["b"].Column)
		assert.Equal(t, 2, out["a"].ColumnCount)
		assert.Equal(t, 2, out["b"].ColumnCount)
		assert.InDelta(t, 0.5, out["b"].Left, 1e-9)
		assert.InDelta(t, 0.5, out["b"].Width, 1e-9)
	})

	t.Run("touching events do not overlap", func(t *testing.T) {
		out := byID(Day([]model.Event{
			timed("a", 9, 0, 10, 0),
			timed("b", 10, 0, 11, 0),
		}, testDay, time.UTC, hours))
		assert.Equal(t, 1, out["a"].ColumnCount)
		assert.Equal(t, 1, out["b"].ColumnCount)
		assert.Equal(t, 0, out["b"].Column)
	})

	t.Run("three mutually overlapping", func(t *testing.T) {
		out := byID(Day([]model.Event{
			timed("a", 9, 0, 12, 0),
			timed("b", 9, 30, 11, 0),
			timed("c", 10, 0, 10, 30),
		}, testDay, time.UTC, hours))
		for _, id := range []string{"a", "b", "c"} {
			assert.Equal(t, 3, out[id].ColumnCount, id)
		}
		assert.ElementsMatch(t, []int{0, 1, 2}, []int{out["a"].Column, out["b"].Column, out["c"].Column})
	})

	t.Run("staggered chain reuses freed columns", func(t *testing.T) {
		// a overlaps b, b overlaps c, c overlaps d; never more than two at once.
		out := byID(Day([]model.Event{
			timed("a", 9, 0, 10, 0),
			timed("b", 9, 30, 10, 30),
			timed("c", 10, 15, 11, 15),
			timed("d", 11, 0, 12, 0),
		}, testDay, time.UTC, hours))
		assert.Equal(t, 0, out["a"].Column)
		assert.Equal(t, 1, out["b"].Column)
		assert.Equal(t, 0, out["c"].Column)
		assert.Equal(t, 1, out["d"].Column)
		for _, id := range []string{"a", "b", "c", "d"} {
			assert.Equal(t, 2, out[id].ColumnCount, id)
		}
	})

	t.Run("column count is per cluster", func(t *testing.T) {
		out := byID(Day([]model.Event{
			timed("m1", 8, 0, 9, 0),
			timed("m2", 8, 0, 9, 0),
			timed("m3", 8, 0, 9, 0),
			timed("m4", 8, 0, 9, 0),
			timed("p1", 14, 0, 15, 0),
			timed("p2", 14, 30, 15, 30),
		}, testDay, time.UTC, hours))
		assert.Equal(t, 4, out["m1"].ColumnCount)
		assert.Equal(t, 2, out["p1"].ColumnCount)
		assert.Equal(t, 2, out["p2"].ColumnCount)
	})

	t.Run("ties prefer longer event then id", func(t *testing.T) {
		out := byID(Day([]model.Event{
			timed("short", 9, 0, 9, 30),
			timed("long", 9, 0, 11, 0),
			timed("alpha", 9, 0, 9, 30),
		}, testDay, time.UTC, hours))
		assert.Equal(t, 0, out["long"].Column)
		assert.Equal(t, 1, out["alpha"].Column)
		assert.Equal(t, 2, out["short"].Column)
	})
}

func TestDay_ClipsToVisibleHours(t *testing.T) {
	hours := model.HourRange{Start: 8, End: 18}
	out := byID(Day([]model.Event{
		timed("early", 7, 0, 9, 0),
		timed("late", 17, 0, 20, 0),
		timed("hidden", 5, 0, 6, 0),
	}, testDay, time.UTC, hours))

	require.Len(t, out, 2)
	assert.InDelta(t, 0.0, out["early"].Top, 1e-9)
	assert.InDelta(t, 0.1, out["early"].Height, 1e-9)
	assert.InDelta(t, 0.9, out["late"].Top, 1e-9)
	assert.InDelta(t, 0.1, out["late"].Height, 1e-9)
}

func TestDay_SkipsAllDayMultiDayAndOtherDays(t *testing.T) {
	allDay := model.Event{ID: "ad", AllDay: true, Start: testDay.In(time.UTC), End: testDay.AddDays(1).In(time.UTC)}
	multi := model.Event{ID: "md", Start: testDay.At(22, 0, time.UTC), End: testDay.AddDays(1).At(2, 0, time.UTC)}
	tomorrow := model.Event{ID: "tm", Start: testDay.AddDays(1).At(9, 0, time.UTC), End: testDay.AddDays(1).At(10, 0, time.UTC)}

	out := Day([]model.Event{allDay, multi, tomorrow, timed("x", 9, 0, 10, 0)}, testDay, time.UTC, model.DefaultHours)
	require.Len(t, out, 1)
	assert.Equal(t, "x", out[0].Event.ID)
}

func TestDay_InvalidIntervalIsOneMinute(t *testing.T) {
	ev := timed("bad", 9, 0, 9, 0)
	out := Day([]model.Event{ev, timed("next", 9, 1, 9, 30)}, testDay, time.UTC, model.DefaultHours)
	require.Len(t, out, 2)
	assert.InDelta(t, float64(time.Minute)/float64(24*time.Hour), out[0].Height, 1e-9)
	// The stale event ends at 9:01 so "next" does not overlap it.
	assert.Equal(t, 1, out[1].ColumnCount)
}

func TestDay_DoesNotMutateInput(t *testing.T) {
	events := []model.Event{timed("b", 10, 0, 11, 0), timed("a", 9, 0, 10, 30)}
	_ = Day(events, testDay, time.UTC, model.DefaultHours)
	assert.Equal(t, "b", events[0].ID)
	assert.Equal(t, "a", events[1].ID)
}

// randomDay builds a reproducible set of short events on testDay.
func randomDay(r *rand.Rand, n int) []model.Event {
	events := make([]model.Event, n)
	for i := range events {
		startSlot := r.Intn(80)
		length := 1 + r.Intn(12)
		start := testDay.At(0, 0, time.UTC).Add(time.Duration(startSlot) * 15 * time.Minute)
		events[i] = model.Event{
			ID:    fmt.Sprintf("e%03d", i),
			Start: start,
			End:   start.Add(time.Duration(length) * 15 * time.Minute),
		}
	}
	return events
}

func overlaps(a, b model.Event) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// maxConcurrent returns the largest number of events active at one instant.
func maxConcurrent(events []model.Event) int {
	type edge struct {
		at    time.Time
		delta int
	}
	edges := make([]edge, 0, 2*len(events))
	for _, e := range events {
		edges = append(edges, edge{e.Start, 1}, edge{e.End, -1})
	}
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].at.Equal(edges[j].at) {
			return edges[i].at.Before(edges[j].at)
		}
		return edges[i].delta < edges[j].delta
	})
	cur, best := 0, 0
	for _, e := range edges {
		cur += e.delta
		if cur > best {
			best = cur
		}
	}
	return best
}

// clusters groups positioned events into transitive overlap clusters.
func clusters(out []model.PositionedEvent) [][]model.PositionedEvent {
	var groups [][]model.PositionedEvent
	var end time.Time
	for _, p := range out {
		if len(groups) == 0 || !p.Event.Start.Before(end) {
			groups = append(groups, nil)
			end = p.Event.End
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], p)
		if p.Event.End.After(end) {
			end = p.Event.End
		}
	}
	return groups
}

func TestDay_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		events := randomDay(r, 5+r.Intn(25))
		out := Day(events, testDay, time.UTC, model.DefaultHours)
		require.Len(t, out, len(events))

		// No two events in the same column overlap.
		for i := range out {
			for j := i + 1; j < len(out); j++ {
				if out[i].Column == out[j].Column && out[i].ColumnCount == out[j].ColumnCount {
					assert.False(t, overlaps(out[i].Event, out[j].Event),
						"round %d: %s and %s share column %d", round, out[i].Event.ID, out[j].Event.ID, out[i].Column)
				}
			}
		}

		// Each cluster uses exactly as many columns as its peak concurrency.
		for _, group := range clusters(out) {
			evs := make([]model.Event, len(group))
			for i, p := range group {
				evs[i] = p.Event
				assert.Less(t, p.Column, p.ColumnCount)
			}
			assert.Equal(t, maxConcurrent(evs), group[0].ColumnCount, "round %d", round)
		}

		// Any permutation of the input yields identical assignments.
		shuffled := append([]model.Event(nil), events...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		again := Day(shuffled, testDay, time.UTC, model.DefaultHours)
		assert.Equal(t, out, again, "round %d", round)
	}
}
