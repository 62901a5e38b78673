// Package gesture implements drag-to-create on the time grid: pointer down
// drops a one-hour ghost event, dragging past a small threshold resizes it
// in snapped steps, pointer up promotes it to a create request.
package gesture

import (
	"math"
	"sync"
	"time"

	appLog "teamcal/internal/log"
	"teamcal/internal/model"
)

const (
	DefaultSnap          = 15 * time.Minute
	DefaultDuration      = time.Hour
	DefaultMinDuration   = 15 * time.Minute
	DefaultDragThreshold = 5.0 // pixels
)

// Phase is the machine state. Dragging is a sub-mode of creating.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCreating
	PhaseDragging
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCreating:
		return "creating"
	case PhaseDragging:
		return "dragging"
	default:
		return "unknown"
	}
}

// Button identifies the pointer button of a pointer-down.
type Button int

const (
	ButtonPrimary Button = iota
	ButtonMiddle
	ButtonSecondary
)

// Pointer is a pointer event position in grid pixels.
type Pointer struct {
	X, Y   float64
	Button Button
}

// Cell is the grid cell under a pointer-down. When Time is zero it is
// derived from the pointer's vertical position.
type Cell struct {
	Grid           Grid
	Time           time.Time
	DayColumnIndex *int
}

// Option configures a Machine.
type Option func(*Machine)

func WithSnap(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.snap = d
		}
	}
}

func WithDefaultDuration(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.defaultDur = d
		}
	}
}

func WithMinDuration(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.minDur = d
		}
	}
}

func WithDragThreshold(px float64) Option {
	return func(m *Machine) {
		if px >= 0 {
			m.threshold = px
		}
	}
}

// WithOnCreate registers the create-request callback. It runs after the
// machine is back to idle and outside its lock.
func WithOnCreate(fn func(model.Draft)) Option {
	return func(m *Machine) {
		m.onCreate = fn
	}
}

// Machine owns at most one ghost event. It is safe for concurrent use, but
// events are expected in arrival order from a single input source.
type Machine struct {
	mu sync.Mutex

	snap       time.Duration
	defaultDur time.Duration
	minDur     time.Duration
	threshold  float64
	onCreate   func(model.Draft)

	phase  Phase
	grid   Grid
	origin Pointer
	anchor time.Time
	ghost  model.GhostEvent
}

func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		snap:       DefaultSnap,
		defaultDur: DefaultDuration,
		minDur:     DefaultMinDuration,
		threshold:  DefaultDragThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Ghost returns a copy of the current ghost event, if any.
func (m *Machine) Ghost() (model.GhostEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseIdle {
		return model.GhostEvent{}, false
	}
	return copyGhost(m.ghost), true
}

// PointerDown starts a gesture on cell. Only the primary button is honored.
// A gesture already in progress is discarded.
func (m *Machine) PointerDown(cell Cell, p Pointer) bool {
	if p.Button != ButtonPrimary {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseIdle {
		appLog.Debug("gesture: new pointer-down replaces active ghost", "phase", m.phase.String())
	}

	at := cell.Time
	if at.IsZero() {
		at = cell.Grid.TimeAt(p.Y)
	}

	m.grid = cell.Grid
	m.origin = p
	m.anchor = m.grid.Clamp(Snap(at.In(m.grid.location()), m.snap))
	m.phase = PhaseCreating

	start, end := m.fit(m.anchor, m.anchor.Add(m.defaultDur))
	m.ghost = model.GhostEvent{StartTime: start, EndTime: end}
	if cell.DayColumnIndex != nil {
		i := *cell.DayColumnIndex
		m.ghost.DayColumnIndex = &i
	}
	return true
}

// PointerMove resizes the ghost once the pointer has travelled at least the
// drag threshold from the pointer-down position. The new edge is computed
// from the absolute pointer position, so fast moves may skip intermediate
// snap points; only the final snapped value is ever shown or committed.
func (m *Machine) PointerMove(p Pointer) (model.GhostEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == PhaseIdle {
		return model.GhostEvent{}, false
	}
	if m.phase == PhaseCreating {
		if math.Hypot(p.X-m.origin.X, p.Y-m.origin.Y) < m.threshold {
			return copyGhost(m.ghost), true
		}
		m.phase = PhaseDragging
	}

	candidate := m.grid.Clamp(Snap(m.grid.TimeAt(p.Y), m.snap))
	m.ghost.StartTime, m.ghost.EndTime = m.resize(candidate)
	return copyGhost(m.ghost), true
}

// PointerUp promotes the ghost to a create request and returns to idle. A
// pointer-up without an active gesture is ignored.
func (m *Machine) PointerUp() (model.Draft, bool) {
	m.mu.Lock()
	if m.phase == PhaseIdle {
		m.mu.Unlock()
		appLog.Debug("gesture: stale pointer-up ignored")
		return model.Draft{}, false
	}
	draft := model.DraftFromGhost(m.ghost)
	dragged := m.phase == PhaseDragging
	m.reset()
	onCreate := m.onCreate
	m.mu.Unlock()

	appLog.Debug("gesture: create requested",
		"start", draft.Start.Format(time.RFC3339),
		"end", draft.End.Format(time.RFC3339),
		"dragged", dragged,
	)
	if onCreate != nil {
		onCreate(draft)
	}
	return draft, true
}

// Escape discards the ghost. Idempotent.
func (m *Machine) Escape() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

// Close discards any ghost on teardown of the owning view.
func (m *Machine) Close() {
	m.Escape()
}

func (m *Machine) reset() {
	m.phase = PhaseIdle
	m.ghost = model.GhostEvent{}
	m.anchor = time.Time{}
	m.origin = Pointer{}
}

// resize builds the ghost from the fixed anchor and the candidate edge.
// Dragging above the anchor swaps their roles. The minimum duration is
// enforced by pushing the far edge away from the anchor.
func (m *Machine) resize(candidate time.Time) (time.Time, time.Time) {
	gridStart, gridEnd := m.grid.Bounds()

	if !candidate.Before(m.anchor) {
		start, end := m.anchor, candidate
		if end.Sub(start) < m.minDur {
			end = start.Add(m.minDur)
		}
		if end.After(gridEnd) {
			end = gridEnd
			start = end.Add(-m.minDur)
		}
		return start, end
	}

	start, end := candidate, m.anchor
	if end.Sub(start) < m.minDur {
		start = end.Add(-m.minDur)
	}
	if start.Before(gridStart) {
		start = gridStart
		end = start.Add(m.minDur)
	}
	return start, end
}

// fit clamps a default ghost into the grid without dropping below the
// minimum duration.
func (m *Machine) fit(start, end time.Time) (time.Time, time.Time) {
	gridStart, gridEnd := m.grid.Bounds()
	if end.After(gridEnd) {
		end = gridEnd
	}
	if end.Sub(start) < m.minDur {
		start = end.Add(-m.minDur)
		if start.Before(gridStart) {
			start = gridStart
		}
	}
	return start, end
}

func copyGhost(g model.GhostEvent) model.GhostEvent {
	out := g
	if g.DayColumnIndex != nil {
		i := *g.DayColumnIndex
		out.DayColumnIndex = &i
	}
	return out
}
