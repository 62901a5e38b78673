package nowline

import (
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"teamcal/internal/clock"
	appLog "teamcal/internal/log"
	"teamcal/internal/model"
)

// DefaultSchedule re-derives the indicator once a minute.
const DefaultSchedule = "@every 1m"

// ErrAlreadyStarted is returned by Start on a running ticker.
var ErrAlreadyStarted = errors.New("nowline: ticker already started")

// TickFunc receives every recomputed indicator.
type TickFunc func(Indicator)

// Ticker recomputes today's indicator on a cron schedule, independent of
// user input. The last value is available through Latest. All methods are
// safe for concurrent use.
type Ticker struct {
	clock    clock.Clock
	loc      *time.Location
	hours    model.HourRange
	schedule string
	onTick   TickFunc

	// lifecycle guards cron; it is separate from mu so Stop can wait for a
	// running Tick without holding the indicator lock.
	lifecycle sync.Mutex
	cron      *cron.Cron

	mu     sync.RWMutex
	latest Indicator
}

// NewTicker builds a ticker for the display zone. An empty schedule uses
// DefaultSchedule.
func NewTicker(c clock.Clock, loc *time.Location, hours model.HourRange, schedule string, onTick TickFunc) *Ticker {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if loc == nil {
		loc = time.Local
	}
	return &Ticker{
		clock:    c,
		loc:      loc,
		hours:    hours.Normalize(),
		schedule: schedule,
		onTick:   onTick,
	}
}

// Start computes once immediately and then on every scheduled tick. Starting
// a running ticker returns ErrAlreadyStarted.
func (t *Ticker) Start() error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	if t.cron != nil {
		return ErrAlreadyStarted
	}

	c := cron.New(cron.WithLocation(t.loc))
	if _, err := c.AddFunc(t.schedule, t.Tick); err != nil {
		return err
	}
	t.cron = c
	t.Tick()
	c.Start()
	appLog.Info("now-line ticker started", "schedule", t.schedule, "timezone", t.loc.String())
	return nil
}

// Stop halts the schedule and waits for a running tick to finish.
func (t *Ticker) Stop() {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	if t.cron == nil {
		return
	}
	<-t.cron.Stop().Done()
	t.cron = nil
}

// Tick recomputes the indicator for today and notifies the callback.
func (t *Ticker) Tick() {
	now := t.clock.Now()
	ind := Compute(now, model.DateOf(now.In(t.loc)), t.loc, t.hours)

	t.mu.Lock()
	t.latest = ind
	t.mu.Unlock()

	if t.onTick != nil {
		t.onTick(ind)
	}
}

// Latest returns the most recent indicator.
func (t *Ticker) Latest() Indicator {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest
}
