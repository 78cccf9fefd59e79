package engine

import "sync/atomic"

// debounceCeiling is where the saturating since-last-edge counter stops.
// It only has to stay comfortably above MinZCPeriodTicks.
const debounceCeiling = 1 << 30

// Controller is the tick-driven phase-control state machine. Exactly one
// goroutine (the tick loop) may call Tick; any other goroutine may call
// SetLevel concurrently. All other methods belong to the tick loop.
type Controller struct {
	params Params

	state    PhaseState
	phase    uint32 // ticks within the current state
	debounce uint32 // ticks since the last accepted edge, saturating

	lastSense bool
	gate      bool
	diag      bool

	// level is the shared phase-delay target. The tick path only loads it,
	// the background path only stores it, so a torn read is impossible.
	level atomic.Uint32

	// observed mirrors state for readers outside the tick loop.
	observed atomic.Uint32
}

// NewController creates a controller in the idle state with the output
// disabled. The first plausible edge is accepted immediately: the debounce
// counter starts saturated.
func NewController(p Params) *Controller {
	c := &Controller{
		params:   p,
		state:    StateIdle,
		debounce: debounceCeiling,
	}
	c.level.Store(p.OffLevel)
	return c
}

// SetLevel publishes a new phase-delay target. It is the only write path
// across the concurrency boundary; the store is atomic so the tick context
// never observes a partial value. The new level takes effect no later than
// the next tick.
func (c *Controller) SetLevel(v uint32) {
	c.level.Store(v)
}

// Level returns the current phase-delay target.
func (c *Controller) Level() uint32 {
	return c.level.Load()
}

// PrimeSense seeds the edge detector with the current input level. Call it
// once before the first Tick when taking over the sense line mid-stream
// (e.g. from the calibrator), so an ongoing high pulse is not mistaken for
// a fresh rising edge.
func (c *Controller) PrimeSense(sense bool) {
	c.lastSense = sense
}

// State returns the current phase state. Tick-loop context only.
func (c *Controller) State() PhaseState {
	return c.state
}

// ObservedState returns the phase state as of the last completed tick.
// Safe to call from any goroutine.
func (c *Controller) ObservedState() PhaseState {
	return PhaseState(c.observed.Load())
}

// Tick processes one timer period given the current zero-cross sense sample.
// It is branch-bounded and allocation-free; the caller must invoke it from a
// single goroutine at the fixed tick rate.
func (c *Controller) Tick(sense bool) Output {
	rising := sense && !c.lastSense
	c.lastSense = sense

	if c.debounce < debounceCeiling {
		c.debounce++
	}

	rejected := false
	if rising {
		// Edges during the gate pulse are ignored outright so the pulse
		// width is never cut short. Everywhere else an accepted edge
		// re-arms the cycle from the top.
		if c.state != StateTrigger && c.debounce >= c.params.MinZCPeriodTicks {
			c.debounce = 0
			c.phase = 0
			c.gate = false
			c.diag = !c.diag
			c.state = StateOffset
			return c.output(EventEdgeAccepted)
		}
		// A rejected edge causes no state change, but the tick itself
		// still elapses: fall through to the normal counting below.
		rejected = true
	}

	ev := c.advance()
	if ev == EventNone && rejected {
		ev = EventEdgeRejected
	}
	return c.output(ev)
}

// advance runs one tick of the state machine proper, after edge handling.
func (c *Controller) advance() Event {
	switch c.state {
	case StateIdle:
		// Nothing to do until an edge arrives.
		return EventNone

	case StateOffset:
		c.phase++
		if c.phase < c.params.OffsetTicks {
			return EventNone
		}
		c.phase = 0
		c.state = StateDelay
		// A zero delay fires on the same tick the offset completes.
		return c.evalDelay()

	case StateDelay:
		c.phase++
		return c.evalDelay()

	case StateTrigger:
		c.phase++
		if c.phase >= c.params.TriggerPulseTicks {
			c.gate = false
			c.phase = 0
			c.state = StateIdle
		}
		return EventNone
	}

	// Unknown state value: force everything safe and start over.
	c.gate = false
	c.phase = 0
	c.state = StateIdle
	return EventRecovered
}

// evalDelay decides whether the delay state fires, times out, or keeps
// counting. The trigger comparison runs first: the safety timeout only
// matters for levels it can never reach (the off level included).
func (c *Controller) evalDelay() Event {
	if c.phase >= c.level.Load() {
		c.gate = true
		c.phase = 0
		c.state = StateTrigger
		return EventTriggered
	}
	if c.phase >= c.params.SafetyTimeoutTicks {
		c.gate = false
		c.phase = 0
		c.state = StateIdle
		return EventSafetyTimeout
	}
	return EventNone
}

func (c *Controller) output(ev Event) Output {
	c.observed.Store(uint32(c.state))
	return Output{Gate: c.gate, Diag: c.diag, Event: ev}
}
