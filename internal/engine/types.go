// Package engine contains the pure phase-control core for an AC dimmer.
// This package has NO external dependencies (no GPIO, MQTT, OS, or timers).
// It is driven one tick at a time; a tick is one period of the caller's
// fixed-rate time base (50 µs on the reference hardware). Everything in
// here is integer tick arithmetic so the per-tick path never allocates.
package engine

// PhaseState is the position of the controller within an AC half-cycle.
type PhaseState uint8

const (
	// StateIdle waits for an accepted zero-cross edge.
	StateIdle PhaseState = iota
	// StateOffset compensates the fixed delay of the sense circuit.
	StateOffset
	// StateDelay counts out the phase delay before firing the gate.
	StateDelay
	// StateTrigger holds the gate pulse for a fixed width.
	StateTrigger
)

// String returns the state name for logs and the status page.
func (s PhaseState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateOffset:
		return "OFFSET"
	case StateDelay:
		return "DELAY"
	case StateTrigger:
		return "TRIGGER"
	}
	return "UNKNOWN"
}

// Event describes what, if anything, happened on a tick.
type Event uint8

const (
	// EventNone means the tick only advanced counters.
	EventNone Event = iota
	// EventEdgeAccepted means a rising sense edge passed the noise gate.
	EventEdgeAccepted
	// EventEdgeRejected means a rising sense edge was inside the noise gate
	// or arrived during the gate pulse.
	EventEdgeRejected
	// EventTriggered means the gate output was asserted this tick.
	EventTriggered
	// EventSafetyTimeout means the delay ran out without firing; the output
	// was forced off and the controller returned to idle.
	EventSafetyTimeout
	// EventRecovered means the controller found itself in an unknown state
	// and reset defensively.
	EventRecovered
)

// String returns the event name.
func (e Event) String() string {
	switch e {
	case EventNone:
		return "NONE"
	case EventEdgeAccepted:
		return "EDGE_ACCEPTED"
	case EventEdgeRejected:
		return "EDGE_REJECTED"
	case EventTriggered:
		return "TRIGGERED"
	case EventSafetyTimeout:
		return "SAFETY_TIMEOUT"
	case EventRecovered:
		return "RECOVERED"
	}
	return "UNKNOWN"
}

// Output is the result of processing one tick. It is a value type so the
// tick path stays allocation-free.
type Output struct {
	// Gate is the desired level of the triac gate drive output.
	Gate bool
	// Diag is the desired level of the diagnostic indicator. It toggles
	// once per accepted zero-cross.
	Diag bool
	// Event is what happened on this tick.
	Event Event
}

// Result holds the delay bounds derived by boot-time calibration.
// It is immutable once calibration completes.
type Result struct {
	// MinDelay is the smallest usable phase delay in ticks (full brightness).
	MinDelay uint32
	// MaxDelay is the largest usable phase delay in ticks (minimum brightness).
	MaxDelay uint32
	// AvgHalfCycle is the measured average half-cycle length in ticks.
	AvgHalfCycle uint32
}

// Params are the fixed timing constants consumed by the engine. They are
// compile-time parameters on the reference hardware; here they are named,
// overridable values so 50 Hz and 60 Hz mains (and test rigs) can share
// the same code.
type Params struct {
	// TickMicros is the tick quantum in microseconds. The engine itself
	// never uses wall time; this is carried for the caller's timer setup
	// and for display.
	TickMicros int

	// OffsetTicks compensates the sense-circuit delay after a zero-cross.
	OffsetTicks uint32
	// TriggerPulseTicks is the gate pulse width.
	TriggerPulseTicks uint32
	// SafetyTimeoutTicks bounds the time spent in the delay state. A level
	// above this value never fires.
	SafetyTimeoutTicks uint32
	// MinZCPeriodTicks is the noise gate: a rising edge closer than this
	// to the previous accepted edge is rejected.
	MinZCPeriodTicks uint32
	// OffLevel is the level used for "output disabled". It must exceed
	// SafetyTimeoutTicks.
	OffLevel uint32

	// NominalHalfCycleTicks is the expected half-cycle length used to
	// bound plausible calibration samples (166 ticks = 8.3 ms at 50 µs,
	// i.e. 60 Hz mains; 50 Hz measures 200 and still fits the window).
	NominalHalfCycleTicks uint32
	// CalibrationSamples is the number of accepted half-cycle measurements
	// averaged at boot.
	CalibrationSamples int
	// CalibrationMarginTicks is subtracted from the measured half-cycle to
	// form the maximum delay.
	CalibrationMarginTicks uint32
	// MinDelayNum/MinDelayDen express the minimum delay as a fraction of a
	// nominal half-cycle.
	MinDelayNum uint32
	MinDelayDen uint32
	// Clamp bounds for the derived delays. These tolerate both mains
	// frequencies plus clock drift.
	MinDelayClampLo uint32
	MinDelayClampHi uint32
	MaxDelayClampLo uint32
	MaxDelayClampHi uint32

	// ADCMax is the full-scale raw control reading.
	ADCMax int
	// ADCOffThreshold disables the output: readings above it map to OffLevel.
	ADCOffThreshold int
	// ADCUsableMax is the top of the linear control range. Readings between
	// ADCUsableMax and ADCOffThreshold clamp to maximum delay.
	ADCUsableMax int
}

// DefaultParams returns the reference-hardware constants: a 50 µs tick
// against 60 Hz mains.
func DefaultParams() Params {
	return Params{
		TickMicros:            50,
		OffsetTicks:           8,
		TriggerPulseTicks:     10,
		SafetyTimeoutTicks:    200,
		MinZCPeriodTicks:      100,
		OffLevel:              255,
		NominalHalfCycleTicks: 166,
		CalibrationSamples:    8,

		CalibrationMarginTicks: 9,
		MinDelayNum:            62,
		MinDelayDen:            166,
		MinDelayClampLo:        50,
		MinDelayClampHi:        80,
		MaxDelayClampLo:        156,
		MaxDelayClampHi:        195,

		ADCMax:          1023,
		ADCOffThreshold: 1000,
		ADCUsableMax:    960,
	}
}

// Validate reports configuration mistakes that would defeat the safety
// properties of the engine.
func (p Params) Validate() error {
	if p.TriggerPulseTicks == 0 {
		return errZeroPulse
	}
	if p.OffLevel <= p.SafetyTimeoutTicks {
		return errOffReachable
	}
	if p.SafetyTimeoutTicks <= p.MaxDelayClampHi {
		return errSafetyTooShort
	}
	if p.MinZCPeriodTicks >= p.NominalHalfCycleTicks {
		return errGateTooWide
	}
	if p.CalibrationSamples <= 0 {
		return errNoSamples
	}
	if p.MinDelayDen == 0 {
		return errZeroDenominator
	}
	if p.ADCUsableMax <= 0 || p.ADCUsableMax > p.ADCMax || p.ADCOffThreshold > p.ADCMax {
		return errADCRange
	}
	return nil
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
