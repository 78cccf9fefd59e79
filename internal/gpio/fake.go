package gpio

import "errors"

// FakeLines is a test double: the sense input replays a scripted waveform
// one sample per ReadSense call, and every output write is recorded.
type FakeLines struct {
	// Sense contains the scripted sense waveform, one sample per tick.
	// When exhausted, the last sample repeats.
	Sense []bool

	// index tracks the current position in Sense.
	index int

	// Gate and Diag hold the most recently written output levels.
	Gate bool
	Diag bool

	// GateWrites records every SetGate call in order.
	GateWrites []bool

	// DiagWrites records every SetDiag call in order.
	DiagWrites []bool

	// Closed tracks if Close was called.
	Closed bool

	// ReadError, if set, will be returned by ReadSense.
	ReadError error

	// WriteError, if set, will be returned by SetGate and SetDiag.
	WriteError error
}

// NewFakeLines creates a FakeLines replaying the given sense waveform.
func NewFakeLines(sense []bool) *FakeLines {
	return &FakeLines{Sense: sense}
}

// ReadSense returns the next scripted sample.
func (f *FakeLines) ReadSense() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Sense) == 0 {
		return false, errors.New("no sense waveform configured")
	}
	s := f.Sense[f.index]
	if f.index < len(f.Sense)-1 {
		f.index++
	}
	return s, nil
}

// SetGate records the gate level.
func (f *FakeLines) SetGate(on bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Gate = on
	f.GateWrites = append(f.GateWrites, on)
	return nil
}

// SetDiag records the diag level.
func (f *FakeLines) SetDiag(on bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Diag = on
	f.DiagWrites = append(f.DiagWrites, on)
	return nil
}

// Close marks the lines as closed.
func (f *FakeLines) Close() error {
	f.Gate = false
	f.Closed = true
	return nil
}

// Reset rewinds the waveform and clears recorded writes.
func (f *FakeLines) Reset() {
	f.index = 0
	f.Gate = false
	f.Diag = false
	f.GateWrites = nil
	f.DiagWrites = nil
	f.Closed = false
}

// MainsWaveform builds a sense waveform with rising edges spaced period
// ticks apart, each held high for highTicks, for the given number of
// half-cycles. Useful for driving the engine in tests.
func MainsWaveform(period, highTicks, cycles int) []bool {
	w := make([]bool, period*cycles)
	for c := 0; c < cycles; c++ {
		for i := 0; i < highTicks && c*period+i < len(w); i++ {
			w[c*period+i] = true
		}
	}
	return w
}
