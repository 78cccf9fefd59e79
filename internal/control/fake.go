package control

import "errors"

// FakeSource returns scripted readings; the last one repeats when the
// script is exhausted.
type FakeSource struct {
	// Readings contains the scripted raw values.
	Readings []int

	// index tracks the current position in Readings.
	index int

	// Closed tracks if Close was called.
	Closed bool

	// ReadError, if set, will be returned by Read.
	ReadError error
}

// NewFakeSource creates a FakeSource with the given readings.
func NewFakeSource(readings ...int) *FakeSource {
	return &FakeSource{Readings: readings}
}

// Read returns the next scripted reading.
func (f *FakeSource) Read() (int, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Readings) == 0 {
		return 0, errors.New("no readings configured")
	}
	v := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}
	return v, nil
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.Closed = true
	return nil
}
