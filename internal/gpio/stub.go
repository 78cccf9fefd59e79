//go:build !linux

package gpio

import "errors"

// RealLines is not available on non-Linux platforms.
type RealLines struct{}

// NewRealLines returns an error on non-Linux platforms.
func NewRealLines(sensePin, gatePin, diagPin int) (*RealLines, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// ReadSense is not implemented on non-Linux platforms.
func (l *RealLines) ReadSense() (bool, error) {
	return false, errors.New("gpio: not supported")
}

// SetGate is not implemented on non-Linux platforms.
func (l *RealLines) SetGate(on bool) error {
	return errors.New("gpio: not supported")
}

// SetDiag is not implemented on non-Linux platforms.
func (l *RealLines) SetDiag(on bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (l *RealLines) Close() error {
	return nil
}
