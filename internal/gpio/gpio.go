// Package gpio provides the dimmer's digital I/O with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Lines is the set of digital signals the dimmer uses: the zero-cross
// sense input, the triac gate drive output, and an optional diagnostic
// indicator output.
type Lines interface {
	// ReadSense returns the logical level of the zero-cross sense input
	// (active-high after external isolation).
	ReadSense() (bool, error)

	// SetGate drives the gate output. The caller only invokes this on
	// level changes, so an implementation may assume two calls per
	// half-cycle at most.
	SetGate(on bool) error

	// SetDiag drives the diagnostic indicator.
	SetDiag(on bool) error

	// Close forces the gate low and releases GPIO resources.
	Close() error
}

// Default pin assignments (BCM numbering).
const (
	DefaultPinSense = 17 // zero-cross optocoupler output
	DefaultPinGate  = 27 // triac driver (MOC3021 or similar)
	DefaultPinDiag  = 22 // per-zero-cross indicator LED
)
