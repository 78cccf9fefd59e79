// Package control reads the raw dimming input level. The real source is an
// ADC channel exposed through the Linux IIO sysfs interface (the Pi has no
// on-chip ADC; a potentiometer hangs off an MCP3008 or similar). The fake
// source allows testing without hardware.
package control

// Source produces raw dimming readings in the engine's ADC domain
// (0..Params.ADCMax).
type Source interface {
	// Read returns the current raw control reading.
	Read() (int, error)

	// Close releases the source.
	Close() error
}
