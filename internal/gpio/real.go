//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealLines drives actual hardware through the Linux GPIO character device.
type RealLines struct {
	chip  *gpiocdev.Chip
	sense *gpiocdev.Line
	gate  *gpiocdev.Line
	diag  *gpiocdev.Line
}

// NewRealLines requests the dimmer's lines from gpiochip0. The sense pin is
// an input with pull-down to match the optocoupler's open-collector output;
// gate and diag start driven low. Pass diagPin < 0 to skip the indicator.
func NewRealLines(sensePin, gatePin, diagPin int) (*RealLines, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	sense, err := chip.RequestLine(sensePin, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request sense pin %d: %w", sensePin, err)
	}

	gate, err := chip.RequestLine(gatePin, gpiocdev.AsOutput(0))
	if err != nil {
		sense.Close()
		chip.Close()
		return nil, fmt.Errorf("request gate pin %d: %w", gatePin, err)
	}

	var diag *gpiocdev.Line
	if diagPin >= 0 {
		diag, err = chip.RequestLine(diagPin, gpiocdev.AsOutput(0))
		if err != nil {
			gate.Close()
			sense.Close()
			chip.Close()
			return nil, fmt.Errorf("request diag pin %d: %w", diagPin, err)
		}
	}

	return &RealLines{
		chip:  chip,
		sense: sense,
		gate:  gate,
		diag:  diag,
	}, nil
}

// ReadSense samples the zero-cross input.
func (l *RealLines) ReadSense() (bool, error) {
	v, err := l.sense.Value()
	if err != nil {
		return false, fmt.Errorf("read sense pin: %w", err)
	}
	return v != 0, nil
}

// SetGate drives the gate output.
func (l *RealLines) SetGate(on bool) error {
	if err := l.gate.SetValue(boolToValue(on)); err != nil {
		return fmt.Errorf("set gate pin: %w", err)
	}
	return nil
}

// SetDiag drives the diagnostic indicator, if one was requested.
func (l *RealLines) SetDiag(on bool) error {
	if l.diag == nil {
		return nil
	}
	if err := l.diag.SetValue(boolToValue(on)); err != nil {
		return fmt.Errorf("set diag pin: %w", err)
	}
	return nil
}

// Close forces the gate low, reconfigures the outputs back to inputs with
// pull-down (matching Pi boot defaults) and releases everything. The gate
// must never be left asserted across process exit.
func (l *RealLines) Close() error {
	var errs []error

	if l.gate != nil {
		if err := l.gate.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("lower gate pin: %w", err))
		}
		if err := l.gate.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure gate pin: %w", err))
		}
		if err := l.gate.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gate pin: %w", err))
		}
	}
	if l.diag != nil {
		if err := l.diag.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("lower diag pin: %w", err))
		}
		if err := l.diag.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure diag pin: %w", err))
		}
		if err := l.diag.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close diag pin: %w", err))
		}
	}
	if l.sense != nil {
		if err := l.sense.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sense pin: %w", err))
		}
	}
	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func boolToValue(on bool) int {
	if on {
		return 1
	}
	return 0
}
