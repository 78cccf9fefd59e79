package engine

import "errors"

var (
	errZeroPulse       = errors.New("engine: trigger pulse width must be at least one tick")
	errOffReachable    = errors.New("engine: off level must exceed the safety timeout")
	errSafetyTooShort  = errors.New("engine: safety timeout must exceed the maximum delay clamp")
	errGateTooWide     = errors.New("engine: noise gate must be shorter than a half-cycle")
	errNoSamples       = errors.New("engine: calibration sample count must be positive")
	errZeroDenominator = errors.New("engine: minimum delay ratio denominator must be nonzero")
	errADCRange        = errors.New("engine: control input range is inconsistent")
)
