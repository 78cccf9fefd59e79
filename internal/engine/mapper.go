package engine

// MapLevel converts a raw control reading into a phase-delay level inside
// the calibrated bounds. Readings above the off threshold map to OffLevel,
// which the safety timeout guarantees can never fire. Everything else is
// clamped to the usable sub-range and scaled linearly: low readings give
// the minimum delay (full brightness), high readings the maximum delay.
func MapLevel(raw int, cal Result, p Params) uint32 {
	if raw > p.ADCOffThreshold {
		return p.OffLevel
	}
	if raw < 0 {
		raw = 0
	}
	if raw > p.ADCUsableMax {
		raw = p.ADCUsableMax
	}
	span := cal.MaxDelay - cal.MinDelay
	return cal.MinDelay + uint32(raw)*span/uint32(p.ADCUsableMax)
}

// LevelPercent expresses a level as delivered-power percent for telemetry:
// the minimum delay is 100%, the maximum delay is 0%, and anything at or
// beyond the safety timeout (the off level included) is 0%.
func LevelPercent(level uint32, cal Result, p Params) float64 {
	if level > p.SafetyTimeoutTicks {
		return 0
	}
	if level <= cal.MinDelay {
		return 100
	}
	if level >= cal.MaxDelay {
		return 0
	}
	span := float64(cal.MaxDelay - cal.MinDelay)
	return 100 * float64(cal.MaxDelay-level) / span
}
