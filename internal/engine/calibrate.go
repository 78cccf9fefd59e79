package engine

// Calibrator measures the mains half-cycle period at boot and derives the
// safe phase-delay bounds. It is fed one tick at a time, exactly like the
// controller, and finishes after CalibrationSamples plausible half-cycle
// measurements have been averaged. It never gives up on its own: if valid
// samples never accumulate, Tick keeps returning done=false and the caller
// decides whether to wait forever or fall back (see FallbackResult).
type Calibrator struct {
	params Params

	synced    bool
	lastSense bool
	sinceEdge uint32

	sum   uint32
	count int

	windowLo uint32
	windowHi uint32
}

// NewCalibrator creates a calibrator that accepts half-cycle measurements
// within 70-130% of the nominal half-cycle length.
func NewCalibrator(p Params) *Calibrator {
	return &Calibrator{
		params:   p,
		windowLo: p.NominalHalfCycleTicks * 70 / 100,
		windowHi: p.NominalHalfCycleTicks * 130 / 100,
	}
}

// Tick processes one tick sample. Once enough plausible half-cycles have
// been measured it returns the derived bounds and done=true; after that the
// calibrator must not be ticked again.
func (c *Calibrator) Tick(sense bool) (Result, bool) {
	rising := sense && !c.lastSense
	c.lastSense = sense

	if !c.synced {
		// First edge only synchronizes the measurement; it bounds no
		// half-cycle on its own.
		if rising {
			c.synced = true
			c.sinceEdge = 0
		}
		return Result{}, false
	}

	// The tick carrying the closing edge belongs to the half-cycle, exactly
	// as the controller's debounce counter sees it.
	c.sinceEdge++

	if !rising {
		return Result{}, false
	}

	period := c.sinceEdge
	c.sinceEdge = 0

	if period < c.windowLo || period > c.windowHi {
		// Glitch or dropout: discard without counting toward the sample
		// budget. The measurement base still restarts at this edge.
		return Result{}, false
	}

	c.sum += period
	c.count++
	if c.count < c.params.CalibrationSamples {
		return Result{}, false
	}

	return c.params.derive(c.sum / uint32(c.params.CalibrationSamples)), true
}

// Accepted returns how many plausible samples have been collected so far.
func (c *Calibrator) Accepted() int {
	return c.count
}

// LastSense returns the most recent sense sample fed to the calibrator, so
// the controller taking over the input can seed its edge detector instead of
// mistaking an ongoing pulse for a fresh edge.
func (c *Calibrator) LastSense() bool {
	return c.lastSense
}

// derive turns an averaged half-cycle length into clamped delay bounds.
func (p Params) derive(avg uint32) Result {
	maxDelay := clamp(avg-p.CalibrationMarginTicks, p.MaxDelayClampLo, p.MaxDelayClampHi)
	minDelay := clamp(avg*p.MinDelayNum/p.MinDelayDen-1, p.MinDelayClampLo, p.MinDelayClampHi)
	return Result{
		MinDelay:     minDelay,
		MaxDelay:     maxDelay,
		AvgHalfCycle: avg,
	}
}

// FallbackResult returns the bounds derived from the nominal half-cycle
// length, for callers that bound the calibration wait instead of blocking
// forever on a dead or hopelessly noisy sense line.
func (p Params) FallbackResult() Result {
	return p.derive(p.NominalHalfCycleTicks)
}
