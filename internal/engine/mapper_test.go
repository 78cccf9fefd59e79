package engine

import "testing"

func TestMapLevel(t *testing.T) {
	p := DefaultParams()
	cal := Result{MinDelay: 61, MaxDelay: 157}

	tests := []struct {
		name string
		raw  int
		want uint32
	}{
		{"bottom of range", 0, 61},
		{"top of usable range", 960, 157},
		{"negative clamps to minimum", -5, 61},
		{"between usable and off threshold", 980, 157},
		{"midpoint", 480, 109},
		{"just below off threshold", 1000, 157},
		{"above off threshold", 1001, p.OffLevel},
		{"full scale", 1023, p.OffLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapLevel(tt.raw, cal, p)
			if got != tt.want {
				t.Errorf("MapLevel(%d) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestMapLevelOffAlwaysExceedsSafetyTimeout(t *testing.T) {
	// The disabled mapping must produce a level the delay state can never
	// reach, or the safety property collapses.
	p := DefaultParams()
	cal := p.FallbackResult()
	got := MapLevel(p.ADCMax, cal, p)
	if got <= p.SafetyTimeoutTicks {
		t.Fatalf("off mapping %d does not exceed safety timeout %d", got, p.SafetyTimeoutTicks)
	}
}

func TestMapLevelStaysInsideCalibratedBounds(t *testing.T) {
	p := DefaultParams()
	cal := Result{MinDelay: 73, MaxDelay: 191}
	for raw := 0; raw <= p.ADCOffThreshold; raw += 13 {
		got := MapLevel(raw, cal, p)
		if got < cal.MinDelay || got > cal.MaxDelay {
			t.Fatalf("MapLevel(%d) = %d outside [%d, %d]", raw, got, cal.MinDelay, cal.MaxDelay)
		}
	}
}

func TestLevelPercent(t *testing.T) {
	p := DefaultParams()
	cal := Result{MinDelay: 61, MaxDelay: 157}

	tests := []struct {
		name  string
		level uint32
		want  float64
	}{
		{"minimum delay is full power", 61, 100},
		{"maximum delay is zero power", 157, 0},
		{"off level is zero power", p.OffLevel, 0},
		{"midpoint", 109, 50},
		{"below minimum clamps to full", 10, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LevelPercent(tt.level, cal, p)
			if got != tt.want {
				t.Errorf("LevelPercent(%d) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params must validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero pulse width", func(p *Params) { p.TriggerPulseTicks = 0 }},
		{"reachable off level", func(p *Params) { p.OffLevel = p.SafetyTimeoutTicks }},
		{"safety below max clamp", func(p *Params) { p.SafetyTimeoutTicks = p.MaxDelayClampHi }},
		{"noise gate wider than half-cycle", func(p *Params) { p.MinZCPeriodTicks = p.NominalHalfCycleTicks }},
		{"no calibration samples", func(p *Params) { p.CalibrationSamples = 0 }},
		{"zero ratio denominator", func(p *Params) { p.MinDelayDen = 0 }},
		{"inverted adc range", func(p *Params) { p.ADCUsableMax = p.ADCMax + 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
