// Package status provides a thread-safe status tracker for the dimmer
// daemon. It is read by the HTTP handlers and serialized into MQTT
// heartbeat snapshots. The tick loop never touches it directly; the
// background loop pushes aggregated state at a low rate.
package status

import (
	"sync"
	"time"
)

// Counts tracks engine events since startup.
type Counts struct {
	EdgesAccepted  uint64
	EdgesRejected  uint64
	Triggers       uint64
	SafetyTimeouts uint64
	Recoveries     uint64
}

// Calibration is the boot calibration result for display.
type Calibration struct {
	MinDelay     uint32
	MaxDelay     uint32
	AvgHalfCycle uint32
	// Fallback is true when the bounds came from nominal defaults instead
	// of a completed measurement.
	Fallback bool
}

// Config contains daemon configuration for display.
type Config struct {
	TickMicros  int
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	Level          uint32
	Percent        float64
	PhaseState     string
	OverrideActive bool
	Calibrated     bool
	Calibration    Calibration
	Counts         Counts
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetCalibration records the boot calibration result.
func (t *Tracker) SetCalibration(cal Calibration) {
	t.mu.Lock()
	t.snap.Calibrated = true
	t.snap.Calibration = cal
	t.mu.Unlock()
}

// Update sets the current level, phase state, and event counts.
// Called from the background loop on every control poll.
func (t *Tracker) Update(level uint32, percent float64, phaseState string, override bool, counts Counts) {
	t.mu.Lock()
	t.snap.Level = level
	t.snap.Percent = percent
	t.snap.PhaseState = phaseState
	t.snap.OverrideActive = override
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
