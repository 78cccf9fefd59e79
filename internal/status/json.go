package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string           `json:"event,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Level         uint32           `json:"level"`
	Percent       float64          `json:"percent"`
	PhaseState    string           `json:"phase_state"`
	Override      bool             `json:"override"`
	Ready         bool             `json:"ready"`
	Calibration   *CalibrationJSON `json:"calibration,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	StartTime     string           `json:"start_time"`
	Timestamp     string           `json:"timestamp"`
	MQTT          MQTTStatus       `json:"mqtt"`
	Counts        CountsJSON       `json:"event_counts"`
	Config        ConfigJSON       `json:"config"`
}

// CalibrationJSON is the JSON representation of the calibration result.
type CalibrationJSON struct {
	MinDelay     uint32 `json:"min_delay"`
	MaxDelay     uint32 `json:"max_delay"`
	AvgHalfCycle uint32 `json:"avg_half_cycle"`
	Fallback     bool   `json:"fallback,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	EdgesAccepted  uint64 `json:"edges_accepted"`
	EdgesRejected  uint64 `json:"edges_rejected"`
	Triggers       uint64 `json:"triggers"`
	SafetyTimeouts uint64 `json:"safety_timeouts"`
	Recoveries     uint64 `json:"recoveries"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMicros  int    `json:"tick_us"`
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	state := snap.PhaseState
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		Level:         snap.Level,
		Percent:       snap.Percent,
		PhaseState:    state,
		Override:      snap.OverrideActive,
		Ready:         snap.Calibrated,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			EdgesAccepted:  snap.Counts.EdgesAccepted,
			EdgesRejected:  snap.Counts.EdgesRejected,
			Triggers:       snap.Counts.Triggers,
			SafetyTimeouts: snap.Counts.SafetyTimeouts,
			Recoveries:     snap.Counts.Recoveries,
		},
		Config: ConfigJSON{
			TickMicros:  snap.Config.TickMicros,
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}

	if snap.Calibrated {
		inner.Calibration = &CalibrationJSON{
			MinDelay:     snap.Calibration.MinDelay,
			MaxDelay:     snap.Calibration.MaxDelay,
			AvgHalfCycle: snap.Calibration.AvgHalfCycle,
			Fallback:     snap.Calibration.Fallback,
		}
	}

	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
