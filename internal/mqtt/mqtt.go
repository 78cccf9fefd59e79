// Package mqtt publishes dimmer telemetry and receives remote level
// commands, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// Topic is the MQTT topic for dimmer events.
const Topic = "home/dimmer/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "home/dimmer/system"

// TopicLevelSet is the command topic for remote level overrides. The
// payload is a raw control value in the ADC domain, as decimal ASCII.
const TopicLevelSet = "home/dimmer/level/set"

// Publisher publishes dimmer events to MQTT.
type Publisher interface {
	// Publish sends a dimmer event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// EventType labels a dimmer event.
type EventType string

const (
	// EventCalibrated is published once when boot calibration completes.
	EventCalibrated EventType = "CALIBRATED"
	// EventLevel is published when the dimming level settles on a new value.
	EventLevel EventType = "LEVEL"
	// EventSafetyTimeout is published when a half-cycle ends without a
	// trigger while a firing level was set (usually a lost zero-cross).
	EventSafetyTimeout EventType = "SAFETY_TIMEOUT"
	// EventRecovered is published when the engine reset from an unknown state.
	EventRecovered EventType = "RECOVERED"
)

// Event represents a dimmer event to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType

	// Level is the phase-delay target in ticks.
	Level uint32
	// Percent is the delivered-power estimate for the level.
	Percent float64

	// Calibration bounds; only meaningful for EventCalibrated.
	MinDelay     uint32
	MaxDelay     uint32
	AvgHalfCycle uint32
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the MQTT message envelope for dimmer events.
type Payload struct {
	Dimmer DimmerPayload `json:"dimmer"`
}

// DimmerPayload contains the dimmer event details.
type DimmerPayload struct {
	Timestamp   string              `json:"timestamp"`
	Event       string              `json:"event"`
	Level       uint32              `json:"level"`
	Percent     float64             `json:"percent"`
	Calibration *CalibrationPayload `json:"calibration,omitempty"`
}

// CalibrationPayload carries the boot calibration result.
type CalibrationPayload struct {
	MinDelay     uint32 `json:"min_delay"`
	MaxDelay     uint32 `json:"max_delay"`
	AvgHalfCycle uint32 `json:"avg_half_cycle"`
}

// FormatPayload creates the JSON payload for a dimmer event.
func FormatPayload(event Event) ([]byte, error) {
	payload := Payload{
		Dimmer: DimmerPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Level:     event.Level,
			Percent:   event.Percent,
		},
	}
	if event.Type == EventCalibrated {
		payload.Dimmer.Calibration = &CalibrationPayload{
			MinDelay:     event.MinDelay,
			MaxDelay:     event.MaxDelay,
			AvgHalfCycle: event.AvgHalfCycle,
		}
	}
	return json.Marshal(payload)
}

// SystemPayload is the MQTT message envelope for system events.
// Used for simple events that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
