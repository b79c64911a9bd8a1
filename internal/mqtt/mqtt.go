// Package mqtt exposes the control file over MQTT with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// Topics are the MQTT topics used by the daemon.
type Topics struct {
	Write  string // inbound: payload is written to the control file
	Read   string // inbound: payload is an optional caller buffer size
	Data   string // outbound: bytes delivered by a read
	Error  string // outbound: failed reads and writes
	System string // outbound: lifecycle events
}

// NewTopics derives the topics for the control file name under prefix.
func NewTopics(prefix, name string) Topics {
	base := prefix + "/" + name
	return Topics{
		Write:  base + "/write",
		Read:   base + "/read",
		Data:   base + "/data",
		Error:  base + "/error",
		System: prefix + "/system",
	}
}

// Publisher publishes control file output to MQTT.
type Publisher interface {
	// PublishData sends the bytes delivered by a read, unmodified.
	PublishData(data []byte) error

	// PublishError reports a failed read or write.
	PublishError(event ErrorEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// ErrorEvent describes a failed control file operation.
type ErrorEvent struct {
	Timestamp time.Time
	Op        string // "read" or "write"
	Err       string
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
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

// ErrorPayload is the MQTT payload for a failed operation.
type ErrorPayload struct {
	Error ErrorPayloadInner `json:"error"`
}

// ErrorPayloadInner contains the failure details.
type ErrorPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Op        string `json:"op"`
	Message   string `json:"message"`
}

// FormatErrorPayload creates the JSON payload for an error event.
func FormatErrorPayload(event ErrorEvent) ([]byte, error) {
	return json.Marshal(ErrorPayload{
		Error: ErrorPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Op:        event.Op,
			Message:   event.Err,
		},
	})
}
