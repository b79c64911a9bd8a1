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
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Selector      string        `json:"selector"`
	PinsReady     int           `json:"pins_ready"`
	Pins          []PinJSON     `json:"pins"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counts        CountsJSON    `json:"counts"`
	LastRead      *LastReadJSON `json:"last_read,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// PinJSON is the JSON representation of one pin.
type PinJSON struct {
	Pin   int    `json:"pin"`
	Label string `json:"label"`
	Ready bool   `json:"ready"`
	Stage string `json:"stage,omitempty"`
	Error string `json:"error,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of operation counts.
type CountsJSON struct {
	Reads   int `json:"reads"`
	Writes  int `json:"writes"`
	NoSpace int `json:"no_space"`
	Faults  int `json:"faults"`
}

// LastReadJSON is the JSON representation of the last read.
type LastReadJSON struct {
	Timestamp string `json:"timestamp"`
	Sensor    string `json:"sensor"`
	Value     int    `json:"value"`
	Message   string `json:"message"`
	Delivered int    `json:"delivered"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend  string `json:"backend"`
	Chip     string `json:"chip,omitempty"`
	HTTPAddr string `json:"http_addr"`
	Broker   string `json:"broker"`
	Delivery string `json:"delivery"`
	Capacity int    `json:"capacity"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Selector:      snap.Selector,
		PinsReady:     snap.PinsReady(),
		Pins:          make([]PinJSON, 0, len(snap.Pins)),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Reads:   snap.Counts.Reads,
			Writes:  snap.Counts.Writes,
			NoSpace: snap.Counts.NoSpace,
			Faults:  snap.Counts.Faults,
		},
		Config: ConfigJSON{
			Backend:  snap.Config.Backend,
			Chip:     snap.Config.Chip,
			HTTPAddr: snap.Config.HTTPAddr,
			Broker:   snap.Config.Broker,
			Delivery: snap.Config.Delivery,
			Capacity: snap.Config.Capacity,
		},
	}
	for _, p := range snap.Pins {
		inner.Pins = append(inner.Pins, PinJSON(p))
	}
	if lr := snap.LastRead; lr != nil {
		inner.LastRead = &LastReadJSON{
			Timestamp: lr.Time.UTC().Format(time.RFC3339),
			Sensor:    lr.Sensor,
			Value:     lr.Value,
			Message:   lr.Message,
			Delivered: lr.Delivered,
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
