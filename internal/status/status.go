// Package status provides a thread-safe status tracker for the gpio-sensor daemon.
// It is fed by the control file as an observer and read by the HTTP and MQTT surfaces.
package status

import (
	"errors"
	"sync"
	"time"

	"github.com/nullpointer/gpio-sensor/internal/controlfile"
	"github.com/nullpointer/gpio-sensor/internal/gpio"
	"github.com/nullpointer/gpio-sensor/internal/sensor"
)

// Config contains daemon configuration for display.
type Config struct {
	Backend  string
	Chip     string
	HTTPAddr string
	Broker   string
	Delivery string
	Capacity int
}

// PinInfo is the init outcome of one pin.
type PinInfo struct {
	Pin   int
	Label string
	Ready bool
	Stage string // failing stage, empty when ready
	Error string
}

// Counts tracks control file operations since startup.
type Counts struct {
	Reads   int
	Writes  int
	NoSpace int
	Faults  int
}

// LastRead describes the most recent successful read.
type LastRead struct {
	Time      time.Time
	Sensor    string
	Value     int
	Message   string
	Delivered int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Selector      string
	Pins          []PinInfo
	Counts        Counts
	LastRead      *LastRead
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// PinsReady counts pins that initialized.
func (s Snapshot) PinsReady() int {
	n := 0
	for _, p := range s.Pins {
		if p.Ready {
			n++
		}
	}
	return n
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu       sync.RWMutex
	snap     Snapshot
	selector func() string
	now      func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetPins records the pin initialization report.
func (t *Tracker) SetPins(r gpio.Report) {
	pins := make([]PinInfo, 0, len(r.Pins))
	for _, s := range r.Pins {
		info := PinInfo{Pin: s.Pin, Label: s.Label, Ready: s.Ready()}
		if s.Err != nil {
			info.Stage = string(s.Err.Stage)
			info.Error = s.Err.Err.Error()
		}
		pins = append(pins, info)
	}
	t.mu.Lock()
	t.snap.Pins = pins
	t.mu.Unlock()
}

// SetSelectorSource installs the function that reports the live selector,
// typically (*controlfile.File).Selector.
func (t *Tracker) SetSelectorSource(fn func() string) {
	t.mu.Lock()
	t.selector = fn
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// ObserveWrite implements controlfile.Observer.
func (t *Tracker) ObserveWrite(selector string, n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.countError(err)
		return
	}
	t.snap.Counts.Writes++
}

// ObserveRead implements controlfile.Observer.
func (t *Tracker) ObserveRead(res sensor.Result, data []byte, err error) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.countError(err)
		return
	}
	t.snap.Counts.Reads++
	t.snap.LastRead = &LastRead{
		Time:      now,
		Sensor:    res.Selector.String(),
		Value:     res.Value,
		Message:   res.Message,
		Delivered: len(data),
	}
}

func (t *Tracker) countError(err error) {
	switch {
	case errors.Is(err, controlfile.ErrNoSpace):
		t.snap.Counts.NoSpace++
	case errors.Is(err, controlfile.ErrFault):
		t.snap.Counts.Faults++
	}
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Pins = append([]PinInfo(nil), t.snap.Pins...)
	if t.snap.LastRead != nil {
		lr := *t.snap.LastRead
		s.LastRead = &lr
	}
	selector := t.selector
	t.mu.RUnlock()
	if selector != nil {
		s.Selector = selector()
	}
	s.Now = t.now()
	return s
}
