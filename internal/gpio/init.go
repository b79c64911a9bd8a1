package gpio

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Stage is the initialization step a pin failed at.
type Stage string

const (
	StageValidate  Stage = "validate"
	StageRequest   Stage = "request"
	StageConfigure Stage = "configure"
)

// InitError describes a pin that could not be initialized.
type InitError struct {
	Pin   int
	Label string
	Stage Stage
	Err   error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("gpio pin %d (%s): %s: %v", e.Pin, e.Label, e.Stage, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// PinStatus is the outcome for one pin. Err is nil when the pin is ready.
type PinStatus struct {
	Pin   int
	Label string
	Err   *InitError
}

// Ready reports whether the pin was requested and configured as input.
func (s PinStatus) Ready() bool { return s.Err == nil }

// Report collects the per-pin outcome of Init.
type Report struct {
	Pins []PinStatus
}

// OK reports whether every pin initialized.
func (r Report) OK() bool {
	return len(r.Failed()) == 0
}

// Ready returns the pins that initialized.
func (r Report) Ready() []int {
	var pins []int
	for _, s := range r.Pins {
		if s.Ready() {
			pins = append(pins, s.Pin)
		}
	}
	return pins
}

// Failed returns the failures in pin order.
func (r Report) Failed() []*InitError {
	var errs []*InitError
	for _, s := range r.Pins {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errs
}

// Init requests each pin and configures it as an input. A pin that fails any
// step is logged and released, and the next pin is attempted regardless.
// A partially initialized set is a usable degraded state; the report tells
// the caller which pins are live.
func Init(p Provider, pins []PinSpec, log zerolog.Logger) Report {
	report := Report{Pins: make([]PinStatus, 0, len(pins))}
	for _, spec := range pins {
		status := PinStatus{Pin: spec.Pin, Label: spec.Label}
		if err := initPin(p, spec); err != nil {
			log.Warn().
				Int("pin", spec.Pin).
				Str("label", spec.Label).
				Str("stage", string(err.Stage)).
				Err(err.Err).
				Msg("gpio pin init failed")
			if rerr := p.Release(spec.Pin); rerr != nil {
				log.Warn().Int("pin", spec.Pin).Err(rerr).Msg("gpio pin release failed")
			}
			status.Err = err
		} else {
			log.Debug().Int("pin", spec.Pin).Str("label", spec.Label).Msg("gpio pin ready")
		}
		report.Pins = append(report.Pins, status)
	}
	return report
}

func initPin(p Provider, spec PinSpec) *InitError {
	fail := func(stage Stage, err error) *InitError {
		return &InitError{Pin: spec.Pin, Label: spec.Label, Stage: stage, Err: err}
	}
	if !p.IsValid(spec.Pin) {
		return fail(StageValidate, ErrInvalidPin)
	}
	if err := p.Request(spec.Pin, spec.Label); err != nil {
		return fail(StageRequest, err)
	}
	if err := p.ConfigureInput(spec.Pin); err != nil {
		return fail(StageConfigure, err)
	}
	return nil
}
