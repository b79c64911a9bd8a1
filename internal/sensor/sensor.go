// Package sensor maps a selector and the six input levels to a measurement.
// This package has NO external dependencies (no GPIO, MQTT, OS); levels are
// read through the LevelReader passed in.
package sensor

import (
	"bytes"
	"fmt"
)

// Selector identifies which sensor a read computes.
type Selector int

const (
	Invalid Selector = iota
	Sensor1
	Sensor2
)

func (s Selector) String() string {
	switch s {
	case Sensor1:
		return "sensor1"
	case Sensor2:
		return "sensor2"
	}
	return "invalid"
}

// InvalidMessage is produced for any selector other than "1" or "2".
const InvalidMessage = "Opción inválida"

// Classify compares the first byte of the selector text: "1..." is Sensor1,
// "2..." is Sensor2, everything else (including empty) is Invalid.
func Classify(text []byte) Selector {
	switch {
	case bytes.HasPrefix(text, []byte("1")):
		return Sensor1
	case bytes.HasPrefix(text, []byte("2")):
		return Sensor2
	}
	return Invalid
}

// LevelReader reads the instantaneous level of a pin.
type LevelReader interface {
	Level(pin int) (int, error)
}

// Input is one weighted pin of a sensor.
type Input struct {
	Pin    int
	Weight int
}

// Sensor is a named weighted sum over three pins.
type Sensor struct {
	ID     Selector
	Label  string
	Inputs [3]Input
}

// Sensors builds the two sensors from six pin numbers. The first three feed
// Sensor 1 with weights 1, 2, 3; the last three feed Sensor 2 with 4, 5, 6.
func Sensors(pins [6]int) [2]Sensor {
	return [2]Sensor{
		{
			ID:    Sensor1,
			Label: "Sensor 1",
			Inputs: [3]Input{
				{Pin: pins[0], Weight: 1},
				{Pin: pins[1], Weight: 2},
				{Pin: pins[2], Weight: 3},
			},
		},
		{
			ID:    Sensor2,
			Label: "Sensor 2",
			Inputs: [3]Input{
				{Pin: pins[3], Weight: 4},
				{Pin: pins[4], Weight: 5},
				{Pin: pins[5], Weight: 6},
			},
		},
	}
}

// DefaultSensors uses pins 1..6.
func DefaultSensors() [2]Sensor {
	return Sensors([6]int{1, 2, 3, 4, 5, 6})
}

// PinError records a pin whose level could not be read.
type PinError struct {
	Pin int
	Err error
}

// Result is the outcome of one evaluation.
type Result struct {
	Selector Selector
	Value    int    // weighted sum; 0 for Invalid
	Message  string // "Sensor N: V" or InvalidMessage
	Levels   map[int]int
	Errors   []PinError
}

// Evaluator computes sensor results from live pin levels.
type Evaluator struct {
	levels  LevelReader
	sensors [2]Sensor
}

// NewEvaluator creates an Evaluator reading levels from r.
func NewEvaluator(r LevelReader, sensors [2]Sensor) *Evaluator {
	return &Evaluator{levels: r, sensors: sensors}
}

// Evaluate classifies the selector text and, for a valid sensor, reads its
// three pins once each. A pin that fails to read counts as level 0 and is
// reported in Result.Errors.
func (e *Evaluator) Evaluate(selector []byte) Result {
	sel := Classify(selector)
	if sel == Invalid {
		return Result{Selector: Invalid, Message: InvalidMessage}
	}

	s := e.sensors[sel-Sensor1]
	res := Result{Selector: sel, Levels: make(map[int]int, len(s.Inputs))}
	for _, in := range s.Inputs {
		v, err := e.levels.Level(in.Pin)
		if err != nil {
			res.Errors = append(res.Errors, PinError{Pin: in.Pin, Err: err})
			v = 0
		}
		res.Levels[in.Pin] = v
		res.Value += v * in.Weight
	}
	res.Message = fmt.Sprintf("%s: %d", s.Label, res.Value)
	return res
}
