// Package gpio provides digital input pins behind a provider abstraction.
// Hardware providers use the Linux GPIO character device, the BCM2835
// register map (rpio) or periph.io. The fake provider allows testing and
// running without hardware.
package gpio

import (
	"errors"
	"fmt"
)

// Provider is the GPIO pin provider consumed by the daemon.
type Provider interface {
	// IsValid reports whether pin names a line the provider can drive.
	IsValid(pin int) bool

	// Request claims pin for this process under label.
	Request(pin int, label string) error

	// ConfigureInput sets a requested pin as a digital input.
	ConfigureInput(pin int) error

	// Level returns the instantaneous level of pin, 0 or 1.
	Level(pin int) (int, error)

	// Release returns a requested pin. Releasing an unrequested pin is a no-op.
	Release(pin int) error

	// Close releases every pin still held and the provider itself.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendCdev   = "cdev"
	BackendRpio   = "rpio"
	BackendPeriph = "periph"
	BackendSim    = "sim"
)

// Bias applied when configuring inputs.
type Bias string

const (
	BiasAsIs     Bias = "as-is"
	BiasPullUp   Bias = "pull-up"
	BiasPullDown Bias = "pull-down"
	BiasDisabled Bias = "disabled"
)

// Valid reports whether b is a known bias.
func (b Bias) Valid() bool {
	switch b {
	case BiasAsIs, BiasPullUp, BiasPullDown, BiasDisabled, "":
		return true
	}
	return false
}

var (
	// ErrInvalidPin is returned for pins the provider cannot address.
	ErrInvalidPin = errors.New("invalid pin")

	// ErrNotRequested is returned when operating on a pin that was not requested.
	ErrNotRequested = errors.New("pin not requested")
)

// PinSpec names one input pin.
type PinSpec struct {
	Pin   int
	Label string
}

// Default pin numbers for the two sensors.
const (
	Pin1 = 1
	Pin2 = 2
	Pin3 = 3
	Pin4 = 4
	Pin5 = 5
	Pin6 = 6
)

// DefaultPins returns the six inputs, labelled GPIO_IN_1..GPIO_IN_6.
func DefaultPins() []PinSpec {
	return Specs([]int{Pin1, Pin2, Pin3, Pin4, Pin5, Pin6})
}

// Specs labels pins positionally as GPIO_IN_1.. regardless of their number.
func Specs(pins []int) []PinSpec {
	specs := make([]PinSpec, len(pins))
	for i, p := range pins {
		specs[i] = PinSpec{Pin: p, Label: fmt.Sprintf("GPIO_IN_%d", i+1)}
	}
	return specs
}

// Options selects and configures a provider.
type Options struct {
	Backend   string
	Chip      string      // cdev only
	Bias      Bias        // hardware backends
	SimLevels map[int]int // sim only
}

// Open creates the provider named by opts.Backend.
func Open(opts Options) (Provider, error) {
	switch opts.Backend {
	case BackendCdev, "":
		p, err := NewCdevProvider(opts.Chip, opts.Bias)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendRpio:
		p, err := NewRpioProvider(opts.Bias)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendPeriph:
		p, err := NewPeriphProvider(opts.Bias)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendSim:
		return NewSimProvider(opts.SimLevels), nil
	default:
		return nil, fmt.Errorf("unknown gpio backend %q", opts.Backend)
	}
}
