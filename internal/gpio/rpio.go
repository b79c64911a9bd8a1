//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// bcmPins is the number of GPIOs on the BCM2835 register map.
const bcmPins = 54

// RpioProvider drives pins through the memory-mapped BCM2835 registers.
// The registers have no ownership model, so Request only tracks labels.
type RpioProvider struct {
	mu     sync.Mutex
	bias   Bias
	labels map[int]string
}

// NewRpioProvider maps the GPIO registers.
func NewRpioProvider(bias Bias) (*RpioProvider, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open rpio: %w", err)
	}
	return &RpioProvider{bias: bias, labels: make(map[int]string)}, nil
}

// IsValid reports whether pin is a BCM GPIO number.
func (p *RpioProvider) IsValid(pin int) bool {
	return pin >= 0 && pin < bcmPins
}

// Request records the label; the registers themselves are never locked.
func (p *RpioProvider) Request(pin int, label string) error {
	if !p.IsValid(pin) {
		return fmt.Errorf("request pin %d: %w", pin, ErrInvalidPin)
	}
	p.mu.Lock()
	p.labels[pin] = label
	p.mu.Unlock()
	return nil
}

// ConfigureInput switches the pin to input and applies the provider's bias.
func (p *RpioProvider) ConfigureInput(pin int) error {
	if !p.requested(pin) {
		return fmt.Errorf("pin %d: %w", pin, ErrNotRequested)
	}
	rp := rpio.Pin(pin)
	rp.Input()
	switch p.bias {
	case BiasPullUp:
		rp.PullUp()
	case BiasPullDown:
		rp.PullDown()
	case BiasDisabled:
		rp.PullOff()
	}
	return nil
}

// Level reads the pin from the level register.
func (p *RpioProvider) Level(pin int) (int, error) {
	if !p.requested(pin) {
		return 0, fmt.Errorf("pin %d: %w", pin, ErrNotRequested)
	}
	return int(rpio.Pin(pin).Read()), nil
}

// Release forgets the pin. The register state is left as-is.
func (p *RpioProvider) Release(pin int) error {
	p.mu.Lock()
	delete(p.labels, pin)
	p.mu.Unlock()
	return nil
}

// Close unmaps the registers.
func (p *RpioProvider) Close() error {
	p.mu.Lock()
	p.labels = make(map[int]string)
	p.mu.Unlock()
	return rpio.Close()
}

func (p *RpioProvider) requested(pin int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.labels[pin]
	return ok
}
