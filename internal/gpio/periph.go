//go:build linux

package gpio

import (
	"fmt"
	"strconv"
	"sync"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphProvider drives pins through the periph.io host drivers.
type PeriphProvider struct {
	mu   sync.Mutex
	pull pgpio.Pull
	pins map[int]pgpio.PinIO
}

// NewPeriphProvider initializes the periph host drivers.
func NewPeriphProvider(bias Bias) (*PeriphProvider, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	pull := pgpio.PullNoChange
	switch bias {
	case BiasPullUp:
		pull = pgpio.PullUp
	case BiasPullDown:
		pull = pgpio.PullDown
	case BiasDisabled:
		pull = pgpio.Float
	}
	return &PeriphProvider{pull: pull, pins: make(map[int]pgpio.PinIO)}, nil
}

// IsValid reports whether the host registry knows pin.
func (p *PeriphProvider) IsValid(pin int) bool {
	return gpioreg.ByName(strconv.Itoa(pin)) != nil
}

// Request looks the pin up in the registry and keeps its handle.
func (p *PeriphProvider) Request(pin int, label string) error {
	pio := gpioreg.ByName(strconv.Itoa(pin))
	if pio == nil {
		return fmt.Errorf("request pin %d: %w", pin, ErrInvalidPin)
	}
	p.mu.Lock()
	p.pins[pin] = pio
	p.mu.Unlock()
	return nil
}

// ConfigureInput sets a requested pin as an input with the provider's pull.
func (p *PeriphProvider) ConfigureInput(pin int) error {
	pio, err := p.pin(pin)
	if err != nil {
		return err
	}
	if err := pio.In(p.pull, pgpio.NoEdge); err != nil {
		return fmt.Errorf("configure pin %d: %w", pin, err)
	}
	return nil
}

// Level reads the pin value.
func (p *PeriphProvider) Level(pin int) (int, error) {
	pio, err := p.pin(pin)
	if err != nil {
		return 0, err
	}
	if pio.Read() == pgpio.High {
		return 1, nil
	}
	return 0, nil
}

// Release halts the pin and drops its handle.
func (p *PeriphProvider) Release(pin int) error {
	p.mu.Lock()
	pio, ok := p.pins[pin]
	delete(p.pins, pin)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	if err := pio.Halt(); err != nil {
		return fmt.Errorf("halt pin %d: %w", pin, err)
	}
	return nil
}

// Close releases every requested pin.
func (p *PeriphProvider) Close() error {
	p.mu.Lock()
	pins := make([]int, 0, len(p.pins))
	for pin := range p.pins {
		pins = append(pins, pin)
	}
	p.mu.Unlock()

	var errs []error
	for _, pin := range pins {
		if err := p.Release(pin); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (p *PeriphProvider) pin(pin int) (pgpio.PinIO, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pio, ok := p.pins[pin]
	if !ok {
		return nil, fmt.Errorf("pin %d: %w", pin, ErrNotRequested)
	}
	return pio, nil
}
