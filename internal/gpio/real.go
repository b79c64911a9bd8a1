//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// CdevProvider drives pins through the Linux GPIO character device.
type CdevProvider struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	bias  Bias
	lines map[int]*gpiocdev.Line
}

// NewCdevProvider opens the named chip, e.g. "gpiochip0".
func NewCdevProvider(chip string, bias Bias) (*CdevProvider, error) {
	if chip == "" {
		chip = "gpiochip0"
	}
	c, err := gpiocdev.NewChip(chip, gpiocdev.WithConsumer("gpio-sensor"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &CdevProvider{
		chip:  c,
		bias:  bias,
		lines: make(map[int]*gpiocdev.Line),
	}, nil
}

// IsValid reports whether pin is an offset on the chip.
func (p *CdevProvider) IsValid(pin int) bool {
	return pin >= 0 && pin < p.chip.Lines()
}

// Request claims the line as-is, leaving direction to ConfigureInput.
func (p *CdevProvider) Request(pin int, label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.lines[pin]; ok {
		return nil
	}
	l, err := p.chip.RequestLine(pin, gpiocdev.AsIs, gpiocdev.WithConsumer(label))
	if err != nil {
		return fmt.Errorf("request line %d: %w", pin, err)
	}
	p.lines[pin] = l
	return nil
}

// ConfigureInput reconfigures a requested line as an input with the
// provider's bias.
func (p *CdevProvider) ConfigureInput(pin int) error {
	l, err := p.line(pin)
	if err != nil {
		return err
	}
	opts := []gpiocdev.LineConfigOption{gpiocdev.AsInput}
	switch p.bias {
	case BiasPullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case BiasPullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	case BiasDisabled:
		opts = append(opts, gpiocdev.WithBiasDisabled)
	}
	if err := l.Reconfigure(opts...); err != nil {
		return fmt.Errorf("reconfigure line %d: %w", pin, err)
	}
	return nil
}

// Level reads the line value.
func (p *CdevProvider) Level(pin int) (int, error) {
	l, err := p.line(pin)
	if err != nil {
		return 0, err
	}
	v, err := l.Value()
	if err != nil {
		return 0, fmt.Errorf("read line %d: %w", pin, err)
	}
	return v, nil
}

// Release closes the line request.
func (p *CdevProvider) Release(pin int) error {
	p.mu.Lock()
	l, ok := p.lines[pin]
	delete(p.lines, pin)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	if err := l.Close(); err != nil {
		return fmt.Errorf("close line %d: %w", pin, err)
	}
	return nil
}

// Close releases all lines and the chip.
func (p *CdevProvider) Close() error {
	p.mu.Lock()
	pins := make([]int, 0, len(p.lines))
	for pin := range p.lines {
		pins = append(pins, pin)
	}
	p.mu.Unlock()

	var errs []error
	for _, pin := range pins {
		if err := p.Release(pin); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (p *CdevProvider) line(pin int) (*gpiocdev.Line, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.lines[pin]
	if !ok {
		return nil, fmt.Errorf("line %d: %w", pin, ErrNotRequested)
	}
	return l, nil
}
