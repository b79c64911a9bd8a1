package gpio

import (
	"fmt"
	"sync"
)

// FakeProvider is an in-memory provider. It backs the "sim" backend and is
// the test double for code that consumes a Provider.
type FakeProvider struct {
	mu sync.Mutex

	// Levels holds the level reported for each pin.
	Levels map[int]int

	// InvalidPins are reported as invalid by IsValid.
	InvalidPins map[int]bool

	// RequestErr, ConfigureErr and LevelErr inject per-pin failures.
	RequestErr   map[int]error
	ConfigureErr map[int]error
	LevelErr     map[int]error

	// Requested maps pin to label for pins currently held.
	Requested map[int]string

	// Inputs tracks pins configured as input.
	Inputs map[int]bool

	// Released records every Release call in order.
	Released []int

	// Reads counts Level calls per pin.
	Reads map[int]int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeProvider creates a FakeProvider reporting the given levels.
func NewFakeProvider(levels map[int]int) *FakeProvider {
	if levels == nil {
		levels = make(map[int]int)
	}
	return &FakeProvider{
		Levels:       levels,
		InvalidPins:  make(map[int]bool),
		RequestErr:   make(map[int]error),
		ConfigureErr: make(map[int]error),
		LevelErr:     make(map[int]error),
		Requested:    make(map[int]string),
		Inputs:       make(map[int]bool),
		Reads:        make(map[int]int),
	}
}

// NewSimProvider returns a FakeProvider for running without hardware.
func NewSimProvider(levels map[int]int) *FakeProvider {
	copied := make(map[int]int, len(levels))
	for pin, v := range levels {
		copied[pin] = v
	}
	return NewFakeProvider(copied)
}

func (f *FakeProvider) IsValid(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pin >= 0 && !f.InvalidPins[pin]
}

func (f *FakeProvider) Request(pin int, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.RequestErr[pin]; err != nil {
		return err
	}
	f.Requested[pin] = label
	return nil
}

func (f *FakeProvider) ConfigureInput(pin int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Requested[pin]; !ok {
		return fmt.Errorf("pin %d: %w", pin, ErrNotRequested)
	}
	if err := f.ConfigureErr[pin]; err != nil {
		return err
	}
	f.Inputs[pin] = true
	return nil
}

// Level returns the scripted level. Unrequested pins still read their level,
// as the kernel does for unclaimed lines.
func (f *FakeProvider) Level(pin int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads[pin]++
	if err := f.LevelErr[pin]; err != nil {
		return 0, err
	}
	return f.Levels[pin], nil
}

// SetLevel changes the level reported for pin.
func (f *FakeProvider) SetLevel(pin, level int) {
	f.mu.Lock()
	f.Levels[pin] = level
	f.mu.Unlock()
}

func (f *FakeProvider) Release(pin int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Released = append(f.Released, pin)
	delete(f.Requested, pin)
	delete(f.Inputs, pin)
	return nil
}

func (f *FakeProvider) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for pin := range f.Requested {
		f.Released = append(f.Released, pin)
	}
	f.Requested = make(map[int]string)
	f.Inputs = make(map[int]bool)
	f.Closed = true
	return nil
}
