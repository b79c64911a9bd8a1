// Package controlfile implements the sensor control file: a fixed-capacity
// text buffer that holds the current selector, is overwritten with the
// formatted measurement during a read, and is restored afterwards.
//
// A File is opened into Sessions. Each session allows exactly one successful
// read or write, after which it reports io.EOF until the caller opens a new
// one. Reads deliver as many bytes as the selector is long, not as many as
// the message has (see DeliverEcho).
package controlfile

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/nullpointer/gpio-sensor/internal/sensor"
	"github.com/rs/zerolog"
)

const (
	// DefaultName is the name the file is registered under.
	DefaultName = "shared_file"

	// Perm is the file mode advertised to clients: world read/write.
	Perm fs.FileMode = 0o666

	// DefaultSelector is loaded before the file is registered, so a read
	// without a prior write computes Sensor 1.
	DefaultSelector = "1"
)

var (
	// ErrNoSpace is returned when a write exceeds capacity-1 bytes or a
	// read buffer is shorter than the bytes to deliver.
	ErrNoSpace = errors.New("no space left in buffer")

	// ErrFault is returned when copying across the caller boundary fails.
	ErrFault = errors.New("bad address")

	// ErrAlloc is returned when the buffer cannot be created.
	ErrAlloc = errors.New("cannot allocate buffer")

	// ErrClosed is returned after the file has been unregistered.
	ErrClosed = errors.New("control file closed")
)

// Delivery selects how many bytes a read hands back.
type Delivery string

const (
	// DeliverEcho delivers length(selector) bytes of the formatted message.
	// A one-byte selector yields a one-byte prefix such as "S".
	DeliverEcho Delivery = "echo"

	// DeliverFull delivers the whole formatted message.
	DeliverFull Delivery = "full"
)

// Valid reports whether d is a known delivery mode.
func (d Delivery) Valid() bool {
	return d == DeliverEcho || d == DeliverFull || d == ""
}

// Evaluator turns the selector text into a measurement.
type Evaluator interface {
	Evaluate(selector []byte) sensor.Result
}

// Observer is notified after every read and write attempt.
// It is called without the buffer lock held.
type Observer interface {
	ObserveWrite(selector string, n int, err error)
	ObserveRead(res sensor.Result, data []byte, err error)
}

// Options configures a File.
type Options struct {
	Name            string
	Capacity        int // bytes including the terminator; 0 means one OS page
	DefaultSelector string
	Delivery        Delivery
	Observer        Observer
	Logger          zerolog.Logger
}

// File is the control file endpoint. It owns the shared buffer; every
// write and every read-evaluate-restore cycle runs under one mutex.
type File struct {
	name     string
	eval     Evaluator
	delivery Delivery
	observer Observer
	log      zerolog.Logger

	mu     sync.Mutex
	buf    []byte // NUL-terminated text, len(buf) == capacity
	closed bool
}

// New allocates the buffer, loads the default selector and returns the
// file ready to be registered with a transport.
func New(eval Evaluator, opts Options) (*File, error) {
	if eval == nil {
		return nil, fmt.Errorf("nil evaluator: %w", ErrAlloc)
	}
	capacity := opts.Capacity
	if capacity == 0 {
		capacity = os.Getpagesize()
	}
	if capacity < 2 {
		return nil, fmt.Errorf("capacity %d: %w", capacity, ErrAlloc)
	}
	name := opts.Name
	if name == "" {
		name = DefaultName
	}
	def := opts.DefaultSelector
	if def == "" {
		def = DefaultSelector
	}
	if len(def) > capacity-1 {
		return nil, fmt.Errorf("default selector of %d bytes: %w", len(def), ErrNoSpace)
	}
	delivery := opts.Delivery
	if delivery == "" {
		delivery = DeliverEcho
	}
	if !delivery.Valid() {
		return nil, fmt.Errorf("unknown delivery mode %q", delivery)
	}

	f := &File{
		name:     name,
		eval:     eval,
		delivery: delivery,
		observer: opts.Observer,
		log:      opts.Logger,
		buf:      make([]byte, capacity),
	}
	copy(f.buf, def)
	f.log.Info().Str("name", name).Str("selector", def).Int("capacity", capacity).Msg("control file ready")
	return f, nil
}

// Name returns the registered name.
func (f *File) Name() string { return f.name }

// Capacity returns the buffer size including the terminator.
func (f *File) Capacity() int { return len(f.buf) }

// Delivery returns the read delivery mode.
func (f *File) Delivery() Delivery { return f.delivery }

// Selector returns the current buffer text.
func (f *File) Selector() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.buf[:f.lenLocked()])
}

// Open starts a new Fresh session.
func (f *File) Open() *Session {
	return &Session{f: f}
}

// Close unregisters the file. Later operations fail with ErrClosed.
func (f *File) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.log.Info().Str("name", f.name).Msg("control file removed")
	return nil
}

// lenLocked is the C string length of the buffer.
func (f *File) lenLocked() int {
	if i := bytes.IndexByte(f.buf, 0); i >= 0 {
		return i
	}
	return len(f.buf)
}

// storeLocked replaces the buffer text with s and terminates it.
func (f *File) storeLocked(s []byte) {
	clear(f.buf)
	copy(f.buf[:len(f.buf)-1], s)
}

func (f *File) observeWrite(selector string, n int, err error) {
	if f.observer != nil {
		f.observer.ObserveWrite(selector, n, err)
	}
}

func (f *File) observeRead(res sensor.Result, data []byte, err error) {
	if f.observer != nil {
		f.observer.ObserveRead(res, data, err)
	}
}
