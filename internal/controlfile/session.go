package controlfile

import (
	"fmt"
	"io"

	"github.com/nullpointer/gpio-sensor/internal/sensor"
)

// State is the life-cycle position of a Session.
type State int

const (
	Fresh State = iota
	Consumed
)

func (s State) String() string {
	if s == Consumed {
		return "consumed"
	}
	return "fresh"
}

// Session is one open descriptor on a File. A session is not safe for
// concurrent use; open one per caller.
type Session struct {
	f      *File
	state  State
	offset int64
}

// State returns Fresh until a read or write succeeds.
func (s *Session) State() State { return s.state }

// Offset returns the cursor. Reads advance it by the requested size, writes
// by the bytes written.
func (s *Session) Offset() int64 { return s.offset }

// Write replaces the selector with p. It implements io.Writer.
func (s *Session) Write(p []byte) (int, error) {
	return s.write(len(p), func(dst []byte) error {
		copy(dst, p)
		return nil
	})
}

// WriteFrom replaces the selector with n bytes read from r. A negative n
// reads r to EOF. A short or failing r yields ErrFault and the buffer is
// left unchanged.
func (s *Session) WriteFrom(r io.Reader, n int64) (int, error) {
	if n < 0 {
		if s.state == Consumed {
			return 0, io.EOF
		}
		data, err := io.ReadAll(io.LimitReader(r, int64(s.f.Capacity())))
		if err != nil {
			s.f.observeWrite("", 0, ErrFault)
			return 0, fmt.Errorf("%w: %v", ErrFault, err)
		}
		return s.Write(data)
	}
	// Anything above capacity is rejected by write before r is touched.
	n = min(n, int64(s.f.Capacity()))
	return s.write(int(n), func(dst []byte) error {
		_, err := io.ReadFull(r, dst)
		return err
	})
}

func (s *Session) write(n int, fill func(dst []byte) error) (int, error) {
	if s.state == Consumed {
		return 0, io.EOF
	}
	f := s.f
	if limit := f.Capacity() - 1; n > limit {
		f.log.Debug().Int("len", n).Int("available", limit).Msg("write exceeds buffer")
		f.observeWrite("", 0, ErrNoSpace)
		return 0, fmt.Errorf("write of %d bytes, %d available: %w", n, limit, ErrNoSpace)
	}

	data := make([]byte, n)
	if err := fill(data); err != nil {
		f.log.Warn().Err(err).Msg("write copy failed")
		f.observeWrite("", 0, ErrFault)
		return 0, fmt.Errorf("%w: %v", ErrFault, err)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, ErrClosed
	}
	f.storeLocked(data)
	f.mu.Unlock()

	s.offset += int64(n)
	s.state = Consumed // an empty write consumes the session too
	f.log.Debug().Str("selector", string(data)).Int("len", n).Msg("selector written")
	f.observeWrite(string(data), n, nil)
	return n, nil
}

// Read evaluates the current selector and copies the delivered bytes into
// p. It implements io.Reader.
func (s *Session) Read(p []byte) (int, error) {
	return s.read(len(p), func(b []byte) error {
		copy(p, b)
		return nil
	})
}

// ReadTo is Read with a caller buffer of size bytes that lives across a
// boundary reached through w. If w fails the read fails with ErrFault and
// the buffer keeps the formatted message instead of the selector.
func (s *Session) ReadTo(w io.Writer, size int) (int, error) {
	return s.read(size, func(b []byte) error {
		n, err := w.Write(b)
		if err == nil && n < len(b) {
			err = io.ErrShortWrite
		}
		return err
	})
}

func (s *Session) read(size int, deliver func(b []byte) error) (int, error) {
	if s.state == Consumed {
		return 0, io.EOF
	}
	f := s.f

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, ErrClosed
	}

	// n is fixed before evaluation and governs the bytes delivered.
	n := f.lenLocked()
	backup := make([]byte, n)
	copy(backup, f.buf[:n])

	if size < n {
		f.mu.Unlock()
		f.log.Debug().Int("len", n).Int("size", size).Msg("read buffer too small")
		f.observeRead(sensor.Result{}, nil, ErrNoSpace)
		return 0, fmt.Errorf("read of %d bytes into %d: %w", n, size, ErrNoSpace)
	}

	res := f.eval.Evaluate(backup)
	for _, pe := range res.Errors {
		f.log.Warn().Int("pin", pe.Pin).Err(pe.Err).Msg("pin read failed, counted as low")
	}
	f.storeLocked([]byte(res.Message))

	out := n
	if f.delivery == DeliverFull {
		out = min(len(res.Message), f.Capacity()-1)
		if size < out {
			f.storeLocked(backup)
			f.mu.Unlock()
			f.observeRead(res, nil, ErrNoSpace)
			return 0, fmt.Errorf("read of %d bytes into %d: %w", out, size, ErrNoSpace)
		}
	}

	data := make([]byte, out)
	copy(data, f.buf[:out])
	if err := deliver(data); err != nil {
		f.mu.Unlock()
		f.log.Warn().Err(err).Str("buffer", res.Message).Msg("read copy failed, selector not restored")
		f.observeRead(res, nil, ErrFault)
		return 0, fmt.Errorf("%w: %v", ErrFault, err)
	}

	f.storeLocked(backup)
	f.mu.Unlock()

	s.offset += int64(size)
	s.state = Consumed
	f.log.Debug().
		Str("selector", string(backup)).
		Str("sensor", res.Selector.String()).
		Str("message", res.Message).
		Int("delivered", out).
		Msg("control file read")
	f.observeRead(res, data, nil)
	return out, nil
}
