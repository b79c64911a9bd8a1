package controlfile

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/nullpointer/gpio-sensor/internal/gpio"
	"github.com/nullpointer/gpio-sensor/internal/sensor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// levels: sensor 1 = 1*1 + 0*2 + 1*3 = 4, sensor 2 = 4 + 5 + 6 = 15
func newTestFile(t *testing.T, opts Options) (*File, *gpio.FakeProvider) {
	t.Helper()
	p := gpio.NewFakeProvider(map[int]int{1: 1, 2: 0, 3: 1, 4: 1, 5: 1, 6: 1})
	opts.Logger = zerolog.Nop()
	f, err := New(sensor.NewEvaluator(p, sensor.DefaultSensors()), opts)
	require.NoError(t, err)
	return f, p
}

func testEvaluator() *sensor.Evaluator {
	return sensor.NewEvaluator(gpio.NewFakeProvider(nil), sensor.DefaultSensors())
}

func write(t *testing.T, f *File, s string) {
	t.Helper()
	n, err := f.Open().Write([]byte(s))
	require.NoError(t, err)
	require.Equal(t, len(s), n)
}

func TestNewDefaults(t *testing.T) {
	f, _ := newTestFile(t, Options{})
	assert.Equal(t, DefaultName, f.Name())
	assert.Equal(t, os.Getpagesize(), f.Capacity())
	assert.Equal(t, DeliverEcho, f.Delivery())
	assert.Equal(t, "1", f.Selector())
}

func TestNewRejectsTinyCapacity(t *testing.T) {
	_, err := New(testEvaluator(), Options{Capacity: 1, Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, ErrAlloc)
}

func TestNewRejectsNilEvaluator(t *testing.T) {
	f, err := New(nil, Options{Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, ErrAlloc)
	assert.Nil(t, f)
}

func TestNewRejectsOversizedDefault(t *testing.T) {
	_, err := New(testEvaluator(), Options{Capacity: 4, DefaultSelector: "1234", Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, ErrNoSpace)
}

func TestReadWithoutWriteUsesSensor1(t *testing.T) {
	obs := &recorder{}
	f, p := newTestFile(t, Options{Observer: obs})

	buf := make([]byte, 64)
	n, err := f.Open().Read(buf)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "S", string(buf[:n]))
	assert.Equal(t, "1", f.Selector())
	assert.Equal(t, 1, p.Reads[1])
	require.Len(t, obs.reads, 1)
	assert.Equal(t, sensor.Sensor1, obs.reads[0].res.Selector)
	assert.Equal(t, "Sensor 1: 4", obs.reads[0].res.Message)
}

func TestWriteThenReadRestoresSelector(t *testing.T) {
	for _, sel := range []string{"1", "2"} {
		t.Run(sel, func(t *testing.T) {
			f, _ := newTestFile(t, Options{})
			write(t, f, sel)
			assert.Equal(t, sel, f.Selector())

			buf := make([]byte, 64)
			n, err := f.Open().Read(buf)
			require.NoError(t, err)
			assert.Equal(t, len(sel), n)
			assert.Equal(t, sel, f.Selector())

			// A fresh session repeats the same computation.
			n, err = f.Open().Read(buf)
			require.NoError(t, err)
			assert.Equal(t, len(sel), n)
			assert.Equal(t, sel, f.Selector())
		})
	}
}

func TestReadDeliversSelectorLength(t *testing.T) {
	f, _ := newTestFile(t, Options{})

	write(t, f, "2abcde")
	buf := make([]byte, 64)
	n, err := f.Open().Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "Sensor", string(buf[:n]))

	// Longer than the message: the tail is the zero fill.
	sel := "1" + strings.Repeat("z", 19)
	write(t, f, sel)
	n, err = f.Open().Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	want := append([]byte("Sensor 1: 4"), make([]byte, 9)...)
	assert.Equal(t, want, buf[:n])
	assert.Equal(t, sel, f.Selector())
}

func TestNewlineTerminatedSelector(t *testing.T) {
	f, _ := newTestFile(t, Options{})
	write(t, f, "2\n")

	buf := make([]byte, 64)
	n, err := f.Open().Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "Se", string(buf[:n]))
	assert.Equal(t, "2\n", f.Selector())
}

func TestInvalidSelector(t *testing.T) {
	obs := &recorder{}
	f, p := newTestFile(t, Options{Observer: obs})
	write(t, f, "x")

	buf := make([]byte, 64)
	n, err := f.Open().Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "O", string(buf[:n]))
	assert.Equal(t, "x", f.Selector())
	assert.Empty(t, p.Reads)
	assert.Equal(t, sensor.Invalid, obs.reads[0].res.Selector)
}

func TestSessionIsSingleShot(t *testing.T) {
	f, _ := newTestFile(t, Options{})

	s := f.Open()
	assert.Equal(t, Fresh, s.State())
	_, err := s.Read(make([]byte, 16))
	require.NoError(t, err)
	assert.Equal(t, Consumed, s.State())
	assert.Equal(t, int64(16), s.Offset())

	n, err := s.Read(make([]byte, 16))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)

	n, err = s.Write([]byte("2"))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "1", f.Selector())

	w := f.Open()
	_, err = w.Write([]byte("2"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.Offset())
	n, err = w.Write([]byte("1"))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "2", f.Selector())
}

func TestWriteTooLong(t *testing.T) {
	f, _ := newTestFile(t, Options{Capacity: 8})
	write(t, f, "2")

	s := f.Open()
	n, err := s.Write([]byte("12345678"))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrNoSpace)
	assert.Equal(t, "2", f.Selector())
	assert.Equal(t, Fresh, s.State())

	n, err = s.Write([]byte("1234567"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "1234567", f.Selector())
}

func TestWriteReplacesWholeContent(t *testing.T) {
	f, _ := newTestFile(t, Options{})
	write(t, f, "2222")
	write(t, f, "1")
	assert.Equal(t, "1", f.Selector())
}

func TestEmptyWriteConsumesSession(t *testing.T) {
	f, _ := newTestFile(t, Options{})
	s := f.Open()

	n, err := s.Write(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, Consumed, s.State())
	assert.Equal(t, "", f.Selector())

	_, err = s.Write([]byte("1"))
	assert.ErrorIs(t, err, io.EOF)

	// An empty selector delivers nothing and classifies as invalid.
	n, err = f.Open().Read(make([]byte, 8))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "", f.Selector())
}

func TestReadBufferTooSmall(t *testing.T) {
	f, p := newTestFile(t, Options{})
	write(t, f, "22")

	s := f.Open()
	n, err := s.Read(make([]byte, 1))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrNoSpace)
	assert.Equal(t, "22", f.Selector())
	assert.Equal(t, Fresh, s.State())
	assert.Empty(t, p.Reads)
}

func TestReadToFaultLeavesMessage(t *testing.T) {
	obs := &recorder{}
	f, _ := newTestFile(t, Options{Observer: obs})

	s := f.Open()
	n, err := s.ReadTo(failingWriter{}, 64)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrFault)
	assert.Equal(t, Fresh, s.State())
	assert.Equal(t, "Sensor 1: 4", f.Selector())
	assert.ErrorIs(t, obs.reads[0].err, ErrFault)
}

func TestReadToWriter(t *testing.T) {
	f, _ := newTestFile(t, Options{})
	write(t, f, "2")

	var out bytes.Buffer
	n, err := f.Open().ReadTo(&out, 64)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "S", out.String())
	assert.Equal(t, "2", f.Selector())
}

func TestWriteFrom(t *testing.T) {
	f, _ := newTestFile(t, Options{Capacity: 8})

	n, err := f.Open().WriteFrom(strings.NewReader("2"), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "2", f.Selector())

	n, err = f.Open().WriteFrom(strings.NewReader("x"), -1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "x", f.Selector())
}

func TestWriteFromShortReaderFaults(t *testing.T) {
	f, _ := newTestFile(t, Options{})
	write(t, f, "2")

	s := f.Open()
	n, err := s.WriteFrom(strings.NewReader("1"), 4)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrFault)
	assert.Equal(t, "2", f.Selector())
	assert.Equal(t, Fresh, s.State())
}

func TestWriteFromTooLong(t *testing.T) {
	f, _ := newTestFile(t, Options{Capacity: 8})

	r := strings.NewReader(strings.Repeat("1", 100))
	_, err := f.Open().WriteFrom(r, 100)
	assert.ErrorIs(t, err, ErrNoSpace)
	assert.Equal(t, 100, r.Len(), "body must not be consumed")

	_, err = f.Open().WriteFrom(strings.NewReader(strings.Repeat("1", 100)), -1)
	assert.ErrorIs(t, err, ErrNoSpace)
	assert.Equal(t, "1", f.Selector())
}

func TestDeliverFull(t *testing.T) {
	f, _ := newTestFile(t, Options{Delivery: DeliverFull})
	write(t, f, "2")

	buf := make([]byte, 64)
	n, err := f.Open().Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "Sensor 2: 15", string(buf[:n]))
	assert.Equal(t, "2", f.Selector())

	n, err = f.Open().Read(make([]byte, 4))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrNoSpace)
	assert.Equal(t, "2", f.Selector())
}

func TestClosed(t *testing.T) {
	f, _ := newTestFile(t, Options{})
	require.NoError(t, f.Close())

	_, err := f.Open().Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.Open().Write([]byte("2"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestObserverWrites(t *testing.T) {
	obs := &recorder{}
	f, _ := newTestFile(t, Options{Capacity: 4, Observer: obs})

	write(t, f, "2")
	_, err := f.Open().Write([]byte("2222"))
	require.ErrorIs(t, err, ErrNoSpace)

	require.Len(t, obs.writes, 2)
	assert.Equal(t, "2", obs.writes[0].selector)
	assert.NoError(t, obs.writes[0].err)
	assert.ErrorIs(t, obs.writes[1].err, ErrNoSpace)
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	f, _ := newTestFile(t, Options{Delivery: DeliverFull})

	var wg sync.WaitGroup
	errs := make(chan error, 400)
	for i := 0; i < 100; i++ {
		wg.Add(2)
		sel := []string{"1", "2"}[i%2]
		go func() {
			defer wg.Done()
			if _, err := f.Open().Write([]byte(sel)); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			buf := make([]byte, 64)
			n, err := f.Open().Read(buf)
			if err != nil {
				errs <- err
				return
			}
			got := string(buf[:n])
			if got != "Sensor 1: 4" && got != "Sensor 2: 15" {
				errs <- errors.New("garbled read: " + got)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Contains(t, []string{"1", "2"}, f.Selector())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "fresh", Fresh.String())
	assert.Equal(t, "consumed", Consumed.String())
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}

type readRecord struct {
	res  sensor.Result
	data []byte
	err  error
}

type writeRecord struct {
	selector string
	n        int
	err      error
}

type recorder struct {
	mu     sync.Mutex
	reads  []readRecord
	writes []writeRecord
}

func (r *recorder) ObserveWrite(selector string, n int, err error) {
	r.mu.Lock()
	r.writes = append(r.writes, writeRecord{selector, n, err})
	r.mu.Unlock()
}

func (r *recorder) ObserveRead(res sensor.Result, data []byte, err error) {
	r.mu.Lock()
	r.reads = append(r.reads, readRecord{res, data, err})
	r.mu.Unlock()
}
