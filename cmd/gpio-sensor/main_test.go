package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/nullpointer/gpio-sensor/internal/controlfile"
	"github.com/nullpointer/gpio-sensor/internal/gpio"
	"github.com/nullpointer/gpio-sensor/internal/mqtt"
	"github.com/nullpointer/gpio-sensor/internal/sensor"
	"github.com/nullpointer/gpio-sensor/internal/status"
	"github.com/nullpointer/gpio-sensor/internal/web"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeClock(start time.Time, step time.Duration) func() time.Time {
	t := start
	return func() time.Time {
		now := t
		t = t.Add(step)
		return now
	}
}

// runRunLoop feeds nTicks heartbeat ticks and then sig into runLoop.
func runRunLoop(t *testing.T, pub mqtt.Publisher, conn mqtt.ConnectionStatus, tracker *status.Tracker, nTicks int, sig os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sigCh := make(chan os.Signal, 1)
	clock := fakeClock(time.Date(2026, 2, 2, 22, 0, 0, 0, time.UTC), time.Minute)

	done := make(chan error, 1)
	go func() {
		done <- runLoop(pub, conn, tracker, zerolog.Nop(), clock, tick, sigCh)
	}()
	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sigCh <- sig

	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not return after signal")
		return nil
	}
}

func statusEvent(t *testing.T, payload []byte) status.StatusInner {
	t.Helper()
	var parsed status.StatusJSON
	require.NoError(t, json.Unmarshal(payload, &parsed))
	return parsed.Status
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "SIGINT", signalName(syscall.SIGINT))
	assert.Equal(t, "SIGTERM", signalName(syscall.SIGTERM))
	assert.Equal(t, "UNKNOWN", signalName(syscall.SIGHUP))
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(time.Now(), status.Config{Backend: "sim"})

	require.NoError(t, runRunLoop(t, pub, pub, tracker, 0, syscall.SIGTERM))

	require.Len(t, pub.SystemEvents, 1)
	ev := pub.SystemEvents[0]
	assert.Equal(t, "SHUTDOWN", ev.Event)
	assert.Equal(t, "SIGTERM", ev.Reason)
	assert.True(t, ev.Retained)

	inner := statusEvent(t, pub.SystemPayloads[0])
	assert.Equal(t, "SHUTDOWN", inner.Event)
	assert.Equal(t, "SIGTERM", inner.Reason)
	assert.Equal(t, "sim", inner.Config.Backend)
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(time.Now(), status.Config{})

	require.NoError(t, runRunLoop(t, pub, pub, tracker, 0, syscall.SIGINT))

	require.Len(t, pub.SystemEvents, 1)
	assert.Equal(t, "SIGINT", pub.SystemEvents[0].Reason)
}

func TestRunLoopHeartbeat(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := status.NewTracker(time.Now(), status.Config{})

	require.NoError(t, runRunLoop(t, pub, pub, tracker, 2, syscall.SIGTERM))

	require.Len(t, pub.SystemEvents, 3)
	assert.Equal(t, "HEARTBEAT", pub.SystemEvents[0].Event)
	assert.Equal(t, "HEARTBEAT", pub.SystemEvents[1].Event)
	assert.False(t, pub.SystemEvents[0].Retained)
	assert.Equal(t, "SHUTDOWN", pub.SystemEvents[2].Event)

	inner := statusEvent(t, pub.SystemPayloads[0])
	assert.Equal(t, "HEARTBEAT", inner.Event)
	assert.True(t, inner.MQTT.Connected)
	assert.True(t, tracker.Snapshot().MQTTConnected)
}

func TestRunLoopPublishError(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Err = errors.New("broker down")
	tracker := status.NewTracker(time.Now(), status.Config{})

	// Publish failures are logged, never fatal.
	require.NoError(t, runRunLoop(t, pub, pub, tracker, 1, syscall.SIGTERM))
	assert.Empty(t, pub.SystemEvents)
}

func TestRunLoopWithoutMQTT(t *testing.T) {
	tracker := status.NewTracker(time.Now(), status.Config{})
	require.NoError(t, runRunLoop(t, nil, nil, tracker, 1, syscall.SIGINT))
}

// levels: sensor 1 = 1 + 0 + 3 = 4, sensor 2 = 4 + 5 + 6 = 15
func newDaemon(t *testing.T) (*httptest.Server, *controlfile.File) {
	t.Helper()
	p := gpio.NewFakeProvider(map[int]int{1: 1, 2: 0, 3: 1, 4: 1, 5: 1, 6: 1})
	tracker := status.NewTracker(time.Now(), status.Config{})
	f, err := controlfile.New(sensor.NewEvaluator(p, sensor.DefaultSensors()), controlfile.Options{
		Observer: tracker,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	tracker.SetSelectorSource(f.Selector)

	srv := httptest.NewServer(web.New("", f, tracker, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv, f
}

func execute(t *testing.T, fs afero.Fs, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(fs)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCatDefaultSelector(t *testing.T) {
	srv, _ := newDaemon(t)

	out, err := execute(t, afero.NewMemMapFs(), "cat", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "S", out)
}

func TestEchoThenCat(t *testing.T) {
	srv, f := newDaemon(t)

	_, err := execute(t, afero.NewMemMapFs(), "echo", "--addr", srv.URL, "2")
	require.NoError(t, err)
	assert.Equal(t, "2\n", f.Selector())

	out, err := execute(t, afero.NewMemMapFs(), "cat", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Se", out)
	assert.Equal(t, "2\n", f.Selector())
}

func TestEchoNoNewline(t *testing.T) {
	srv, f := newDaemon(t)

	_, err := execute(t, afero.NewMemMapFs(), "echo", "-n", "--addr", srv.URL, "2abcde")
	require.NoError(t, err)
	assert.Equal(t, "2abcde", f.Selector())

	out, err := execute(t, afero.NewMemMapFs(), "cat", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Sensor", out)
}

func TestCatSizeTooSmall(t *testing.T) {
	srv, _ := newDaemon(t)

	_, err := execute(t, afero.NewMemMapFs(), "echo", "--addr", srv.URL, "2")
	require.NoError(t, err)

	_, err = execute(t, afero.NewMemMapFs(), "cat", "--addr", srv.URL, "--size", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "507")
}

func TestCatUnknownFile(t *testing.T) {
	srv, _ := newDaemon(t)

	_, err := execute(t, afero.NewMemMapFs(), "cat", "--addr", srv.URL, "--name", "other")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestEchoRequiresValue(t *testing.T) {
	_, err := execute(t, afero.NewMemMapFs(), "echo")
	assert.Error(t, err)
}

func TestPinsCommand(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := `
gpio:
  backend: sim
  pins: [17, 27, 22, 5, 6, 13]
  sim_levels:
    17: 1
    22: 1
    5: 1
    13: 1
`
	require.NoError(t, afero.WriteFile(fs, "/cfg.yaml", []byte(cfg), 0o644))

	out, err := execute(t, fs, "pins", "--config", "/cfg.yaml")
	require.NoError(t, err)

	assert.Contains(t, out, "GPIO_IN_1")
	assert.Contains(t, out, "GPIO_IN_6")
	assert.Contains(t, out, "Sensor 1: 4")  // 1*1 + 0*2 + 1*3
	assert.Contains(t, out, "Sensor 2: 10") // 1*4 + 0*5 + 1*6
}

func TestPinsBackendFlagOverridesConfig(t *testing.T) {
	out, err := execute(t, afero.NewMemMapFs(), "pins", "--backend", "sim")
	require.NoError(t, err)
	assert.Contains(t, out, "Sensor 1: 0")
	assert.Contains(t, out, "Sensor 2: 0")
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	_, err := execute(t, afero.NewMemMapFs(), "serve", "--backend", "spi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpio.backend")
}

func TestLogLevelFlagValidated(t *testing.T) {
	_, err := execute(t, afero.NewMemMapFs(), "pins", "--backend", "sim", "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log level")
}

func TestPrintPinsReportsFailures(t *testing.T) {
	p := gpio.NewFakeProvider(map[int]int{1: 1, 4: 1})
	p.RequestErr[2] = errors.New("busy")
	p.LevelErr[5] = errors.New("io")

	report := gpio.Init(p, gpio.DefaultPins(), zerolog.Nop())
	var out bytes.Buffer
	require.NoError(t, printPins(&out, report, sensor.NewEvaluator(p, sensor.DefaultSensors())))

	assert.Contains(t, out.String(), "failed (request: busy)")
	assert.Contains(t, out.String(), "Sensor 1: 1")
	assert.Contains(t, out.String(), "Sensor 2: 4")
	assert.Contains(t, out.String(), "pin 5: io (counted as 0)")
}
