package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nullpointer/gpio-sensor/internal/config"
	"github.com/nullpointer/gpio-sensor/internal/controlfile"
	"github.com/nullpointer/gpio-sensor/internal/gpio"
	"github.com/nullpointer/gpio-sensor/internal/logging"
	"github.com/nullpointer/gpio-sensor/internal/mqtt"
	"github.com/nullpointer/gpio-sensor/internal/sensor"
	"github.com/nullpointer/gpio-sensor/internal/status"
	"github.com/nullpointer/gpio-sensor/internal/web"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var backend, chip, httpAddr, broker string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("backend") {
				cfg.GPIO.Backend = backend
			}
			if flags.Changed("chip") {
				cfg.GPIO.Chip = chip
			}
			if flags.Changed("http") {
				cfg.HTTP.Addr = httpAddr
			}
			if flags.Changed("broker") {
				cfg.MQTT.Broker = broker
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log, err := a.logger(cmd, cfg)
			if err != nil {
				return err
			}
			return run(cfg, log)
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "GPIO backend (cdev, rpio, periph, sim)")
	cmd.Flags().StringVar(&chip, "chip", "", "GPIO chip for the cdev backend")
	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP listen address (empty to disable)")
	cmd.Flags().StringVar(&broker, "broker", "", "MQTT broker address (empty to disable)")
	return cmd
}

func run(cfg *config.Config, log zerolog.Logger) error {
	// Initialize GPIO
	provider, err := gpio.Open(cfg.GPIOOptions())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer func() {
		if err := provider.Close(); err != nil {
			log.Warn().Err(err).Msg("release gpio")
		}
	}()

	report := gpio.Init(provider, gpio.Specs(cfg.GPIO.Pins), logging.Component(log, "gpio"))
	if !report.OK() {
		log.Warn().Ints("ready", report.Ready()).Int("failed", len(report.Failed())).Msg("running with degraded pin set")
	}

	capacity := cfg.Control.Capacity
	if capacity == 0 {
		capacity = os.Getpagesize()
	}
	tracker := status.NewTracker(time.Now(), status.Config{
		Backend:  cfg.GPIO.Backend,
		Chip:     cfg.GPIO.Chip,
		HTTPAddr: cfg.HTTP.Addr,
		Broker:   cfg.MQTT.Broker,
		Delivery: cfg.Control.Delivery,
		Capacity: capacity,
	})
	tracker.SetPins(report)

	// Initialize the control file
	file, err := controlfile.New(
		sensor.NewEvaluator(provider, sensor.Sensors(cfg.Pins())),
		controlfile.Options{
			Name:            cfg.Control.Name,
			Capacity:        capacity,
			DefaultSelector: cfg.Control.DefaultSelector,
			Delivery:        controlfile.Delivery(cfg.Control.Delivery),
			Observer:        tracker,
			Logger:          logging.Component(log, "controlfile"),
		},
	)
	if err != nil {
		return fmt.Errorf("create control file: %w", err)
	}
	defer file.Close()
	tracker.SetSelectorSource(file.Selector)

	// Initialize MQTT
	var (
		publisher  mqtt.Publisher
		mqttStatus mqtt.ConnectionStatus
	)
	if cfg.MQTT.Broker != "" {
		mlog := logging.Component(log, "mqtt")
		topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, file.Name())
		client, err := mqtt.NewRealClient(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topics:   topics,
			Buffer:   cfg.MQTT.Buffer,
		}, mlog)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer client.Close()

		bridge := mqtt.NewBridge(file, client, topics, mlog)
		if err := client.Subscribe(bridge.Subscriptions(), bridge.Handle); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		publisher, mqttStatus = client, client
		tracker.SetMQTTConnected(client.IsConnected())

		// Publish startup event with full status snapshot
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Warn().Err(err).Msg("failed to publish startup event")
		} else {
			log.Info().Msg("published startup event")
		}
	}

	// Start HTTP server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, file, tracker, logging.Component(log, "web"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Info().Str("addr", cfg.HTTP.Addr).Msgf("serving %s%s", web.ProcPrefix, file.Name())
	}

	log.Info().
		Str("backend", cfg.GPIO.Backend).
		Str("file", file.Name()).
		Int("capacity", file.Capacity()).
		Str("delivery", string(file.Delivery())).
		Msg("started")

	var tick <-chan time.Time
	if publisher != nil && cfg.MQTT.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.MQTT.Heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runLoop(publisher, mqttStatus, tracker, log, time.Now, tick, sigCh)
}

// runLoop blocks until a signal arrives, publishing a heartbeat on every
// tick. publisher may be nil when MQTT is disabled.
func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, log zerolog.Logger, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			reason := signalName(s)
			log.Info().Str("signal", reason).Msg("shutting down")
			if publisher == nil {
				return nil
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    reason,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", reason)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Warn().Err(err).Msg("failed to publish shutdown event")
			} else {
				log.Info().Msg("published shutdown event")
			}
			return nil

		case <-tick:
			if publisher == nil {
				continue
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				log.Debug().
					Dur("uptime", snap.Uptime()).
					Int("reads", snap.Counts.Reads).
					Int("writes", snap.Counts.Writes).
					Msg("heartbeat")
				event.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Warn().Err(err).Msg("heartbeat publish error")
			}
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
