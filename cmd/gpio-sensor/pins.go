package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/nullpointer/gpio-sensor/internal/gpio"
	"github.com/nullpointer/gpio-sensor/internal/logging"
	"github.com/nullpointer/gpio-sensor/internal/sensor"
	"github.com/spf13/cobra"
)

func newPinsCmd(a *app) *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "pins",
		Short: "Initialize the pins, print their levels and both sensor values, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("backend") {
				cfg.GPIO.Backend = backend
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log, err := a.logger(cmd, cfg)
			if err != nil {
				return err
			}

			provider, err := gpio.Open(cfg.GPIOOptions())
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			defer provider.Close()

			report := gpio.Init(provider, gpio.Specs(cfg.GPIO.Pins), logging.Component(log, "gpio"))
			eval := sensor.NewEvaluator(provider, sensor.Sensors(cfg.Pins()))
			return printPins(cmd.OutOrStdout(), report, eval)
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "GPIO backend (cdev, rpio, periph, sim)")
	return cmd
}

// printPins writes one row per pin followed by both sensor messages.
func printPins(w io.Writer, report gpio.Report, eval *sensor.Evaluator) error {
	s1 := eval.Evaluate([]byte("1"))
	s2 := eval.Evaluate([]byte("2"))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PIN\tLABEL\tSTATUS\tLEVEL")
	for _, p := range report.Pins {
		state := "ready"
		if p.Err != nil {
			state = fmt.Sprintf("failed (%s: %v)", p.Err.Stage, p.Err.Err)
		}
		level, ok := s1.Levels[p.Pin]
		if !ok {
			level = s2.Levels[p.Pin]
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", p.Pin, p.Label, state, level)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, s1.Message)
	fmt.Fprintln(w, s2.Message)
	for _, pe := range append(s1.Errors, s2.Errors...) {
		fmt.Fprintf(w, "pin %d: %v (counted as 0)\n", pe.Pin, pe.Err)
	}
	return nil
}
