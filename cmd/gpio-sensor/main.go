// Command gpio-sensor serves a sensor control file over HTTP and MQTT and
// reads two weighted GPIO sensors on demand.
package main

import (
	"fmt"
	"os"

	"github.com/nullpointer/gpio-sensor/internal/config"
	"github.com/nullpointer/gpio-sensor/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(afero.NewOsFs()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// app carries state shared by the subcommands.
type app struct {
	fs         afero.Fs
	configPath string
	logLevel   string
	noColor    bool
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	a := &app{fs: fs}

	root := &cobra.Command{
		Use:           "gpio-sensor",
		Short:         "Read weighted GPIO sensors through a control file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath, "path to the YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored log output")

	root.AddCommand(
		newServeCmd(a),
		newCatCmd(),
		newEchoCmd(),
		newPinsCmd(a),
	)
	return root
}

// loadConfig reads the config file, then the environment. Flags are
// applied by the caller.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.fs, a.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.noColor {
		cfg.Log.NoColor = true
	}
	return cfg, nil
}

func (a *app) logger(cmd *cobra.Command, cfg *config.Config) (zerolog.Logger, error) {
	return logging.Setup(logging.Options{
		Level:   cfg.Log.Level,
		NoColor: cfg.Log.NoColor,
		Out:     cmd.ErrOrStderr(),
	})
}
