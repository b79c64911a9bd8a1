// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorMagenta = 35
	colorBold    = 1
)

func colorize(s interface{}, c int, disabled bool) string {
	if disabled {
		return fmt.Sprintf("%s", s)
	}
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

// lockedWriter serializes writes so concurrent handlers don't interleave lines.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	n, err := lw.w.Write(p)
	lw.mu.Unlock()
	return n, err
}

// Options controls logger output.
type Options struct {
	Level   string // trace, debug, info, warn, error
	NoColor bool
	Out     io.Writer // defaults to stderr
}

// Setup installs a console logger as the global zerolog logger and returns it.
func Setup(opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parse log level %q: %w", opts.Level, err)
		}
		level = l
	}

	out := consoleOut(opts.Out)

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	cw := zerolog.ConsoleWriter{
		Out:        lockedWriter{mu: &sync.Mutex{}, w: out},
		TimeFormat: time.RFC3339,
		NoColor:    opts.NoColor,
	}
	noColor := opts.NoColor
	cw.FormatLevel = func(i interface{}) string {
		ll, ok := i.(string)
		if !ok {
			return "| ???   |"
		}
		var l string
		switch ll {
		case zerolog.LevelTraceValue:
			l = colorize("TRACE", colorMagenta, noColor)
		case zerolog.LevelDebugValue:
			l = colorize("DEBUG", colorYellow, noColor)
		case zerolog.LevelInfoValue:
			l = colorize("INFO ", colorGreen, noColor)
		case zerolog.LevelWarnValue:
			l = colorize("WARN ", colorRed, noColor)
		case zerolog.LevelErrorValue, zerolog.LevelFatalValue, zerolog.LevelPanicValue:
			l = colorize(colorize(strings.ToUpper(fmt.Sprintf("%-5s", ll))[0:5], colorRed, noColor), colorBold, noColor)
		default:
			l = colorize(ll, colorBold, noColor)
		}
		return fmt.Sprintf("| %s |", l)
	}

	logger := zerolog.New(cw).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger, nil
}

// consoleOut wraps terminals so ANSI colors render on every platform.
// Writers that are not files pass through unchanged.
func consoleOut(w io.Writer) io.Writer {
	switch f := w.(type) {
	case nil:
		return colorable.NewColorableStderr()
	case *os.File:
		return colorable.NewColorable(f)
	}
	return w
}

// Component returns a sub-logger tagged with the given component name.
func Component(parent zerolog.Logger, name string) zerolog.Logger {
	return parent.With().Str("component", name).Logger()
}
