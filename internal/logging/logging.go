// Package logging configures the process-wide structured logger used
// by every other package. All extraction-path logging (flip-heuristic
// notices, CRS fallbacks, per-file skips) goes through here rather than
// fmt.Println so it can be leveled and silenced by --quiet/--debug.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu  sync.Mutex
	log zerolog.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: false}).
		With().Timestamp().Logger().Level(zerolog.InfoLevel)
)

// Configure sets the active log level from the CLI/config precedence:
// debug overrides quiet overrides the default info level.
func Configure(debug, quiet bool, w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if w == nil {
		w = os.Stderr
	}

	level := zerolog.InfoLevel

	switch {
	case debug:
		level = zerolog.DebugLevel
	case quiet:
		level = zerolog.WarnLevel
	}

	log = zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: false}).
		With().Timestamp().Logger().Level(level)
}

// L returns the active logger. Kept as a function (not a package var)
// so Configure can hot-swap it between CLI startup and test setup.
func L() *zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return &log
}

func Debug() *zerolog.Event { return L().Debug() }
func Warn() *zerolog.Event  { return L().Warn() }
func Info() *zerolog.Event  { return L().Info() }
func Error() *zerolog.Event { return L().Error() }
