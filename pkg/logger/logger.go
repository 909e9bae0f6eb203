package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Init configures the process-wide logger. level is a zerolog level name
// ("debug", "info", ...); format "console" selects the human-readable writer,
// anything else writes JSON lines.
func Init(level, format string) {
	InitWithWriter(level, format, os.Stdout)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(level, format string, out io.Writer) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(lvl)

	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(out).With().Timestamp().Logger()

	mu.Lock()
	base = l
	mu.Unlock()

	log.Logger = l
	l.Debug().Str("level", lvl.String()).Msg("logger initialized")
}

// Default returns the process-wide logger.
func Default() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// For returns a child logger tagged with the component name.
func For(component string) zerolog.Logger {
	return Default().With().Str("component", component).Logger()
}
