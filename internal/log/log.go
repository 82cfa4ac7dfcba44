package log

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger     zerolog.Logger
	loggerOnce sync.Once
)

// initLogger initializes the global zerolog logger writing to stderr.
func initLogger() {
	loggerOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	})
}

// SetLevel adjusts the minimum level; accepted values are "debug", "info"
// and "error". Unknown values keep the current level.
func SetLevel(level string) {
	initLogger()
	switch level {
	case "debug":
		logger = logger.Level(zerolog.DebugLevel)
	case "info":
		logger = logger.Level(zerolog.InfoLevel)
	case "error":
		logger = logger.Level(zerolog.ErrorLevel)
	}
}

func Debug(msg string, kv ...any) {
	initLogger()
	withFields(logger.Debug(), kv).Msg(msg)
}

func Info(msg string, kv ...any) {
	initLogger()
	withFields(logger.Info(), kv).Msg(msg)
}

func Error(msg string, err error, kv ...any) {
	initLogger()
	withFields(logger.Error().Err(err), kv).Msg(msg)
}

// withFields appends key-value pairs to the event. Keys must be strings;
// an odd trailing value is ignored.
func withFields(ev *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	return ev
}
