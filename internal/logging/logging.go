// Package logging wires zerolog as the process logger and exposes the
// request-scoped logger that handlers write through.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // json or console
	Output io.Writer
}

// Init configures the global logger. Unknown levels fall back to info.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Str("service", "gameshelf").Logger()
	zerolog.DefaultContextLogger = &log.Logger
}

// Ctx returns the logger attached to ctx, or the global logger.
func Ctx(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// Logger returns the global logger.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// Writer adapts the global logger to an io.Writer at the given level, for
// libraries that only accept a writer (the GORM logger).
func Writer(level zerolog.Level) io.Writer {
	return levelWriter{level: level}
}

type levelWriter struct {
	level zerolog.Level
}

func (w levelWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		log.Logger.WithLevel(w.level).Str("component", "gorm").Msg(msg)
	}
	return len(p), nil
}
