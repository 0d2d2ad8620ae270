// Package logging builds the service's zerolog loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"smarterdog/internal/config"

	"github.com/rs/zerolog"
)

// New builds the process logger from the logging, app and business
// sections. Every entry carries the salon name, and timestamps are written
// in the salon's timezone so they line up with booked slot times.
func New(cfg *config.Config) (*zerolog.Logger, io.Closer, error) {
	lc := cfg.Logging

	output, closer, err := openOutput(lc)
	if err != nil {
		return nil, nil, err
	}
	if strings.EqualFold(strings.TrimSpace(lc.Format), "console") {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Business.Timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFunc = func() time.Time { return time.Now().In(loc) }

	base := zerolog.New(output).
		Level(parseLevel(lc.Level)).
		With().
		Timestamp().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Str("salon", cfg.Business.Name).
		Logger()

	// Шаги мастера пишутся на debug на каждый запрос; ограничиваем поток.
	if lc.DebugBurst > 0 {
		base = base.Sample(zerolog.LevelSampler{
			TraceSampler: &zerolog.BurstSampler{Burst: uint32(lc.DebugBurst), Period: time.Second},
			DebugSampler: &zerolog.BurstSampler{Burst: uint32(lc.DebugBurst), Period: time.Second},
		})
	}

	return &base, closer, nil
}

func parseLevel(s string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

func openOutput(lc config.LoggingConfig) (io.Writer, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(lc.Output)) {
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		if lc.FilePath == "" {
			return nil, nil, fmt.Errorf("logging.output=file requires logging.file_path")
		}
		file, err := os.OpenFile(lc.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return file, file, nil
	default:
		return os.Stdout, nil, nil
	}
}

// Component returns a child logger tagged with the component name.
func Component(base *zerolog.Logger, name string) *zerolog.Logger {
	l := base.With().Str("component", name).Logger()
	return &l
}
