package logging

import (
	"fmt"
	"io"

	"github.com/Wyydra/agentcall/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds the root logger. Console output matches what developers run
// locally; json is for anything that ships logs.
func New(cfg config.LogConfig, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	w := out
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Caller().Logger(), nil
}

// Setup installs the logger as the process-wide zerolog logger.
func Setup(cfg config.LogConfig, out io.Writer) (zerolog.Logger, error) {
	l, err := New(cfg, out)
	if err != nil {
		return l, err
	}
	log.Logger = l
	return l, nil
}
