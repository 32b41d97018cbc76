// Package logging builds the diagnostic logger used by the h2o commands.
// Diagnostics go to stderr so they never mix with run output.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvLevel overrides the configured level when set.
const EnvLevel = "H2O_LOG_LEVEL"

// DefaultLevel is used when neither the config nor the environment names one.
const DefaultLevel = "warn"

// ParseLevel maps a level name to a zerolog level. "off" disables logging.
func ParseLevel(name string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return zerolog.WarnLevel, nil
	case "off", "disabled":
		return zerolog.Disabled, nil
	}

	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

// ResolveLevel picks the effective level name: the environment wins over
// the configured value, which wins over DefaultLevel.
func ResolveLevel(configured string) string {
	if env := os.Getenv(EnvLevel); env != "" {
		return env
	}
	if configured != "" {
		return configured
	}
	return DefaultLevel
}

// InitLogger creates a console logger tagged with app at the given level and
// installs it as the global zerolog logger.
func InitLogger(app, level string) (zerolog.Logger, error) {
	return New(os.Stderr, app, level)
}

// New is InitLogger with an explicit destination.
func New(out io.Writer, app, level string) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}

	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    os.Getenv("NO_COLOR") != "",
	}
	logger := zerolog.New(output).Level(lvl).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger, nil
}
