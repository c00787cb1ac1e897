package logger

import (
	"strings"

	"github.com/rs/zerolog"

	corelogger "github.com/yatrik/scheduler/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger discards everything.
type NopLogger = corelogger.NopLogger

// New returns a Logger for the given component. The environment is detected via
// the APP_ENV variable.
func New(component string) Logger {
	return NewZerologLogger(component)
}

// SetLevel sets the global minimum level ("debug", "info", "warn", "error").
// Unknown names leave the level unchanged and return false.
func SetLevel(level string) bool {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		return false
	}
	zerolog.SetGlobalLevel(lvl)
	return true
}
