// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package dex

import (
	"fmt"
	"strings"

	"github.com/decred/slog"
)

// Every backend constructor will accept a Logger. All logging should take place
// through the provided logger.
type Logger = slog.Logger

// Disabled is a Logger that discards all log messages. It is the zero value
// for package-level loggers declared before logging is configured.
var Disabled = slog.Disabled

// LoggerMaker allows creation of new log subsystems with predefined levels.
type LoggerMaker struct {
	*slog.Backend
	DefaultLevel slog.Level
	Levels       map[string]slog.Level
}

// SubLogger creates a Logger with a subsystem name "parent[name]", using any
// known log level for the parent subsystem, defaulting to the DefaultLevel if
// the parent does not have an explicitly set level.
func (lm *LoggerMaker) SubLogger(parent, name string) Logger {
	// Use the parent logger's log level, if set.
	level, ok := lm.Levels[parent]
	if !ok {
		level = lm.DefaultLevel
	}
	logger := lm.Backend.Logger(fmt.Sprintf("%s[%s]", parent, name))
	logger.SetLevel(level)
	return logger
}

// NewLogger creates a new Logger for the subsystem with the given name. If a
// log level is specified, it is used for the Logger. Otherwise the DefaultLevel
// is used.
func (lm *LoggerMaker) NewLogger(name string, level ...slog.Level) Logger {
	lvl := lm.DefaultLevel
	if len(level) > 0 {
		lvl = level[0]
	}
	logger := lm.Backend.Logger(name)
	logger.SetLevel(lvl)
	return logger
}

// NewLoggerMaker parses a debug level specification and returns a
// LoggerMaker backed by b. specs is either a single level name applied to
// every subsystem ("info"), or a comma-separated list of
// SUBSYSTEM=level pairs ("MAIN=info,DISP=debug"). An empty string is
// treated as "info".
func NewLoggerMaker(b *slog.Backend, specs string) (*LoggerMaker, error) {
	lm := &LoggerMaker{
		Backend:      b,
		DefaultLevel: slog.LevelInfo,
		Levels:       make(map[string]slog.Level),
	}
	if specs == "" {
		return lm, nil
	}
	if !strings.Contains(specs, "=") {
		lvl, ok := slog.LevelFromString(specs)
		if !ok {
			return nil, fmt.Errorf("invalid log level %q", specs)
		}
		lm.DefaultLevel = lvl
		return lm, nil
	}
	for _, pair := range strings.Split(specs, ",") {
		parts := strings.Split(pair, "=")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid log level pair %q", pair)
		}
		lvl, ok := slog.LevelFromString(parts[1])
		if !ok {
			return nil, fmt.Errorf("invalid log level %q for subsystem %q", parts[1], parts[0])
		}
		lm.Levels[strings.ToUpper(parts[0])] = lvl
	}
	return lm, nil
}
