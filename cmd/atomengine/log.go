// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/22388o/atom-engine/internal/dex"
	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// logWriter implements an io.Writer that outputs to both standard output
// and the write end of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	if logRotator == nil {
		return os.Stdout.Write(p)
	}
	os.Stdout.Write(p)
	return logRotator.Write(p) // not safe for concurrent writes, so only one logWriter{} allowed!
}

// Loggers per subsystem. A single backend is created and every subsystem
// logger is derived from it, so a level change on the backend is visible
// to all of them. Loggers should not be used before initLogRotator has
// run and parseAndSetDebugLevels has set real levels.
var (
	// logRotator is closed on application shutdown.
	logRotator *rotator.Rotator

	backendLog = slog.NewBackend(logWriter{})

	log = dex.Disabled

	subsystemLoggers = map[string]dex.Logger{
		"MAIN": dex.Disabled, // process lifecycle
		"ENGN": dex.Disabled, // entity store + durable log
		"SESS": dex.Disabled, // session registry
		"DISP": dex.Disabled, // command dispatcher
		"WLOG": dex.Disabled, // recovery replay
	}
)

func initLogRotator(logFile string, maxRolls int) {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		os.Exit(1)
	}
	var err error
	logRotator, err = rotator.New(logFile, 32*1024, false, maxRolls)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %v\n", err)
		os.Exit(1)
	}
}

func setLogLevel(subsysID string, level slog.Level) {
	logger, ok := subsystemLoggers[subsysID]
	if !ok {
		return
	}
	logger.SetLevel(level)
	logger = backendLog.Logger(subsysID)
	logger.SetLevel(level)
	subsystemLoggers[subsysID] = logger
}

func setLogLevels(level slog.Level) {
	for subsysID := range subsystemLoggers {
		setLogLevel(subsysID, level)
	}
	log = subsystemLoggers["MAIN"]
}

func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}
