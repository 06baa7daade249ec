// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package walog implements the durable command log: an append-only file
// of one compact JSON object per line, the sole persistence mechanism
// for the coordination engine. Only mutation commands - create_order,
// delete_order, create_trade, update_trade - are ever appended; init and
// request_swap_commission are read-only and never reach this package.
package walog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/22388o/atom-engine/internal/dex"
)

// Log is the durable command log backed by a single append-only file.
// There is exactly one writer; Append is safe to call from the single
// command-processing goroutine only - it does no locking of its own.
type Log struct {
	path string
	log  dex.Logger
}

// Open returns a Log backed by path. The file is created on first Append
// if it does not already exist; Open itself performs no I/O, mirroring
// the original's open/close-per-call discipline.
func Open(path string, log dex.Logger) *Log {
	return &Log{path: path, log: log}
}

// Append JSON-encodes cmd compactly, writes it followed by a single LF,
// and closes the file before returning. No fsync is issued: the line is
// handed to the operating system, not forced to disk. A failure is logged and
// swallowed: the in-memory mutation has already happened, so the command
// still succeeds from the caller's point of view even if it did not make
// it to disk.
func (l *Log) Append(cmd interface{}) {
	if err := l.append(cmd); err != nil {
		l.log.Errorf("failed to save command: %v", err)
	}
}

func (l *Log) append(cmd interface{}) error {
	line, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("write log: %w", err)
	}
	return f.Close()
}

// Lines opens the log read-only and calls handler once per well-formed
// line, in file order. Malformed lines are skipped, not fatal. A missing
// file is reported via ok=false with a nil error, so callers can treat a
// fresh start and a real open failure differently if they need to.
func Lines(path string, log dex.Logger, handler func(raw []byte)) (ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// info.dat lines embed full order/trade payloads; the default 64KiB
	// token limit is comfortably larger than any single command, but
	// bump it anyway to be safe against unusually large opaque payloads.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			log.Warnf("skipping malformed log line: %s", line)
			continue
		}
		handler(line)
	}
	if err := scanner.Err(); err != nil {
		return true, fmt.Errorf("read log: %w", err)
	}
	return true, nil
}
