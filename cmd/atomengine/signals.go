// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// interruptSignals defines the default signals to handle in order to do a
// clean shutdown.
var interruptSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// withShutdownCancel returns a copy of ctx that is canceled by
// shutdownListener when an interrupt signal is received.
func withShutdownCancel(ctx context.Context) context.Context {
	ctx, shutdownCancel = context.WithCancel(ctx)
	return ctx
}

// shutdownCancel is set by withShutdownCancel, and called by
// shutdownListener or requestShutdown to cancel the context returned by
// withShutdownCancel.
var shutdownCancel context.CancelFunc

// shutdownListener listens for interrupt signals and cancels the
// shutdown context on the first one. A second signal forces an immediate
// exit, in case something downstream is ignoring context cancellation.
func shutdownListener() {
	interruptChannel := make(chan os.Signal, 1)
	signal.Notify(interruptChannel, interruptSignals...)

	<-interruptChannel
	log.Info("Received shutdown signal. Shutting down...")
	shutdownCancel()

	<-interruptChannel
	log.Warn("Received shutdown signal again. Terminating now.")
	os.Exit(1)
}

// requestShutdown cancels the shutdown context directly, for callers that
// are not a signal handler.
func requestShutdown() {
	shutdownCancel()
}
