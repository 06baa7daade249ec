// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"

	"github.com/22388o/atom-engine/internal/dispatcher"
	"github.com/22388o/atom-engine/internal/recovery"
	"github.com/22388o/atom-engine/internal/session"
	"github.com/22388o/atom-engine/internal/store"
	"github.com/22388o/atom-engine/internal/walog"
	"golang.org/x/sync/errgroup"
)

const commandLogFilename = "info.dat"

func mainCore(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	engnLog := subsystemLoggers["ENGN"]
	sessLog := subsystemLoggers["SESS"]
	dispLog := subsystemLoggers["DISP"]
	wlogLog := subsystemLoggers["WLOG"]

	logPath := filepath.Join(cfg.DataDir, commandLogFilename)
	st := store.New()
	wal := walog.Open(logPath, engnLog)

	if err := recovery.Replay(logPath, st, wlogLog); err != nil {
		return fmt.Errorf("failed to recover command log %q: %v", logPath, err)
	}
	orders, trades := st.Snapshot()
	log.Infof("entity store ready: %d open orders, %d in-flight trades", len(orders), len(trades))

	sess := session.New(sessLog)
	disp := dispatcher.New(st, wal, sess, dispLog)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %q: %v", cfg.Listen, err)
	}
	log.Infof("%s version %v (Go version %s) listening for peer connections on %s",
		AppName, appVersion, runtime.Version(), cfg.Listen)

	var g errgroup.Group
	g.Go(func() error { return acceptLoop(ln, disp, &g) })

	log.Info("atom engine is running. Hit CTRL+C to quit...")
	<-ctx.Done()

	log.Info("stopping atom engine...")
	ln.Close()
	disp.Shutdown()
	g.Wait()
	log.Info("atom engine was closed")

	return nil
}

// acceptLoop accepts connections on ln until it is closed, handing each
// one to the group so mainCore can wait for every in-flight connection to
// finish draining once shutdown closes the listener and every socket.
func acceptLoop(ln net.Listener, disp *dispatcher.Dispatcher, g *errgroup.Group) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return nil
		}
		g.Go(func() error { return disp.Serve(nc) })
	}
}

func main() {
	ctx := withShutdownCancel(context.Background())
	go shutdownListener()

	if err := mainCore(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}
