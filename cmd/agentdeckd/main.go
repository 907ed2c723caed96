// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/gousb"

	"github.com/rmacrae/agentdeck/internal/daemon"
	"github.com/rmacrae/agentdeck/internal/debug"
	"github.com/rmacrae/agentdeck/internal/hid"
)

const mainRevision = "agentdeckd-v1"

func init() {
	log.Printf("[main] REVISION: %s loaded at %s", mainRevision, time.Now().Format(time.RFC3339))
}

func main() {
	listen := os.Getenv("AGENTDECK_LISTEN")
	if listen == "" {
		listen = "127.0.0.1:47220"
	}

	identity := hid.DefaultIdentity
	if vid := os.Getenv("AGENTDECK_VID"); vid != "" {
		if v, err := strconv.ParseUint(vid, 0, 16); err == nil {
			identity.VendorID = gousb.ID(v)
		}
	}
	if pid := os.Getenv("AGENTDECK_PID"); pid != "" {
		if v, err := strconv.ParseUint(pid, 0, 16); err == nil {
			identity.ProductID = gousb.ID(v)
		}
	}

	pingInterval := 2000 * time.Millisecond
	if ms := os.Getenv("AGENTDECK_PING_INTERVAL_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 {
			pingInterval = time.Duration(v) * time.Millisecond
		}
	}

	memMonitor := debug.NewMemoryMonitor(debug.DefaultConfig())
	memMonitor.Start()

	hub := &daemon.EventHub{}
	manager := hid.NewManager(identity, hub, pingInterval)
	manager.Start()

	watcher := hid.NewPresenceWatcher(identity, manager)
	watcher.Start()

	state := daemon.NewState(manager)

	mux := http.NewServeMux()
	daemon.RegisterHTTP(mux, state, hub)

	httpServer := &http.Server{
		Addr:    listen,
		Handler: mux,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	debugDump := make(chan os.Signal, 1)
	signal.Notify(debugDump, syscall.SIGQUIT)
	go func() {
		for range debugDump {
			memMonitor.DumpGoroutineStacks()
		}
	}()

	go func() {
		log.Printf("[main] listening on %s", listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] server error: %v", err)
		}
	}()

	sig := <-shutdown
	log.Printf("[main] received signal %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("[main] http server shutdown error: %v", err)
	}

	watcher.Stop()
	manager.Stop()
	memMonitor.Stop()

	log.Println("[main] daemon stopped")
}
