// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rmacrae/agentdeck/internal/appcore"
	"github.com/rmacrae/agentdeck/internal/appcore/client"
	"github.com/rmacrae/agentdeck/internal/hid"
	"github.com/rmacrae/agentdeck/internal/pty"
)

const mainRevision = "agentdeck-v1"

func init() {
	log.Printf("[main] REVISION: %s loaded at %s", mainRevision, time.Now().Format(time.RFC3339))
}

const (
	defaultCols = 120
	defaultRows = 40
)

// appSink adapts client.EventSink to the orchestrator and the active
// PTY, translating device events into terminal input per §4.4.4.
type appSink struct {
	orch *appcore.Orchestrator
	pty  *pty.PTY
}

func (s *appSink) OnDaemonConnected()    { log.Println("[main] daemon connected") }
func (s *appSink) OnDaemonDisconnected() { log.Println("[main] daemon disconnected") }

func (s *appSink) OnHidConnected(name, firmware string) {
	log.Printf("[main] device connected: %s (firmware %s)", name, firmware)
}

func (s *appSink) OnHidDisconnected() {
	log.Println("[main] device disconnected")
}

func (s *appSink) OnStateChanged(mode hid.DeviceMode, yolo bool) {
	log.Printf("[main] device state changed: mode=%s yolo=%v", mode, yolo)
}

func (s *appSink) OnKeyEvent(keycode uint16) {
	if s.pty == nil {
		return
	}
	bytes := appcore.KeycodeToBytes(keycode)
	if len(bytes) == 0 {
		return
	}
	if _, err := s.pty.Write(bytes); err != nil {
		log.Printf("[main] pty write failed: %v", err)
	}
}

func (s *appSink) OnTypeString(text string, appendEnter bool) {
	if s.pty == nil {
		return
	}
	if _, err := s.pty.Write(appcore.TypeStringToBytes(text, appendEnter)); err != nil {
		log.Printf("[main] pty write failed: %v", err)
	}
}

func (s *appSink) OnAppControl(action byte) {
	log.Printf("[main] app-control action=%#x (tray/menu actions are out of scope here)", action)
}

func main() {
	daemonAddr := os.Getenv("AGENTDECK_DAEMON_ADDR")
	if daemonAddr == "" {
		daemonAddr = "127.0.0.1:47220"
	}

	autoAnswerEnabled := os.Getenv("AGENTDECK_AUTOANSWER") != ""

	softkeysPath := os.Getenv("AGENTDECK_SOFTKEYS_PATH")
	if softkeysPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			softkeysPath = filepath.Join(home, ".config", "agentdeck", "softkeys.json")
		}
	}

	shell := pty.DefaultShell()
	term, err := pty.New(shell, defaultCols, defaultRows)
	if err != nil {
		log.Fatalf("[main] failed to start pty: %v", err)
	}
	defer term.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &appSink{pty: term}
	daemonClient := client.New(daemonAddr, sink, true)

	orch := appcore.NewOrchestrator(daemonClient, daemonClient, "agentdeck")
	session := orch.Tab(0, defaultRows, defaultCols)
	sink.orch = orch

	go daemonClient.Run(ctx)

	if softkeysPath != "" {
		if err := appcore.WatchPresets(softkeysPath, daemonClient, ctx.Done()); err != nil {
			log.Printf("[main] softkey preset watch failed: %v", err)
		}
	}

	detect := func() ([]byte, string, bool) {
		ctx := orch.PromptContextFor(session.Tab)
		if !ctx.Found {
			return nil, "", false
		}
		return []byte("1\r"), ctx.Text, true
	}
	autoAnswer := appcore.NewAutoAnswerSession(detect, ptyWriter{term})
	autoAnswer.Enabled = autoAnswerEnabled
	autoAnswer.Running = true

	go readLoop(ctx, term, session.Grid)
	go scanLoop(ctx, orch, session.Tab, autoAnswer)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		log.Printf("[main] received signal %v, shutting down", sig)
	case <-term.Done():
		log.Println("[main] pty process exited")
	}
}

type ptyWriter struct{ p *pty.PTY }

func (w ptyWriter) WritePTY(data []byte) error {
	_, err := w.p.Write(data)
	return err
}

// readLoop feeds raw PTY output into grid until a read fails or ctx is
// canceled (ctx is checked between reads).
func readLoop(ctx context.Context, term *pty.PTY, grid *appcore.Grid) {
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := term.Read(buf)
		if n > 0 {
			grid.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

const scanTick = 150 * time.Millisecond

// scanLoop periodically runs the content scanners and the auto-answer
// two-phase debounce over the single tab this app instance drives.
func scanLoop(ctx context.Context, orch *appcore.Orchestrator, tab int, autoAnswer *appcore.AutoAnswerSession) {
	ticker := time.NewTicker(scanTick)
	defer ticker.Stop()
	wasWorking := false
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			orch.ScanTab(tab, now)
			if _, err := orch.PushDisplay(1); err != nil {
				log.Printf("[main] display update failed: %v", err)
			}
			state, _ := orch.Book.Get(tab)
			autoAnswer.OnWorkingTransition(wasWorking, state.Working)
			wasWorking = state.Working
			autoAnswer.DetectPhase(now)
			if _, err := autoAnswer.FirePhase(now); err != nil {
				log.Printf("[main] auto-answer write failed: %v", err)
			}
		}
	}
}
