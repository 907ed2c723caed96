// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package appcore

import (
	"time"

	"github.com/google/uuid"

	"github.com/rmacrae/agentdeck/internal/hid"
)

// ModeEchoSuppression is how long after the app itself pushes a mode
// change it ignores the device's own echoed state, avoiding a feedback
// loop (§4.4.1's mode-scan note).
const ModeEchoSuppression = 2 * time.Second

// ModeSetter is the narrow interface the mode-echo guard needs.
type ModeSetter interface {
	SetMode(mode hid.DeviceMode) error
}

// Session is one tab's terminal view plus its auto-answer state, keyed
// by a stable ID so the app can correlate it across tab reordering.
//
// Grounded on
// _examples/Hyper-Int-OrcaBot/sandbox/internal/sessions/session.go's
// per-tab struct shape, generalized from a PTY/agent-process record to
// a terminal-scan record.
type Session struct {
	ID    string
	Tab   int
	Grid  *Grid
	Agent *AutoAnswerSession
}

// NewSession constructs a session for tab index with a fresh ID.
func NewSession(tab int, rows, cols int) *Session {
	return &Session{ID: uuid.NewString(), Tab: tab, Grid: NewGrid(rows, cols)}
}

// Orchestrator ties the scanners, alert bookkeeping, display pump, and
// mode push together across every open tab. The auto-answer loop is not
// run here; callers drive it separately.
type Orchestrator struct {
	Book    *TabBook
	Display *DisplayPump
	Mode    ModeSetter

	sessions map[int]*Session

	lastAppliedMode  hid.DeviceMode
	modeSuppressedAt time.Time

	SessionName string
	ArgsCap     int
}

// NewOrchestrator constructs an orchestrator writing display/mode
// updates through updater.
func NewOrchestrator(updater DisplayUpdater, mode ModeSetter, sessionName string) *Orchestrator {
	return &Orchestrator{
		Book:        NewTabBook(),
		Display:     NewDisplayPump(updater),
		Mode:        mode,
		sessions:    make(map[int]*Session),
		SessionName: sessionName,
		ArgsCap:     DefaultArgsCap,
	}
}

// Tab returns (creating if needed) the session for tab index.
func (o *Orchestrator) Tab(index int, rows, cols int) *Session {
	s, ok := o.sessions[index]
	if !ok {
		s = NewSession(index, rows, cols)
		o.sessions[index] = s
	}
	return s
}

// ScanTab runs the spinner and mode scanners over tab index's grid,
// updates bookkeeping, and runs the mode-echo-suppressed SetMode push.
// now is supplied by the caller (stdlib time.Now is avoided inside
// workflow scripts but is the natural caller here in the running app).
func (o *Orchestrator) ScanTab(index int, now time.Time) {
	s, ok := o.sessions[index]
	if !ok {
		return
	}

	if task, found := FindSpinnerTask(s.Grid); found {
		o.Book.SetCurrentTask(index, task)
		o.Book.SetWorking(index, true)
	} else {
		o.Book.SetWorking(index, false)
	}

	mode := ScanMode(s.Grid)
	o.applyMode(mode, now)
}

// applyMode pushes a SetMode to the device on transition, suppressing
// the push for ModeEchoSuppression after the app's own last push so the
// device's echoed state doesn't bounce back into another SetMode.
func (o *Orchestrator) applyMode(mode hid.DeviceMode, now time.Time) {
	if mode == o.lastAppliedMode {
		return
	}
	if now.Sub(o.modeSuppressedAt) < ModeEchoSuppression {
		return
	}
	if o.Mode == nil {
		return
	}
	if err := o.Mode.SetMode(mode); err != nil {
		return
	}
	o.lastAppliedMode = mode
	o.modeSuppressedAt = now
}

// PromptContextFor returns the prompt-context scan result for tab
// index's current grid, used as alert "details" text.
func (o *Orchestrator) PromptContextFor(index int) PromptContext {
	s, ok := o.sessions[index]
	if !ok {
		return PromptContext{}
	}
	return ExtractPromptContext(s.Grid, o.ArgsCap)
}

// RaiseBellAlert implements the Bell alert rule (§4.4.2): only raised
// for a tab that is not currently active.
func (o *Orchestrator) RaiseBellAlert(index int) bool {
	if index == o.Book.ActiveTab() {
		return false
	}
	return o.Book.RaiseAlert(index, "Bell")
}

// RaiseToastAlert implements the Toast alert rule (§4.4.2): raised when
// the tab is not active, or the window is unfocused.
func (o *Orchestrator) RaiseToastAlert(index int, body string, windowFocused bool) bool {
	if index == o.Book.ActiveTab() && windowFocused {
		return false
	}
	return o.Book.RaiseAlert(index, body)
}

// OnWindowFocus clears the active tab's alert and returns the tab index
// whose ClearAlert the caller should enqueue, or -1.
func (o *Orchestrator) OnWindowFocus() int {
	return o.Book.OnWindowFocus()
}

// PushDisplay assembles and (if changed) sends the display payload for
// the currently active tab.
func (o *Orchestrator) PushDisplay(tabCount int) (bool, error) {
	active := o.Book.ActiveTab()
	task, _ := o.Book.Get(active)
	payload := BuildDisplayPayload(o.SessionName, task.CurrentTask, o.Book, tabCount)
	return o.Display.Push(payload)
}
