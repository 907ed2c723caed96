// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package appcore

import (
	"sort"
	"sync"
)

// TabState is a per-tab record of scanned terminal state and alert
// bookkeeping (§4.4.2), the app-side analogue of a Session struct.
//
// Grounded on
// _examples/Hyper-Int-OrcaBot/sandbox/internal/sessions/session.go's
// per-tab struct-plus-mutex idiom.
type TabState struct {
	Index int

	CurrentTask string
	Working     bool
	Finished    bool // finished while not the active tab

	AlertActive bool
	AlertText   string
	AlertOrder  uint64

	LastAnswerFingerprint string
	PendingAnswer         *PendingAnswer
}

// PendingAnswer is the detect-phase record of §4.4.5's auto-answer debounce.
type PendingAnswer struct {
	Bytes       []byte
	Fingerprint string
	Deadline    int64 // unix nanos; compared against a caller-supplied "now"
}

// TabBook owns the alert_order_counter and per-tab bookkeeping described
// in §4.4.2, guarding concurrent access from the scan loop and the
// device-input/focus-event handlers.
type TabBook struct {
	mu           sync.Mutex
	tabs         map[int]*TabState
	orderCounter uint64
	activeIndex  int
}

// NewTabBook constructs an empty bookkeeping table.
func NewTabBook() *TabBook {
	return &TabBook{tabs: make(map[int]*TabState)}
}

func (b *TabBook) tabLocked(index int) *TabState {
	t, ok := b.tabs[index]
	if !ok {
		t = &TabState{Index: index}
		b.tabs[index] = t
	}
	return t
}

// SetActiveTab records which tab is currently focused/selected.
func (b *TabBook) SetActiveTab(index int) {
	b.mu.Lock()
	b.activeIndex = index
	b.mu.Unlock()
}

// ActiveTab returns the currently active tab index.
func (b *TabBook) ActiveTab() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeIndex
}

// RaiseAlert raises an alert for tab index with the given text, dropping
// it if that tab already has an active alert (at-most-one-per-tab).
// Returns true if the alert was newly raised.
func (b *TabBook) RaiseAlert(index int, text string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.tabLocked(index)
	if t.AlertActive {
		return false
	}
	b.orderCounter++
	t.AlertActive = true
	t.AlertText = text
	t.AlertOrder = b.orderCounter
	return true
}

// ClearAlert clears tab index's alert, returning true if one was cleared.
func (b *TabBook) ClearAlert(index int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[index]
	if !ok || !t.AlertActive {
		return false
	}
	t.AlertActive = false
	t.AlertText = ""
	return true
}

// OnWindowFocus clears the active tab's alert when the window regains
// focus, per §4.4.2's clearing rule. Returns the index whose alert was
// cleared, or -1 if none.
func (b *TabBook) OnWindowFocus() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.activeIndex
	t, ok := b.tabs[idx]
	if !ok || !t.AlertActive {
		return -1
	}
	t.AlertActive = false
	t.AlertText = ""
	return idx
}

// Snapshot returns a copy of every known tab's state, ordered by index.
func (b *TabBook) Snapshot() []TabState {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]TabState, 0, len(b.tabs))
	for _, t := range b.tabs {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Get returns a copy of the tab state for index, if known.
func (b *TabBook) Get(index int) (TabState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[index]
	if !ok {
		return TabState{}, false
	}
	return *t, true
}

// SetWorking records whether tab index's session is currently working
// (spinner visible), clearing the auto-answer fingerprint on a
// working→idle transition per §4.4.5.
func (b *TabBook) SetWorking(index int, working bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.tabLocked(index)
	wasWorking := t.Working
	t.Working = working
	if wasWorking && !working {
		t.LastAnswerFingerprint = ""
	}
}

// SetCurrentTask records the most recently scanned spinner task text.
func (b *TabBook) SetCurrentTask(index int, task string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tabLocked(index).CurrentTask = task
}

// SetFinished marks tab index as having finished work while in the
// background (used for the finished-in-background display bit).
func (b *TabBook) SetFinished(index int, finished bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tabLocked(index).Finished = finished
}

// The TabBit* flags encode a tab's visual state for the display payload's
// tab_states[] byte array (§4.4.3): bit 0 = active alert, bit 1 =
// finished in background, bit 2 = working.
const (
	TabBitAlert    byte = 0x01
	TabBitFinished byte = 0x02
	TabBitWorking  byte = 0x04
)

func (b *TabBook) tabByteLocked(t *TabState) byte {
	var v byte
	if t.AlertActive {
		v |= TabBitAlert
	}
	if t.Finished {
		v |= TabBitFinished
	}
	if t.Working {
		v |= TabBitWorking
	}
	return v
}

// TabBytes returns the tab_states[] byte for each tab index 0..count-1,
// in order, for the display update pipeline.
func (b *TabBook) TabBytes(count int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, count)
	for i := 0; i < count; i++ {
		if t, ok := b.tabs[i]; ok {
			out[i] = b.tabByteLocked(t)
		}
	}
	return out
}
