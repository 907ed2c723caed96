// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package appcore

import (
	"strings"

	"github.com/rmacrae/agentdeck/internal/hid"
)

// DisplayUpdater is the narrow slice of *hid.Manager the display
// pipeline needs, so it can be driven against a fake in tests.
type DisplayUpdater interface {
	SendDisplayUpdate(hid.DisplayPayload) error
}

// splitTask divides a scanned spinner task into the two display lines
// the macropad's small screen has room for (§4.4.3): task1 holds up to
// firstLineCap runes, task2 the remainder, word-broken where possible.
const firstLineCap = 21

func splitTask(task string) (string, string) {
	task = strings.TrimSpace(task)
	if task == "" {
		return "", ""
	}
	runes := []rune(task)
	if len(runes) <= firstLineCap {
		return string(runes), ""
	}
	cut := firstLineCap
	for i := firstLineCap; i > 0; i-- {
		if runes[i] == ' ' {
			cut = i
			break
		}
	}
	first := strings.TrimSpace(string(runes[:cut]))
	second := strings.TrimSpace(string(runes[cut:]))
	return first, second
}

// BuildDisplayPayload assembles a hid.DisplayPayload from the current
// session name, active tab's task text, and the bookkeeping table's
// per-tab visual state bytes.
func BuildDisplayPayload(sessionName string, activeTask string, book *TabBook, tabCount int) hid.DisplayPayload {
	task1, task2 := splitTask(activeTask)
	return hid.DisplayPayload{
		Session: sessionName,
		Task:    task1,
		Task2:   task2,
		Tabs:    book.TabBytes(tabCount),
		Active:  book.ActiveTab(),
	}
}

// DisplayPump tracks the last payload sent so repeated identical state
// doesn't re-send UpdateDisplay (§4.4.3's dedup rule), deferring to
// hid.DisplayDedupKey for the comparison so C2 and C4 agree on what
// "identical" means.
type DisplayPump struct {
	updater DisplayUpdater
	lastKey string
}

// NewDisplayPump constructs a pump writing through updater.
func NewDisplayPump(updater DisplayUpdater) *DisplayPump {
	return &DisplayPump{updater: updater}
}

// Push sends payload to the device if it differs from the last payload
// sent, returning whether a send occurred.
func (p *DisplayPump) Push(payload hid.DisplayPayload) (bool, error) {
	key := hid.DisplayDedupKey(payload)
	if key == p.lastKey {
		return false, nil
	}
	if err := p.updater.SendDisplayUpdate(payload); err != nil {
		return false, err
	}
	p.lastKey = key
	return true, nil
}
