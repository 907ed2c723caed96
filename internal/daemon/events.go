// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package daemon

import (
	"encoding/json"
	"sync"

	"github.com/rmacrae/agentdeck/internal/daemon/wsproto"
	"github.com/rmacrae/agentdeck/internal/hid"
)

// EventHub fans hid.Manager lifecycle callbacks out to the single
// connected WS client as seq=0 event frames (§4.2 "Event push"). At
// most one client is ever registered, matching the one-WS-lock-holder
// design; events simply drop on the floor with no subscriber, since a
// reconnecting client re-requests a fresh display update anyway.
type EventHub struct {
	mu     sync.Mutex
	output chan<- []byte
}

var _ hid.ManagerEvents = (*EventHub)(nil)

func (h *EventHub) attach(output chan<- []byte) {
	h.mu.Lock()
	h.output = output
	h.mu.Unlock()
}

func (h *EventHub) detach() {
	h.mu.Lock()
	h.output = nil
	h.mu.Unlock()
}

func (h *EventHub) push(tag wsproto.Tag, payload []byte) {
	h.mu.Lock()
	out := h.output
	h.mu.Unlock()
	if out == nil {
		return
	}
	frame := wsproto.Encode(wsproto.Frame{Tag: tag, Seq: 0, Payload: payload})
	select {
	case out <- frame:
	default:
		// Output buffer full; the client is too slow or gone. Drop
		// rather than block the HID keepalive goroutine.
	}
}

func (h *EventHub) OnDeviceAvailable(name string) {}
func (h *EventHub) OnDeviceUnavailable()           {}

func (h *EventHub) OnHidConnected(name, firmware string) {
	payload, _ := json.Marshal(struct {
		Name     string `json:"name"`
		Firmware string `json:"firmware"`
	}{name, firmware})
	h.push(wsproto.TagEventDeviceConnected, payload)
}

func (h *EventHub) OnHidDisconnected() {
	h.push(wsproto.TagEventDeviceDisconnected, nil)
}

func (h *EventHub) OnStateChanged(st hid.DeviceState) {
	payload, _ := json.Marshal(struct {
		Mode hid.DeviceMode `json:"mode"`
		Yolo bool           `json:"yolo"`
	}{st.Mode, st.Yolo})
	h.push(wsproto.TagEventStateChanged, payload)
}

func (h *EventHub) OnKeyEvent(keycode uint16) {
	payload := []byte{byte(keycode >> 8), byte(keycode)}
	h.push(wsproto.TagEventKey, payload)
}

func (h *EventHub) OnTypeString(text string, appendEnter bool) {
	flags := byte(0)
	if appendEnter {
		flags = 1
	}
	payload := append([]byte{flags}, []byte(text)...)
	h.push(wsproto.TagEventTypeString, payload)
}

// PushAppControl sends an app-control event (tray/menu actions), e.g.
// from an OS-level tray integration external to this daemon's core.
func (h *EventHub) PushAppControl(action string) {
	h.push(wsproto.TagEventAppControl, []byte(action))
}
