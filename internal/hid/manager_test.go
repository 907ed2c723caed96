// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package hid

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeDevice is an in-memory RawDevice: ReadTimeout pops pre-queued
// response packets (already wire-encoded by the test), Write can be
// configured to fail to exercise keepalive-failure paths.
type fakeDevice struct {
	mu       sync.Mutex
	reads    [][]byte
	writeErr error
	writes   [][]byte
	closed   bool
}

func (f *fakeDevice) Write(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), buf...)
	f.writes = append(f.writes, cp)
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return len(buf), nil
}

func (f *fakeDevice) ReadTimeout(buf []byte, timeout time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reads) == 0 {
		return 0, ErrTimeout
	}
	next := f.reads[0]
	f.reads = f.reads[1:]
	n := copy(buf, next)
	return n, nil
}

func (f *fakeDevice) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDevice) queueVialResponse(cmd Command, data []byte) {
	payload := append([]byte{0}, data...)
	pkt := NewPacket(FlagStart|FlagEnd, cmd)
	copy(pkt.Payload[:], payload)
	f.mu.Lock()
	f.reads = append(f.reads, EncodePacket(pkt, ModeVial))
	f.mu.Unlock()
}

type fakeEvents struct {
	mu           sync.Mutex
	disconnects  int
	stateChanges []DeviceState
}

func (e *fakeEvents) OnDeviceAvailable(string)      {}
func (e *fakeEvents) OnDeviceUnavailable()          {}
func (e *fakeEvents) OnHidConnected(string, string) {}
func (e *fakeEvents) OnHidDisconnected() {
	e.mu.Lock()
	e.disconnects++
	e.mu.Unlock()
}
func (e *fakeEvents) OnStateChanged(s DeviceState) {
	e.mu.Lock()
	e.stateChanges = append(e.stateChanges, s)
	e.mu.Unlock()
}
func (e *fakeEvents) OnKeyEvent(uint16)         {}
func (e *fakeEvents) OnTypeString(string, bool) {}

func (e *fakeEvents) disconnectCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disconnects
}

func newOpeningManager(t *testing.T, dev *fakeDevice, ev ManagerEvents) (*Manager, *int) {
	t.Helper()
	dev.queueVialResponse(CmdGetVersion, []byte("fw-test"))

	m := NewManager(Identity{}, ev, 0)
	opens := 0
	m.opener = func(Identity) (RawDevice, error) {
		opens++
		return dev, nil
	}
	return m, &opens
}

// Property 6 — at-most-one-open: a second OpenDevice call while already
// Open performs no additional opener call.
func TestManager_AtMostOneOpen(t *testing.T) {
	dev := &fakeDevice{}
	m, opens := newOpeningManager(t, dev, &fakeEvents{})

	if err := m.OpenDevice(); err != nil {
		t.Fatalf("first OpenDevice failed: %v", err)
	}
	if !m.IsConnected() {
		t.Fatal("expected Connected after OpenDevice")
	}
	if err := m.OpenDevice(); err != nil {
		t.Fatalf("second OpenDevice failed: %v", err)
	}
	if *opens != 1 {
		t.Errorf("opener called %d times, want 1", *opens)
	}
}

func TestManager_OpenDevice_DetectsVialMode(t *testing.T) {
	dev := &fakeDevice{}
	m, _ := newOpeningManager(t, dev, &fakeEvents{})

	if err := m.OpenDevice(); err != nil {
		t.Fatalf("OpenDevice failed: %v", err)
	}
	if m.mode != ModeVial {
		t.Errorf("mode = %s, want vial", m.mode)
	}
	if m.firmware != "fw-test" {
		t.Errorf("firmware = %q, want fw-test", m.firmware)
	}
}

// Property 8 — keepalive threshold: a disconnect fires iff k consecutive
// failures reach DisconnectThreshold (3), not earlier.
func TestManager_KeepaliveThreshold(t *testing.T) {
	dev := &fakeDevice{writeErr: errors.New("write failed")}
	ev := &fakeEvents{}
	m, _ := newOpeningManager(t, dev, ev)
	// Every write fails from the start: OpenDevice's mode probes fail but
	// the device is still opened, and each keepalive Ping write then fails.
	if err := m.OpenDevice(); err != nil {
		t.Fatalf("OpenDevice failed: %v", err)
	}

	for i := 1; i <= 2; i++ {
		m.keepaliveTick()
		if got := ev.disconnectCount(); got != 0 {
			t.Fatalf("after %d failing ticks: disconnects = %d, want 0", i, got)
		}
		if !m.IsConnected() {
			t.Fatalf("after %d failing ticks: expected still connected", i)
		}
	}

	m.keepaliveTick()
	if got := ev.disconnectCount(); got != 1 {
		t.Errorf("after 3rd failing tick: disconnects = %d, want 1", got)
	}
	if m.IsConnected() {
		t.Error("expected disconnected after threshold reached")
	}
}

func TestManager_KeepaliveTick_ResetsFailuresOnSuccess(t *testing.T) {
	dev := &fakeDevice{}
	m, _ := newOpeningManager(t, dev, &fakeEvents{})
	if err := m.OpenDevice(); err != nil {
		t.Fatalf("OpenDevice failed: %v", err)
	}

	m.failures = 2
	dev.queueVialResponse(CmdPing, nil)
	m.keepaliveTick()

	m.mu.Lock()
	failures := m.failures
	m.mu.Unlock()
	if failures != 0 {
		t.Errorf("failures after successful tick = %d, want 0", failures)
	}
}

// Property 4 — dedup idempotence: sending the same display payload
// twice writes to the device once.
func TestManager_SendDisplayUpdate_Dedup(t *testing.T) {
	dev := &fakeDevice{}
	m, _ := newOpeningManager(t, dev, &fakeEvents{})
	if err := m.OpenDevice(); err != nil {
		t.Fatalf("OpenDevice failed: %v", err)
	}

	payload := DisplayPayload{Session: "s", Task: "t", Tabs: []byte{0}, Active: 0}

	dev.mu.Lock()
	dev.writes = nil
	dev.mu.Unlock()

	if err := m.SendDisplayUpdate(payload); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	firstWrites := len(dev.writes)
	if firstWrites == 0 {
		t.Fatal("expected at least one write on first send")
	}

	if err := m.SendDisplayUpdate(payload); err != nil {
		t.Fatalf("second send failed: %v", err)
	}
	if len(dev.writes) != firstWrites {
		t.Errorf("writes after repeat send = %d, want %d (no new wire traffic)", len(dev.writes), firstWrites)
	}

	payload.Task = "different"
	if err := m.SendDisplayUpdate(payload); err != nil {
		t.Fatalf("changed-payload send failed: %v", err)
	}
	if len(dev.writes) <= firstWrites {
		t.Error("expected new wire traffic for a changed payload")
	}
}
