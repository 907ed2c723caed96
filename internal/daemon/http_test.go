// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package daemon

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rmacrae/agentdeck/internal/hid"
)

// fakeRawDevice is an in-memory hid.RawDevice recording every write and
// serving queued Vial-encoded responses, so http_test can drive a real
// hid.Manager without touching actual USB hardware.
type fakeRawDevice struct {
	mu     sync.Mutex
	reads  [][]byte
	writes [][]byte
	opens  int
}

func (f *fakeRawDevice) Write(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), buf...))
	return len(buf), nil
}

func (f *fakeRawDevice) ReadTimeout(buf []byte, timeout time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reads) == 0 {
		return 0, hid.ErrTimeout
	}
	next := f.reads[0]
	f.reads = f.reads[1:]
	return copy(buf, next), nil
}

func (f *fakeRawDevice) Close() error { return nil }

func (f *fakeRawDevice) queueResponse(cmd hid.Command, data []byte) {
	payload := append([]byte{0}, data...)
	pkt := hid.NewPacket(hid.FlagStart|hid.FlagEnd, cmd)
	copy(pkt.Payload[:], payload)
	f.mu.Lock()
	f.reads = append(f.reads, hid.EncodePacket(pkt, hid.ModeVial))
	f.mu.Unlock()
}

func (f *fakeRawDevice) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

// newTestState builds a State over a hid.Manager whose opener always
// succeeds against a fresh fakeRawDevice, queuing one GetVersion
// response to satisfy the Vial-mode probe every OpenDevice performs.
func newTestState(t *testing.T) (*State, *fakeRawDevice) {
	t.Helper()
	dev := &fakeRawDevice{}
	opens := 0
	manager := hid.NewManager(hid.Identity{}, &EventHub{}, 0)
	manager.SetOpener(func(hid.Identity) (hid.RawDevice, error) {
		opens++
		dev.queueResponse(hid.CmdGetVersion, []byte("fw"))
		return dev, nil
	})
	return NewState(manager), dev
}

func newTestServer(t *testing.T, state *State) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	RegisterHTTP(mux, state, &EventHub{})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// S6 — HTTP lock: with a WS client holding the device, a mutating HTTP
// call is refused with 409 and no bytes reach the device.
func TestHandleDisplay_LockedByWSClient_S6(t *testing.T) {
	state, dev := newTestState(t)
	if !state.TryAcquireWSLock() {
		t.Fatal("expected to acquire the WS lock")
	}
	srv := newTestServer(t, state)

	body, _ := json.Marshal(DisplayUpdate{Session: "s", Tabs: []byte{0}})
	resp, err := http.Post(srv.URL+"/api/display", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/display failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if errResp.Error != ErrLocked.Error() {
		t.Errorf("error = %q, want %q", errResp.Error, ErrLocked.Error())
	}
	if dev.writeCount() != 0 {
		t.Errorf("expected no HID writes while locked, got %d", dev.writeCount())
	}
}

// S7 — HTTP transient open: with no WS client connected, a mutating
// HTTP call opens the device for the call's duration and closes it
// again, leaving device_connected=false on the next status poll.
func TestHandleBrightness_TransientOpen_S7(t *testing.T) {
	state, dev := newTestState(t)
	srv := newTestServer(t, state)

	if state.IsLocked() {
		t.Fatal("expected no WS lock held")
	}

	dev.queueResponse(hid.CmdSetBrightness, nil)
	body, _ := json.Marshal(BrightnessRequest{Level: 200, Save: true})
	resp, err := http.Post(srv.URL+"/api/brightness", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/brightness failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if dev.writeCount() == 0 {
		t.Fatal("expected at least one HID write during the transient open")
	}
	if state.Manager.IsConnected() {
		t.Error("expected the device closed again after the transient-open call")
	}

	statusResp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status failed: %v", err)
	}
	defer statusResp.Body.Close()
	if statusResp.StatusCode != http.StatusOK {
		t.Fatalf("status endpoint returned %d, want 200", statusResp.StatusCode)
	}
	var sr StatusResponse
	if err := json.NewDecoder(statusResp.Body).Decode(&sr); err != nil {
		t.Fatalf("decoding status body: %v", err)
	}
	if sr.DeviceConnected {
		t.Error("device_connected should be false after the transient open completed")
	}
	if sr.WSLocked {
		t.Error("ws_locked should be false with no WS client connected")
	}
}

func TestHandleStatus_AlwaysOK(t *testing.T) {
	state, _ := newTestState(t)
	srv := newTestServer(t, state)

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 even with no device present", resp.StatusCode)
	}
}

func TestHandleDisplay_BadRequest(t *testing.T) {
	state, _ := newTestState(t)
	srv := newTestServer(t, state)

	resp, err := http.Post(srv.URL+"/api/display", "application/json", bytes.NewReader([]byte("not json")))
	if err != nil {
		t.Fatalf("POST /api/display failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
