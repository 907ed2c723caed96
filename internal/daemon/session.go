// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package daemon

import (
	"errors"
	"sync"

	"github.com/rmacrae/agentdeck/internal/hid"
)

// ErrLocked is returned when a mutating HTTP call arrives while a
// WebSocket client holds the device lock (§4.2's 409 Conflict case).
var ErrLocked = errors.New("device locked by WebSocket client")

// ErrDeviceUnavailable is returned when a transient-open HTTP mutation
// cannot reach the device at all (§4.2's 503 case).
var ErrDeviceUnavailable = errors.New("daemon: device unavailable")

// State is the shared arbitration point between the WS handler (one
// privileged client) and the HTTP handlers (many read-only or
// transient-open callers), sitting on top of a single hid.Manager.
//
// Grounded on the lock/transient-open policy in spec.md §4.2 and §6; no
// teacher file models this arbitration directly, since the cloud-sandbox
// teacher has no analogous single-owner hardware resource.
type State struct {
	Manager *hid.Manager

	mu       sync.Mutex
	wsLocked bool
}

// NewState constructs a State over manager.
func NewState(manager *hid.Manager) *State {
	return &State{Manager: manager}
}

// TryAcquireWSLock claims the WS lock for a newly-connected client,
// failing if one is already connected (the daemon accepts only one
// privileged client at a time).
func (s *State) TryAcquireWSLock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wsLocked {
		return false
	}
	s.wsLocked = true
	return true
}

// ReleaseWSLock releases the WS lock on client disconnect.
func (s *State) ReleaseWSLock() {
	s.mu.Lock()
	s.wsLocked = false
	s.mu.Unlock()
}

// IsLocked reports whether a WS client currently holds the device.
func (s *State) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wsLocked
}

// WithTransientOpen runs fn against the device under the HTTP transient
// -open policy (§4.2, §6, scenario S7): refuses with ErrLocked if a WS
// client holds the device, otherwise opens the device for the duration
// of fn and closes it again afterward, regardless of fn's outcome.
func (s *State) WithTransientOpen(fn func(*hid.Manager) error) error {
	if s.IsLocked() {
		return ErrLocked
	}
	if err := s.Manager.OpenDevice(); err != nil {
		return ErrDeviceUnavailable
	}
	defer s.Manager.CloseDevice()
	return fn(s.Manager)
}
