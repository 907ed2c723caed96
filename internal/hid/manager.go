// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package hid

import (
	"fmt"
	"log"
	"sync"
	"time"
)

const managerRevision = "hid-manager-v1"

func init() {
	log.Printf("[hid] REVISION: %s loaded", managerRevision)
}

// Presence is the device presence state (§3).
type Presence int

const (
	PresenceAbsent Presence = iota
	PresenceAvailableClosed
	PresenceOpen
)

func (p Presence) String() string {
	switch p {
	case PresenceAvailableClosed:
		return "available"
	case PresenceOpen:
		return "open"
	default:
		return "absent"
	}
}

// DisconnectThreshold is the number of consecutive keepalive failures
// that trigger a disconnect (§5 defaults).
const DisconnectThreshold = 3

const (
	defaultPingInterval        = 2000 * time.Millisecond
	defaultPongTimeout         = 200 * time.Millisecond
	defaultDrainTimeout        = 50 * time.Millisecond
	defaultPollTimeout         = 20 * time.Millisecond
	defaultModeProbeTimeout    = 250 * time.Millisecond
	defaultCommandReadTimeout  = 200 * time.Millisecond
)

// ManagerEvents receives the lifecycle events C2 emits.
type ManagerEvents interface {
	OnDeviceAvailable(name string)
	OnDeviceUnavailable()
	OnHidConnected(name, firmware string)
	OnHidDisconnected()
	OnStateChanged(DeviceState)
	OnKeyEvent(keycode uint16)
	OnTypeString(text string, appendEnter bool)
}

// Manager is the single-owner device lifecycle manager (C2): it holds
// at most one open RawDevice process-wide, runs the keepalive/reader
// loop, and exposes the exclusive command operations used by C3.
//
// Grounded on
// _examples/original_source/crates/agentdeck-daemon/src/hid/device.rs.
type Manager struct {
	identity Identity
	events   ManagerEvents
	opener   func(Identity) (RawDevice, error)

	mu        sync.Mutex // guards everything below; exclusive device access
	dev       RawDevice
	transport *Transport
	mode      Mode
	presence  Presence
	name      string
	firmware  string
	state     DeviceState

	pingInterval time.Duration
	failures     int

	lastDisplayKey string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager constructs a Manager for identity, reporting lifecycle
// events to ev. pingInterval<=0 uses the 2000ms default.
func NewManager(identity Identity, ev ManagerEvents, pingInterval time.Duration) *Manager {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	return &Manager{
		identity:     identity,
		events:       ev,
		opener:       OpenUSB,
		pingInterval: pingInterval,
		stopCh:       make(chan struct{}),
	}
}

// SetOpener overrides the device-open function, letting callers outside
// this package substitute a fake transport in tests.
func (m *Manager) SetOpener(opener func(Identity) (RawDevice, error)) {
	m.mu.Lock()
	m.opener = opener
	m.mu.Unlock()
}

// managerSink adapts Manager to hid.EventSink for its own Transport.
type managerSink struct{ m *Manager }

func (s managerSink) OnStateChanged(st DeviceState) {
	s.m.mu.Lock()
	s.m.state = st
	s.m.mu.Unlock()
	if s.m.events != nil {
		s.m.events.OnStateChanged(st)
	}
}
func (s managerSink) OnKeyEvent(kc uint16) {
	if s.m.events != nil {
		s.m.events.OnKeyEvent(kc)
	}
}
func (s managerSink) OnTypeString(text string, appendEnter bool) {
	if s.m.events != nil {
		s.m.events.OnTypeString(text, appendEnter)
	}
}
func (s managerSink) OnPong() {}

// IsConnected reports whether the handle is currently Open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.presence == PresenceOpen
}

// IsDeviceAvailable reports whether the device is enumerated, open or not.
func (m *Manager) IsDeviceAvailable() bool {
	m.mu.Lock()
	p := m.presence
	m.mu.Unlock()
	if p != PresenceAbsent {
		return true
	}
	return EnumeratePresent(m.identity)
}

// Status is the snapshot served by /api/status.
type Status struct {
	Available bool
	Connected bool
	Name      string
	Firmware  string
	Mode      DeviceMode
	Yolo      bool
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Available: m.presence != PresenceAbsent,
		Connected: m.presence == PresenceOpen,
		Name:      m.name,
		Firmware:  m.firmware,
		Mode:      m.state.Mode,
		Yolo:      m.state.Yolo,
	}
}

// OpenDevice is a no-op if already Open. Otherwise it claims the raw-HID
// endpoints, detects protocol mode, snapshots firmware version, and
// emits HidConnected.
func (m *Manager) OpenDevice() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked()
}

func (m *Manager) openLocked() error {
	if m.presence == PresenceOpen {
		return nil
	}

	dev, err := m.opener(m.identity)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	m.dev = dev
	m.transport = NewTransport(dev, ModeStandalone, managerSink{m})

	mode, firmware, err := m.detectProtocolModeLocked()
	if err != nil {
		log.Printf("[hid] protocol mode detection failed: %v", err)
	}
	m.mode = mode
	m.transport.SetMode(mode)
	m.firmware = firmware
	m.presence = PresenceOpen
	m.failures = 0
	m.lastDisplayKey = ""

	if m.events != nil {
		m.events.OnHidConnected(m.name, m.firmware)
	}
	log.Printf("[hid] connected, mode=%s firmware=%q", m.mode, m.firmware)
	return nil
}

// detectProtocolModeLocked probes Vial first, falling back to
// Standalone, per §4.1/§4.2.
func (m *Manager) detectProtocolModeLocked() (Mode, string, error) {
	m.transport.SetMode(ModeVial)
	if err := m.transport.SendPackets(BuildGetVersion()); err == nil {
		resp, err := m.transport.ReadResponse(CmdGetVersion, defaultModeProbeTimeout)
		if err == nil && resp.Status == 0 && len(resp.Data) > 0 {
			return ModeVial, string(resp.Data), nil
		}
	}

	// Drain stragglers before retrying in the other mode.
	for i := 0; i < 5; i++ {
		m.transport.PollUnsolicited(defaultDrainTimeout)
	}

	m.transport.SetMode(ModeStandalone)
	if err := m.transport.SendPackets(BuildGetVersion()); err != nil {
		return ModeStandalone, "unknown", err
	}
	resp, err := m.transport.ReadResponse(CmdGetVersion, defaultModeProbeTimeout)
	if err != nil || resp.Status != 0 {
		return ModeStandalone, "unknown", err
	}
	return ModeStandalone, string(resp.Data), nil
}

// CloseDevice sends a best-effort Disconnect, then drops the handle.
// Deliberately does NOT emit HidDisconnected — that's reserved for a
// detected failure (see Disconnect below), per §4.2.
func (m *Manager) CloseDevice() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *Manager) closeLocked() {
	if m.presence != PresenceOpen {
		return
	}
	if m.transport != nil {
		_ = m.transport.SendPackets(BuildDisconnect())
	}
	if m.dev != nil {
		m.dev.Close()
	}
	m.dev = nil
	m.transport = nil
	m.mode = ModeUnknown
	m.presence = PresenceAvailableClosed
	m.lastDisplayKey = ""
}

// disconnect is closeLocked plus the HidDisconnected event, used when
// the keepalive loop or a hotplug Removed detects a real failure.
func (m *Manager) disconnect() {
	m.mu.Lock()
	wasOpen := m.presence == PresenceOpen
	m.closeLocked()
	m.mu.Unlock()

	if wasOpen && m.events != nil {
		m.events.OnHidDisconnected()
	}
}

// withDevice runs fn with the device held exclusively, opening it
// transiently if needed is the caller's responsibility (C3), not C2's.
func (m *Manager) withDevice(fn func(*Transport) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.presence != PresenceOpen {
		return ErrNotConnected
	}
	return fn(m.transport)
}

func (m *Manager) sendAndAck(build []Packet, cmd Command) error {
	return m.withDevice(func(t *Transport) error {
		if err := t.SendPackets(build); err != nil {
			return err
		}
		t.DrainResponse(3, defaultDrainTimeout)
		return nil
	})
}

// SendDisplayUpdate sends an UpdateDisplay command, short-circuiting
// before touching the device if the payload's dedup key matches the
// last one sent (property 4).
func (m *Manager) SendDisplayUpdate(p DisplayPayload) error {
	key := DisplayDedupKey(p)
	m.mu.Lock()
	if key == m.lastDisplayKey {
		m.mu.Unlock()
		return nil
	}
	if m.presence != PresenceOpen {
		m.mu.Unlock()
		return ErrNotConnected
	}
	transport := m.transport
	m.mu.Unlock()

	packets, err := BuildDisplayUpdate(p)
	if err != nil {
		return err
	}
	if err := transport.SendPackets(packets); err != nil {
		return err
	}
	transport.DrainResponse(3, defaultDrainTimeout)

	m.mu.Lock()
	m.lastDisplayKey = key
	m.mu.Unlock()
	return nil
}

// DisplayDedupKey is the deterministic serialization used by both C2 and
// the app-side display pipeline to suppress repeat transmissions.
func DisplayDedupKey(p DisplayPayload) string {
	return fmt.Sprintf("%s|%s|%s|%v|%d", p.Session, p.Task, p.Task2, p.Tabs, p.Active)
}

func (m *Manager) SetBrightness(level byte, save bool) error {
	return m.sendAndAck(BuildSetBrightness(level, save), CmdSetBrightness)
}

func (m *Manager) SetMode(mode DeviceMode) error {
	return m.sendAndAck(BuildSetMode(mode), CmdSetMode)
}

func (m *Manager) SendAlert(tab int, text string) error {
	return m.sendAndAck(BuildAlert(tab, text), CmdAlert)
}

func (m *Manager) ClearAlert(tab int) error {
	return m.sendAndAck(BuildClearAlert(tab), CmdClearAlert)
}

func (m *Manager) SetSoftKey(cfg SoftKeyConfig, save bool) error {
	return m.sendAndAck(BuildSetSoftKey(cfg, save), CmdSetSoftKey)
}

func (m *Manager) GetSoftKey(index int) (SoftKeyConfig, error) {
	var out SoftKeyConfig
	err := m.withDevice(func(t *Transport) error {
		if err := t.SendPackets(BuildGetSoftKey(index)); err != nil {
			return err
		}
		resp, err := t.ReadResponse(CmdGetSoftKey, defaultCommandReadTimeout)
		if err != nil {
			return err
		}
		cfg, ok := ParseGetSoftKeyResponse(resp.Data)
		if !ok {
			return ErrUnexpectedEnd
		}
		out = cfg
		return nil
	})
	return out, err
}

func (m *Manager) ResetSoftKeys() ([3]SoftKeyConfig, error) {
	var out [3]SoftKeyConfig
	err := m.withDevice(func(t *Transport) error {
		if err := t.SendPackets(BuildResetSoftKeys()); err != nil {
			return err
		}
		resp, err := t.ReadResponse(CmdResetSoftKeys, defaultCommandReadTimeout)
		if err != nil {
			return err
		}
		cfgs, ok := ParseResetSoftKeysResponse(resp.Data)
		if !ok {
			return ErrUnexpectedEnd
		}
		out = cfgs
		return nil
	})
	return out, err
}

func (m *Manager) QueryVersion() (string, error) {
	var version string
	err := m.withDevice(func(t *Transport) error {
		if err := t.SendPackets(BuildGetVersion()); err != nil {
			return err
		}
		resp, err := t.ReadResponse(CmdGetVersion, defaultCommandReadTimeout)
		if err != nil {
			return err
		}
		version = string(resp.Data)
		return nil
	})
	return version, err
}

// Start launches the keepalive/reader worker goroutine.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.keepaliveLoop()
}

// Stop signals the keepalive worker to exit and waits for it.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.disconnect()
}

// keepaliveLoop is the dedicated reader/ping worker described in §4.2: a
// tick every pingInterval, failures counted toward DisconnectThreshold,
// a non-blocking unsolicited-event poll between ticks so command callers
// are never starved.
func (m *Manager) keepaliveLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	pollTicker := time.NewTicker(defaultPollTimeout * 5)
	defer pollTicker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.keepaliveTick()
		case <-pollTicker.C:
			m.mu.Lock()
			if m.presence == PresenceOpen {
				transport := m.transport
				m.mu.Unlock()
				transport.PollUnsolicited(defaultPollTimeout)
			} else {
				m.mu.Unlock()
			}
		}
	}
}

func (m *Manager) keepaliveTick() {
	m.mu.Lock()
	if m.presence != PresenceOpen {
		m.mu.Unlock()
		return
	}
	transport := m.transport
	m.mu.Unlock()

	success := true
	if err := transport.SendPackets(BuildPing()); err != nil {
		success = false
	} else {
		_, err := transport.ReadResponse(CmdPing, defaultPongTimeout)
		// A read timeout after a successful write still counts as
		// success (device may be busy) — only a genuine write/transport
		// failure counts against the threshold.
		if err != nil && err != ErrTimeout && err != ErrTruncated {
			success = false
		}
	}

	m.mu.Lock()
	if success {
		m.failures = 0
		m.mu.Unlock()
		return
	}
	m.failures++
	exceeded := m.failures >= DisconnectThreshold
	m.mu.Unlock()

	if exceeded {
		log.Printf("[hid] keepalive failure threshold reached, disconnecting")
		m.disconnect()
	}
}

// HandleArrived marks the device AvailableClosed on a hotplug arrival,
// after the caller's settle delay.
func (m *Manager) HandleArrived(name string) {
	m.mu.Lock()
	m.presence = PresenceAvailableClosed
	m.name = name
	m.mu.Unlock()
	if m.events != nil {
		m.events.OnDeviceAvailable(name)
	}
}

// HandleRemoved marks the device Absent, closing the handle if Open.
func (m *Manager) HandleRemoved() {
	m.mu.Lock()
	wasOpen := m.presence == PresenceOpen
	m.closeLocked()
	m.presence = PresenceAbsent
	m.name = ""
	m.mu.Unlock()

	if wasOpen && m.events != nil {
		m.events.OnHidDisconnected()
	}
	if m.events != nil {
		m.events.OnDeviceUnavailable()
	}
}
