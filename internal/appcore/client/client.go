// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package client is the app side of the daemon's WebSocket protocol: a
// reconnecting binary-frame client offering the same request surface as
// internal/hid.Manager, so the app's orchestration code doesn't need to
// know whether it's talking to a local device handle or a remote daemon.
//
// Grounded on
// _examples/original_source/crates/agentdeck/src/daemon_client.rs's
// run_ws_loop (reconnect/backoff, pending-request map, fire-and-forget
// vs request/response split, auto-spawn-once-per-cycle), reworked into
// Go's goroutine/channel idiom following
// _examples/Hyper-Int-OrcaBot/apps/sandbox/internal/ws/client.go's
// ReadPump/WritePump shape.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rmacrae/agentdeck/internal/daemon/wsproto"
	"github.com/rmacrae/agentdeck/internal/hid"
)

const clientRevision = "appcore-client-v1"

func init() {
	log.Printf("[client] REVISION: %s loaded", clientRevision)
}

const (
	backoffMin = 500 * time.Millisecond
	backoffMax = 5000 * time.Millisecond
	backoffMul = 1.5

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ErrConnectionLost is returned to a pending request when the WebSocket
// connection drops before a response arrives (§5's cancellation rule).
var ErrConnectionLost = errors.New("client: daemon connection lost")

// EventSink receives daemon-pushed events (seq=0 frames).
type EventSink interface {
	OnDaemonConnected()
	OnDaemonDisconnected()
	OnHidConnected(name, firmware string)
	OnHidDisconnected()
	OnStateChanged(mode hid.DeviceMode, yolo bool)
	OnKeyEvent(keycode uint16)
	OnTypeString(text string, appendEnter bool)
	OnAppControl(action byte)
}

type pendingEntry struct {
	ch chan wsproto.Frame
}

// Client is a reconnecting daemon WebSocket client. One Client talks to
// one daemon address for the app's lifetime.
type Client struct {
	addr string
	sink EventSink

	mu        sync.Mutex
	send      chan []byte
	pending   map[uint16]pendingEntry
	seq       *wsproto.SeqAllocator
	connected bool

	lastDisplayKey string

	autoSpawn bool
}

// New constructs a client for the daemon at addr ("host:port"), which
// will connect lazily once Run is started. autoSpawn controls whether
// the client attempts to launch the daemon binary on first connect
// failure, mirroring the reference client's auto-start behavior.
func New(addr string, sink EventSink, autoSpawn bool) *Client {
	return &Client{
		addr:      addr,
		sink:      sink,
		pending:   make(map[uint16]pendingEntry),
		seq:       wsproto.NewSeqAllocator(),
		autoSpawn: autoSpawn,
	}
}

// IsConnected reports whether the WebSocket connection is currently up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Run connects to the daemon and reconnects with exponential backoff
// until ctx is canceled. Intended to be run in its own goroutine.
func (c *Client) Run(ctx context.Context) {
	backoff := backoffMin
	spawnAttempted := false

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			log.Printf("[client] connect failed: %v (retry in %s)", err, backoff)
			if c.autoSpawn && !spawnAttempted {
				spawnAttempted = true
				if trySpawnDaemon(c.addr) {
					time.Sleep(500 * time.Millisecond)
					backoff = backoffMin
					continue
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}

		log.Printf("[client] connected to %s", c.addr)
		backoff = backoffMin
		spawnAttempted = false
		c.setConnected(true)
		c.sink.OnDaemonConnected()

		c.runConnection(ctx, conn)

		c.setConnected(false)
		c.failPending()
		c.sink.OnDaemonDisconnected()
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u := url.URL{Scheme: "ws", Host: c.addr, Path: "/ws"}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) runConnection(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	send := make(chan []byte, 64)
	c.mu.Lock()
	c.send = send
	c.mu.Unlock()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go c.writePump(connCtx, conn, send, done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		frame, err := wsproto.Decode(data)
		if err != nil {
			log.Printf("[client] malformed frame: %v", err)
			continue
		}
		c.handleFrame(frame)
	}

	cancel()
	<-done
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, send chan []byte, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) handleFrame(f wsproto.Frame) {
	if f.IsEvent() {
		c.handleEvent(f)
		return
	}
	c.mu.Lock()
	entry, ok := c.pending[f.Seq]
	if ok {
		delete(c.pending, f.Seq)
	}
	c.mu.Unlock()
	if ok {
		entry.ch <- f
	}
}

func (c *Client) handleEvent(f wsproto.Frame) {
	switch f.Tag {
	case wsproto.TagEventDeviceConnected:
		var info struct{ Name, Firmware string }
		if json.Unmarshal(f.Payload, &info) == nil {
			c.sink.OnHidConnected(info.Name, info.Firmware)
		}
	case wsproto.TagEventDeviceDisconnected:
		c.sink.OnHidDisconnected()
	case wsproto.TagEventStateChanged:
		var st struct {
			Mode hid.DeviceMode `json:"mode"`
			Yolo bool           `json:"yolo"`
		}
		if json.Unmarshal(f.Payload, &st) == nil {
			c.sink.OnStateChanged(st.Mode, st.Yolo)
		}
	case wsproto.TagEventKey:
		if len(f.Payload) >= 2 {
			keycode := uint16(f.Payload[0])<<8 | uint16(f.Payload[1])
			c.sink.OnKeyEvent(keycode)
		}
	case wsproto.TagEventTypeString:
		if len(f.Payload) >= 1 {
			c.sink.OnTypeString(string(f.Payload[1:]), f.Payload[0] != 0)
		}
	case wsproto.TagEventAppControl:
		if len(f.Payload) >= 1 {
			c.sink.OnAppControl(f.Payload[0])
		}
	default:
		log.Printf("[client] unknown event tag %#x", f.Tag)
	}
}

// fireAndForget sends a command frame without waiting for a response.
func (c *Client) fireAndForget(tag wsproto.Tag, payload []byte) error {
	c.mu.Lock()
	send := c.send
	seq := c.seq.Next()
	c.mu.Unlock()
	if send == nil {
		return ErrConnectionLost
	}
	frame := wsproto.Encode(wsproto.Frame{Tag: tag, Seq: seq, Payload: payload})
	select {
	case send <- frame:
		return nil
	default:
		return ErrConnectionLost
	}
}

// request sends a command frame and blocks for its response, honoring
// ctx cancellation.
func (c *Client) request(ctx context.Context, tag wsproto.Tag, payload []byte) (wsproto.Frame, error) {
	c.mu.Lock()
	send := c.send
	if send == nil {
		c.mu.Unlock()
		return wsproto.Frame{}, ErrConnectionLost
	}
	seq := c.seq.Next()
	ch := make(chan wsproto.Frame, 1)
	c.pending[seq] = pendingEntry{ch: ch}
	c.mu.Unlock()

	frame := wsproto.Encode(wsproto.Frame{Tag: tag, Seq: seq, Payload: payload})
	select {
	case send <- frame:
	default:
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return wsproto.Frame{}, ErrConnectionLost
	}

	select {
	case f, ok := <-ch:
		if !ok {
			return wsproto.Frame{}, ErrConnectionLost
		}
		if f.Tag == wsproto.TagRespError {
			return f, fmt.Errorf("client: daemon error: %s", string(f.Payload))
		}
		return f, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return wsproto.Frame{}, ctx.Err()
	}
}

func (c *Client) failPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint16]pendingEntry)
	c.send = nil
	c.mu.Unlock()
	for _, entry := range pending {
		close(entry.ch)
	}
}

// SendDisplayUpdate sends a display update, deduplicating against the
// last payload sent from this client (mirrors the daemon-side dedup so
// redundant updates never hit the wire at all).
func (c *Client) SendDisplayUpdate(p hid.DisplayPayload) error {
	key := hid.DisplayDedupKey(p)
	c.mu.Lock()
	if key == c.lastDisplayKey {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := c.fireAndForget(wsproto.TagCmdDisplayUpdate, data); err != nil {
		return err
	}
	c.mu.Lock()
	c.lastDisplayKey = key
	c.mu.Unlock()
	return nil
}

// SetMode sends a mode-change command.
func (c *Client) SetMode(mode hid.DeviceMode) error {
	data, err := json.Marshal(struct {
		Mode hid.DeviceMode `json:"mode"`
	}{mode})
	if err != nil {
		return err
	}
	return c.fireAndForget(wsproto.TagCmdSetMode, data)
}

// SendAlert raises an alert on the device for tab.
func (c *Client) SendAlert(tab int, text string) error {
	data, err := json.Marshal(struct {
		Tab  int    `json:"tab"`
		Text string `json:"text"`
	}{tab, text})
	if err != nil {
		return err
	}
	return c.fireAndForget(wsproto.TagCmdAlert, data)
}

// ClearAlert clears tab's alert.
func (c *Client) ClearAlert(tab int) error {
	data, err := json.Marshal(struct {
		Tab int `json:"tab"`
	}{tab})
	if err != nil {
		return err
	}
	return c.fireAndForget(wsproto.TagCmdClearAlert, data)
}

// SetBrightness sets the display brightness.
func (c *Client) SetBrightness(level byte, save bool) error {
	data, err := json.Marshal(struct {
		Level byte `json:"level"`
		Save  bool `json:"save"`
	}{level, save})
	if err != nil {
		return err
	}
	return c.fireAndForget(wsproto.TagCmdSetBrightness, data)
}

// GetSoftKey queries soft key index's configuration (blocking).
func (c *Client) GetSoftKey(ctx context.Context, index byte) (wsproto.Frame, error) {
	return c.request(ctx, wsproto.TagCmdGetSoftKey, []byte{index})
}

// SetSoftKey programs a soft key slot. Takes hid.SoftKeyConfig directly
// so Client satisfies the same SoftKeyApplier interface as
// internal/hid.Manager.
func (c *Client) SetSoftKey(cfg hid.SoftKeyConfig, save bool) error {
	data, err := json.Marshal(struct {
		Index int    `json:"index"`
		Type  byte   `json:"type"`
		Data  []byte `json:"data"`
		Save  bool   `json:"save"`
	}{int(cfg.Index), byte(cfg.Type), cfg.Data, save})
	if err != nil {
		return err
	}
	return c.fireAndForget(wsproto.TagCmdSetSoftKey, data)
}

// ResetSoftKeys resets all soft keys to defaults (blocking).
func (c *Client) ResetSoftKeys(ctx context.Context) (wsproto.Frame, error) {
	return c.request(ctx, wsproto.TagCmdResetSoftKeys, nil)
}

// QueryVersion queries the firmware version string (blocking).
func (c *Client) QueryVersion(ctx context.Context) (string, error) {
	f, err := c.request(ctx, wsproto.TagCmdGetVersion, nil)
	if err != nil {
		return "", err
	}
	var v struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(f.Payload, &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

func nextBackoff(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * backoffMul)
	if next > backoffMax {
		return backoffMax
	}
	return next
}
