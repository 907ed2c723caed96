// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package daemon

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rmacrae/agentdeck/internal/daemon/wsproto"
	"github.com/rmacrae/agentdeck/internal/hid"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Localhost-only protocol: the daemon listens on 127.0.0.1 and has
	// no browser-facing attack surface, so origin checking is skipped
	// rather than carried over from the teacher's multi-tenant router.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient is the single privileged WebSocket connection, read/write
// pump pair grounded on
// _examples/Hyper-Int-OrcaBot/apps/sandbox/internal/ws/client.go.
type wsClient struct {
	id     string
	conn   *websocket.Conn
	state  *State
	hub    *EventHub
	output chan []byte
}

// HandleWS upgrades the request to a WebSocket and serves it as the
// single privileged client, refusing a second concurrent connection.
func HandleWS(state *State, hub *EventHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !state.TryAcquireWSLock() {
			http.Error(w, "device already locked by another websocket client", http.StatusConflict)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			state.ReleaseWSLock()
			log.Printf("[daemon] websocket upgrade failed: %v", err)
			return
		}

		// A WS client taking the lock implies device ownership; open it
		// now so the session starts connected if hardware is present.
		if err := state.Manager.OpenDevice(); err != nil {
			log.Printf("[daemon] ws client connected but device open failed: %v", err)
		}

		c := &wsClient{id: uuid.NewString(), conn: conn, state: state, hub: hub, output: make(chan []byte, 64)}
		log.Printf("[daemon] ws client %s connected", c.id)
		hub.attach(c.output)

		go c.writePump()
		c.readPump()
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.detach()
		c.state.Manager.CloseDevice()
		c.state.ReleaseWSLock()
		close(c.output)
		c.conn.Close()
		log.Printf("[daemon] ws client %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(wsMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[daemon] websocket error: %v", err)
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		frame, err := wsproto.Decode(data)
		if err != nil {
			log.Printf("[daemon] dropping malformed ws frame: %v", err)
			continue
		}
		c.dispatch(frame)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.output:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) reply(seq uint16, tag wsproto.Tag, payload []byte) {
	frame := wsproto.Encode(wsproto.Frame{Tag: tag, Seq: seq, Payload: payload})
	select {
	case c.output <- frame:
	default:
		log.Printf("[daemon] ws client output buffer full, dropping response")
	}
}

func (c *wsClient) replyError(seq uint16, err error) {
	payload, _ := json.Marshal(ErrorResponse{Error: err.Error()})
	c.reply(seq, wsproto.TagRespError, payload)
}

func (c *wsClient) replyAck(seq uint16) {
	c.reply(seq, wsproto.TagRespAck, nil)
}

// dispatch maps a decoded command frame to the matching hid.Manager
// operation, replying on the same sequence number (§4.2's
// request/response model).
func (c *wsClient) dispatch(f wsproto.Frame) {
	m := c.state.Manager
	switch f.Tag {
	case wsproto.TagCmdDisplayUpdate:
		var req DisplayUpdate
		if err := json.Unmarshal(f.Payload, &req); err != nil {
			c.replyError(f.Seq, err)
			return
		}
		if err := m.SendDisplayUpdate(req.toPayload()); err != nil {
			c.replyError(f.Seq, err)
			return
		}
		c.replyAck(f.Seq)

	case wsproto.TagCmdSetBrightness:
		var req BrightnessRequest
		if err := json.Unmarshal(f.Payload, &req); err != nil {
			c.replyError(f.Seq, err)
			return
		}
		if err := m.SetBrightness(req.Level, req.Save); err != nil {
			c.replyError(f.Seq, err)
			return
		}
		c.replyAck(f.Seq)

	case wsproto.TagCmdSetSoftKey:
		var req SoftKeyRequest
		if err := json.Unmarshal(f.Payload, &req); err != nil {
			c.replyError(f.Seq, err)
			return
		}
		cfg := hid.SoftKeyConfig{Index: req.Index, Type: hid.SoftKeyType(req.Type), Data: req.Data}
		if err := m.SetSoftKey(cfg, req.Save); err != nil {
			c.replyError(f.Seq, err)
			return
		}
		c.replyAck(f.Seq)

	case wsproto.TagCmdGetSoftKey:
		if len(f.Payload) < 1 {
			c.replyError(f.Seq, hid.ErrUnexpectedEnd)
			return
		}
		cfg, err := m.GetSoftKey(int(f.Payload[0]))
		if err != nil {
			c.replyError(f.Seq, err)
			return
		}
		payload, _ := json.Marshal(cfg)
		c.reply(f.Seq, wsproto.TagRespSoftKey, payload)

	case wsproto.TagCmdResetSoftKeys:
		cfgs, err := m.ResetSoftKeys()
		if err != nil {
			c.replyError(f.Seq, err)
			return
		}
		payload, _ := json.Marshal(cfgs)
		c.reply(f.Seq, wsproto.TagRespSoftKeys, payload)

	case wsproto.TagCmdSetMode:
		var req ModeRequest
		if err := json.Unmarshal(f.Payload, &req); err != nil {
			c.replyError(f.Seq, err)
			return
		}
		if err := m.SetMode(req.Mode); err != nil {
			c.replyError(f.Seq, err)
			return
		}
		c.replyAck(f.Seq)

	case wsproto.TagCmdAlert:
		var req AlertRequest
		if err := json.Unmarshal(f.Payload, &req); err != nil {
			c.replyError(f.Seq, err)
			return
		}
		if err := m.SendAlert(req.Tab, req.Text); err != nil {
			c.replyError(f.Seq, err)
			return
		}
		c.replyAck(f.Seq)

	case wsproto.TagCmdClearAlert:
		var req ClearAlertRequest
		if err := json.Unmarshal(f.Payload, &req); err != nil {
			c.replyError(f.Seq, err)
			return
		}
		if err := m.ClearAlert(req.Tab); err != nil {
			c.replyError(f.Seq, err)
			return
		}
		c.replyAck(f.Seq)

	case wsproto.TagCmdGetVersion:
		version, err := m.QueryVersion()
		if err != nil {
			c.replyError(f.Seq, err)
			return
		}
		payload, _ := json.Marshal(struct {
			Version string `json:"version"`
		}{version})
		c.reply(f.Seq, wsproto.TagRespVersion, payload)

	default:
		log.Printf("[daemon] unknown ws command tag 0x%02X", byte(f.Tag))
	}
}
