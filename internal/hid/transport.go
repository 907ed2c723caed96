// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package hid

import (
	"log"
	"time"
)

// EventSink receives unsolicited, device-initiated events peeled off
// the packet stream while a response is being assembled or while the
// reader polls between commands (§4.1's unsolicited-event dispatch).
type EventSink interface {
	OnStateChanged(DeviceState)
	OnKeyEvent(keycode uint16)
	OnTypeString(text string, appendEnter bool)
	OnPong()
}

// Transport turns raw packets read from a RawDevice into framed
// messages, peeling unsolicited events off to an EventSink as it goes.
// It is the Go analogue of the reassembly state machine described in
// §9: Idle → AwaitStart → Collecting → Done, with event packets
// side-channeled rather than stuffed into the response buffer.
type Transport struct {
	dev   RawDevice
	mode  Mode
	sink  EventSink

	// typeStringBuf accumulates TypeString chunks across calls, since a
	// single TypeString event may itself be split across packets.
	typeStringBuf []byte
}

// NewTransport wraps dev for framing in the given wire mode.
func NewTransport(dev RawDevice, mode Mode, sink EventSink) *Transport {
	return &Transport{dev: dev, mode: mode, sink: sink}
}

func (t *Transport) SetMode(mode Mode) { t.mode = mode }

// SendPackets writes out every wire-encoded packet of a built message in
// order.
func (t *Transport) SendPackets(packets []Packet) error {
	for _, pkt := range packets {
		wire := EncodePacket(pkt, t.mode)
		if _, err := t.dev.Write(wire); err != nil {
			return &WriteFailedError{Cause: err}
		}
	}
	return nil
}

// readRawPacket reads and decodes exactly one packet, discarding
// Vial-mode foreign echoes (ok=false, err=nil) rather than failing.
func (t *Transport) readRawPacket(timeout time.Duration) (pkt Packet, ok bool, err error) {
	buf := make([]byte, PacketSize+1)
	n, rerr := t.dev.ReadTimeout(buf, timeout)
	if rerr != nil {
		return Packet{}, false, rerr
	}
	pkt, ok = DecodePacket(buf[:n], t.mode)
	return pkt, ok, nil
}

// dispatchIfUnsolicited forwards pkt to the sink if its command is in
// the unsolicited-event set, returning true if it was consumed this way.
func (t *Transport) dispatchIfUnsolicited(pkt Packet) bool {
	if !pkt.Cmd.isUnsolicited() {
		return false
	}
	switch pkt.Cmd {
	case CmdStateReport:
		if t.sink != nil {
			t.sink.OnStateChanged(DeviceStateFromByte(pkt.Payload[0]))
		}
	case CmdKeyEvent:
		kc := uint16(pkt.Payload[0])<<8 | uint16(pkt.Payload[1])
		if t.sink != nil {
			t.sink.OnKeyEvent(kc)
		}
	case CmdTypeString:
		appendEnter := pkt.Payload[0]&0x01 != 0
		chunkEnd := 1
		for chunkEnd < len(pkt.Payload) && pkt.Payload[chunkEnd] != 0 {
			chunkEnd++
		}
		t.typeStringBuf = append(t.typeStringBuf, pkt.Payload[1:chunkEnd]...)
		if pkt.IsEnd() {
			if t.sink != nil {
				t.sink.OnTypeString(string(t.typeStringBuf), appendEnter)
			}
			t.typeStringBuf = t.typeStringBuf[:0]
		}
	case CmdPing:
		if t.sink != nil {
			t.sink.OnPong()
		}
	}
	return true
}

// ReadResponse implements §4.1's read_response algorithm: read packets
// until a matching END for expectedCmd arrives, peeling off unsolicited
// events as they're seen, bounded by MaxResponsePackets.
func (t *Transport) ReadResponse(expectedCmd Command, perPacketTimeout time.Duration) (Response, error) {
	var buf []byte
	started := false

	for i := 0; i < MaxResponsePackets; i++ {
		pkt, ok, err := t.readRawPacket(perPacketTimeout)
		if err != nil {
			if started {
				return Response{}, ErrTruncated
			}
			return Response{}, ErrTimeout
		}
		if !ok {
			continue // foreign echo, keep waiting within this same timeout budget
		}

		if t.dispatchIfUnsolicited(pkt) {
			continue
		}

		if pkt.Cmd == CmdError {
			return Response{}, &ProtocolError{Code: ProtoErrorCode(pkt.Payload[0])}
		}

		if pkt.Cmd != expectedCmd {
			log.Printf("[hid] ignoring packet for unexpected command %s while awaiting %s", pkt.Cmd, expectedCmd)
			continue
		}

		if pkt.IsStart() {
			buf = buf[:0]
			started = true
		}
		buf = append(buf, pkt.Payload[:]...)
		if pkt.IsEnd() {
			buf = StripTrailingZeros(buf)
			if len(buf) == 0 {
				return Response{}, ErrUnexpectedEnd
			}
			return Response{Status: buf[0], Data: buf[1:]}, nil
		}
	}
	return Response{}, ErrBudget
}

// DrainResponse reads up to maxPackets leftover packets at a short
// timeout after a command exchange, forwarding device-initiated packets
// to the sink except StateReport (treated as a command-ack echo rather
// than a real state transition, per the device.rs precedent), and
// stopping at the first non-device-initiated END packet.
func (t *Transport) DrainResponse(maxPackets int, perPacketTimeout time.Duration) {
	for i := 0; i < maxPackets; i++ {
		pkt, ok, err := t.readRawPacket(perPacketTimeout)
		if err != nil {
			return
		}
		if !ok {
			continue
		}
		if pkt.Cmd.isUnsolicited() {
			if pkt.Cmd != CmdStateReport {
				t.dispatchIfUnsolicited(pkt)
			}
			continue
		}
		if pkt.IsEnd() {
			return
		}
	}
}

// PollUnsolicited performs one very-short-timeout read looking for an
// unsolicited packet, used by the keepalive/reader loop between command
// sends so it never blocks command senders (§4.2 concurrency note).
func (t *Transport) PollUnsolicited(timeout time.Duration) {
	pkt, ok, err := t.readRawPacket(timeout)
	if err != nil || !ok {
		return
	}
	t.dispatchIfUnsolicited(pkt)
}
