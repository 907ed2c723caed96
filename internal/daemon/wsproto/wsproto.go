// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package wsproto implements the binary frame codec spoken between the
// daemon and its single privileged WebSocket client: a fixed three-byte
// header, [tag:u8][seq:u16_be], followed by a tag-specific payload.
// seq=0 is reserved for daemon-pushed events; seq>0 correlates a client
// request with its matching daemon response.
//
// Grounded on
// _examples/Hyper-Int-OrcaBot/apps/sandbox/internal/ws/client.go's frame
// handling, adapted from that repo's JSON control-message scheme to this
// protocol's fixed binary header.
package wsproto

import (
	"encoding/binary"
	"errors"
)

const HeaderSize = 3

// ErrShortFrame is returned when a received frame is smaller than the
// fixed header.
var ErrShortFrame = errors.New("wsproto: frame shorter than header")

// Tag identifies the command/response/event kind of a frame.
type Tag byte

// Client→daemon command tags.
const (
	TagCmdDisplayUpdate Tag = 0x01
	TagCmdSetBrightness Tag = 0x02
	TagCmdSetSoftKey    Tag = 0x03
	TagCmdGetSoftKey    Tag = 0x04
	TagCmdResetSoftKeys Tag = 0x05
	TagCmdSetMode       Tag = 0x06
	TagCmdAlert         Tag = 0x07
	TagCmdClearAlert    Tag = 0x08
	TagCmdGetVersion    Tag = 0x09
)

// Daemon→client response tags: a generic ack, typed replies for the
// query commands, and an error reply.
const (
	TagRespAck       Tag = 0x81
	TagRespSoftKey   Tag = 0x82
	TagRespSoftKeys  Tag = 0x83
	TagRespVersion   Tag = 0x84
	TagRespError     Tag = 0x8F
)

// Daemon→client event tags, always carried at seq=0.
const (
	TagEventDeviceConnected    Tag = 0xA0
	TagEventDeviceDisconnected Tag = 0xA1
	TagEventStateChanged       Tag = 0xA2
	TagEventKey                Tag = 0xA3
	TagEventTypeString         Tag = 0xA4
	TagEventAppControl         Tag = 0xA5
)

// Frame is a decoded [tag][seq][payload] unit.
type Frame struct {
	Tag     Tag
	Seq     uint16
	Payload []byte
}

// IsEvent reports whether this frame is a daemon-pushed event (seq=0).
func (f Frame) IsEvent() bool { return f.Seq == 0 }

// Encode renders a Frame to its wire bytes.
func Encode(f Frame) []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	buf[0] = byte(f.Tag)
	binary.BigEndian.PutUint16(buf[1:3], f.Seq)
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// Decode parses raw WebSocket binary-message bytes into a Frame.
func Decode(buf []byte) (Frame, error) {
	if len(buf) < HeaderSize {
		return Frame{}, ErrShortFrame
	}
	return Frame{
		Tag:     Tag(buf[0]),
		Seq:     binary.BigEndian.Uint16(buf[1:3]),
		Payload: buf[HeaderSize:],
	}, nil
}

// SeqAllocator hands out client-side request sequence numbers, skipping
// 0 (reserved for events) and wrapping at uint16's range.
type SeqAllocator struct {
	next uint16
}

// NewSeqAllocator starts a sequence allocator at 1.
func NewSeqAllocator() *SeqAllocator {
	return &SeqAllocator{next: 1}
}

// Next returns the next sequence number, never 0.
func (a *SeqAllocator) Next() uint16 {
	seq := a.next
	a.next++
	if a.next == 0 {
		a.next = 1
	}
	return seq
}
