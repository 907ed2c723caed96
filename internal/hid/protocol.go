// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package hid implements the chunked raw-HID wire protocol spoken to the
// Agent Deck firmware (C1) and the single-owner device lifecycle on top
// of it (C2).
//
// Wire packets are fixed 32 bytes: [flags, command, payload×30]. A
// logical message is reassembled from an ordered run of packets sharing
// a command byte, the first carrying FlagStart and the last FlagEnd.
// Two wire variants exist: Standalone sends the 32 bytes as-is; Vial
// prepends a 0x02 prefix byte and drops the last payload byte to stay at
// 32 bytes on the wire.
package hid

import (
	"fmt"
	"log"
)

const protocolRevision = "hid-protocol-v1"

func init() {
	log.Printf("[hid] REVISION: %s loaded", protocolRevision)
}

const (
	// PacketSize is the fixed wire packet length.
	PacketSize = 32
	// HeaderSize is the number of non-payload bytes at the front of a packet.
	HeaderSize = 2
	// MaxPayloadSize is the number of payload bytes per packet.
	MaxPayloadSize = PacketSize - HeaderSize

	// FlagStart marks the first packet of a reassembled message.
	FlagStart byte = 0x80
	// FlagEnd marks the last packet of a reassembled message.
	FlagEnd byte = 0x40

	// VialPrefix is the framing byte Vial-variant wire encoding prepends.
	VialPrefix byte = 0x02

	// MaxResponsePackets bounds how many packets read_response will read
	// before giving up, to surface a runaway/misbehaving response.
	MaxResponsePackets = 20
)

// Command identifies the logical operation a packet/message carries.
type Command byte

const (
	CmdUpdateDisplay Command = 0x01
	CmdPing          Command = 0x02
	CmdSetBrightness Command = 0x03
	CmdSetSoftKey    Command = 0x04
	CmdGetSoftKey    Command = 0x05
	CmdResetSoftKeys Command = 0x06
	CmdSetMode       Command = 0x07
	CmdAlert         Command = 0x08
	CmdClearAlert    Command = 0x09
	CmdGetVersion    Command = 0x0A
	CmdDisconnect    Command = 0x0B
	CmdStateReport   Command = 0x10
	CmdKeyEvent      Command = 0x11
	CmdTypeString    Command = 0x12
	CmdError         Command = 0xFF
)

func (c Command) String() string {
	switch c {
	case CmdUpdateDisplay:
		return "UpdateDisplay"
	case CmdPing:
		return "Ping"
	case CmdSetBrightness:
		return "SetBrightness"
	case CmdSetSoftKey:
		return "SetSoftKey"
	case CmdGetSoftKey:
		return "GetSoftKey"
	case CmdResetSoftKeys:
		return "ResetSoftKeys"
	case CmdSetMode:
		return "SetMode"
	case CmdAlert:
		return "Alert"
	case CmdClearAlert:
		return "ClearAlert"
	case CmdGetVersion:
		return "GetVersion"
	case CmdDisconnect:
		return "Disconnect"
	case CmdStateReport:
		return "StateReport"
	case CmdKeyEvent:
		return "KeyEvent"
	case CmdTypeString:
		return "TypeString"
	case CmdError:
		return "Error"
	default:
		return fmt.Sprintf("Command(0x%02X)", byte(c))
	}
}

// isUnsolicited reports whether a packet carrying this command is a
// device-initiated event rather than a command response, per §4.1's
// unsolicited-event set.
func (c Command) isUnsolicited() bool {
	switch c {
	case CmdStateReport, CmdKeyEvent, CmdTypeString, CmdPing:
		return true
	default:
		return false
	}
}

// Packet is one 32-byte wire unit, decoded to its logical fields.
type Packet struct {
	Flags   byte
	Cmd     Command
	Payload [MaxPayloadSize]byte
}

// NewPacket builds a zero-payload packet for cmd with the given flags.
func NewPacket(flags byte, cmd Command) Packet {
	return Packet{Flags: flags, Cmd: cmd}
}

func (p Packet) IsStart() bool { return p.Flags&FlagStart != 0 }
func (p Packet) IsEnd() bool   { return p.Flags&FlagEnd != 0 }

// AsBytes renders the packet to its 32-byte standalone wire form.
func (p Packet) AsBytes() [PacketSize]byte {
	var out [PacketSize]byte
	out[0] = p.Flags
	out[1] = byte(p.Cmd)
	copy(out[HeaderSize:], p.Payload[:])
	return out
}

// PacketFromBytes parses a 32-byte standalone wire buffer into a Packet.
func PacketFromBytes(buf [PacketSize]byte) Packet {
	var p Packet
	p.Flags = buf[0]
	p.Cmd = Command(buf[1])
	copy(p.Payload[:], buf[HeaderSize:])
	return p
}

// BuildChunkedPackets splits a logical (command, payload) message into
// the ordered wire packets that carry it. An empty payload yields
// exactly one packet with FlagStart|FlagEnd (property 2). Otherwise the
// payload is split into MaxPayloadSize-byte chunks; the first packet
// carries FlagStart, the last FlagEnd, middle packets carry neither.
// Trailing bytes of the final chunk are zero-padded.
func BuildChunkedPackets(cmd Command, payload []byte) []Packet {
	if len(payload) == 0 {
		return []Packet{NewPacket(FlagStart|FlagEnd, cmd)}
	}

	var packets []Packet
	for offset := 0; offset < len(payload); offset += MaxPayloadSize {
		end := offset + MaxPayloadSize
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[offset:end]

		var flags byte
		if offset == 0 {
			flags |= FlagStart
		}
		if end == len(payload) {
			flags |= FlagEnd
		}

		pkt := NewPacket(flags, cmd)
		copy(pkt.Payload[:], chunk)
		packets = append(packets, pkt)
	}
	return packets
}

// Response is a reassembled message split into its status byte and the
// command-specific data that follows it.
type Response struct {
	Status byte
	Data   []byte
}

// ProtoErrorCode enumerates the sub-kinds of the firmware's Error command.
type ProtoErrorCode byte

const (
	ProtoErrOverflow      ProtoErrorCode = 0x01
	ProtoErrBadSequence   ProtoErrorCode = 0x02
	ProtoErrUnknownCmd    ProtoErrorCode = 0x03
)

func (e ProtoErrorCode) String() string {
	switch e {
	case ProtoErrOverflow:
		return "overflow"
	case ProtoErrBadSequence:
		return "bad sequence"
	case ProtoErrUnknownCmd:
		return "unknown command"
	default:
		return fmt.Sprintf("proto error 0x%02X", byte(e))
	}
}

// DeviceMode is the assistant mode reported unsolicited by the firmware.
type DeviceMode byte

const (
	ModeDefault DeviceMode = 0
	ModeAccept  DeviceMode = 1
	ModePlan    DeviceMode = 2
)

func (m DeviceMode) String() string {
	switch m {
	case ModeAccept:
		return "accept"
	case ModePlan:
		return "plan"
	default:
		return "default"
	}
}

// Next returns the mode following m in the Default→Accept→Plan→Default cycle.
func (m DeviceMode) Next() DeviceMode {
	switch m {
	case ModeDefault:
		return ModeAccept
	case ModeAccept:
		return ModePlan
	default:
		return ModeDefault
	}
}

func deviceModeFromByte(b byte) DeviceMode {
	switch b & 0x03 {
	case 1:
		return ModeAccept
	case 2:
		return ModePlan
	default:
		return ModeDefault
	}
}

// DeviceState is the two-booleans-in-a-byte state the firmware reports
// via StateReport: a 2-bit mode and a one-bit modal ("yolo") flag.
type DeviceState struct {
	Mode DeviceMode
	Yolo bool
}

// DeviceStateFromByte decodes a StateReport payload byte.
func DeviceStateFromByte(b byte) DeviceState {
	return DeviceState{
		Mode: deviceModeFromByte(b),
		Yolo: b&0x04 != 0,
	}
}

// Byte encodes the state back to its wire form (used by tests and fakes).
func (s DeviceState) Byte() byte {
	b := byte(s.Mode) & 0x03
	if s.Yolo {
		b |= 0x04
	}
	return b
}

// SoftKeyType is the kind of action a soft key slot performs.
type SoftKeyType byte

const (
	SoftKeyDefault  SoftKeyType = 0
	SoftKeyKeycode  SoftKeyType = 1
	SoftKeyString   SoftKeyType = 2
	SoftKeySequence SoftKeyType = 3
)

// SoftKeyConfig is the {index, type, data} triple describing one soft key.
type SoftKeyConfig struct {
	Index int
	Type  SoftKeyType
	Data  []byte
}

// StripTrailingZeros trims zero padding from the tail of a reassembled
// final chunk, as required before splitting status/data (§4.1 step 5).
func StripTrailingZeros(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return b[:end]
}
