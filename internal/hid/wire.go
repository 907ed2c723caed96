// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package hid

// Mode is the per-device wire variant, detected once per open.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeStandalone
	ModeVial
)

func (m Mode) String() string {
	switch m {
	case ModeStandalone:
		return "standalone"
	case ModeVial:
		return "vial"
	default:
		return "unknown"
	}
}

// EncodePacket renders a Packet to the bytes actually written to the
// device for the given wire mode.
//
// Standalone: the 32 bytes verbatim.
// Vial: a 0x02 prefix followed by the first 31 bytes of the standalone
// encoding (the last source byte is dropped to stay at 32 bytes on the
// wire) — see spec scenario S2.
//
// Unlike a hidapi-based transport, gousb talks to the raw-HID interrupt
// endpoints directly rather than through the OS's numbered-report HID
// API, so no report-ID byte is prepended on any platform here.
func EncodePacket(p Packet, mode Mode) []byte {
	raw := p.AsBytes()

	switch mode {
	case ModeVial:
		wire := make([]byte, PacketSize)
		wire[0] = VialPrefix
		copy(wire[1:], raw[:PacketSize-1])
		return wire
	default:
		return append([]byte(nil), raw[:]...)
	}
}

// DecodePacket parses a just-read raw-HID report into a Packet for the
// given wire mode. ok is false when the buffer must be discarded: in
// Vial mode, any buffer whose first byte isn't VialPrefix is a foreign
// echo from another host-side tool sharing the interface (S2).
func DecodePacket(buf []byte, mode Mode) (pkt Packet, ok bool) {
	switch mode {
	case ModeVial:
		if len(buf) < 1 || buf[0] != VialPrefix {
			return Packet{}, false
		}
		buf = buf[1:]
		if len(buf) < PacketSize-1 {
			return Packet{}, false
		}
		var raw [PacketSize]byte
		copy(raw[:], buf[:PacketSize-1])
		return PacketFromBytes(raw), true
	default:
		if len(buf) < PacketSize {
			return Packet{}, false
		}
		var raw [PacketSize]byte
		copy(raw[:], buf[:PacketSize])
		return PacketFromBytes(raw), true
	}
}
