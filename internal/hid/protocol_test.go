// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package hid

import (
	"bytes"
	"testing"
)

// S1 — chunked send: a 70-byte payload on CmdUpdateDisplay yields 3
// packets with flags START, none, END and payload lengths 30/30/10,
// the tail of the last packet zero-padded.
func TestBuildChunkedPackets_S1(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 70)
	packets := BuildChunkedPackets(CmdUpdateDisplay, payload)

	if len(packets) != 3 {
		t.Fatalf("expected 3 packets, got %d", len(packets))
	}

	wantFlags := []byte{FlagStart, 0, FlagEnd}
	for i, pkt := range packets {
		if pkt.Flags != wantFlags[i] {
			t.Errorf("packet %d: flags = %#x, want %#x", i, pkt.Flags, wantFlags[i])
		}
		if pkt.Cmd != CmdUpdateDisplay {
			t.Errorf("packet %d: cmd = %s, want UpdateDisplay", i, pkt.Cmd)
		}
	}

	if got, want := packets[0].Payload[:30], payload[0:30]; !bytes.Equal(got, want) {
		t.Errorf("packet 0 payload = %v, want %v", got, want)
	}
	if got, want := packets[1].Payload[:30], payload[30:60]; !bytes.Equal(got, want) {
		t.Errorf("packet 1 payload = %v, want %v", got, want)
	}
	if got, want := packets[2].Payload[:10], payload[60:70]; !bytes.Equal(got, want) {
		t.Errorf("packet 2 tail = %v, want %v", got, want)
	}
	for _, b := range packets[2].Payload[10:] {
		if b != 0 {
			t.Errorf("packet 2 padding not zero: %v", packets[2].Payload[10:])
			break
		}
	}
}

// Universal property 2 — a zero-length payload yields exactly one
// packet carrying both FlagStart and FlagEnd.
func TestBuildChunkedPackets_EmptyPayload(t *testing.T) {
	packets := BuildChunkedPackets(CmdPing, nil)
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(packets))
	}
	if !packets[0].IsStart() || !packets[0].IsEnd() {
		t.Errorf("flags = %#x, want START|END", packets[0].Flags)
	}
}

// Universal property 1 — framing round-trip: splitting and
// reassembling any payload up to 30*20 bytes that does not end in a zero
// byte returns the original (trailing zero padding is stripped).
func TestBuildChunkedPackets_RoundTrip(t *testing.T) {
	sizes := []int{0, 1, 29, 30, 31, 59, 60, 61, 30 * 20}
	for _, size := range sizes {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i%255) + 1
		}
		packets := BuildChunkedPackets(CmdUpdateDisplay, payload)

		var reassembled []byte
		for _, pkt := range packets {
			reassembled = append(reassembled, pkt.Payload[:]...)
		}
		reassembled = StripTrailingZeros(reassembled)

		if !bytes.Equal(reassembled, payload) {
			t.Errorf("size %d: round-trip mismatch: got %d bytes, want %d", size, len(reassembled), len(payload))
		}
	}
}

// S2 — Vial wrap: a standalone packet [0xC0, 0x02, 0, ...] is sent on
// the wire as [0x02, 0xC0, 0x02, 0, ...] in Vial mode, dropping the
// last source byte to stay at 32 bytes.
func TestEncodeDecodePacket_S2(t *testing.T) {
	pkt := NewPacket(FlagStart|FlagEnd, Command(0x02))

	wire := EncodePacket(pkt, ModeVial)
	if len(wire) != PacketSize {
		t.Fatalf("wire length = %d, want %d", len(wire), PacketSize)
	}
	if wire[0] != VialPrefix {
		t.Errorf("wire[0] = %#x, want VialPrefix", wire[0])
	}
	if wire[1] != byte(FlagStart|FlagEnd) {
		t.Errorf("wire[1] = %#x, want flags", wire[1])
	}
	if wire[2] != 0x02 {
		t.Errorf("wire[2] = %#x, want command byte", wire[2])
	}

	decoded, ok := DecodePacket(wire, ModeVial)
	if !ok {
		t.Fatal("decode of well-formed Vial packet reported not-ok")
	}
	if decoded.Flags != pkt.Flags || decoded.Cmd != pkt.Cmd {
		t.Errorf("decoded = %+v, want %+v", decoded, pkt)
	}

	foreign := make([]byte, PacketSize)
	foreign[0] = 0x00
	if _, ok := DecodePacket(foreign, ModeVial); ok {
		t.Error("buffer with non-Vial-prefix first byte should be discarded")
	}
}

// Universal property 3 — wire-variant involution: encode then decode
// in the same mode returns the original packet, for both modes.
func TestEncodeDecodePacket_Involution(t *testing.T) {
	for _, mode := range []Mode{ModeStandalone, ModeVial} {
		pkt := NewPacket(FlagStart, CmdAlert)
		pkt.Payload[0] = 0x2A
		pkt.Payload[1] = 0xFF

		wire := EncodePacket(pkt, mode)
		decoded, ok := DecodePacket(wire, mode)
		if !ok {
			t.Fatalf("mode %s: decode reported not-ok", mode)
		}
		if decoded.Flags != pkt.Flags || decoded.Cmd != pkt.Cmd || decoded.Payload != pkt.Payload {
			t.Errorf("mode %s: decoded = %+v, want %+v", mode, decoded, pkt)
		}
	}
}

func TestStripTrailingZeros(t *testing.T) {
	cases := []struct {
		in   []byte
		want []byte
	}{
		{[]byte{1, 2, 3, 0, 0, 0}, []byte{1, 2, 3}},
		{[]byte{0, 0, 0}, []byte{}},
		{[]byte{1, 0, 2, 0}, []byte{1, 0, 2}},
		{nil, []byte{}},
	}
	for _, c := range cases {
		got := StripTrailingZeros(c.in)
		if !bytes.Equal(got, c.want) {
			t.Errorf("StripTrailingZeros(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestDeviceStateByteRoundTrip(t *testing.T) {
	cases := []DeviceState{
		{Mode: ModeDefault, Yolo: false},
		{Mode: ModeAccept, Yolo: true},
		{Mode: ModePlan, Yolo: false},
		{Mode: ModePlan, Yolo: true},
	}
	for _, s := range cases {
		got := DeviceStateFromByte(s.Byte())
		if got != s {
			t.Errorf("DeviceStateFromByte(%#x) = %+v, want %+v", s.Byte(), got, s)
		}
	}
}
