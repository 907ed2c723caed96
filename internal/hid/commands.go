// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package hid

import "encoding/json"

// DisplayPayload is the opaque blob UpdateDisplay carries. Its exact
// shape is a firmware contract (§9 Open Question 1); this repo resolves
// it as JSON, matching the older reference source's
// DisplayUpdate::to_json() precedent.
type DisplayPayload struct {
	Session string   `json:"session"`
	Task    string   `json:"task,omitempty"`
	Task2   string   `json:"task2,omitempty"`
	Tabs    []byte   `json:"tabs"`
	Active  int      `json:"active"`
}

// BuildDisplayUpdate serializes a DisplayPayload to JSON and chunks it
// into UpdateDisplay packets.
func BuildDisplayUpdate(p DisplayPayload) ([]Packet, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return BuildChunkedPackets(CmdUpdateDisplay, data), nil
}

// BuildPing builds the empty-payload keepalive packet.
func BuildPing() []Packet {
	return BuildChunkedPackets(CmdPing, nil)
}

// BuildSetBrightness builds the `[level, save]` payload.
func BuildSetBrightness(level byte, save bool) []Packet {
	saveByte := byte(0)
	if save {
		saveByte = 1
	}
	return BuildChunkedPackets(CmdSetBrightness, []byte{level, saveByte})
}

// BuildSetSoftKey builds the `[index, type, save, data...]` payload.
func BuildSetSoftKey(cfg SoftKeyConfig, save bool) []Packet {
	saveByte := byte(0)
	if save {
		saveByte = 1
	}
	payload := append([]byte{byte(cfg.Index), byte(cfg.Type), saveByte}, cfg.Data...)
	return BuildChunkedPackets(CmdSetSoftKey, payload)
}

// BuildGetSoftKey builds the `[index]` request payload.
func BuildGetSoftKey(index int) []Packet {
	return BuildChunkedPackets(CmdGetSoftKey, []byte{byte(index)})
}

// BuildResetSoftKeys builds the empty-payload reset request.
func BuildResetSoftKeys() []Packet {
	return BuildChunkedPackets(CmdResetSoftKeys, nil)
}

// BuildSetMode builds the `[mode]` payload.
func BuildSetMode(mode DeviceMode) []Packet {
	return BuildChunkedPackets(CmdSetMode, []byte{byte(mode)})
}

// BuildAlert builds the `[tab, ...utf8 block...]` payload.
func BuildAlert(tab int, text string) []Packet {
	payload := append([]byte{byte(tab)}, []byte(text)...)
	return BuildChunkedPackets(CmdAlert, payload)
}

// BuildClearAlert builds the `[tab]` payload.
func BuildClearAlert(tab int) []Packet {
	return BuildChunkedPackets(CmdClearAlert, []byte{byte(tab)})
}

// BuildGetVersion builds the empty-payload version query.
func BuildGetVersion() []Packet {
	return BuildChunkedPackets(CmdGetVersion, nil)
}

// BuildDisconnect builds the empty-payload graceful-disconnect notice.
func BuildDisconnect() []Packet {
	return BuildChunkedPackets(CmdDisconnect, nil)
}

// ParseGetSoftKeyResponse decodes a `[index, type, data...]` response.
func ParseGetSoftKeyResponse(data []byte) (SoftKeyConfig, bool) {
	if len(data) < 2 {
		return SoftKeyConfig{}, false
	}
	return SoftKeyConfig{
		Index: int(data[0]),
		Type:  SoftKeyType(data[1]),
		Data:  data[2:],
	}, true
}

// ParseResetSoftKeysResponse decodes the `[type, kc_hi, kc_lo]×3` response.
func ParseResetSoftKeysResponse(data []byte) ([3]SoftKeyConfig, bool) {
	var out [3]SoftKeyConfig
	if len(data) < 9 {
		return out, false
	}
	for i := 0; i < 3; i++ {
		off := i * 3
		kc := uint16(data[off+1])<<8 | uint16(data[off+2])
		out[i] = SoftKeyConfig{
			Index: i,
			Type:  SoftKeyType(data[off]),
			Data:  []byte{byte(kc >> 8), byte(kc)},
		}
	}
	return out, true
}
