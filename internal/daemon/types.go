// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package daemon

import "github.com/rmacrae/agentdeck/internal/hid"

// DisplayUpdate is the JSON body of POST /api/display and the WS
// TagCmdDisplayUpdate payload.
type DisplayUpdate struct {
	Session string `json:"session"`
	Task    string `json:"task,omitempty"`
	Task2   string `json:"task2,omitempty"`
	Tabs    []byte `json:"tabs"`
	Active  int    `json:"active"`
}

func (d DisplayUpdate) toPayload() hid.DisplayPayload {
	return hid.DisplayPayload{Session: d.Session, Task: d.Task, Task2: d.Task2, Tabs: d.Tabs, Active: d.Active}
}

// AlertRequest is the JSON body of POST /api/alert and the WS
// TagCmdAlert payload.
type AlertRequest struct {
	Tab  int    `json:"tab"`
	Text string `json:"text"`
}

// ClearAlertRequest is the JSON body of POST /api/alert/clear and the WS
// TagCmdClearAlert payload.
type ClearAlertRequest struct {
	Tab int `json:"tab"`
}

// BrightnessRequest is the JSON body of POST /api/brightness and the WS
// TagCmdSetBrightness payload.
type BrightnessRequest struct {
	Level byte `json:"level"`
	Save  bool `json:"save"`
}

// ModeRequest is the JSON body of POST /api/mode and the WS
// TagCmdSetMode payload.
type ModeRequest struct {
	Mode hid.DeviceMode `json:"mode"`
}

// SoftKeyRequest is the WS TagCmdSetSoftKey payload.
type SoftKeyRequest struct {
	Index int    `json:"index"`
	Type  byte   `json:"type"`
	Data  []byte `json:"data"`
	Save  bool   `json:"save"`
}

// StatusResponse is the body of GET /api/status — always 200.
type StatusResponse struct {
	DeviceAvailable bool   `json:"device_available"`
	DeviceConnected bool   `json:"device_connected"`
	DeviceName      string `json:"device_name,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	DeviceMode      string `json:"device_mode"`
	DeviceYolo      bool   `json:"device_yolo"`
	WSLocked        bool   `json:"ws_locked"`
}

// ErrorResponse is the body of every non-2xx HTTP response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func statusResponse(s *State) StatusResponse {
	st := s.Manager.Status()
	return StatusResponse{
		DeviceAvailable: st.Available,
		DeviceConnected: st.Connected,
		DeviceName:      st.Name,
		FirmwareVersion: st.Firmware,
		DeviceMode:      st.Mode.String(),
		DeviceYolo:      st.Yolo,
		WSLocked:        s.IsLocked(),
	}
}
