// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package daemon

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/rmacrae/agentdeck/internal/hid"
)

// RegisterHTTP wires the §6 HTTP surface onto mux, using the Go 1.22+
// pattern-based http.ServeMux routing the teacher's cmd/server/main.go
// uses.
func RegisterHTTP(mux *http.ServeMux, state *State, hub *EventHub) {
	mux.HandleFunc("GET /api/status", handleStatus(state))
	mux.HandleFunc("POST /api/display", handleDisplay(state))
	mux.HandleFunc("POST /api/alert", handleAlert(state))
	mux.HandleFunc("POST /api/alert/clear", handleClearAlert(state))
	mux.HandleFunc("POST /api/brightness", handleBrightness(state))
	mux.HandleFunc("POST /api/mode", handleMode(state))
	mux.HandleFunc("GET /api/version", handleVersion(state))
	mux.HandleFunc("GET /ws", HandleWS(state, hub))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[daemon] writeJSON encode failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// statusFor maps an arbitration/transport error to the HTTP status §6
// specifies: 409 for a lock conflict, 503 when the device can't be
// reached, 500 otherwise.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrLocked):
		return http.StatusConflict
	case errors.Is(err, ErrDeviceUnavailable), errors.Is(err, hid.ErrNotConnected):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func handleStatus(state *State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Always 200, regardless of device state (§6).
		writeJSON(w, http.StatusOK, statusResponse(state))
	}
}

func decodeBody[T any](r *http.Request) (T, error) {
	var v T
	err := json.NewDecoder(r.Body).Decode(&v)
	return v, err
}

func handleDisplay(state *State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeBody[DisplayUpdate](r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		err = state.WithTransientOpen(func(m *hid.Manager) error {
			return m.SendDisplayUpdate(req.toPayload())
		})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}
}

func handleAlert(state *State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeBody[AlertRequest](r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		err = state.WithTransientOpen(func(m *hid.Manager) error {
			return m.SendAlert(req.Tab, req.Text)
		})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}
}

func handleClearAlert(state *State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeBody[ClearAlertRequest](r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		err = state.WithTransientOpen(func(m *hid.Manager) error {
			return m.ClearAlert(req.Tab)
		})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}
}

func handleBrightness(state *State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeBody[BrightnessRequest](r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		err = state.WithTransientOpen(func(m *hid.Manager) error {
			return m.SetBrightness(req.Level, req.Save)
		})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}
}

func handleMode(state *State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeBody[ModeRequest](r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		err = state.WithTransientOpen(func(m *hid.Manager) error {
			return m.SetMode(req.Mode)
		})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}
}

func handleVersion(state *State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var version string
		err := state.WithTransientOpen(func(m *hid.Manager) error {
			v, err := m.QueryVersion()
			version = v
			return err
		})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Version string `json:"version"`
		}{version})
	}
}
