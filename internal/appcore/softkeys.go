// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package appcore

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/rmacrae/agentdeck/internal/hid"
)

// Preset is one soft key's on-disk configuration, expressed as a
// (keycode, modifiers) pair per §4.4's soft-key-config supplement
// rather than as raw wire bytes, matching
// _examples/original_source/src/hid/keycodes.rs's compose_keycode
// convenience over hand-assembled byte payloads.
type Preset struct {
	Index int    `json:"index"`
	Type  string `json:"type"` // "default" | "keycode" | "string" | "sequence"

	// Keycode: used when Type == "keycode".
	Base      byte      `json:"base,omitempty"`
	Modifiers Modifiers `json:"modifiers,omitempty"`

	// String: used when Type == "string".
	Text        string `json:"text,omitempty"`
	AppendEnter bool   `json:"append_enter,omitempty"`

	// Sequence: used when Type == "sequence", up to 63 entries.
	Sequence []uint16 `json:"sequence,omitempty"`
}

// PresetFile is the top-level shape of the soft-key preset file at
// AGENTDECK_SOFTKEYS_PATH.
type PresetFile struct {
	Keys []Preset `json:"keys"`
}

// LoadPresets reads and parses the preset file at path. A missing file
// is not an error — it returns an empty PresetFile, since soft keys
// default to SoftKeyDefault until a preset file is written.
func LoadPresets(path string) (PresetFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return PresetFile{}, nil
		}
		return PresetFile{}, err
	}
	var pf PresetFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return PresetFile{}, fmt.Errorf("appcore: parsing %s: %w", path, err)
	}
	return pf, nil
}

// ToWire converts a Preset to the hid.SoftKeyConfig wire shape (§1's
// soft-key-config byte layouts: keycode big-endian, string as
// [flags, utf8…], sequence as [count, (keycode_be)×count]).
func (p Preset) ToWire() hid.SoftKeyConfig {
	switch p.Type {
	case "keycode":
		kc := uint16(p.Base) | p.Modifiers.toBits()
		return hid.SoftKeyConfig{
			Index: p.Index,
			Type:  hid.SoftKeyKeycode,
			Data:  []byte{byte(kc >> 8), byte(kc)},
		}
	case "string":
		flags := byte(0)
		if p.AppendEnter {
			flags = 1
		}
		data := append([]byte{flags}, []byte(p.Text)...)
		return hid.SoftKeyConfig{Index: p.Index, Type: hid.SoftKeyString, Data: data}
	case "sequence":
		n := len(p.Sequence)
		if n > 63 {
			n = 63
		}
		data := make([]byte, 1+2*n)
		data[0] = byte(n)
		for i := 0; i < n; i++ {
			data[1+2*i] = byte(p.Sequence[i] >> 8)
			data[2+2*i] = byte(p.Sequence[i])
		}
		return hid.SoftKeyConfig{Index: p.Index, Type: hid.SoftKeySequence, Data: data}
	default:
		return hid.SoftKeyConfig{Index: p.Index, Type: hid.SoftKeyDefault}
	}
}

func (m Modifiers) toBits() uint16 {
	var bits uint16
	if m.Ctrl {
		bits |= ModLCtrl
	}
	if m.Shift {
		bits |= ModLShift
	}
	if m.Alt {
		bits |= ModLAlt
	}
	if m.Gui {
		bits |= ModLGui
	}
	return bits
}

// SoftKeyApplier is the narrow interface the preset watcher needs to
// push a changed preset to the device, satisfied by
// internal/hid.Manager directly or by internal/appcore/client.Client.
type SoftKeyApplier interface {
	SetSoftKey(cfg hid.SoftKeyConfig, save bool) error
}

// ApplyPresets pushes every key in pf to applier, logging (not
// aborting) on a per-key failure so one bad slot doesn't block the
// rest.
func ApplyPresets(applier SoftKeyApplier, pf PresetFile) {
	for _, p := range pf.Keys {
		if err := applier.SetSoftKey(p.ToWire(), true); err != nil {
			log.Printf("[appcore] softkey preset index=%d apply failed: %v", p.Index, err)
		}
	}
}

// WatchPresets loads path once, applies it, then watches the file for
// external edits and reapplies it on every write — the soft-key preset
// file is meant to be hand-edited or rewritten by an external tool
// while the app runs.
func WatchPresets(path string, applier SoftKeyApplier, stop <-chan struct{}) error {
	pf, err := LoadPresets(path)
	if err != nil {
		return err
	}
	ApplyPresets(applier, pf)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := dirOf(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				pf, err := LoadPresets(path)
				if err != nil {
					log.Printf("[appcore] softkey preset reload failed: %v", err)
					continue
				}
				log.Printf("[appcore] softkey preset file changed, reapplying")
				ApplyPresets(applier, pf)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[appcore] softkey preset watcher error: %v", err)
			}
		}
	}()

	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
