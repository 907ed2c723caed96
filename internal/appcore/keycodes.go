// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package appcore

import "fmt"

// QMK modifier bit positions (left modifiers), the upper byte of the
// 16-bit device keycode.
//
// Grounded on _examples/original_source/src/hid/keycodes.rs's
// KeyModifiers/MOD_L* constants.
const (
	ModLCtrl  uint16 = 0x0100
	ModLShift uint16 = 0x0200
	ModLAlt   uint16 = 0x0400
	ModLGui   uint16 = 0x0800
)

// Base key bytes, mirroring the USB HID usage codes the QMK keycode
// table uses for its lower byte.
const (
	KeyA uint16 = 0x04
	KeyZ uint16 = 0x1D

	KeyNum1 uint16 = 0x1E
	KeyNum0 uint16 = 0x27

	KeyEnter     uint16 = 0x28
	KeyEscape    uint16 = 0x29
	KeyBackspace uint16 = 0x2A
	KeyTab       uint16 = 0x2B
	KeySpace     uint16 = 0x2C

	KeyF1  uint16 = 0x3A
	KeyF12 uint16 = 0x45

	KeyRight uint16 = 0x4F
	KeyLeft  uint16 = 0x50
	KeyDown  uint16 = 0x51
	KeyUp    uint16 = 0x52

	KeyHome     uint16 = 0x4A
	KeyPageUp   uint16 = 0x4B
	KeyDelete   uint16 = 0x4C
	KeyEnd      uint16 = 0x4D
	KeyPageDown uint16 = 0x4E
)

// Modifiers decomposes the upper byte of a device keycode.
type Modifiers struct {
	Ctrl, Shift, Alt, Gui bool
}

// DecomposeKeycode splits a 16-bit device keycode into its base key
// byte and modifier flags.
func DecomposeKeycode(keycode uint16) (base byte, mods Modifiers) {
	base = byte(keycode & 0x00FF)
	bits := keycode & 0xFF00
	mods = Modifiers{
		Ctrl:  bits&ModLCtrl != 0,
		Shift: bits&ModLShift != 0,
		Alt:   bits&ModLAlt != 0,
		Gui:   bits&ModLGui != 0,
	}
	return base, mods
}

// xtermModifierParam computes the CSI modifier parameter xterm expects
// for cursor/function-key sequences: 1 + (shift=1, alt=2, ctrl=4).
func xtermModifierParam(mods Modifiers) int {
	n := 0
	if mods.Shift {
		n |= 1
	}
	if mods.Alt {
		n |= 2
	}
	if mods.Ctrl {
		n |= 4
	}
	return 1 + n
}

var arrowFinal = map[byte]byte{
	byte(KeyUp):    'A',
	byte(KeyDown):  'B',
	byte(KeyRight): 'C',
	byte(KeyLeft):  'D',
}

var navTilde = map[byte]int{
	byte(KeyHome):      1,
	byte(KeyInsertKey): 2,
	byte(KeyDelete):    3,
	byte(KeyEnd):       4,
	byte(KeyPageUp):    5,
	byte(KeyPageDown):  6,
}

// KeyInsertKey is the Insert key's USB HID usage byte (0x49), named
// distinctly from the exported Key* constants above to avoid colliding
// with a "KeyInsert" reading as an action rather than a key.
const KeyInsertKey uint16 = 0x49

// KeycodeToBytes translates a 16-bit device keycode into the byte
// sequence to write to the PTY, per §4.4.4: arrows and navigation keys
// become xterm CSI sequences (with a modifier parameter when any
// modifier is held), function keys become their SS3/CSI forms, plain
// letters with Ctrl held fold to their C0 control byte, Alt prefixes the
// byte with ESC, and everything else passes through as its ASCII/UTF-8
// encoding.
func KeycodeToBytes(keycode uint16) []byte {
	base, mods := DecomposeKeycode(keycode)

	if final, ok := arrowFinal[base]; ok {
		return arrowSequence(final, mods)
	}
	if n, ok := navTilde[base]; ok {
		return navSequence(n, mods)
	}
	if base >= byte(KeyF1) && base <= byte(KeyF12) {
		return functionKeySequence(int(base-byte(KeyF1))+1, mods)
	}

	plain, ok := plainByte(base)
	if !ok {
		return nil
	}

	if mods.Ctrl && plain >= 'a' && plain <= 'z' {
		plain = plain - 'a' + 1 // Ctrl+letter folds to its C0 control code
	} else if mods.Ctrl && plain >= 'A' && plain <= 'Z' {
		plain = plain - 'A' + 1
	} else if mods.Shift && plain >= 'a' && plain <= 'z' {
		plain = plain - 'a' + 'A'
	}

	out := []byte{plain}
	if mods.Alt {
		out = append([]byte{0x1b}, out...)
	}
	return out
}

func arrowSequence(final byte, mods Modifiers) []byte {
	if mods == (Modifiers{}) {
		return []byte{0x1b, '[', final}
	}
	return []byte(fmt.Sprintf("\x1b[1;%d%c", xtermModifierParam(mods), final))
}

func navSequence(n int, mods Modifiers) []byte {
	if mods == (Modifiers{}) {
		return []byte(fmt.Sprintf("\x1b[%d~", n))
	}
	return []byte(fmt.Sprintf("\x1b[%d;%d~", n, xtermModifierParam(mods)))
}

func functionKeySequence(n int, mods Modifiers) []byte {
	// F1-F4 have classic SS3 forms when unmodified; all others (and any
	// modified function key) use the CSI ~ form xterm falls back to.
	if n <= 4 && mods == (Modifiers{}) {
		return []byte{0x1b, 'O', byte('P' + n - 1)}
	}
	fkeyCode := map[int]int{
		1: 11, 2: 12, 3: 13, 4: 14, 5: 15, 6: 17, 7: 18, 8: 19,
		9: 20, 10: 21, 11: 23, 12: 24,
	}[n]
	if mods == (Modifiers{}) {
		return []byte(fmt.Sprintf("\x1b[%d~", fkeyCode))
	}
	return []byte(fmt.Sprintf("\x1b[%d;%d~", fkeyCode, xtermModifierParam(mods)))
}

func plainByte(base byte) (byte, bool) {
	switch {
	case base >= byte(KeyA) && base <= byte(KeyZ):
		return 'a' + (base - byte(KeyA)), true
	case base >= byte(KeyNum1) && base < byte(KeyNum0):
		return '1' + (base - byte(KeyNum1)), true
	case base == byte(KeyNum0):
		return '0', true
	case base == byte(KeyEnter):
		return '\r', true
	case base == byte(KeyEscape):
		return 0x1b, true
	case base == byte(KeyBackspace):
		return 0x7f, true
	case base == byte(KeyTab):
		return '\t', true
	case base == byte(KeySpace):
		return ' ', true
	default:
		return 0, false
	}
}
