// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package hid

import (
	"errors"
	"fmt"
)

// Sentinel errors for the taxonomy in §7 of the spec: device-absent,
// transport, timeout, and protocol kinds.
var (
	ErrNotConnected  = errors.New("hid: device not connected")
	ErrTimeout       = errors.New("hid: timeout waiting for response")
	ErrTruncated     = errors.New("hid: timeout waiting for response continuation")
	ErrUnexpectedEnd = errors.New("hid: unexpected end of message")
	ErrBudget        = errors.New("hid: response packet budget exceeded")
)

// WriteFailedError wraps a transport write failure.
type WriteFailedError struct{ Cause error }

func (e *WriteFailedError) Error() string { return fmt.Sprintf("hid: write failed: %v", e.Cause) }
func (e *WriteFailedError) Unwrap() error  { return e.Cause }

// ReadError wraps a transport read failure that is not a plain timeout.
type ReadError struct{ Cause error }

func (e *ReadError) Error() string { return fmt.Sprintf("hid: read error: %v", e.Cause) }
func (e *ReadError) Unwrap() error  { return e.Cause }

// ProtocolError is parsed from the firmware's Error command response.
type ProtocolError struct{ Code ProtoErrorCode }

func (e *ProtocolError) Error() string { return fmt.Sprintf("hid: protocol error: %s", e.Code) }
