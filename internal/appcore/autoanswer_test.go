// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package appcore

import (
	"errors"
	"testing"
	"time"
)

type fakePTYWriter struct {
	writes [][]byte
	err    error
}

func (w *fakePTYWriter) WritePTY(data []byte) error {
	cp := append([]byte(nil), data...)
	w.writes = append(w.writes, cp)
	return w.err
}

// S8 — auto-answer: a modal prompt's fingerprint F1 appears, no bytes
// are sent before the debounce elapses, exactly one answer fires at or
// after the deadline, and last_answer_fingerprint becomes F1.
func TestAutoAnswerSession_S8(t *testing.T) {
	writer := &fakePTYWriter{}
	fp := "F1"
	detect := func() ([]byte, string, bool) { return []byte("1\r"), fp, true }
	session := NewAutoAnswerSession(detect, writer)
	session.Enabled = true
	session.Running = true

	t0 := time.Unix(0, 0)
	session.DetectPhase(t0)

	deadline, pending := session.PendingDeadline()
	if !pending {
		t.Fatal("expected a pending answer after detecting F1")
	}
	if deadline != t0.Add(AutoAnswerDebounce) {
		t.Errorf("deadline = %v, want %v", deadline, t0.Add(AutoAnswerDebounce))
	}

	// Before the deadline: Phase B must not fire.
	fired, err := session.FirePhase(t0.Add(50 * time.Millisecond))
	if err != nil {
		t.Fatalf("FirePhase before deadline returned error: %v", err)
	}
	if fired {
		t.Fatal("FirePhase fired before the debounce deadline")
	}
	if len(writer.writes) != 0 {
		t.Fatalf("expected no bytes written before the deadline, got %d writes", len(writer.writes))
	}

	// At/after the deadline: exactly one answer fires.
	fired, err = session.FirePhase(t0.Add(AutoAnswerDebounce))
	if err != nil {
		t.Fatalf("FirePhase at deadline returned error: %v", err)
	}
	if !fired {
		t.Fatal("expected FirePhase to fire at the deadline")
	}
	if len(writer.writes) != 1 || string(writer.writes[0]) != "1\r" {
		t.Fatalf("writes = %v, want exactly one \"1\\r\"", writer.writes)
	}

	// Same prompt (same fingerprint) still on screen: no further answer.
	session.DetectPhase(t0.Add(200 * time.Millisecond))
	if _, pending := session.PendingDeadline(); pending {
		t.Error("same fingerprint still visible should not re-queue an answer")
	}
	fired, _ = session.FirePhase(t0.Add(500 * time.Millisecond))
	if fired {
		t.Error("expected no second answer while the same prompt is on screen")
	}
}

// Universal property 9 — auto-answer debounce: FirePhase never sends
// bytes strictly before now >= deadline, for any detect time.
func TestAutoAnswerSession_DebounceProperty(t *testing.T) {
	writer := &fakePTYWriter{}
	detect := func() ([]byte, string, bool) { return []byte("1\r"), "F", true }
	session := NewAutoAnswerSession(detect, writer)
	session.Enabled = true
	session.Running = true

	t0 := time.Unix(100, 0)
	session.DetectPhase(t0)
	deadline, _ := session.PendingDeadline()

	offsets := []time.Duration{0, 1 * time.Millisecond, 50 * time.Millisecond, 99 * time.Millisecond}
	for _, off := range offsets {
		fired, _ := session.FirePhase(t0.Add(off))
		if fired {
			t.Errorf("FirePhase fired %v before the deadline %v", off, deadline)
		}
	}
	if len(writer.writes) != 0 {
		t.Fatal("expected no writes before the deadline across all probes")
	}
}

// Universal property 10 — fingerprint clears on working->idle: an
// identical prompt reappearing after a working transition is answered
// again, because OnWorkingTransition resets last_answer_fingerprint.
func TestAutoAnswerSession_FingerprintClearsOnIdleTransition(t *testing.T) {
	writer := &fakePTYWriter{}
	fp := "F1"
	detect := func() ([]byte, string, bool) { return []byte("1\r"), fp, true }
	session := NewAutoAnswerSession(detect, writer)
	session.Enabled = true
	session.Running = true

	t0 := time.Unix(0, 0)
	session.DetectPhase(t0)
	session.FirePhase(t0.Add(AutoAnswerDebounce))
	if len(writer.writes) != 1 {
		t.Fatalf("expected one answer fired, got %d", len(writer.writes))
	}

	// Without a working transition, the identical prompt is not re-answered.
	session.DetectPhase(t0.Add(time.Second))
	if _, pending := session.PendingDeadline(); pending {
		t.Fatal("identical fingerprint should not re-queue without a working transition")
	}

	// The task finishes (working -> idle) and the same prompt reappears.
	session.OnWorkingTransition(true, false)
	session.DetectPhase(t0.Add(2 * time.Second))
	if _, pending := session.PendingDeadline(); !pending {
		t.Fatal("expected the identical prompt to be answerable again after working->idle")
	}
	fired, err := session.FirePhase(t0.Add(2*time.Second + AutoAnswerDebounce))
	if err != nil {
		t.Fatalf("FirePhase returned error: %v", err)
	}
	if !fired || len(writer.writes) != 2 {
		t.Fatalf("expected a second answer to fire, writes = %v", writer.writes)
	}
}

func TestAutoAnswerSession_DisabledOrNotRunning_NeverDetects(t *testing.T) {
	calls := 0
	detect := func() ([]byte, string, bool) {
		calls++
		return []byte("1\r"), "F", true
	}
	writer := &fakePTYWriter{}
	session := NewAutoAnswerSession(detect, writer)

	session.DetectPhase(time.Unix(0, 0)) // Enabled=false, Running=false
	session.Enabled = true
	session.DetectPhase(time.Unix(0, 0)) // Running still false

	if calls != 0 {
		t.Errorf("detector called %d times while disabled/not running, want 0", calls)
	}
}

func TestAutoAnswerSession_NoPromptClearsFingerprint(t *testing.T) {
	visible := true
	detect := func() ([]byte, string, bool) {
		if !visible {
			return nil, "", false
		}
		return []byte("1\r"), "F1", true
	}
	writer := &fakePTYWriter{}
	session := NewAutoAnswerSession(detect, writer)
	session.Enabled = true
	session.Running = true

	t0 := time.Unix(0, 0)
	session.DetectPhase(t0)
	session.FirePhase(t0.Add(AutoAnswerDebounce))

	visible = false
	session.DetectPhase(t0.Add(time.Second))

	visible = true
	session.DetectPhase(t0.Add(2 * time.Second))
	if _, pending := session.PendingDeadline(); !pending {
		t.Error("expected re-detection once the prompt disappeared and reappeared")
	}
}

func TestAutoAnswerSession_WriterErrorPropagates(t *testing.T) {
	writer := &fakePTYWriter{err: errors.New("pty closed")}
	detect := func() ([]byte, string, bool) { return []byte("1\r"), "F1", true }
	session := NewAutoAnswerSession(detect, writer)
	session.Enabled = true
	session.Running = true

	t0 := time.Unix(0, 0)
	session.DetectPhase(t0)
	fired, err := session.FirePhase(t0.Add(AutoAnswerDebounce))
	if err == nil {
		t.Fatal("expected FirePhase to propagate the writer's error")
	}
	if fired {
		t.Error("FirePhase should report not-fired when the write failed")
	}
}
