// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package appcore

import "time"

// AutoAnswerDebounce is the fixed delay D between detecting an
// answerable prompt and firing the answer (§4.4.5).
const AutoAnswerDebounce = 100 * time.Millisecond

// PromptDetector produces the bytes to send and a fingerprint
// identifying the current prompt, or ok=false if no prompt is visible.
type PromptDetector func() (answerBytes []byte, fingerprint string, ok bool)

// PTYWriter is the narrow interface a session needs for auto-answer to
// deliver bytes, so it can be exercised against a fake in tests.
type PTYWriter interface {
	WritePTY(data []byte) error
}

// AutoAnswerSession is one eligible session's detect/fire state,
// corresponding to the last_answer_fingerprint/pending_answer fields
// from §4.3's per-tab record.
type AutoAnswerSession struct {
	Enabled bool
	Running bool

	Detect PromptDetector
	Writer PTYWriter

	lastAnswerFingerprint string
	pending               *pendingAnswer
}

type pendingAnswer struct {
	bytes       []byte
	fingerprint string
	deadline    time.Time
}

// NewAutoAnswerSession constructs a session wired to detect and writer.
func NewAutoAnswerSession(detect PromptDetector, writer PTYWriter) *AutoAnswerSession {
	return &AutoAnswerSession{Detect: detect, Writer: writer}
}

// DetectPhase implements Phase A (§4.4.5): run the detector (if the
// session is eligible — running, enabled, no pending answer already
// queued) and update pending/fingerprint state accordingly.
func (s *AutoAnswerSession) DetectPhase(now time.Time) {
	if !s.Enabled || !s.Running || s.pending != nil {
		return
	}
	bytes, fp, ok := s.Detect()
	if !ok {
		s.lastAnswerFingerprint = ""
		return
	}
	if fp == s.lastAnswerFingerprint {
		return // still on screen, already answered
	}
	s.pending = &pendingAnswer{bytes: bytes, fingerprint: fp, deadline: now.Add(AutoAnswerDebounce)}
}

// FirePhase implements Phase B (§4.4.5): if a pending answer's deadline
// has passed, send it and roll the fingerprint forward. Returns whether
// an answer fired.
func (s *AutoAnswerSession) FirePhase(now time.Time) (bool, error) {
	if s.pending == nil || now.Before(s.pending.deadline) {
		return false, nil
	}
	p := s.pending
	s.pending = nil
	if err := s.Writer.WritePTY(p.bytes); err != nil {
		return false, err
	}
	s.lastAnswerFingerprint = p.fingerprint
	return true, nil
}

// OnWorkingTransition clears the remembered fingerprint on a
// working-to-idle transition, so an identical follow-up prompt can be
// answered again (§4.4.5's last clause).
func (s *AutoAnswerSession) OnWorkingTransition(wasWorking, isWorking bool) {
	if wasWorking && !isWorking {
		s.lastAnswerFingerprint = ""
	}
}

// PendingDeadline reports the pending answer's deadline and whether one
// is queued, for scheduling the next Phase B tick.
func (s *AutoAnswerSession) PendingDeadline() (time.Time, bool) {
	if s.pending == nil {
		return time.Time{}, false
	}
	return s.pending.deadline, true
}
