// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package appcore

import "testing"

// Property 5 — alert monotonicity: across any sequence of raised alerts
// on any tabs, the assigned alert_order values strictly increase.
func TestTabBook_RaiseAlert_Monotonicity(t *testing.T) {
	book := NewTabBook()

	var orders []uint64
	tabs := []int{0, 2, 1, 0, 3, 1}
	for i, tab := range tabs {
		book.ClearAlert(tab) // each raise in this sequence should succeed
		if !book.RaiseAlert(tab, "alert") {
			t.Fatalf("raise %d on tab %d unexpectedly dropped", i, tab)
		}
		st, _ := book.Get(tab)
		orders = append(orders, st.AlertOrder)
	}

	for i := 1; i < len(orders); i++ {
		if orders[i] <= orders[i-1] {
			t.Errorf("alert_order not strictly increasing: %v", orders)
			break
		}
	}
}

// At-most-one-per-tab: a second raise on a tab whose alert is already
// active is dropped and does not consume a new order value.
func TestTabBook_RaiseAlert_AtMostOnePerTab(t *testing.T) {
	book := NewTabBook()

	if !book.RaiseAlert(0, "first") {
		t.Fatal("first raise should succeed")
	}
	before, _ := book.Get(0)

	if book.RaiseAlert(0, "second") {
		t.Error("raise on a tab with an active alert should be dropped")
	}
	after, _ := book.Get(0)
	if after.AlertOrder != before.AlertOrder || after.AlertText != before.AlertText {
		t.Errorf("dropped raise mutated state: before=%+v after=%+v", before, after)
	}

	if !book.ClearAlert(0) {
		t.Fatal("ClearAlert should succeed on an active alert")
	}
	if !book.RaiseAlert(0, "third") {
		t.Error("raise after clear should succeed")
	}
}

func TestTabBook_OnWindowFocus_ClearsActiveTabOnly(t *testing.T) {
	book := NewTabBook()
	book.SetActiveTab(1)
	book.RaiseAlert(0, "bell")
	book.RaiseAlert(1, "toast")

	cleared := book.OnWindowFocus()
	if cleared != 1 {
		t.Fatalf("OnWindowFocus cleared tab %d, want 1", cleared)
	}

	active, _ := book.Get(1)
	if active.AlertActive {
		t.Error("active tab's alert should be cleared")
	}
	other, _ := book.Get(0)
	if !other.AlertActive {
		t.Error("non-active tab's alert should be untouched")
	}

	if again := book.OnWindowFocus(); again != -1 {
		t.Errorf("second OnWindowFocus with no active alert = %d, want -1", again)
	}
}

func TestTabBook_SetWorking_ClearsFingerprintOnIdleTransition(t *testing.T) {
	book := NewTabBook()
	book.SetWorking(0, true)

	book.mu.Lock()
	book.tabs[0].LastAnswerFingerprint = "F1"
	book.mu.Unlock()

	book.SetWorking(0, true) // still working: fingerprint preserved
	st, _ := book.Get(0)
	if st.LastAnswerFingerprint != "F1" {
		t.Fatalf("fingerprint cleared while still working: %+v", st)
	}

	book.SetWorking(0, false) // working -> idle: fingerprint clears
	st, _ = book.Get(0)
	if st.LastAnswerFingerprint != "" {
		t.Errorf("fingerprint not cleared on working->idle transition: %+v", st)
	}
}

func TestTabBook_TabBytes(t *testing.T) {
	book := NewTabBook()
	book.RaiseAlert(0, "bell")
	book.SetFinished(1, true)
	book.SetWorking(2, true)

	got := book.TabBytes(4)
	want := []byte{TabBitAlert, TabBitFinished, TabBitWorking, 0}
	if len(got) != len(want) {
		t.Fatalf("TabBytes length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TabBytes[%d] = %#x, want %#x", i, got[i], want[i])
		}
	}
}

// Orchestrator-level Bell/Toast rules (§4.4.2): Bell never raises for
// the active tab; Toast raises for a background tab or an unfocused
// window even if that tab is active.
func TestOrchestrator_AlertRules(t *testing.T) {
	orch := NewOrchestrator(&fakeDisplayUpdater{}, &countingModeSetter{}, "test")
	orch.Book.SetActiveTab(0)

	if orch.RaiseBellAlert(0) {
		t.Error("Bell on the active tab should not raise an alert")
	}
	if !orch.RaiseBellAlert(1) {
		t.Error("Bell on a background tab should raise an alert")
	}

	orch.Book.ClearAlert(0)
	if orch.RaiseToastAlert(0, "body", true) {
		t.Error("Toast on the active tab with a focused window should not raise")
	}
	if !orch.RaiseToastAlert(0, "body", false) {
		t.Error("Toast on the active tab with an unfocused window should raise")
	}
}
