// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package appcore

import (
	"strings"
	"testing"
	"time"

	"github.com/rmacrae/agentdeck/internal/hid"
)

// writeLines feeds lines into g as if a shell had printed them in order,
// each terminated by a carriage-return/line-feed pair except the last,
// so the cursor lands at the end of the final line.
func writeLines(g *Grid, lines []string) {
	g.Write([]byte(strings.Join(lines, "\r\n")))
}

// S3 — spinner task: a visible row "✶ Slithering… (ctrl+o to expand)"
// yields "Slithering…", with the key-hint parenthetical stripped.
func TestFindSpinnerTask_S3(t *testing.T) {
	g := NewGrid(24, 80)
	writeLines(g, []string{
		"some earlier output",
		"✶ Slithering… (ctrl+o to expand)",
	})

	task, found := FindSpinnerTask(g)
	if !found {
		t.Fatal("expected a spinner task to be found")
	}
	if task != "Slithering…" {
		t.Errorf("task = %q, want %q", task, "Slithering…")
	}
}

// S4 — duration skip: a bottom row "Worked for 40s" is skipped as a
// duration summary; the scan continues upward to the real task line.
func TestFindSpinnerTask_S4(t *testing.T) {
	g := NewGrid(24, 80)
	writeLines(g, []string{
		"✶ Reading src/main.rs",
		"✻ Worked for 40s",
	})

	task, found := FindSpinnerTask(g)
	if !found {
		t.Fatal("expected a spinner task to be found above the duration summary")
	}
	if task != "Reading src/main.rs" {
		t.Errorf("task = %q, want %q", task, "Reading src/main.rs")
	}
}

func TestFindSpinnerTask_PreservesNonKeyHintParens(t *testing.T) {
	g := NewGrid(24, 80)
	writeLines(g, []string{"✶ Building (3 files)"})

	task, found := FindSpinnerTask(g)
	if !found {
		t.Fatal("expected a spinner task to be found")
	}
	if task != "Building (3 files)" {
		t.Errorf("task = %q, want non-key-hint parenthetical preserved", task)
	}
}

func TestFindSpinnerTask_NoneFound(t *testing.T) {
	g := NewGrid(24, 80)
	writeLines(g, []string{"plain shell output", "$ "})

	_, found := FindSpinnerTask(g)
	if found {
		t.Error("expected no spinner task on plain shell output")
	}
}

func TestScanMode(t *testing.T) {
	cases := []struct {
		name string
		line string
		want hid.DeviceMode
	}{
		{"accept", "  accept edits on  ", hid.ModeAccept},
		{"plan", "  plan mode on  ", hid.ModePlan},
		{"default", "  nothing special  ", hid.ModeDefault},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			g := gridWithBottomRows(24, 80, []string{"row a", "row b", c.line})
			if got := ScanMode(g); got != c.want {
				t.Errorf("ScanMode() = %s, want %s", got, c.want)
			}
		})
	}
}

// gridWithBottomRows builds a rows×cols grid whose last len(bottom) rows
// hold bottom's text and whose earlier rows are blank, with the cursor
// left on the final row — the shape ScanMode's bottom-rows window reads.
func gridWithBottomRows(rows, cols int, bottom []string) *Grid {
	g := NewGrid(rows, cols)
	lines := make([]string, rows)
	start := rows - len(bottom)
	copy(lines[start:], bottom)
	writeLines(g, lines)
	return g
}

// S5 — mode detection & suppression: a SetMode push is not repeated for
// an echoed StateChanged within the suppression window.
func TestOrchestrator_ModeEchoSuppression_S5(t *testing.T) {
	setter := &countingModeSetter{}
	orch := NewOrchestrator(&fakeDisplayUpdater{}, setter, "test")
	session := orch.Tab(0, 24, 80)
	session.Grid = gridWithBottomRows(24, 80, []string{"row a", "row b", "  accept edits on  "})

	t0 := time.Unix(0, 0)
	orch.ScanTab(0, t0)
	if setter.calls != 1 {
		t.Fatalf("calls after first scan = %d, want 1", setter.calls)
	}

	// The device echoes the same state back within the 2s window: the
	// scanner sees the identical mode and must not push again.
	orch.ScanTab(0, t0.Add(500*time.Millisecond))
	if setter.calls != 1 {
		t.Errorf("calls after echoed re-scan = %d, want 1 (suppressed)", setter.calls)
	}

	// A genuinely new mode transition after the suppression window fires.
	session.Grid = gridWithBottomRows(24, 80, []string{"row a", "row b", "  plan mode on  "})
	orch.ScanTab(0, t0.Add(ModeEchoSuppression+100*time.Millisecond))
	if setter.calls != 2 {
		t.Errorf("calls after real transition = %d, want 2", setter.calls)
	}
}

type countingModeSetter struct{ calls int }

func (c *countingModeSetter) SetMode(mode hid.DeviceMode) error {
	c.calls++
	return nil
}

type fakeDisplayUpdater struct{ updates int }

func (f *fakeDisplayUpdater) SendDisplayUpdate(p hid.DisplayPayload) error {
	f.updates++
	return nil
}

func TestExtractPromptContext_ArgsMatch(t *testing.T) {
	g := NewGrid(24, 80)
	writeLines(g, []string{
		"───────────────────────────",
		"Bash(rm -rf /tmp/scratch)",
		"Esc to cancel",
	})

	ctx := ExtractPromptContext(g, DefaultArgsCap)
	if !ctx.Found {
		t.Fatal("expected a prompt context to be found")
	}
	if ctx.Text != "Bash(rm -rf /tmp/scratch)" {
		t.Errorf("Text = %q, want the args-match line verbatim", ctx.Text)
	}
}

func TestExtractPromptContext_PlanApprovalExcluded(t *testing.T) {
	g := NewGrid(24, 80)
	writeLines(g, []string{
		"───────────────────────────",
		"Do you want to proceed with this plan?",
		"(ctrl-g to edit)",
		"Esc to cancel",
	})

	ctx := ExtractPromptContext(g, DefaultArgsCap)
	if ctx.Found {
		t.Errorf("expected plan-approval block to be excluded, got %+v", ctx)
	}
}

func TestExtractPromptContext_QuestionFallback(t *testing.T) {
	g := NewGrid(24, 80)
	writeLines(g, []string{
		"───────────────────────────",
		"Do you want to make this edit?",
		"Esc to cancel",
	})

	ctx := ExtractPromptContext(g, DefaultArgsCap)
	if !ctx.Found {
		t.Fatal("expected a prompt context to be found")
	}
	if ctx.Text != "Do you want to make this edit?" {
		t.Errorf("Text = %q, want the question-fallback line", ctx.Text)
	}
}

func TestExtractPromptContext_NoHintsLine(t *testing.T) {
	g := NewGrid(24, 80)
	writeLines(g, []string{"just some output", "with no permission prompt"})

	ctx := ExtractPromptContext(g, DefaultArgsCap)
	if ctx.Found {
		t.Error("expected no prompt context without an 'Esc to cancel' line")
	}
}
