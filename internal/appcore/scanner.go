// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package appcore

import (
	"strings"
	"unicode"

	"github.com/rmacrae/agentdeck/internal/hid"
)

// SpinnerScanRows bounds how far upward from the cursor the spinner scan
// looks (§4.4.1).
const SpinnerScanRows = 15

// spinnerRangeLow/spinnerRangeHigh are the Unicode code points a spinner
// glyph is drawn from (configurable per §9 Open Question 2's resolution).
var (
	spinnerRangeLow  rune = 0x2726
	spinnerRangeHigh rune = 0x2748
)

// SetSpinnerRange overrides the spinner glyph detection range.
func SetSpinnerRange(low, high rune) {
	spinnerRangeLow, spinnerRangeHigh = low, high
}

var keyHintPrefixes = []string{"ctrl+", "alt+", "cmd+", "shift+"}

// durationUnits are the summary-line unit suffixes that mark a row as a
// "Worked for 40s"-shaped duration summary rather than a live task.
var durationUnits = []string{"ms", "min", "sec", "s", "m"}

// FindSpinnerTask implements the spinner-task scan: starting at
// cursorRow, look upward up to SpinnerScanRows rows for one whose first
// non-whitespace rune is a spinner glyph, strip prefix punctuation and
// trailing key-hint parentheticals, and skip duration-summary lines.
func FindSpinnerTask(g *Grid) (string, bool) {
	start := g.CursorRow()
	limit := start - SpinnerScanRows
	if limit < 0 {
		limit = 0
	}
	for r := start; r >= limit; r-- {
		line := g.RowText(r)
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		first := []rune(trimmed)[0]
		if first < spinnerRangeLow || first > spinnerRangeHigh {
			continue
		}
		task := stripSpinnerPrefix(trimmed)
		task = stripKeyHintSuffix(task)
		task = strings.TrimSpace(task)
		if task == "" {
			continue
		}
		if isDurationSummary(task) {
			continue
		}
		return task, true
	}
	return "", false
}

func stripSpinnerPrefix(s string) string {
	runes := []rune(s)
	i := 0
	for i < len(runes) && !unicode.IsLetter(runes[i]) && !unicode.IsDigit(runes[i]) {
		i++
	}
	return string(runes[i:])
}

// stripKeyHintSuffix removes a trailing "(...)" group whose lowercased
// contents contain a modifier-key hint or begin with/equal "esc".
func stripKeyHintSuffix(s string) string {
	s = strings.TrimRight(s, " ")
	if !strings.HasSuffix(s, ")") {
		return s
	}
	open := strings.LastIndex(s, "(")
	if open < 0 {
		return s
	}
	inner := strings.ToLower(s[open+1 : len(s)-1])
	isHint := inner == "esc" || strings.HasPrefix(inner, "esc")
	if !isHint {
		for _, prefix := range keyHintPrefixes {
			if strings.Contains(inner, prefix) {
				isHint = true
				break
			}
		}
	}
	if !isHint {
		return s
	}
	return strings.TrimRight(s[:open], " ")
}

// isDurationSummary matches "<Verb> for <digits><unit>" shaped lines,
// e.g. "Worked for 40s".
func isDurationSummary(s string) bool {
	idx := strings.LastIndex(s, " for ")
	if idx < 0 {
		return false
	}
	tail := strings.TrimSpace(s[idx+len(" for "):])
	digits := 0
	for digits < len(tail) && tail[digits] >= '0' && tail[digits] <= '9' {
		digits++
	}
	if digits == 0 {
		return false
	}
	unit := tail[digits:]
	for _, u := range durationUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// ScanBottomRows is how many rows from the bottom the mode scan inspects.
const ScanBottomRows = 3

// ScanMode implements the mode scan: inspect the bottom few visible
// rows for the accept-edits/plan-mode substrings.
func ScanMode(g *Grid) hid.DeviceMode {
	rows := g.Rows()
	start := rows - ScanBottomRows
	if start < 0 {
		start = 0
	}
	for r := start; r < rows; r++ {
		line := strings.ToLower(g.RowText(r))
		if strings.Contains(line, "accept edits on") {
			return hid.ModeAccept
		}
		if strings.Contains(line, "plan mode on") {
			return hid.ModePlan
		}
	}
	return hid.ModeDefault
}

// DefaultArgsCap is the default truncation length for parenthesized args
// (§4.4.1).
const DefaultArgsCap = 120

// PromptContext is the result of the prompt-context scan.
type PromptContext struct {
	Text  string
	Found bool
}

var horizontalRuleRunes = "-─━—"

func isHorizontalRule(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	for _, r := range trimmed {
		if !strings.ContainsRune(horizontalRuleRunes, r) {
			return false
		}
	}
	return true
}

func isNumberedOption(line string) bool {
	trimmed := strings.TrimLeft(line, " \t>-*")
	if trimmed == "" {
		return false
	}
	i := 0
	for i < len(trimmed) && trimmed[i] >= '0' && trimmed[i] <= '9' {
		i++
	}
	return i > 0 && i < len(trimmed) && trimmed[i] == '.'
}

var argsLineRe = argsPattern()

// ExtractPromptContext implements the prompt-context scan: from the
// bottom upward, collect a permission block bounded by a horizontal
// rule above and an "Esc to cancel" hints line below, and classify it
// per §4.4.1's priority order.
func ExtractPromptContext(g *Grid, argsCap int) PromptContext {
	if argsCap <= 0 {
		argsCap = DefaultArgsCap
	}
	rows := g.Rows()

	hintsRow := -1
	for r := rows - 1; r >= 0; r-- {
		if strings.Contains(g.RowText(r), "Esc to cancel") {
			hintsRow = r
			break
		}
	}
	if hintsRow < 0 {
		return PromptContext{}
	}

	ruleRow := -1
	for r := hintsRow - 1; r >= 0; r-- {
		if isHorizontalRule(g.RowText(r)) {
			ruleRow = r
			break
		}
	}
	if ruleRow < 0 {
		return PromptContext{}
	}

	var (
		argsMatch     string
		boldTitle     string
		questionLine  string
		questionRow   = -1
		argsFallback  []string
		planApproval  bool
	)

	for r := ruleRow + 1; r < hintsRow; r++ {
		line := g.RowText(r)
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.Contains(line, "Esc to cancel") || isNumberedOption(line) {
			continue
		}
		if strings.Contains(strings.ToLower(line), "ctrl-g to edit") {
			planApproval = true
		}
		if argsMatch == "" {
			if m := argsLineRe.FindStringSubmatch(trimmed); m != nil {
				argsMatch = m[0]
			}
		}
		if g.RowBold(r) && boldTitle == "" {
			boldTitle = trimmed
		}
		if strings.HasPrefix(trimmed, "Do you want") {
			questionLine = trimmed
			questionRow = r
		}
		if questionRow >= 0 && r > questionRow && boldTitle == "" && strings.HasPrefix(line, "  ") {
			argsFallback = append(argsFallback, trimmed)
		}
	}

	if planApproval {
		return PromptContext{}
	}

	switch {
	case argsMatch != "":
		return PromptContext{Text: truncate(argsMatch, argsCap), Found: true}
	case len(argsFallback) > 0:
		return PromptContext{Text: truncate(strings.Join(argsFallback, " "), argsCap), Found: true}
	case boldTitle != "":
		return PromptContext{Text: truncate(boldTitle, argsCap), Found: true}
	case questionLine != "":
		return PromptContext{Text: truncate(questionLine, argsCap), Found: true}
	default:
		return PromptContext{}
	}
}

func truncate(s string, cap int) string {
	runes := []rune(s)
	if len(runes) <= cap {
		return s
	}
	return string(runes[:cap]) + "…"
}
