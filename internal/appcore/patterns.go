// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package appcore

import "regexp"

// argsPattern matches a `<name>(<args>)` shaped line, e.g. "Read(file.go)".
func argsPattern() *regexp.Regexp {
	return regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_.]*\([^()]*\)`)
}
