// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package appcore

// TypeStringToBytes implements the TypeString device event translation
// (§4.4.4): the text is sent as-is (already UTF-8), with a trailing
// carriage return appended when appendEnter is set.
func TypeStringToBytes(text string, appendEnter bool) []byte {
	out := []byte(text)
	if appendEnter {
		out = append(out, '\r')
	}
	return out
}
