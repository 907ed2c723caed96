// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package hid

import (
	"context"
	"time"
)

// timeoutContext returns a context bound to timeout, used for the
// gousb endpoint read deadline. The cancel func is intentionally
// discarded after the duration elapses naturally — these are short,
// bounded reads on a hot path and the extra bookkeeping isn't worth it.
func timeoutContext(timeout time.Duration) context.Context {
	ctx, _ := context.WithTimeout(context.Background(), timeout)
	return ctx
}
