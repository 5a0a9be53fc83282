//go:build !mono

// Package mono provides low-level monotonic time, used for diagnostic
// durations in the connection engine.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

var start = time.Now()

// NanoTime returns a monotonically increasing nanosecond counter.
// The portable fallback (no go:linkname) used outside the `mono` build tag.
func NanoTime() int64 { return int64(time.Since(start)) }
