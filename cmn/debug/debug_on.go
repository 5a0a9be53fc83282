//go:build debug

// Package debug provides build-tag-gated assertions: a no-op in release
// builds, active when built with `-tags debug`.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package debug

import "fmt"

func ON() bool { return true }

func Assert(cond bool, args ...any) {
	if cond {
		return
	}
	panic("assertion failed: " + fmt.Sprint(args...))
}

func Assertf(cond bool, format string, args ...any) {
	if cond {
		return
	}
	panic("assertion failed: " + fmt.Sprintf(format, args...))
}

func AssertNoErr(err error) {
	if err == nil {
		return
	}
	panic("assertion failed: unexpected error: " + err.Error())
}

func AssertFunc(f func() bool, args ...any) {
	Assert(f(), args...)
}
