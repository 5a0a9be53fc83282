// Package transport is the client-side HTTP/2 message I/O engine: it
// drives one HTTP/2 connection, multiplexing concurrent request/response
// exchanges ("messages") over a single bidirectional transport, following
// the same file layout the teacher's object-stream transport uses
// (api.go/conn.go/message.go/...) adapted to this domain (see DESIGN.md).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"github.com/meridian-http/h2engine/cmn/debug"
	"github.com/meridian-http/h2engine/cmn/nlog"
)

// State is a message's position in the strictly monotone progression:
// NONE -> WRITE_HEADERS -> (WRITE_DATA)* -> WRITE_DONE -> READ_HEADERS ->
// READ_DATA_START -> READ_DATA -> READ_DONE.
type State int32

const (
	StateNone State = iota
	StateWriteHeaders
	StateWriteData
	StateWriteDone
	StateReadHeaders
	StateReadDataStart
	StateReadData
	StateReadDone
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateWriteHeaders:
		return "WRITE_HEADERS"
	case StateWriteData:
		return "WRITE_DATA"
	case StateWriteDone:
		return "WRITE_DONE"
	case StateReadHeaders:
		return "READ_HEADERS"
	case StateReadDataStart:
		return "READ_DATA_START"
	case StateReadData:
		return "READ_DATA"
	case StateReadDone:
		return "READ_DONE"
	default:
		return "UNKNOWN"
	}
}

// advance moves *cur from `from` to `to`. If *cur is not `from`, the
// mismatch is logged (and asserted under the debug build tag), but the move
// is still made when `to` is ahead of *cur. A move to an earlier state is
// logged and discarded. This is the sole mutator of message state; spec.md §3 invariant 2.
func advance(cur *State, from, to State) {
	c := *cur
	if c != from {
		nlog.Warningf("transport: non-monotone state change attempt: cur=%s from=%s to=%s", c, from, to)
		debug.Assert(false, "unexpected current state")
		if to <= c {
			return
		}
	}
	if to < c {
		nlog.Warningf("transport: discarding backward state change: cur=%s to=%s", c, to)
		return
	}
	*cur = to
}
