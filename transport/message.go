/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"io"
	"sync"

	"github.com/meridian-http/h2engine/cmn/atomic"
	"github.com/meridian-http/h2engine/cmn/mono"
	"github.com/meridian-http/h2engine/cmn/nlog"
	"github.com/meridian-http/h2engine/stats"
)

// CompletionCB is invoked exactly once, from Finished, regardless of
// whether the stream completed cleanly or was interrupted (spec.md §4.A
// `finished`: "completion is always reported as COMPLETE ... even when the
// underlying stream was interrupted"). See DESIGN.md for the open-question
// decision to keep this behavior rather than add a distinguishing marker.
type CompletionCB func(datum any, err error)

// Item is the minimal shape the upper layer hands to Submit: enough to
// build request pseudo-headers and, optionally, stream a body.
type Item struct {
	Method   string
	Scheme   string
	Host     string
	Port     string
	Path     string
	Query    string
	IsOptionsPing bool // ":path" becomes "*"
	Headers  []HeaderKV
	Body     BodySource // nil if there is no request body
}

type HeaderKV struct{ Name, Value string }

// Message is the per-stream record described in spec.md §3. It lives for
// exactly the lifetime of one HTTP/2 stream id on one Conn; never reused.
type Message struct {
	conn     *Conn // borrow, valid for the Message's lifetime
	streamID uint32

	state      State
	paused     atomic.Bool
	cancelled  atomic.Bool

	completion CompletionCB
	datum      any

	status  int
	headers []HeaderKV

	body    *bodyPump   // request body pump state (component D), nil if no request body
	respIn  *BodyStream // response body stream (component E), created lazily
	decoded io.ReadCloser // content-decoder chain output, created lazily (see decode package)

	metrics *stats.MsgMetrics // optional, borrowed; engine only increments fields

	errOnce sync.Once
	err     error

	id      string // short diagnostic id, independent of streamID
	started int64  // mono.NanoTime() at submit; 0 until set
}

// touchStart stamps the message's start time; called once from Submit.
func (m *Message) touchStart() { m.started = mono.NanoTime() }

// elapsed logs and returns the time since touchStart, for diagnostics only
// (spec.md Non-goals exclude connection-wide timeout management, but a
// per-message duration is cheap and matches the teacher's own habit of
// logging mono-timed durations around I/O, e.g. transport/collect.go).
func (m *Message) elapsed() int64 {
	if m.started == 0 {
		return 0
	}
	d := mono.NanoTime() - m.started
	nlog.Infof("transport: stream %d: elapsed %dns", m.streamID, d)
	return d
}

// setError latches the first error only (spec.md §3 invariant / §7
// "Latched error"); later calls are no-ops.
func (m *Message) setError(err error) {
	if err == nil {
		return
	}
	m.errOnce.Do(func() { m.err = err })
}

// Err returns the latched error, if any.
func (m *Message) Err() error { return m.err }

func (m *Message) State() State { return m.state }

func (m *Message) advance(from, to State) { advance(&m.state, from, to) }

func (m *Message) StreamID() uint32 { return m.streamID }

func (m *Message) IsPaused() bool { return m.paused.Load() }
