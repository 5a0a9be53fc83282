// Package h2codec wraps golang.org/x/net/http2's Framer and hpack encoder/
// decoder behind the nghttp2-shaped contract that the connection engine
// (package transport) is written against: WantRead/WantWrite, MemRecv/
// MemSend, SubmitRequest/SubmitRstStream/SubmitSettings, SetLocalWindowSize,
// ResumeData, and a synchronous callback suite invoked while frames are fed
// in or flushed out (see DESIGN.md for the open-question decision on owning
// the per-stream user-data slot outside this package).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package h2codec

import "golang.org/x/net/http2"

// FrameType mirrors the handful of HTTP/2 frame types the engine cares
// about; everything else (PRIORITY, PUSH_PROMISE, PING, unknown) is
// consumed internally by the session and never reaches the callback suite.
type FrameType uint8

const (
	FrameHeaders FrameType = iota
	FrameData
	FrameRSTStream
	FrameSettings
	FrameWindowUpdate
	FrameGoAway
	FrameOther
)

func (t FrameType) String() string {
	switch t {
	case FrameHeaders:
		return "HEADERS"
	case FrameData:
		return "DATA"
	case FrameRSTStream:
		return "RST_STREAM"
	case FrameSettings:
		return "SETTINGS"
	case FrameWindowUpdate:
		return "WINDOW_UPDATE"
	case FrameGoAway:
		return "GOAWAY"
	default:
		return "OTHER"
	}
}

// HeaderField is a decoded (name, value) pair, repaired for invalid UTF-8
// by the caller before use (spec.md §4.C on_header).
type HeaderField struct {
	Name, Value string
}

// FrameInfo carries just enough about a received frame for metrics and
// dispatch; it intentionally does not leak *http2.Frame across the package
// boundary.
type FrameInfo struct {
	StreamID  uint32
	Type      FrameType
	Length    int // payload length, not including the 9-byte frame header
	EndStream bool
	EndHeaders bool
}

// WireFrameHeaderSize is the fixed HTTP/2 frame header size (9 bytes),
// used by callers that need to reproduce spec.md's "frame payload + 9-byte
// frame header" metrics accounting.
const WireFrameHeaderSize = 9

// DataAction is what a request-body read callback (see Callbacks.ReadBody)
// tells the session to do next.
type DataAction int

const (
	DataActionBytes    DataAction = iota // n bytes were produced; send them
	DataActionEOF                        // no more body data; end the stream
	DataActionDeferred                   // no bytes available right now; call ResumeData later
	DataActionTemporal                   // the body source failed; reset the stream
)

// Setting is a local alias of http2.Setting so callers don't need to import
// golang.org/x/net/http2 directly just to build the startup SETTINGS frame.
type Setting = http2.Setting

const (
	SettingHeaderTableSize   = http2.SettingHeaderTableSize
	SettingInitialWindowSize = http2.SettingInitialWindowSize
	SettingEnablePush        = http2.SettingEnablePush
)

// Callbacks is the synchronous callback suite the session invokes while
// frames are parsed out of MemRecv or flushed out of MemSend, matching
// spec.md §4.C one for one.
type Callbacks struct {
	OnHeader          func(streamID uint32, h HeaderField)
	OnBeginFrame      func(streamID uint32, t FrameType)
	OnFrameRecv       func(FrameInfo)
	OnDataChunk       func(streamID uint32, b []byte) (pause bool)
	OnBeforeFrameSend func(streamID uint32, t FrameType)
	OnFrameSend       func(streamID uint32, t FrameType, length int, endStream bool)
	OnFrameNotSend    func(streamID uint32, t FrameType, reason error)
	OnStreamClose     func(streamID uint32, code uint32)
	OnGoAway          func(lastStreamID uint32, code uint32, debug []byte)

	// ReadBody supplies request-body bytes for streamID on demand; it is
	// called from inside MemSend, never concurrently with MemRecv (the
	// engine is single-threaded per connection, spec.md §5).
	ReadBody func(streamID uint32, p []byte) (n int, action DataAction, err error)
}
