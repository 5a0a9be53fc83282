/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package h2codec

import (
	"bytes"
	"fmt"
	"sort"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

const defaultDataFrameSize = 16 * 1024

type streamState struct {
	remoteWindow int32 // bytes this session may still send on the stream
	sendingBody  bool  // ReadBody is wired and not yet EOF'd / reset
	deferred     bool  // ReadBody last returned DataActionDeferred
	halfClosed   bool  // END_STREAM has been written for this stream

	// pendingHeaders is set by SubmitRequest and flushed by the next
	// MemSend (pumpBodies). Deferring the actual HEADERS write (and its
	// OnBeforeFrameSend/OnFrameSend callbacks) to the pump step — rather
	// than writing synchronously inside SubmitRequest — mirrors nghttp2's
	// submit/mem_send split: submit only enqueues work, transmission and
	// its callbacks happen later, after the caller has had a chance to
	// register the new stream id for dispatch.
	pendingHeaders      []byte
	pendingHeadersFinal bool // true if no body follows (END_STREAM on HEADERS)
}

// Session is the client-side half of one HTTP/2 connection's frame codec:
// an hpack encoder/decoder pair plus an http2.Framer, staged through an
// outbound byte buffer so callers can drive it exactly like spec.md's
// mem_recv/mem_send contract (partial, non-blocking-friendly writes).
type Session struct {
	cb Callbacks

	fr   *http2.Framer
	pend pendingReader

	henc *hpack.Encoder
	hbuf bytes.Buffer

	sendBuf bytes.Buffer // staged outbound bytes not yet acknowledged via ConsumeSend

	nextStreamID     uint32
	remoteConnWindow int32
	localConnWindow  uint32
	streams          map[uint32]*streamState

	lastGoAwayStream uint32
	shutdown         bool
}

// NewSession constructs a client-role session. The wire format is produced
// into an internal buffer (drained via MemSend/ConsumeSend); nothing is
// written directly to a transport from inside this package.
func NewSession(cb Callbacks) *Session {
	s := &Session{
		cb:               cb,
		nextStreamID:     1,
		remoteConnWindow: 65535,
		localConnWindow:  65535,
		streams:          make(map[uint32]*streamState, 16),
	}
	s.henc = hpack.NewEncoder(&s.hbuf)
	s.sendBuf.WriteString(http2.ClientPreface)
	s.fr = http2.NewFramer(&s.sendBuf, &s.pend)
	s.fr.ReadMetaHeaders = hpack.NewDecoder(4096, nil)
	s.fr.SetMaxReadFrameSize(defaultDataFrameSize)
	return s
}

// WantRead is always true while the connection hasn't seen GOAWAY-driven
// shutdown; the engine stops reading once every message has drained.
func (s *Session) WantRead() bool { return !s.shutdown }

// WantWrite reports whether there is anything staged to flush, or any
// stream with body bytes ready to pull.
func (s *Session) WantWrite() bool {
	if s.sendBuf.Len() > 0 {
		return true
	}
	for _, st := range s.streams {
		if st.pendingHeaders != nil {
			return true
		}
		if st.sendingBody && !st.deferred {
			return true
		}
	}
	return false
}

// MemRecv feeds raw transport bytes into the session; it parses and
// dispatches every complete frame found, synchronously invoking the
// Callbacks suite, and retains any trailing partial frame for the next
// call. A zero-length b is a no-op (spec.md §8 idempotence law).
func (s *Session) MemRecv(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	s.pend.feed(b)
	for {
		f, err := s.fr.ReadFrame()
		if err != nil {
			if needsMoreData(err) {
				s.pend.rollback()
				return len(b), nil
			}
			return 0, err
		}
		s.pend.commit()
		if err := s.dispatch(f); err != nil {
			return 0, err
		}
	}
}

// MemSend returns the bytes currently staged for the transport, pumping
// any ready request-body sources into DATA frames first. A nil/empty
// result means "nothing to send right now" (spec.md §4.A write iteration).
func (s *Session) MemSend() ([]byte, error) {
	if err := s.pumpBodies(); err != nil {
		return nil, err
	}
	if s.sendBuf.Len() == 0 {
		return nil, nil
	}
	return s.sendBuf.Bytes(), nil
}

// ConsumeSend acknowledges that n bytes of the buffer returned by the last
// MemSend were written to the transport, sliding the outbound cursor.
func (s *Session) ConsumeSend(n int) {
	if n <= 0 {
		return
	}
	b := s.sendBuf.Bytes()
	if n >= len(b) {
		s.sendBuf.Reset()
		return
	}
	rest := append([]byte(nil), b[n:]...)
	s.sendBuf.Reset()
	s.sendBuf.Write(rest)
}

// SubmitSettings writes the startup SETTINGS frame (spec.md §6: {
// INITIAL_WINDOW_SIZE, HEADER_TABLE_SIZE, ENABLE_PUSH}).
func (s *Session) SubmitSettings(settings []Setting) error {
	return s.fr.WriteSettings(settings...)
}

// SetLocalWindowSize overrides the local connection-level flow-control
// window (spec.md §6: 32 MiB) by sending a WINDOW_UPDATE on stream 0.
func (s *Session) SetLocalWindowSize(windowSize uint32) error {
	if windowSize <= s.localConnWindow {
		s.localConnWindow = windowSize
		return nil
	}
	delta := windowSize - s.localConnWindow
	s.localConnWindow = windowSize
	return s.fr.WriteWindowUpdate(0, delta)
}

// SubmitRequest assigns the next (odd) client stream id and stages the
// HEADERS frame for it; the frame is actually written — and
// OnBeforeFrameSend/OnFrameSend fire — on the next MemSend (pumpHeaders),
// by which time the caller has had the chance to register the new stream
// id against a Message Record. When hasBody is true the stream is also
// registered as a body source the pump loop will drain via
// Callbacks.ReadBody.
func (s *Session) SubmitRequest(headers []HeaderField, hasBody bool) (uint32, error) {
	id := s.nextStreamID
	s.nextStreamID += 2

	s.hbuf.Reset()
	for _, h := range headers {
		if err := s.henc.WriteField(hpack.HeaderField{Name: h.Name, Value: h.Value}); err != nil {
			return 0, fmt.Errorf("h2codec: encode header %s: %w", h.Name, err)
		}
	}
	block := append([]byte(nil), s.hbuf.Bytes()...)

	st := &streamState{
		remoteWindow:        65535,
		pendingHeaders:      block,
		pendingHeadersFinal: !hasBody,
	}
	s.streams[id] = st
	if hasBody {
		st.sendingBody = true
	}
	return id, nil
}

// SubmitRstStream resets a stream with the given HTTP/2 error code.
func (s *Session) SubmitRstStream(streamID uint32, code uint32) error {
	delete(s.streams, streamID)
	return s.fr.WriteRSTStream(streamID, http2.ErrCode(code))
}

// ResumeData re-arms a stream's body pull after Callbacks.ReadBody
// previously returned DataActionDeferred.
func (s *Session) ResumeData(streamID uint32) {
	if st, ok := s.streams[streamID]; ok {
		st.deferred = false
	}
}

// pumpHeaders flushes every stream's staged HEADERS frame, in stream-id
// order, before any DATA pumping — request bodies must never overtake
// their own HEADERS frame on the wire.
func (s *Session) pumpHeaders() error {
	ids := make([]uint32, 0, len(s.streams))
	for id, st := range s.streams {
		if st.pendingHeaders != nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		st := s.streams[id]
		block := st.pendingHeaders
		final := st.pendingHeadersFinal
		st.pendingHeaders = nil

		if s.cb.OnBeforeFrameSend != nil {
			s.cb.OnBeforeFrameSend(id, FrameHeaders)
		}
		err := s.fr.WriteHeaders(http2.HeadersFrameParam{
			StreamID:      id,
			BlockFragment: block,
			EndHeaders:    true,
			EndStream:     final,
		})
		if err != nil {
			if s.cb.OnFrameNotSend != nil {
				s.cb.OnFrameNotSend(id, FrameHeaders, err)
			}
			return err
		}
		if s.cb.OnFrameSend != nil {
			s.cb.OnFrameSend(id, FrameHeaders, len(block), final)
		}
	}
	return nil
}

// pumpBodies drains every stream with an active, non-deferred body source
// into DATA frames, respecting each stream's remaining remote window.
func (s *Session) pumpBodies() error {
	if err := s.pumpHeaders(); err != nil {
		return err
	}
	for id, st := range s.streams {
		if !st.sendingBody || st.deferred {
			continue
		}
		for st.remoteWindow > 0 {
			want := defaultDataFrameSize
			if int(st.remoteWindow) < want {
				want = int(st.remoteWindow)
			}
			buf := make([]byte, want)
			n, action, err := s.cb.ReadBody(id, buf)
			switch action {
			case DataActionBytes:
				if err := s.writeData(id, st, buf[:n], false); err != nil {
					return err
				}
			case DataActionEOF:
				if err := s.writeData(id, st, nil, true); err != nil {
					return err
				}
				st.sendingBody = false
			case DataActionDeferred:
				st.deferred = true
			case DataActionTemporal:
				if s.cb.OnFrameNotSend != nil {
					s.cb.OnFrameNotSend(id, FrameData, err)
				}
				st.sendingBody = false
				_ = s.SubmitRstStream(id, uint32(http2.ErrCodeInternal))
			}
			if action != DataActionBytes {
				break
			}
		}
	}
	return nil
}

func (s *Session) writeData(id uint32, st *streamState, b []byte, endStream bool) error {
	if s.cb.OnBeforeFrameSend != nil && len(b) > 0 {
		s.cb.OnBeforeFrameSend(id, FrameData)
	}
	if err := s.fr.WriteData(id, endStream, b); err != nil {
		if s.cb.OnFrameNotSend != nil {
			s.cb.OnFrameNotSend(id, FrameData, err)
		}
		return err
	}
	st.remoteWindow -= int32(len(b))
	if endStream {
		st.halfClosed = true
	}
	if s.cb.OnFrameSend != nil {
		s.cb.OnFrameSend(id, FrameData, len(b), endStream)
	}
	return nil
}

// dispatch decodes one parsed frame and invokes the matching callback(s).
func (s *Session) dispatch(f http2.Frame) error {
	hdr := f.Header()
	info := FrameInfo{StreamID: hdr.StreamID, Length: hdr.Length}

	switch fr := f.(type) {
	case *http2.MetaHeadersFrame:
		info.Type = FrameHeaders
		info.EndStream = fr.StreamEnded()
		info.EndHeaders = true
		if s.cb.OnBeginFrame != nil {
			s.cb.OnBeginFrame(fr.StreamID, FrameHeaders)
		}
		for _, hf := range fr.Fields {
			if s.cb.OnHeader != nil {
				s.cb.OnHeader(fr.StreamID, HeaderField{Name: hf.Name, Value: hf.Value})
			}
		}
		if s.cb.OnFrameRecv != nil {
			s.cb.OnFrameRecv(info)
		}

	case *http2.DataFrame:
		info.Type = FrameData
		info.EndStream = fr.StreamEnded()
		data := fr.Data()
		if s.cb.OnBeginFrame != nil {
			s.cb.OnBeginFrame(fr.StreamID, FrameData)
		}
		// OnDataChunk (append) must land before OnFrameRecv (which may
		// observe EndStream and markComplete the same frame's stream):
		// nghttp2 guarantees on_data_chunk_recv_callback fires before
		// on_frame_recv_callback for the same DATA frame, and callers rely
		// on the chunk already being appended by the time EndStream is
		// seen.
		var pause bool
		if len(data) > 0 && s.cb.OnDataChunk != nil {
			pause = s.cb.OnDataChunk(fr.StreamID, data)
		}
		if s.cb.OnFrameRecv != nil {
			s.cb.OnFrameRecv(info)
		}
		if pause {
			return nil
		}
		if len(data) > 0 {
			_ = s.fr.WriteWindowUpdate(fr.StreamID, uint32(len(data)))
			_ = s.fr.WriteWindowUpdate(0, uint32(len(data)))
		}

	case *http2.RSTStreamFrame:
		info.Type = FrameRSTStream
		if s.cb.OnFrameRecv != nil {
			s.cb.OnFrameRecv(info)
		}
		delete(s.streams, fr.StreamID)
		if s.cb.OnStreamClose != nil {
			s.cb.OnStreamClose(fr.StreamID, uint32(fr.ErrCode))
		}

	case *http2.SettingsFrame:
		info.Type = FrameSettings
		if s.cb.OnFrameRecv != nil {
			s.cb.OnFrameRecv(info)
		}
		if !fr.IsAck() {
			_ = s.fr.WriteSettingsAck()
		}

	case *http2.WindowUpdateFrame:
		info.Type = FrameWindowUpdate
		if s.cb.OnFrameRecv != nil {
			s.cb.OnFrameRecv(info)
		}
		if fr.StreamID == 0 {
			s.remoteConnWindow += int32(fr.Increment)
		} else if st, ok := s.streams[fr.StreamID]; ok {
			st.remoteWindow += int32(fr.Increment)
			st.deferred = false
		}

	case *http2.GoAwayFrame:
		info.Type = FrameGoAway
		if s.cb.OnFrameRecv != nil {
			s.cb.OnFrameRecv(info)
		}
		s.shutdown = true
		s.lastGoAwayStream = fr.LastStreamID
		if s.cb.OnGoAway != nil {
			s.cb.OnGoAway(fr.LastStreamID, uint32(fr.ErrCode), fr.DebugData())
		}

	case *http2.PingFrame:
		if !fr.IsAck() {
			_ = s.fr.WritePing(true, fr.Data)
		}

	default:
		// PRIORITY, PUSH_PROMISE (never sent - push is disabled), and any
		// unrecognized frame type are consumed silently.
	}
	return nil
}
