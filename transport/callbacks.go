/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"strconv"
	"strings"

	"github.com/meridian-http/h2engine/cmn/debug"
	"github.com/meridian-http/h2engine/cmn/nlog"
	"github.com/meridian-http/h2engine/decode"
	"github.com/meridian-http/h2engine/transport/h2codec"
)

// This file wires h2codec.Callbacks to the messages table: spec.md §4.C,
// the codec callback suite. Each dispatches on stream id to locate the
// Message Record; a miss means the event concerns a connection-level or
// already-removed stream.

func (c *Conn) byStream(streamID uint32) *Message {
	c.mu.Lock()
	m := c.messages[streamID]
	c.mu.Unlock()
	return m
}

func (c *Conn) onHeader(streamID uint32, h h2codec.HeaderField) {
	msg := c.byStream(streamID)
	if msg == nil {
		return
	}
	if strings.HasPrefix(h.Name, ":") {
		if h.Name == ":status" {
			if v, err := strconv.Atoi(h.Value); err == nil {
				msg.status = v
			}
		}
		return
	}
	msg.headers = append(msg.headers, HeaderKV{
		Name:  strings.ToValidUTF8(h.Name, "�"),
		Value: strings.ToValidUTF8(h.Value, "�"),
	})
}

func (c *Conn) onBeginFrame(streamID uint32, t h2codec.FrameType) {
	msg := c.byStream(streamID)
	if msg == nil {
		return
	}
	switch t {
	case h2codec.FrameHeaders:
		if msg.State() < StateReadHeaders {
			msg.advance(StateWriteDone, StateReadHeaders)
		}
	case h2codec.FrameData:
		if msg.State() < StateReadDataStart {
			msg.respIn = newBodyStream(c, msg)
			msg.decoded = decode.Chain(msg.respIn, msg.headerValue("content-encoding"))
			msg.advance(StateReadHeaders, StateReadDataStart)
		}
	}
}

func (c *Conn) onFrameRecv(info h2codec.FrameInfo) {
	if c.reg != nil {
		c.reg.FrameRecv(info.Type.String(), info.Length+h2codec.WireFrameHeaderSize)
	}
	msg := c.byStream(info.StreamID)
	if msg == nil {
		return
	}
	if msg.metrics != nil {
		msg.metrics.ResponseHeaderBytes.Add(int64(info.Length + h2codec.WireFrameHeaderSize))
	}

	switch info.Type {
	case h2codec.FrameHeaders:
		if !info.EndHeaders {
			return
		}
		switch {
		case msg.status >= 100 && msg.status < 200:
			nlog.Infof("transport: stream %d: informational %d", msg.streamID, msg.status)
			msg.headers = nil
			msg.status = 0
			msg.advance(msg.State(), StateReadDone)
		case msg.status == 204 || info.EndStream:
			msg.advance(msg.State(), StateReadData)
		default:
			nlog.Infof("transport: stream %d: got headers, status=%d", msg.streamID, msg.status)
		}
	case h2codec.FrameData:
		if info.EndStream && msg.respIn != nil {
			msg.respIn.markComplete()
		}
	case h2codec.FrameRSTStream:
		// Error code surfaces via on_stream_close with more context; here
		// we only have the frame header, so nothing further to do.
	}
}

func (c *Conn) onDataChunk(streamID uint32, b []byte) (pause bool) {
	msg := c.byStream(streamID)
	if msg == nil {
		return false
	}
	if msg.IsPaused() {
		return true
	}
	if msg.respIn != nil {
		msg.respIn.append(b)
	}
	if msg.metrics != nil {
		msg.metrics.ResponseBodyBytes.Add(int64(len(b)))
	}
	return false
}

func (c *Conn) onBeforeFrameSend(streamID uint32, t h2codec.FrameType) {
	msg := c.byStream(streamID)
	if msg == nil {
		return
	}
	if t == h2codec.FrameHeaders {
		msg.advance(StateNone, StateWriteHeaders)
	}
}

func (c *Conn) onFrameSend(streamID uint32, t h2codec.FrameType, length int, endStream bool) {
	if c.reg != nil {
		c.reg.FrameSent(t.String(), length+h2codec.WireFrameHeaderSize)
	}
	msg := c.byStream(streamID)
	if msg == nil {
		return
	}
	if msg.metrics != nil {
		msg.metrics.RequestHeaderBytes.Add(int64(length + h2codec.WireFrameHeaderSize))
	}

	switch t {
	case h2codec.FrameHeaders:
		nlog.Infof("transport: stream %d: wrote headers", msg.streamID)
		if msg.body == nil {
			msg.advance(StateWriteHeaders, StateWriteDone)
		}
	case h2codec.FrameData:
		if msg.State() == StateWriteHeaders {
			msg.advance(StateWriteHeaders, StateWriteData)
		}
		if msg.metrics != nil {
			msg.metrics.RequestBodyBytes.Add(int64(length))
		}
		if endStream {
			msg.advance(msg.State(), StateWriteDone)
		}
	}
}

func (c *Conn) onFrameNotSend(streamID uint32, t h2codec.FrameType, reason error) {
	nlog.Warningf("transport: stream %d: frame %s not sent: %v", streamID, t, reason)
}

func (c *Conn) onStreamClose(streamID uint32, code uint32) {
	nlog.Infof("transport: stream %d: closed, code=%d", streamID, code)
	msg := c.byStream(streamID)
	if msg == nil {
		return
	}
	if code != 0 {
		msg.setError(NewProtocolError(streamID, code, "stream reset by peer"))
	}
}

// readBody is wired as h2codec.Callbacks.ReadBody.
func (c *Conn) readBody(streamID uint32, p []byte) (int, h2codec.DataAction, error) {
	msg := c.byStream(streamID)
	if msg == nil || msg.body == nil {
		debug.Assert(false, "readBody invoked for a message with no body pump")
		return 0, h2codec.DataActionEOF, nil
	}
	return msg.body.pull(p)
}

// headerValue looks up a response header case-insensitively.
func (m *Message) headerValue(name string) string {
	for _, h := range m.headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
