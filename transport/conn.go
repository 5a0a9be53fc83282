/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"io"
	"sync"
	"time"

	"github.com/meridian-http/h2engine/cmn/atomic"
	"github.com/meridian-http/h2engine/cmn/cos"
	"github.com/meridian-http/h2engine/cmn/debug"
	"github.com/meridian-http/h2engine/cmn/nlog"
	"github.com/meridian-http/h2engine/stats"
	"github.com/meridian-http/h2engine/transport/h2codec"
)

// Transport is the bidirectional byte stream a Conn drives (spec.md §3
// "Transport"). Both halves are independently pollable for readiness via
// deadlines, the same idiom golang.org/x/net/http2 itself uses over a
// net.Conn — no third-party library changes how non-blocking socket I/O is
// expressed in Go, so this one facility is taken from the standard library
// (see DESIGN.md).
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// readChunk is the 8 KiB scratch buffer size named in spec.md §4.A's read
// iteration.
const readChunk = 8 * 1024

// localWindowSize is the client-side connection-level flow-control window
// spec.md §6 asks the engine to configure (32 MiB).
const localWindowSize = 32 * 1024 * 1024

// Conn owns one HTTP/2 connection: the transport halves, the codec
// session, and the messages table (spec.md §3 "Connection", §4.A).
type Conn struct {
	id     uint64
	idStr  string
	tr     Transport
	sess   *h2codec.Session
	reg    *stats.ConnMetrics // optional
	writeCursor struct {
		buf []byte
		off int
	}

	mu       sync.Mutex
	messages map[uint32]*Message

	shutdown  atomic.Bool
	pumpDepth int // reentry guard, spec.md §5 "Reentry"
}

// NewConn constructs a client-role connection over tr, submits the startup
// SETTINGS frame and local window override (spec.md §4.A Responsibilities).
func NewConn(tr Transport, metrics *stats.ConnMetrics) (*Conn, error) {
	c := &Conn{
		tr:       tr,
		messages: make(map[uint32]*Message, 16),
		reg:      metrics,
		id:       cos.GenConnID(),
	}
	c.idStr = cos.GenMsgID()

	cb := h2codec.Callbacks{
		OnHeader:          c.onHeader,
		OnBeginFrame:      c.onBeginFrame,
		OnFrameRecv:       c.onFrameRecv,
		OnDataChunk:       c.onDataChunk,
		OnBeforeFrameSend: c.onBeforeFrameSend,
		OnFrameSend:       c.onFrameSend,
		OnFrameNotSend:    c.onFrameNotSend,
		OnStreamClose:     c.onStreamClose,
		OnGoAway:          c.onGoAway,
		ReadBody:          c.readBody,
	}
	c.sess = h2codec.NewSession(cb)

	if err := c.sess.SetLocalWindowSize(localWindowSize); err != nil {
		return nil, NewTransportError(err)
	}
	if err := c.sess.SubmitSettings([]h2codec.Setting{
		{ID: h2codec.SettingInitialWindowSize, Val: localWindowSize},
		{ID: h2codec.SettingHeaderTableSize, Val: 65536},
		{ID: h2codec.SettingEnablePush, Val: 0},
	}); err != nil {
		return nil, NewTransportError(err)
	}
	return c, nil
}

// httpOneOnlyHeaders are stripped case-insensitively from request headers
// (spec.md §4.A submit): they're HTTP/1-specific and meaningless on h2.
var httpOneOnlyHeaders = map[string]struct{}{
	"connection":         {},
	"keep-alive":         {},
	"proxy-connection":   {},
	"transfer-encoding":  {},
	"upgrade":            {},
}

// Submit inserts a new Message Record for item and assigns it a stream id
// (spec.md §4.A `submit`).
func (c *Conn) Submit(item *Item, completion CompletionCB, datum any) (*Message, error) {
	path := item.Path
	if item.IsOptionsPing {
		path = "*"
	} else if item.Query != "" {
		path = path + "?" + item.Query
	}

	headers := []h2codec.HeaderField{
		{Name: ":method", Value: item.Method},
		{Name: ":scheme", Value: item.Scheme},
		{Name: ":authority", Value: item.Host + ":" + item.Port},
		{Name: ":path", Value: path},
	}
	for _, h := range item.Headers {
		lower := toLower(h.Name)
		if _, skip := httpOneOnlyHeaders[lower]; skip {
			continue
		}
		headers = append(headers, h2codec.HeaderField{Name: h.Name, Value: h.Value})
	}

	msg := &Message{
		conn:       c,
		completion: completion,
		datum:      datum,
		id:         cos.GenMsgID(),
	}
	msg.touchStart()
	if item.Body != nil {
		msg.body = newBodyPump(msg, item.Body)
	}

	streamID, err := c.sess.SubmitRequest(headers, item.Body != nil)
	if err != nil {
		return nil, NewTransportError(err)
	}
	msg.streamID = streamID

	c.mu.Lock()
	c.messages[streamID] = msg
	c.mu.Unlock()
	return msg, nil
}

// RunUntil repeatedly executes one pump step until msg reaches target, an
// error is latched, msg is detached, or (non-blocking) a step would block
// (spec.md §4.A `run_until`).
func (c *Conn) RunUntil(msg *Message, blocking bool, target State) error {
	for {
		if msg.Err() != nil {
			return msg.Err()
		}
		if !c.messageStillOwned(msg) {
			return nil
		}
		if msg.State() >= target {
			return nil
		}
		if err := c.ioRun(msg, blocking); err != nil {
			if err == ErrWouldBlock {
				if !blocking {
					return ErrWouldBlock
				}
				continue
			}
			return err
		}
	}
}

// RunUntilReadAsync is the non-blocking variant of RunUntilRead. It runs on
// a background goroutine: whenever a non-blocking step would block, it
// sleeps for one millisecond and tries again. No readiness source is
// installed on the transport or the body stream. done is invoked once msg
// reaches READ_DATA, is detached, or has an error latched.
// priority is accepted for signature parity with spec.md §4.A and is
// otherwise unused: this engine has a single scheduling context per
// connection and no priority-ordered readiness queue.
func (c *Conn) RunUntilReadAsync(msg *Message, priority int, done func(error)) {
	go func() {
		for {
			err := c.RunUntil(msg, false, StateReadData)
			switch err {
			case nil:
				done(nil)
				return
			case ErrWouldBlock:
				time.Sleep(time.Millisecond)
				continue
			default:
				done(err)
				return
			}
		}
	}()
}

// messageStillOwned reports whether msg is still present in this
// connection's messages table.
func (c *Conn) messageStillOwned(msg *Message) bool {
	c.mu.Lock()
	_, ok := c.messages[msg.streamID]
	c.mu.Unlock()
	return ok
}

// Finished terminates msg per spec.md §4.A Lifecycle: submits RST_STREAM
// (NO_ERROR if READ_DONE reached, CANCEL otherwise), removes it from the
// messages table, invokes the completion callback (always reporting
// COMPLETE — see DESIGN.md for the Open Question decision), and releases
// owned resources.
func (c *Conn) Finished(msg *Message) {
	c.mu.Lock()
	_, ok := c.messages[msg.streamID]
	delete(c.messages, msg.streamID)
	c.mu.Unlock()
	if !ok {
		return
	}

	code := uint32(h2ErrCancel)
	if msg.State() == StateReadDone {
		code = uint32(h2ErrNoError)
	} else {
		nlog.Infof("transport: stream %d: finished before READ_DONE (state=%s); reporting COMPLETE regardless", msg.streamID, msg.State())
	}
	_ = c.sess.SubmitRstStream(msg.streamID, code)
	msg.elapsed()

	if msg.body != nil {
		msg.body.release()
	}
	if c.reg != nil {
		c.reg.MessageDone()
	}
	if msg.completion != nil {
		msg.completion(msg.datum, nil)
	}
}

const (
	h2ErrNoError = 0x0
	h2ErrCancel  = 0x8
)

// Pause / Unpause toggle the paused flag (spec.md §4.A `pause`/`unpause`).
// Misuse is diagnostic-only: the engine never crashes over it.
func (c *Conn) Pause(msg *Message) {
	ok := msg.paused.CAS(false, true)
	debug.Assert(ok, "pause: message already paused")
}

func (c *Conn) Unpause(msg *Message) {
	ok := msg.paused.CAS(true, false)
	debug.Assert(ok, "unpause: message not paused")
}

// IsReusable reports want_read||want_write and not shut down.
func (c *Conn) IsReusable() bool {
	return !c.shutdown.Load() && (c.sess.WantRead() || c.sess.WantWrite())
}

// IsOpen reports want_read||want_write, regardless of shutdown.
func (c *Conn) IsOpen() bool {
	return c.sess.WantRead() || c.sess.WantWrite()
}

// GetResponseIStream wraps the decoded response body (or an empty body for
// 204/informational-only responses) in an adapter that advances
// READ_DATA->READ_DONE on EOF (spec.md §4.A). No got-body event is emitted:
// the engine has no upper-layer event hooks.
func (c *Conn) GetResponseIStream(msg *Message) io.ReadCloser {
	if msg.decoded == nil {
		empty := io.NopCloser(eofReader{})
		if msg.State() >= StateReadDone {
			return empty
		}
		return &respIStreamAdapter{msg: msg, r: empty}
	}
	return &respIStreamAdapter{msg: msg, r: msg.decoded}
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// respIStreamAdapter notifies the Message once its underlying reader is
// exhausted, advancing READ_DATA -> READ_DONE exactly once.
type respIStreamAdapter struct {
	msg  *Message
	r    io.ReadCloser
	done bool
}

func (a *respIStreamAdapter) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if err == io.EOF && !a.done {
		a.done = true
		a.msg.advance(StateReadData, StateReadDone)
	}
	return n, err
}

func (a *respIStreamAdapter) Close() error { return a.r.Close() }

// resumeData re-arms a deferred stream's body pull (bodypump.go callers).
func (c *Conn) resumeData(streamID uint32) { c.sess.ResumeData(streamID) }

func toLower(s string) string {
	b := []byte(s)
	for i, ch := range b {
		if 'A' <= ch && ch <= 'Z' {
			b[i] = ch + ('a' - 'A')
		}
	}
	return string(b)
}
