/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"io"
	"sync"
)

// BodyStream is the pollable input stream of received DATA payloads
// described in spec.md §4.E. It is created lazily on the first response
// DATA frame (see callbacks.go onBeginFrame) and owned by the Message that
// it belongs to.
//
// Its defining behavior: when a consumer asks for more bytes than are
// currently buffered and more data is still expected, it re-enters the
// connection's read pump exactly once (§5 "Reentry") before serving
// whatever it has.
type BodyStream struct {
	mu       sync.Mutex
	conn     *Conn
	msg      *Message
	buf      []byte
	complete bool // END_STREAM seen; no further chunks will ever arrive
}

func newBodyStream(conn *Conn, msg *Message) *BodyStream {
	return &BodyStream{conn: conn, msg: msg}
}

// append feeds a DATA payload into the buffer; called from on_data_chunk.
func (bs *BodyStream) append(b []byte) {
	bs.mu.Lock()
	bs.buf = append(bs.buf, b...)
	bs.mu.Unlock()
}

// markComplete is called once END_STREAM is observed on a DATA frame.
func (bs *BodyStream) markComplete() {
	bs.mu.Lock()
	bs.complete = true
	bs.mu.Unlock()
}

// Read implements io.Reader with blocking reentry: if the buffer is empty
// and more data is expected, it drives the connection's blocking pump step
// once before deciding between data and EOF.
func (bs *BodyStream) Read(p []byte) (int, error) {
	return bs.read(p, true)
}

// TryRead is the non-blocking counterpart used by content sniffing and by
// non-blocking consumers; it surfaces ErrWouldBlock instead of suspending.
func (bs *BodyStream) TryRead(p []byte) (int, error) {
	return bs.read(p, false)
}

func (bs *BodyStream) read(p []byte, blocking bool) (int, error) {
	bs.mu.Lock()
	if len(bs.buf) > 0 {
		n := copy(p, bs.buf)
		bs.buf = bs.buf[n:]
		bs.mu.Unlock()
		return n, nil
	}
	if bs.complete {
		bs.mu.Unlock()
		return 0, io.EOF
	}
	bs.mu.Unlock()

	// Buffer is empty and more bytes are expected: re-enter the read pump
	// once (spec.md §5 Reentry), then serve whatever came of it.
	if err := bs.conn.reenterReadPump(blocking); err != nil {
		return 0, err
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if len(bs.buf) > 0 {
		n := copy(p, bs.buf)
		bs.buf = bs.buf[n:]
		return n, nil
	}
	if bs.complete {
		return 0, io.EOF
	}
	if blocking {
		// No more bytes will arrive on a blocking read that made no
		// progress: the codec no longer wants to read.
		return 0, io.EOF
	}
	return 0, ErrWouldBlock
}

// Close is a no-op: resources are released by the owning Message.
func (bs *BodyStream) Close() error { return nil }

// unread prepends previously-read bytes back onto the buffer; used by the
// connection's content-sniffing step (pump.go sniff), which peeks without
// consuming.
func (bs *BodyStream) unread(b []byte) {
	if len(b) == 0 {
		return
	}
	bs.mu.Lock()
	bs.buf = append(append([]byte(nil), b...), bs.buf...)
	bs.mu.Unlock()
}
