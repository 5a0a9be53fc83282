/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package h2codec

import (
	"bytes"
	"testing"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// peer is a minimal server-side harness that decodes whatever the Session
// wrote, so the test can assert on the resulting frames.
type peer struct {
	fr *http2.Framer
}

func newPeer(r *bytes.Reader, w *bytes.Buffer) *peer {
	p := &peer{fr: http2.NewFramer(w, r)}
	p.fr.ReadMetaHeaders = hpack.NewDecoder(4096, nil)
	return p
}

func TestSessionSubmitRequestAndReceiveResponse(t *testing.T) {
	var gotHeaders []HeaderField
	var gotStatus string
	var gotBody []byte
	var gotEndStream bool

	cb := Callbacks{
		OnHeader: func(streamID uint32, h HeaderField) {
			if h.Name == ":status" {
				gotStatus = h.Value
				return
			}
			gotHeaders = append(gotHeaders, h)
		},
		OnFrameRecv: func(info FrameInfo) {
			if info.Type == FrameData {
				gotEndStream = info.EndStream
			}
		},
		OnDataChunk: func(streamID uint32, b []byte) bool {
			gotBody = append(gotBody, b...)
			return false
		},
	}
	sess := NewSession(cb)

	streamID, err := sess.SubmitRequest([]HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "example.com:443"},
		{Name: ":path", Value: "/"},
	}, false)
	if err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	if streamID != 1 {
		t.Fatalf("expected first client stream id 1, got %d", streamID)
	}

	// Replay what the session staged for the wire through a real Framer
	// acting as the peer, to confirm it is well-formed HTTP/2.
	out, err := sess.MemSend()
	if err != nil {
		t.Fatalf("MemSend: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected staged HEADERS bytes, got none")
	}
	if !bytes.HasPrefix(out, []byte(http2.ClientPreface)) {
		t.Fatalf("expected staged output to start with the HTTP/2 client preface")
	}
	afterPreface := append([]byte(nil), out[len(http2.ClientPreface):]...)
	r := bytes.NewReader(afterPreface)
	var discard bytes.Buffer
	srv := newPeer(r, &discard)
	f, err := srv.fr.ReadFrame()
	if err != nil {
		t.Fatalf("peer ReadFrame: %v", err)
	}
	mh, ok := f.(*http2.MetaHeadersFrame)
	if !ok {
		t.Fatalf("expected MetaHeadersFrame, got %T", f)
	}
	if mh.StreamID != 1 || !mh.StreamEnded() {
		t.Fatalf("expected stream 1 with END_STREAM, got id=%d ended=%v", mh.StreamID, mh.StreamEnded())
	}
	sess.ConsumeSend(len(out))

	// Now feed a synthetic response back through MemRecv.
	var respBuf bytes.Buffer
	respFr := http2.NewFramer(&respBuf, nil)
	var hb bytes.Buffer
	respEnc := hpack.NewEncoder(&hb)
	_ = respEnc.WriteField(hpack.HeaderField{Name: ":status", Value: "200"})
	_ = respEnc.WriteField(hpack.HeaderField{Name: "content-type", Value: "text/plain"})
	if err := respFr.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      1,
		BlockFragment: hb.Bytes(),
		EndHeaders:    true,
	}); err != nil {
		t.Fatalf("encode response headers: %v", err)
	}
	if err := respFr.WriteData(1, true, []byte("hello")); err != nil {
		t.Fatalf("encode response data: %v", err)
	}

	if _, err := sess.MemRecv(respBuf.Bytes()); err != nil {
		t.Fatalf("MemRecv: %v", err)
	}

	if gotStatus != "200" {
		t.Fatalf("expected status 200, got %q", gotStatus)
	}
	if len(gotHeaders) != 1 || gotHeaders[0].Name != "content-type" {
		t.Fatalf("expected one content-type header, got %+v", gotHeaders)
	}
	if string(gotBody) != "hello" {
		t.Fatalf("expected body %q, got %q", "hello", gotBody)
	}
	if !gotEndStream {
		t.Fatalf("expected END_STREAM observed on the DATA frame")
	}
}

func TestSessionMemRecvPartialFrameNeedsMoreData(t *testing.T) {
	sess := NewSession(Callbacks{})

	var buf bytes.Buffer
	fr := http2.NewFramer(&buf, nil)
	if err := fr.WriteSettings(); err != nil {
		t.Fatalf("encode settings: %v", err)
	}
	full := buf.Bytes()

	// Feed one byte at a time; the session must never error on a partial
	// frame, only once the full frame has arrived should it ack it.
	for i := 0; i < len(full)-1; i++ {
		if _, err := sess.MemRecv(full[i : i+1]); err != nil {
			t.Fatalf("MemRecv byte %d: %v", i, err)
		}
	}
	if _, err := sess.MemRecv(full[len(full)-1:]); err != nil {
		t.Fatalf("MemRecv final byte: %v", err)
	}

	out, err := sess.MemSend()
	if err != nil {
		t.Fatalf("MemSend: %v", err)
	}
	if len(out) <= len(http2.ClientPreface) {
		t.Fatalf("expected a SETTINGS ack to be staged after the client preface, got %d bytes", len(out))
	}
	var discard bytes.Buffer
	f, err := newPeer(bytes.NewReader(out[len(http2.ClientPreface):]), &discard).fr.ReadFrame()
	if err != nil {
		t.Fatalf("peer ReadFrame: %v", err)
	}
	if sf, ok := f.(*http2.SettingsFrame); !ok || !sf.IsAck() {
		t.Fatalf("expected a SETTINGS ack after the client preface, got %T", f)
	}
}
