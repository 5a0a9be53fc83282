/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// fakeServer is a minimal HTTP/2 peer good enough to exercise one
// connection's request/response round trip: it consumes the client
// preface and every frame the engine writes, and answers the first
// request it sees with a 200 response carrying a short body.
type fakeServer struct {
	conn net.Conn
	fr   *http2.Framer
	body string
}

func newFakeServer(conn net.Conn, body string) *fakeServer {
	fs := &fakeServer{conn: conn, body: body}
	fs.fr = http2.NewFramer(conn, conn)
	fs.fr.ReadMetaHeaders = hpack.NewDecoder(4096, nil)
	return fs
}

func (fs *fakeServer) run(errc chan<- error) {
	preface := make([]byte, len(http2.ClientPreface))
	if _, err := io.ReadFull(fs.conn, preface); err != nil {
		errc <- err
		return
	}
	if string(preface) != http2.ClientPreface {
		errc <- fmt.Errorf("unexpected client preface: %q", preface)
		return
	}

	for {
		f, err := fs.fr.ReadFrame()
		if err != nil {
			errc <- err
			return
		}
		mh, ok := f.(*http2.MetaHeadersFrame)
		if !ok {
			continue // WINDOW_UPDATE, SETTINGS, etc: nothing to act on in this test
		}

		if err := writeResponse(fs.fr, mh.StreamID, fs.body); err != nil {
			errc <- err
			return
		}
		errc <- nil
		return
	}
}

// writeResponse encodes and writes a minimal 200 response with body on fr.
func writeResponse(fr *http2.Framer, streamID uint32, body string) error {
	var hb bytes.Buffer
	enc := hpack.NewEncoder(&hb)
	_ = enc.WriteField(hpack.HeaderField{Name: ":status", Value: "200"})
	_ = enc.WriteField(hpack.HeaderField{Name: "content-type", Value: "text/plain"})
	if err := fr.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: hb.Bytes(),
		EndHeaders:    true,
	}); err != nil {
		return err
	}
	return fr.WriteData(streamID, true, []byte(body))
}

func TestConnRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	srv := newFakeServer(serverConn, "hello, world")
	srvDone := make(chan error, 1)
	go srv.run(srvDone)

	c, err := NewConn(clientConn, nil)
	if err != nil {
		t.Fatalf("NewConn: %v", err)
	}

	var completed bool
	msg, err := c.Submit(&Item{
		Method: "GET",
		Scheme: "https",
		Host:   "example.com",
		Port:   "443",
		Path:   "/",
	}, func(_ any, _ error) { completed = true }, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	runDone := make(chan error, 1)
	go func() { runDone <- c.RunUntil(msg, true, StateReadData) }()

	select {
	case err := <-srvDone:
		if err != nil {
			t.Fatalf("fake server: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for fake server to answer")
	}

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("RunUntil: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for RunUntil to reach READ_DATA")
	}

	if msg.status != 200 {
		t.Fatalf("got status %d, want 200", msg.status)
	}

	out := c.GetResponseIStream(msg)
	body, err := io.ReadAll(out)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	if string(body) != "hello, world" {
		t.Fatalf("got body %q, want %q", body, "hello, world")
	}
	if msg.State() != StateReadDone {
		t.Fatalf("expected READ_DONE after EOF, got %s", msg.State())
	}

	c.Finished(msg)
	if !completed {
		t.Fatalf("expected completion callback to have fired")
	}
	if c.InProgress(msg) {
		t.Fatalf("expected message removed from the messages table after Finished")
	}
}
