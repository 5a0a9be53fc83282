/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"
)

// runMany reads the first n requests it sees on fs, then answers each with a
// 200 and a body naming the request's stream id, and returns. All n requests
// are read before any response is written: net.Pipe is unbuffered, and the
// engine writes every staged HEADERS frame in one blocking Write, so a
// response written earlier would never be read.
func (fs *fakeServer) runMany(n int, errc chan<- error) {
	preface := make([]byte, len(http2.ClientPreface))
	if _, err := io.ReadFull(fs.conn, preface); err != nil {
		errc <- err
		return
	}
	if string(preface) != http2.ClientPreface {
		errc <- fmt.Errorf("unexpected client preface: %q", preface)
		return
	}

	ids := make([]uint32, 0, n)
	for len(ids) < n {
		f, err := fs.fr.ReadFrame()
		if err != nil {
			errc <- err
			return
		}
		mh, ok := f.(*http2.MetaHeadersFrame)
		if !ok {
			continue
		}
		ids = append(ids, mh.StreamID)
	}
	for _, id := range ids {
		if err := writeResponse(fs.fr, id, fmt.Sprintf("ok-%d", id)); err != nil {
			errc <- err
			return
		}
	}
	errc <- nil
}

// TestConnConcurrentGets drives 100 in-flight GETs over a single connection
// (spec.md §8 scenario 6). One goroutine owns the pump — this engine, like
// its teacher, is single-threaded-per-connection: all I/O funnels through
// one scheduling context (see Conn.RunUntilReadAsync and pump.go). The
// genuinely concurrent part is waiting on the 100 independent completions,
// which is what errgroup fans out here.
func TestConnConcurrentGets(t *testing.T) {
	const n = 100

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	srv := newFakeServer(serverConn, "")
	srvErrc := make(chan error, 1)
	go srv.runMany(n, srvErrc)

	c, err := NewConn(clientConn, nil)
	if err != nil {
		t.Fatalf("NewConn: %v", err)
	}

	msgs := make([]*Message, n)
	for i := 0; i < n; i++ {
		msg, err := c.Submit(&Item{
			Method: "GET",
			Scheme: "https",
			Host:   "example.com",
			Port:   "443",
			Path:   fmt.Sprintf("/%d", i),
		}, nil, nil)
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		msgs[i] = msg
	}

	pumpDone := make(chan error, 1)
	go func() {
		for _, m := range msgs {
			if err := c.RunUntil(m, true, StateReadData); err != nil {
				pumpDone <- err
				return
			}
		}
		pumpDone <- nil
	}()

	select {
	case err := <-srvErrc:
		if err != nil {
			t.Fatalf("fake server: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for fake server to answer all requests")
	}

	select {
	case err := <-pumpDone:
		if err != nil {
			t.Fatalf("pump: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for all messages to reach READ_DATA")
	}

	var g errgroup.Group
	for _, m := range msgs {
		m := m
		g.Go(func() error {
			want := fmt.Sprintf("ok-%d", m.streamID)
			body, err := io.ReadAll(c.GetResponseIStream(m))
			if err != nil {
				return fmt.Errorf("stream %d: read body: %w", m.streamID, err)
			}
			if string(body) != want {
				return fmt.Errorf("stream %d: got body %q, want %q", m.streamID, body, want)
			}
			if m.status != 200 {
				return fmt.Errorf("stream %d: got status %d, want 200", m.streamID, m.status)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for _, m := range msgs {
		c.Finished(m)
		if c.InProgress(m) {
			t.Fatalf("stream %d: expected removal from messages table after Finished", m.streamID)
		}
	}
}
