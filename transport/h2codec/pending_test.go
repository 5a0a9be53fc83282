/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package h2codec

import (
	"io"
	"testing"
)

func TestPendingReaderPartialFrame(t *testing.T) {
	var r pendingReader

	r.feed([]byte{1, 2, 3})
	buf := make([]byte, 9)
	n, err := io.ReadFull(&r, buf)
	if n != 3 || err != io.ErrUnexpectedEOF {
		t.Fatalf("got n=%d err=%v, want n=3 err=ErrUnexpectedEOF", n, err)
	}
	if !needsMoreData(err) {
		t.Fatalf("expected needsMoreData(ErrUnexpectedEOF) == true")
	}
	r.rollback()

	r.feed([]byte{4, 5, 6, 7, 8, 9})
	n, err = io.ReadFull(&r, buf)
	if err != nil || n != 9 {
		t.Fatalf("got n=%d err=%v, want n=9 err=nil", n, err)
	}
	for i, want := range []byte{1, 2, 3, 4, 5, 6, 7, 8, 9} {
		if buf[i] != want {
			t.Fatalf("byte %d: got %d want %d", i, buf[i], want)
		}
	}
	r.commit()
	if len(r.buf) != 0 {
		t.Fatalf("expected buf drained after commit, got %d bytes", len(r.buf))
	}
}

func TestPendingReaderEmptyIsMoreData(t *testing.T) {
	var r pendingReader
	buf := make([]byte, 4)
	_, err := r.Read(buf)
	if !needsMoreData(err) {
		t.Fatalf("expected an empty reader to signal needsMoreData, got %v", err)
	}
}
