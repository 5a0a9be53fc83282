/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"errors"
	"io"
)

// Backend is the upper-layer I/O backend contract named in spec.md §6.
// Conn implements it. Stolen and Run are unreachable on this backend:
// HTTP/2 connections are never upgraded away from, and callers always
// drive progress through RunUntilRead / Skip rather than a blocking
// full-pump call.
type Backend interface {
	Destroy() error
	Finished(msg *Message)
	Stolen() (Transport, error)
	SendItem(item *Item, completion CompletionCB, datum any) (*Message, error)
	GetResponseIStream(msg *Message) io.ReadCloser
	Pause(msg *Message)
	Unpause(msg *Message)
	IsPaused(msg *Message) bool
	Run() error
	RunUntilRead(msg *Message, blocking bool) error
	RunUntilReadAsync(msg *Message, priority int, done func(error))
	Skip(msg *Message)
	IsOpen() bool
	InProgress(msg *Message) bool
	IsReusable() bool
}

var (
	// ErrUnreachable marks an operation the spec names but that this
	// backend never exercises (spec.md §6).
	ErrUnreachable = errors.New("transport: operation unreachable on the http2 backend")
)

var _ Backend = (*Conn)(nil)

// Destroy tears down the connection: closes the transport. Any messages
// still in the table are left for the caller to Finished individually.
func (c *Conn) Destroy() error {
	c.shutdown.Store(true)
	return c.tr.Close()
}

// Stolen is unreachable: HTTP/2 connections are never handed off to
// another protocol (no Upgrade on h2).
func (c *Conn) Stolen() (Transport, error) { return nil, ErrUnreachable }

// SendItem is the Backend-shaped alias of Submit.
func (c *Conn) SendItem(item *Item, completion CompletionCB, datum any) (*Message, error) {
	return c.Submit(item, completion, datum)
}

// IsPaused reports the message's paused flag.
func (c *Conn) IsPaused(msg *Message) bool { return msg.IsPaused() }

// Run (blocking full-pump) is unreachable: callers drive progress via
// RunUntilRead / Skip instead (spec.md §6).
func (c *Conn) Run() error { return ErrUnreachable }

// RunUntilRead runs until the message's response has at least reached the
// point a consumer can start reading it (headers observed and, if there is
// a body, its first bytes classified).
func (c *Conn) RunUntilRead(msg *Message, blocking bool) error {
	return c.RunUntil(msg, blocking, StateReadData)
}

// Skip abandons msg without consuming the rest of its response, releasing
// it the same way Finished does.
func (c *Conn) Skip(msg *Message) {
	msg.cancelled.Store(true)
	c.Finished(msg)
}

// InProgress reports whether msg is still owned by this connection, i.e.
// has not yet been passed to Finished/Skip.
func (c *Conn) InProgress(msg *Message) bool {
	return c.messageStillOwned(msg)
}
