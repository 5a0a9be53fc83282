/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds per spec.md §7: Transport I/O, Codec protocol, Body source,
// Cancellation, Internal. Internal errors are never surfaced — they're
// logged and discarded at the point of discovery (state.go, message.go).

type TransportError struct{ cause error }

func (e *TransportError) Error() string { return "transport I/O: " + e.cause.Error() }
func (e *TransportError) Unwrap() error { return e.cause }

func NewTransportError(cause error) *TransportError {
	return &TransportError{cause: errors.WithStack(cause)}
}

type ProtocolError struct {
	StreamID uint32
	Code     uint32
	reason   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("stream %d: http2 protocol error %d: %s", e.StreamID, e.Code, e.reason)
}

func NewProtocolError(streamID uint32, code uint32, reason string) *ProtocolError {
	return &ProtocolError{StreamID: streamID, Code: code, reason: reason}
}

type BodyError struct{ cause error }

func (e *BodyError) Error() string { return "request body source: " + e.cause.Error() }
func (e *BodyError) Unwrap() error { return e.cause }

func NewBodyError(cause error) *BodyError {
	return &BodyError{cause: errors.WithStack(cause)}
}

type CancelledError struct{ Reason string }

func (e *CancelledError) Error() string { return "cancelled: " + e.Reason }

func NewCancelledError(reason string) *CancelledError {
	return &CancelledError{Reason: reason}
}

// ErrWouldBlock is returned by a non-blocking pump step that made no
// progress because the transport (or a pollable body source) isn't ready.
var ErrWouldBlock = errors.New("would block")
