/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"context"
	"sync"

	"github.com/meridian-http/h2engine/cmn/debug"
	"github.com/meridian-http/h2engine/cmn/nlog"
	"github.com/meridian-http/h2engine/transport/h2codec"
)

// bodyPump drains one request BodySource into the codec on demand
// (spec.md §4.D). It picks its path once, in newBodyPump, based on which
// capability interface src implements, and never switches afterward.
type bodyPump struct {
	msg *Message
	src BodySource

	// pollable path
	pollable PollableBodySource
	waiting  bool // a readiness source is currently installed

	// non-pollable (blocking) path
	blocking   BlockingBodySource
	mu         sync.Mutex
	buf        []byte
	eof        bool
	pumpErr    error
	inFlight   bool
	cancel     context.CancelFunc
	cancelOnce sync.Once
}

func newBodyPump(msg *Message, src BodySource) *bodyPump {
	p := &bodyPump{msg: msg, src: src}
	switch s := src.(type) {
	case PollableBodySource:
		p.pollable = s
	case BlockingBodySource:
		p.blocking = s
	default:
		debug.Assert(false, "BodySource implements neither pollable nor blocking interface")
	}
	return p
}

// pull serves h2codec.Callbacks.ReadBody for this message's stream; the
// registered callback is Conn.readBody, which dispatches here by stream id.
func (p *bodyPump) pull(buf []byte) (int, h2codec.DataAction, error) {
	if p.pollable != nil {
		return p.pullPollable(buf)
	}
	return p.pullBlocking(buf)
}

func (p *bodyPump) pullPollable(buf []byte) (int, h2codec.DataAction, error) {
	n, wouldBlock, err := p.pollable.TryRead(buf)
	if err != nil {
		p.msg.setError(NewBodyError(err))
		return 0, h2codec.DataActionTemporal, err
	}
	if wouldBlock {
		p.armReadiness()
		return 0, h2codec.DataActionDeferred, nil
	}
	if n == 0 {
		return 0, h2codec.DataActionEOF, nil
	}
	nlog.Infof("transport: stream %d: read %d request body bytes (pollable)", p.msg.streamID, n)
	return n, h2codec.DataActionBytes, nil
}

// armReadiness installs a one-shot waiter on the source's readiness
// channel that calls resume_data and detaches itself, per spec.md §4.D.
func (p *bodyPump) armReadiness() {
	if p.waiting {
		return
	}
	p.waiting = true
	ch := p.pollable.Ready()
	go func() {
		<-ch
		p.waiting = false
		p.msg.conn.resumeData(p.msg.streamID)
	}()
}

func (p *bodyPump) pullBlocking(requested []byte) (int, h2codec.DataAction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buf) > 0 {
		n := copy(requested, p.buf)
		p.buf = p.buf[n:]
		return n, h2codec.DataActionBytes, nil
	}
	if p.eof {
		return 0, h2codec.DataActionEOF, nil
	}
	if p.pumpErr != nil {
		return 0, h2codec.DataActionTemporal, p.pumpErr
	}
	if p.inFlight {
		return 0, h2codec.DataActionDeferred, nil
	}

	p.inFlight = true
	length := len(requested)
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.runAsyncRead(ctx, length)
	return 0, h2codec.DataActionDeferred, nil
}

func (p *bodyPump) runAsyncRead(ctx context.Context, length int) {
	tmp := make([]byte, length)
	n, err := p.blocking.ReadAsync(ctx, tmp)
	if ctx.Err() != nil {
		return // cancelled: message was freed, do not touch p
	}

	p.mu.Lock()
	p.inFlight = false
	switch {
	case err != nil:
		p.pumpErr = err
	case n == 0:
		p.eof = true
	default:
		p.buf = tmp[:n]
		nlog.Infof("transport: stream %d: read %d request body bytes (async)", p.msg.streamID, n)
	}
	p.mu.Unlock()

	p.msg.conn.resumeData(p.msg.streamID)
}

// release triggers the cancellation token and closes the underlying
// source; called exactly once, from Message cleanup in finished().
func (p *bodyPump) release() {
	p.cancelOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
	})
	if p.src != nil {
		_ = p.src.Close()
	}
}
