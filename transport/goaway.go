/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import "github.com/meridian-http/h2engine/cmn/nlog"

// onGoAway fans a GOAWAY out to every affected message and sets the
// connection's shutdown flag (spec.md §4.C, §3 "Shutdown flag"). A message
// is affected if its stream id exceeds lastStreamID (the peer never saw
// it) or if it hasn't reached READ_DONE yet, regardless of stream id
// (still mid-flight when the connection is going away) — both clauses are
// unconditional and independent of each other.
//
// TODO: restart unfinished messages on a fresh connection instead of just
// failing them (spec.md §9 Open Question — left as a hook, not implemented).
func (c *Conn) onGoAway(lastStreamID uint32, code uint32, debugData []byte) {
	if c.reg != nil {
		c.reg.GoAway()
	}
	c.shutdown.Store(true)
	nlog.Warningf("transport: conn %s: GOAWAY last_stream=%d code=%d debug=%q", c.idStr, lastStreamID, code, debugData)

	c.mu.Lock()
	affected := make([]*Message, 0, len(c.messages))
	for id, msg := range c.messages {
		if id > lastStreamID || msg.State() < StateReadDone {
			affected = append(affected, msg)
		}
	}
	c.mu.Unlock()

	for _, msg := range affected {
		msg.setError(NewProtocolError(msg.streamID, code, "connection going away"))
	}
}
