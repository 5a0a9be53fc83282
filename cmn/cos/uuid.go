// Package cos provides low-level types and error helpers shared across the
// connection engine.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"strconv"

	"github.com/meridian-http/h2engine/cmn/atomic"
	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

// Alphabet for generating short diagnostic IDs, same alphabet shape as
// shortid.DEFAULT_ABC.
const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	sid  *shortid.Shortid
	rtie atomic.Uint32
)

func init() {
	sid = shortid.MustNew(4 /*worker*/, uuidABC, 1)
}

// GenTie returns a 3-character tie-breaker, used to disambiguate connection
// and message diagnostic ids generated within the same tick.
func GenTie() string {
	tie := rtie.Add(1)
	b0 := uuidABC[tie&0x3f]
	b1 := uuidABC[-tie&0x3f]
	b2 := uuidABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}

// GenConnID returns a short, process-unique connection id for diagnostics
// (spec.md §3: "Connection id: opaque 64-bit identifier for diagnostics").
func GenConnID() uint64 {
	return xxhash.Checksum64S([]byte(sid.MustGenerate()+GenTie()), 0)
}

// GenMsgID returns a short diagnostic id for a single request/response
// exchange, independent of its HTTP/2 stream id.
func GenMsgID() string {
	return sid.MustGenerate() + strconv.Itoa(int(rtie.Add(1)))
}
