// Package decode builds the content-decoder chain that sits between a
// transport.BodyStream and the decoded response body a consumer reads
// (spec.md §3 "Decoded response body stream"). It is a thin, additive
// layer: SPEC_FULL.md's domain-stack section gives klauspost/compress a
// home here since the engine's wire codec (h2codec) has no other place to
// exercise a content-transfer-coding library.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package decode

import (
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/meridian-http/h2engine/cmn/nlog"
)

// Chain wraps src according to the comma-separated Content-Encoding header
// value, innermost coding first (RFC 9110 §8.4). An unrecognized or empty
// coding name passes bytes through unchanged rather than erroring — a
// client engine should surface the raw bytes over dropping the response.
func Chain(src io.ReadCloser, contentEncoding string) io.ReadCloser {
	if contentEncoding == "" {
		return src
	}
	codings := strings.Split(contentEncoding, ",")
	cur := src
	for i := len(codings) - 1; i >= 0; i-- {
		coding := strings.ToLower(strings.TrimSpace(codings[i]))
		switch coding {
		case "gzip", "x-gzip":
			gz, err := gzip.NewReader(cur)
			if err != nil {
				nlog.Warningf("decode: gzip: %v", err)
				return cur
			}
			cur = &gzipCloser{Reader: gz, under: cur}
		case "identity", "":
			// no-op
		default:
			nlog.Warningf("decode: unsupported content-encoding %q, passing through", coding)
			return cur
		}
	}
	return cur
}

// gzipCloser closes both the gzip reader and the underlying stream it
// wraps, since *gzip.Reader.Close does not close its source.
type gzipCloser struct {
	*gzip.Reader
	under io.ReadCloser
}

func (g *gzipCloser) Close() error {
	err := g.Reader.Close()
	if uerr := g.under.Close(); err == nil {
		err = uerr
	}
	return err
}
