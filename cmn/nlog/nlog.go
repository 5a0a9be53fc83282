// Package nlog is the engine's logger: leveled, timestamped, with a thin
// buffer in front of the underlying writer so hot paths (per-frame
// callbacks) don't pay a syscall per line.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevChar = [...]byte{sevInfo: 'I', sevWarn: 'W', sevErr: 'E'}

var (
	mu  sync.Mutex
	out = bufio.NewWriterSize(os.Stderr, 4096)

	// ToStderr, when true, bypasses buffering (tests, short-lived CLIs).
	ToStderr = true
)

func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	Flush()
	out = bufio.NewWriterSize(w, 4096)
}

func log(sev severity, depth int, format string, args ...any) {
	var line strings.Builder
	line.WriteByte(sevChar[sev])
	line.WriteByte(' ')
	line.WriteString(time.Now().UTC().Format("15:04:05.000000"))
	line.WriteByte(' ')
	if _, fn, ln, ok := runtime.Caller(depth + 2); ok {
		if idx := strings.LastIndexByte(fn, '/'); idx >= 0 {
			fn = fn[idx+1:]
		}
		line.WriteString(fn)
		line.WriteByte(':')
		line.WriteString(strconv.Itoa(ln))
		line.WriteByte(' ')
	}
	if format == "" {
		fmt.Fprintln(&line, args...)
	} else {
		fmt.Fprintf(&line, format, args...)
		if !strings.HasSuffix(line.String(), "\n") {
			line.WriteByte('\n')
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if ToStderr {
		os.Stderr.WriteString(line.String())
		return
	}
	out.WriteString(line.String())
	if sev >= sevWarn || out.Buffered() > 2048 {
		out.Flush()
	}
}

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

// Flush forces any buffered log lines out. No-op when ToStderr is set.
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	out.Flush()
}
