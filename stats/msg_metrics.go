// Package stats holds the optional, upper-layer-owned counter collections
// that the connection engine only ever increments (spec.md §9 "Metrics":
// "the engine only increments fields"). MsgMetrics mirrors the shape of the
// teacher's transport.Stats (atomic Num/Offset/Size counters), generalized
// to per-message header/body byte counts in each direction; ConnMetrics
// exposes connection-level counters (frames and bytes in each direction,
// GOAWAYs, finished messages) via Prometheus so a process hosting many
// connections can scrape one registry.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"github.com/meridian-http/h2engine/cmn/atomic"
	"github.com/prometheus/client_golang/prometheus"
)

// MsgMetrics is borrowed by a single Message for its lifetime; the upper
// layer allocates it (or leaves it nil — it's optional per spec.md §3) and
// reads it after the message completes.
type MsgMetrics struct {
	RequestHeaderBytes  atomic.Int64
	RequestBodyBytes    atomic.Int64 // bytes handed to wrote_body_data
	RequestBodySize     atomic.Int64 // N in "request body of N bytes" (spec.md §8)
	ResponseHeaderBytes atomic.Int64
	ResponseBodyBytes   atomic.Int64
}

// ConnMetrics aggregates counters across every message on one connection
// and exposes them as Prometheus counters so an embedding process can
// register one vector per connection id.
type ConnMetrics struct {
	connID string

	framesRecv   *prometheus.CounterVec
	framesSent   *prometheus.CounterVec
	bytesRecv    prometheus.Counter
	bytesSent    prometheus.Counter
	goaways      prometheus.Counter
	messagesDone prometheus.Counter
}

func NewConnMetrics(reg prometheus.Registerer, connID string) *ConnMetrics {
	cm := &ConnMetrics{
		connID: connID,
		framesRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "h2engine",
			Subsystem: "conn",
			Name:      "frames_received_total",
		}, []string{"conn", "type"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "h2engine",
			Subsystem: "conn",
			Name:      "frames_sent_total",
		}, []string{"conn", "type"}),
		bytesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "h2engine",
			Subsystem:   "conn",
			Name:        "bytes_received_total",
			ConstLabels: prometheus.Labels{"conn": connID},
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "h2engine",
			Subsystem:   "conn",
			Name:        "bytes_sent_total",
			ConstLabels: prometheus.Labels{"conn": connID},
		}),
		goaways: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "h2engine",
			Subsystem:   "conn",
			Name:        "goaway_total",
			ConstLabels: prometheus.Labels{"conn": connID},
		}),
		messagesDone: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "h2engine",
			Subsystem:   "conn",
			Name:        "messages_finished_total",
			ConstLabels: prometheus.Labels{"conn": connID},
		}),
	}
	if reg != nil {
		reg.MustRegister(cm.framesRecv, cm.framesSent, cm.bytesRecv, cm.bytesSent, cm.goaways, cm.messagesDone)
	}
	return cm
}

func (cm *ConnMetrics) FrameRecv(frameType string, n int) {
	if cm == nil {
		return
	}
	cm.framesRecv.WithLabelValues(cm.connID, frameType).Inc()
	cm.bytesRecv.Add(float64(n))
}

func (cm *ConnMetrics) FrameSent(frameType string, n int) {
	if cm == nil {
		return
	}
	cm.framesSent.WithLabelValues(cm.connID, frameType).Inc()
	cm.bytesSent.Add(float64(n))
}

func (cm *ConnMetrics) GoAway() {
	if cm == nil {
		return
	}
	cm.goaways.Inc()
}

func (cm *ConnMetrics) MessageDone() {
	if cm == nil {
		return
	}
	cm.messagesDone.Inc()
}
