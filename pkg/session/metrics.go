package session

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics counts session activity. All fields are atomics, so readers
// get a cheap snapshot without stopping the event loop.
type Metrics struct {
	TickCount       int64
	Broadcasts      int64
	MessagesIn      int64
	MessagesDropped int64
	PeersJoined     int64
	PeersLeft       int64
	TotalTickNs     int64
}

func (m *Metrics) IncMessageIn() { atomic.AddInt64(&m.MessagesIn, 1) }
func (m *Metrics) IncDropped()   { atomic.AddInt64(&m.MessagesDropped, 1) }
func (m *Metrics) IncJoined()    { atomic.AddInt64(&m.PeersJoined, 1) }
func (m *Metrics) IncLeft()      { atomic.AddInt64(&m.PeersLeft, 1) }
func (m *Metrics) IncBroadcast() { atomic.AddInt64(&m.Broadcasts, 1) }
func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// ConnectedPeers returns how many joined peers are currently attached.
func (m *Metrics) ConnectedPeers() int64 {
	return atomic.LoadInt64(&m.PeersJoined) - atomic.LoadInt64(&m.PeersLeft)
}

// Snapshot returns the counters as a flat map for HTTP output.
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":       tick,
		"broadcasts":       atomic.LoadInt64(&m.Broadcasts),
		"messages_in":      atomic.LoadInt64(&m.MessagesIn),
		"messages_dropped": atomic.LoadInt64(&m.MessagesDropped),
		"peers_joined":     atomic.LoadInt64(&m.PeersJoined),
		"peers_left":       atomic.LoadInt64(&m.PeersLeft),
		"avg_tick_ms":      avgMs,
	}
}

// ServeHTTP serves the counter snapshot as JSON, for a /metrics route.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
