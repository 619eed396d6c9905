// Package discovery makes sessions findable on the local network.
// Hosts multicast a small JSON announcement once a second; browsers
// join the same group and keep a short-lived table of what they hear.
// A session that stops announcing ages out on its own.
package discovery

import (
	"net"
	"sort"
	"strconv"
	"sync"
	"time"
)

// DefaultGroup is the multicast group announcements travel on.
const DefaultGroup = "239.192.0.4:9192"

const (
	announceInterval = time.Second
	entryLifetime    = 5 * time.Second
	pruneInterval    = time.Second
	maxPacketSize    = 65535
	readPollInterval = 100 * time.Millisecond
)

// Announcement is the one-packet description of a session. Port is the
// host's websocket listen port; the sender's IP comes from the packet
// itself.
type Announcement struct {
	Name       string `json:"name"`
	Port       int    `json:"port"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
	CanJoin    bool   `json:"canJoin"`
}

// Game is one live session as last heard on the group.
type Game struct {
	Addr       string // host:port of the session's websocket endpoint
	Name       string
	Players    int
	MaxPlayers int
	CanJoin    bool
	LastSeen   time.Time
}

// tracker keeps the sessions heard recently, keyed by their websocket
// address. Entries not refreshed within ttl are pruned.
type tracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]Game
}

func newTracker(ttl time.Duration) *tracker {
	return &tracker{ttl: ttl, entries: make(map[string]Game)}
}

// update records one announcement and reports whether the session was
// new to us.
func (t *tracker) update(ip net.IP, ann Announcement, now time.Time) bool {
	key := net.JoinHostPort(ip.String(), strconv.Itoa(ann.Port))
	t.mu.Lock()
	defer t.mu.Unlock()
	_, known := t.entries[key]
	t.entries[key] = Game{
		Addr:       key,
		Name:       ann.Name,
		Players:    ann.Players,
		MaxPlayers: ann.MaxPlayers,
		CanJoin:    ann.CanJoin,
		LastSeen:   now,
	}
	return !known
}

// prune drops entries older than ttl and reports whether anything went.
func (t *tracker) prune(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := false
	for key, g := range t.entries {
		if now.Sub(g.LastSeen) > t.ttl {
			delete(t.entries, key)
			changed = true
		}
	}
	return changed
}

// games returns the live entries sorted by address.
func (t *tracker) games() []Game {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Game, 0, len(t.entries))
	for _, g := range t.entries {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}
