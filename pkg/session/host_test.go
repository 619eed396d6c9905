package session

import (
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/InvictusNavarchus/snakegame-coop/pkg/game"
	"github.com/InvictusNavarchus/snakegame-coop/pkg/logging"
	"github.com/InvictusNavarchus/snakegame-coop/pkg/protocol"
)

// fakeConn records writes and satisfies wsConn without a network.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error) { return 0, nil, io.EOF }

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) WriteMessage(_ int, d []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, d)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func testHost(t *testing.T, maxPlayers int) *Host {
	t.Helper()
	cfg := game.Settings{
		GridWidth:          10,
		GridHeight:         10,
		FoodCount:          0,
		InitialSnakeLength: 3,
		MaxPlayers:         maxPlayers,
		TickInterval:       time.Millisecond,
	}
	h, err := NewHost(cfg, logging.Nop())
	if err != nil {
		t.Fatalf("NewHost failed: %v", err)
	}
	return h
}

// addConn registers a peer with the loop bypassed, so tests stay on a
// single goroutine and drain send queues directly.
func addConn(h *Host, connID string) *peer {
	p := newPeer(connID, &fakeConn{})
	h.peers[connID] = p
	return p
}

func mustFrame(t *testing.T, typ protocol.MessageType, payload interface{}) []byte {
	t.Helper()
	raw, err := protocol.Marshal(typ, payload)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	return raw
}

func drain(p *peer) [][]byte {
	var out [][]byte
	for {
		select {
		case f := <-p.send:
			out = append(out, f)
		default:
			return out
		}
	}
}

func envelopeOf(t *testing.T, raw []byte) protocol.Envelope {
	t.Helper()
	env, err := protocol.Unmarshal(raw)
	if err != nil {
		t.Fatalf("bad frame on the wire: %v", err)
	}
	return env
}

func peerIsClosed(p *peer) bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func dropped(h *Host) int64 {
	return h.metrics.Snapshot()["messages_dropped"].(int64)
}

func joinAs(t *testing.T, h *Host, connID, playerID string) *peer {
	t.Helper()
	p := addConn(h, connID)
	h.handleEvent(peerMessage{connID: connID, raw: mustFrame(t, protocol.TypeJoinRequest, protocol.JoinRequest{ID: playerID})})
	if p.info == nil {
		t.Fatalf("join as %s was not accepted", playerID)
	}
	drain(p)
	return p
}

func TestHostJoinFlow(t *testing.T) {
	h := testHost(t, 3)
	p := addConn(h, "conn-1")

	join := mustFrame(t, protocol.TypeJoinRequest, protocol.JoinRequest{ID: "guest"})
	h.handleEvent(peerMessage{connID: "conn-1", raw: join})

	if len(h.state.Snakes) != 2 {
		t.Fatalf("snakes = %d, want 2 after join", len(h.state.Snakes))
	}
	if p.info == nil || p.info.ID != "guest" || p.info.PlayerIndex != 1 {
		t.Fatalf("peer info = %+v", p.info)
	}

	frames := drain(p)
	if len(frames) != 2 {
		t.Fatalf("joiner got %d frames, want JOIN_ACCEPTED then STATE_UPDATE", len(frames))
	}
	env := envelopeOf(t, frames[0])
	if env.Type != protocol.TypeJoinAccepted {
		t.Fatalf("first frame = %s, want JOIN_ACCEPTED", env.Type)
	}
	var acc protocol.JoinAccepted
	if err := json.Unmarshal(env.Data, &acc); err != nil {
		t.Fatalf("decode acceptance: %v", err)
	}
	if acc.ID != "guest" || acc.IsHost || acc.PlayerIndex != 1 || acc.Color != game.PlayerColors[1] {
		t.Fatalf("acceptance = %+v", acc)
	}

	env = envelopeOf(t, frames[1])
	if env.Type != protocol.TypeStateUpdate {
		t.Fatalf("second frame = %s, want STATE_UPDATE", env.Type)
	}
	var st game.GameState
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(st.Snakes) != 2 || st.Snakes[1].ID != "guest" {
		t.Fatalf("broadcast state snakes = %+v", st.Snakes)
	}
}

func TestHostRejectsWhenFull(t *testing.T) {
	h := testHost(t, 2) // host plus one seat
	joinAs(t, h, "conn-1", "guest")

	p2 := addConn(h, "conn-2")
	h.handleEvent(peerMessage{connID: "conn-2", raw: mustFrame(t, protocol.TypeJoinRequest, protocol.JoinRequest{ID: "late"})})

	frames := drain(p2)
	if len(frames) != 1 {
		t.Fatalf("rejected joiner got %d frames, want 1", len(frames))
	}
	env := envelopeOf(t, frames[0])
	if env.Type != protocol.TypeJoinRejected {
		t.Fatalf("frame = %s, want JOIN_REJECTED", env.Type)
	}
	var rej protocol.JoinRejected
	if err := json.Unmarshal(env.Data, &rej); err != nil {
		t.Fatalf("decode rejection: %v", err)
	}
	if rej.Reason != "game is full" {
		t.Fatalf("reason = %q", rej.Reason)
	}
	if !peerIsClosed(p2) {
		t.Fatal("rejected peer was not closed")
	}
	if p2.info != nil {
		t.Fatal("rejected peer got a seat anyway")
	}
	if len(h.state.Snakes) != 2 {
		t.Fatalf("state grew to %d snakes on a rejected join", len(h.state.Snakes))
	}
}

func TestHostRejectsDuplicateID(t *testing.T) {
	h := testHost(t, 4)
	joinAs(t, h, "conn-1", "guest")

	p2 := addConn(h, "conn-2")
	h.handleEvent(peerMessage{connID: "conn-2", raw: mustFrame(t, protocol.TypeJoinRequest, protocol.JoinRequest{ID: "guest"})})

	frames := drain(p2)
	if len(frames) != 1 || envelopeOf(t, frames[0]).Type != protocol.TypeJoinRejected {
		t.Fatalf("duplicate join not rejected: %d frames", len(frames))
	}
}

func TestHostDirectionChange(t *testing.T) {
	h := testHost(t, 3)
	p := joinAs(t, h, "conn-1", "guest")

	// Guest spawns heading LEFT; DOWN is a legal turn.
	dc := mustFrame(t, protocol.TypeDirectionChange, protocol.DirectionChange{ID: "guest", Direction: game.DirDown})
	h.handleEvent(peerMessage{connID: "conn-1", raw: dc})

	if got := h.state.Snake("guest").Direction; got != game.DirDown {
		t.Fatalf("direction = %s, want DOWN", got)
	}
	if frames := drain(p); len(frames) != 1 {
		t.Fatalf("turn broadcast %d frames, want 1", len(frames))
	}

	// A reversal is rejected by the engine and must stay silent.
	rev := mustFrame(t, protocol.TypeDirectionChange, protocol.DirectionChange{ID: "guest", Direction: game.DirUp})
	h.handleEvent(peerMessage{connID: "conn-1", raw: rev})
	if frames := drain(p); len(frames) != 0 {
		t.Fatalf("rejected turn broadcast %d frames, want 0", len(frames))
	}

	// Same heading again: no-op, no broadcast.
	h.handleEvent(peerMessage{connID: "conn-1", raw: dc})
	if frames := drain(p); len(frames) != 0 {
		t.Fatalf("redundant turn broadcast %d frames, want 0", len(frames))
	}
}

func TestHostDropsBadFrames(t *testing.T) {
	h := testHost(t, 3)
	p := joinAs(t, h, "conn-1", "guest")
	before := h.state

	cases := []struct {
		name string
		raw  []byte
	}{
		{"garbage", []byte("not json")},
		{"unknown player", mustFrame(t, protocol.TypeDirectionChange, protocol.DirectionChange{ID: "ghost", Direction: game.DirDown})},
		{"invalid direction", mustFrame(t, protocol.TypeDirectionChange, protocol.DirectionChange{ID: "guest", Direction: game.Direction("DIAGONAL")})},
		{"host-only type", mustFrame(t, protocol.TypeStateUpdate, before)},
		{"unknown type", []byte(`{"type":"TELEPORT","data":{}}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wasDropped := dropped(h)
			h.handleEvent(peerMessage{connID: "conn-1", raw: tc.raw})
			if h.state != before {
				t.Fatal("state changed on a dropped frame")
			}
			if frames := drain(p); len(frames) != 0 {
				t.Fatalf("dropped frame still broadcast %d frames", len(frames))
			}
			if dropped(h) != wasDropped+1 {
				t.Fatal("drop counter did not move")
			}
		})
	}
}

func TestHostIgnoresInputBeforeJoin(t *testing.T) {
	h := testHost(t, 3)
	addConn(h, "conn-1")
	before := h.state

	dc := mustFrame(t, protocol.TypeDirectionChange, protocol.DirectionChange{ID: "guest", Direction: game.DirDown})
	h.handleEvent(peerMessage{connID: "conn-1", raw: dc})
	h.handleEvent(peerMessage{connID: "conn-1", raw: mustFrame(t, protocol.TypeRestart, protocol.Restart{})})

	if h.state != before {
		t.Fatal("unjoined peer changed the game state")
	}
}

func TestHostPeerDisconnect(t *testing.T) {
	h := testHost(t, 3)
	p1 := joinAs(t, h, "conn-1", "alpha")
	p2 := joinAs(t, h, "conn-2", "beta")
	drain(p1) // beta's join broadcast

	h.handleEvent(peerClosed{connID: "conn-1", err: io.ErrUnexpectedEOF})

	if h.state.Snake("alpha").Alive {
		t.Fatal("disconnected player's snake still alive")
	}
	if _, ok := h.peers["conn-1"]; ok {
		t.Fatal("peer record survived the disconnect")
	}
	if len(h.order) != 1 || h.order[0] != p2 {
		t.Fatalf("join order = %d peers", len(h.order))
	}
	frames := drain(p2)
	if len(frames) != 1 || envelopeOf(t, frames[0]).Type != protocol.TypeStateUpdate {
		t.Fatalf("survivor got %d frames, want one STATE_UPDATE", len(frames))
	}

	// A pending peer that never joined leaves no trace in the game.
	addConn(h, "conn-3")
	before := h.state
	h.handleEvent(peerClosed{connID: "conn-3", err: io.EOF})
	if h.state != before {
		t.Fatal("pending disconnect changed the game state")
	}
}

func TestHostTickBroadcasts(t *testing.T) {
	h := testHost(t, 3)
	p := joinAs(t, h, "conn-1", "guest")

	before := h.state
	h.handleTick()
	if h.state == before {
		t.Fatal("running tick did not advance the state")
	}
	if frames := drain(p); len(frames) != 1 {
		t.Fatalf("tick broadcast %d frames, want 1", len(frames))
	}

	// Paused games tick to the same pointer: nothing on the wire.
	h.handleEvent(pauseIntent{})
	drain(p)
	paused := h.state
	h.handleTick()
	if h.state != paused {
		t.Fatal("paused tick advanced the state")
	}
	if frames := drain(p); len(frames) != 0 {
		t.Fatalf("paused tick broadcast %d frames, want 0", len(frames))
	}
}

func TestHostPauseToggle(t *testing.T) {
	h := testHost(t, 3)
	p := joinAs(t, h, "conn-1", "guest")

	h.handleEvent(pauseIntent{})
	if !h.state.IsPaused {
		t.Fatal("pause intent did not pause")
	}
	if frames := drain(p); len(frames) != 1 {
		t.Fatalf("pause broadcast %d frames, want 1", len(frames))
	}
	h.handleEvent(pauseIntent{})
	if h.state.IsPaused {
		t.Fatal("second pause intent did not resume")
	}
}

func TestHostRestart(t *testing.T) {
	h := testHost(t, 3)
	p := joinAs(t, h, "conn-1", "guest")

	// Move the match along, then let a client ask for a fresh deal.
	h.handleTick()
	h.handleTick()
	drain(p)

	h.handleEvent(peerMessage{connID: "conn-1", raw: mustFrame(t, protocol.TypeRestart, protocol.Restart{})})

	st := h.state
	if len(st.Snakes) != 2 {
		t.Fatalf("restart dealt %d snakes, want 2", len(st.Snakes))
	}
	if st.Snakes[0].ID != h.info.ID || st.Snakes[1].ID != "guest" {
		t.Fatalf("restart order = %s, %s", st.Snakes[0].ID, st.Snakes[1].ID)
	}
	for _, sn := range st.Snakes {
		if !sn.Alive || sn.Score != 0 || len(sn.Body) != 3 {
			t.Fatalf("snake %s not freshly dealt: %+v", sn.ID, sn)
		}
	}
	if st.GameOver || st.IsPaused {
		t.Fatal("restart kept a stale flag")
	}
	if frames := drain(p); len(frames) != 1 {
		t.Fatalf("restart broadcast %d frames, want 1", len(frames))
	}
}

func TestHostOwnIntents(t *testing.T) {
	h := testHost(t, 3)

	h.handleEvent(directionIntent{dir: game.DirDown})
	if got := h.state.Snake(h.info.ID).Direction; got != game.DirDown {
		t.Fatalf("host snake direction = %s, want DOWN", got)
	}
	if !h.role.CanPause() || !h.role.CanAuthorState() {
		t.Fatal("host role lost its capabilities")
	}
}

func TestHostDropsStalledPeer(t *testing.T) {
	h := testHost(t, 3)
	p := joinAs(t, h, "conn-1", "guest")

	for p.enqueue([]byte("x")) {
		// fill the queue to the brim
	}
	h.broadcastState()
	if !peerIsClosed(p) {
		t.Fatal("stalled peer was not dropped")
	}
}

func TestHostStartStop(t *testing.T) {
	h := testHost(t, 2)
	h.Start()
	time.Sleep(5 * time.Millisecond)
	h.Stop()
	// Stop must be idempotent.
	h.Stop()
}
