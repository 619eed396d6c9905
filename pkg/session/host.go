package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/InvictusNavarchus/snakegame-coop/pkg/game"
	"github.com/InvictusNavarchus/snakegame-coop/pkg/protocol"
)

// eventQueueSize bounds the host's inbound event channel.
const eventQueueSize = 256

// Host runs the authoritative side of a session. It owns the only
// GameState that matters, drives the tick cadence and fans every
// resulting state out to all connected clients.
//
// All session state lives on one event-loop goroutine. Connection pumps
// and HTTP handlers never touch it; they post events, and the loop
// applies them one at a time, so no engine call ever observes a
// half-applied change.
type Host struct {
	role    Role
	info    PlayerInfo
	cfg     game.Settings
	log     *zap.SugaredLogger
	metrics *Metrics

	// Owned by the run goroutine.
	state *game.GameState
	peers map[string]*peer // keyed by connection id
	order []*peer          // joined peers in join order

	events   chan hostEvent
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	upgrader websocket.Upgrader

	// OnState is called from the session goroutine after every state
	// change, with the new authoritative state. The callee must treat
	// it as read-only and must not block.
	OnState func(*game.GameState)
	// OnRoster is called from the session goroutine after every join,
	// leave or restart, host seat first.
	OnRoster func([]PlayerInfo)
}

// NewHost creates a host with a fresh single-player game. The host
// itself is player zero. Start must be called before it does anything.
func NewHost(cfg game.Settings, log *zap.SugaredLogger) (*Host, error) {
	hostID := uuid.New().String()
	st, err := game.NewGame([]string{hostID}, cfg)
	if err != nil {
		return nil, err
	}
	return &Host{
		role: RoleHost,
		info: PlayerInfo{
			ID:     hostID,
			IsHost: true,
			Color:  st.Snakes[0].Color,
		},
		cfg:     cfg,
		log:     log,
		metrics: &Metrics{},
		state:   st,
		peers:   make(map[string]*peer),
		events:  make(chan hostEvent, eventQueueSize),
		done:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Co-op sessions are joined by link on a trusted network.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}, nil
}

// Info returns the host's own seat assignment.
func (h *Host) Info() PlayerInfo { return h.info }

// Role returns RoleHost.
func (h *Host) Role() Role { return h.role }

// Metrics returns the session counters. The value implements
// http.Handler for a /metrics route.
func (h *Host) Metrics() *Metrics { return h.metrics }

// Start launches the event loop and the tick cadence.
func (h *Host) Start() {
	h.wg.Add(1)
	go h.run()
}

// Stop shuts the loop down and closes every peer connection. Safe to
// call more than once.
func (h *Host) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
	h.wg.Wait()
}

// HandleWS upgrades an HTTP request into a session peer. The peer joins
// the game only once its JOIN_REQUEST goes through.
func (h *Host) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	p := newPeer(uuid.New().String(), ws)
	h.log.Infow("peer connected", "conn", p.id, "remote", r.RemoteAddr)
	select {
	case h.events <- peerAccepted{p: p}:
	case <-h.done:
		_ = ws.Close()
	}
}

// Steer points the host's own snake in dir.
func (h *Host) Steer(dir game.Direction) {
	h.post(directionIntent{dir: dir})
}

// TogglePause flips the pause flag. Only the host role carries this
// capability.
func (h *Host) TogglePause() {
	if !h.role.CanPause() {
		h.log.Warnw("pause intent ignored", "role", h.role)
		return
	}
	h.post(pauseIntent{})
}

// Restart starts a fresh match with everyone still connected.
func (h *Host) Restart() {
	h.post(restartIntent{})
}

// post hands an event to the loop, giving up once the host is stopped.
func (h *Host) post(ev hostEvent) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

// run is the event loop. It is the only goroutine that reads or writes
// h.state, h.peers and h.order.
func (h *Host) run() {
	defer h.wg.Done()
	interval := h.cfg.TickInterval
	if interval <= 0 {
		interval = game.DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.log.Infow("session open", "host", h.info.ID, "tick", interval)
	for {
		select {
		case <-h.done:
			for _, p := range h.peers {
				p.close()
			}
			h.log.Infow("session closed")
			return
		case ev := <-h.events:
			h.handleEvent(ev)
		case <-ticker.C:
			h.handleTick()
		}
	}
}

func (h *Host) handleEvent(ev hostEvent) {
	switch e := ev.(type) {
	case peerAccepted:
		h.peers[e.p.id] = e.p
		go e.p.writePump()
		go e.p.readPump(h.events, h.done)
	case peerMessage:
		h.handleFrame(e.connID, e.raw)
	case peerClosed:
		h.handlePeerClosed(e.connID, e.err)
	case directionIntent:
		h.applyDirection(h.info.ID, e.dir)
	case pauseIntent:
		h.applyPause()
	case restartIntent:
		h.applyRestart()
	}
}

// handleFrame decodes and dispatches one frame from a peer. Anything
// malformed or out of place is logged and dropped; a confused client
// cannot take the session down.
func (h *Host) handleFrame(connID string, raw []byte) {
	p, ok := h.peers[connID]
	if !ok {
		return // already pruned
	}
	h.metrics.IncMessageIn()

	env, err := protocol.Unmarshal(raw)
	if err != nil {
		h.metrics.IncDropped()
		h.log.Warnw("dropping malformed frame", "conn", connID, "err", err)
		return
	}

	switch env.Type {
	case protocol.TypeJoinRequest:
		var req protocol.JoinRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			h.metrics.IncDropped()
			h.log.Warnw("dropping bad join request", "conn", connID, "err", err)
			return
		}
		h.handleJoin(p, req)

	case protocol.TypeDirectionChange:
		var dc protocol.DirectionChange
		if err := json.Unmarshal(env.Data, &dc); err != nil {
			h.metrics.IncDropped()
			h.log.Warnw("dropping bad direction change", "conn", connID, "err", err)
			return
		}
		h.handleDirectionChange(p, dc)

	case protocol.TypeRestart:
		if p.info == nil {
			h.metrics.IncDropped()
			h.log.Warnw("restart from peer that never joined", "conn", connID)
			return
		}
		h.applyRestart()

	case protocol.TypeStateUpdate, protocol.TypeJoinAccepted, protocol.TypeJoinRejected:
		// Host-authored types have no business arriving here. Never
		// applied: the authority rule only holds if state flows one way.
		h.metrics.IncDropped()
		h.log.Warnw("dropping host-only frame from peer", "conn", connID, "type", env.Type)

	default:
		h.metrics.IncDropped()
		h.log.Warnw("dropping frame of unknown type", "conn", connID, "type", env.Type)
	}
}

// handleJoin seats a new player. On success the joiner gets its
// JOIN_ACCEPTED followed by the full state; everyone else gets the
// state too. On failure the joiner gets an explicit JOIN_REJECTED and
// the connection is closed.
func (h *Host) handleJoin(p *peer, req protocol.JoinRequest) {
	if p.info != nil {
		h.metrics.IncDropped()
		h.log.Warnw("ignoring second join", "conn", p.id, "player", p.info.ID)
		return
	}
	if req.ID == "" {
		h.reject(p, "join request carries no player id")
		return
	}
	next, err := game.AddPlayer(h.state, req.ID, h.cfg)
	if err != nil {
		h.reject(p, joinRefusalReason(err))
		return
	}
	h.state = next

	sn := next.Snake(req.ID)
	p.info = &PlayerInfo{ID: req.ID, PlayerIndex: sn.PlayerIndex, Color: sn.Color}
	h.order = append(h.order, p)
	h.metrics.IncJoined()

	accepted, err := protocol.Marshal(protocol.TypeJoinAccepted, protocol.JoinAccepted{
		ID:          req.ID,
		PlayerIndex: sn.PlayerIndex,
		Color:       sn.Color,
	})
	if err != nil {
		h.log.Errorw("encoding join acceptance failed", "err", err)
		return
	}
	p.enqueue(accepted)
	h.broadcastState()
	h.notifyRoster()
	h.log.Infow("player joined", "player", req.ID, "index", sn.PlayerIndex)
}

// reject answers a join with JOIN_REJECTED and closes the peer. The
// write pump flushes the rejection before the socket goes away.
func (h *Host) reject(p *peer, reason string) {
	h.log.Infow("rejecting join", "conn", p.id, "reason", reason)
	if frame, err := protocol.Marshal(protocol.TypeJoinRejected, protocol.JoinRejected{Reason: reason}); err == nil {
		p.enqueue(frame)
	}
	p.close()
}

func joinRefusalReason(err error) string {
	switch {
	case errors.Is(err, game.ErrGameFull):
		return "game is full"
	case errors.Is(err, game.ErrDuplicatePlayer):
		return "player id already in use"
	case errors.Is(err, game.ErrSpawnBlocked):
		return "no free spawn area"
	}
	return "join refused"
}

func (h *Host) handleDirectionChange(p *peer, dc protocol.DirectionChange) {
	if p.info == nil {
		h.metrics.IncDropped()
		h.log.Warnw("direction change before join", "conn", p.id)
		return
	}
	if h.state.Snake(dc.ID) == nil {
		h.metrics.IncDropped()
		h.log.Warnw("direction change for unknown player", "conn", p.id, "player", dc.ID)
		return
	}
	h.applyDirection(dc.ID, dc.Direction)
}

// applyDirection runs a steer through the engine and broadcasts only
// when it actually changed the state. Rejected and redundant steers
// come back as the same pointer and stay silent.
func (h *Host) applyDirection(playerID string, dir game.Direction) {
	if !dir.Valid() {
		h.metrics.IncDropped()
		h.log.Warnw("dropping invalid direction", "player", playerID, "direction", dir)
		return
	}
	next := game.ChangeDirection(h.state, playerID, dir)
	if next == h.state {
		return
	}
	h.state = next
	h.broadcastState()
}

func (h *Host) applyPause() {
	h.state = game.SetPaused(h.state, !h.state.IsPaused)
	h.broadcastState()
	h.log.Infow("pause toggled", "paused", h.state.IsPaused)
}

// applyRestart begins a fresh match for everyone still connected. Seats
// are dealt again from zero in join order, host first, so colors and
// indices may shift when players left mid-match.
func (h *Host) applyRestart() {
	ids := make([]string, 0, len(h.order)+1)
	ids = append(ids, h.info.ID)
	for _, p := range h.order {
		ids = append(ids, p.info.ID)
	}
	st, err := game.NewGame(ids, h.cfg)
	if err != nil {
		h.log.Errorw("restart failed", "err", err)
		return
	}
	h.state = st
	for _, p := range h.order {
		if sn := st.Snake(p.info.ID); sn != nil {
			p.info.PlayerIndex = sn.PlayerIndex
			p.info.Color = sn.Color
		}
	}
	h.broadcastState()
	h.notifyRoster()
	h.log.Infow("match restarted", "players", len(ids))
}

// handlePeerClosed prunes a peer whose transport died. A joined peer's
// snake is frozen in place; its body stays on the board per the game
// rules. Send failures funnel into this same path, so a broken pipe is
// handled once, not retried.
func (h *Host) handlePeerClosed(connID string, err error) {
	p, ok := h.peers[connID]
	if !ok {
		return
	}
	delete(h.peers, connID)
	p.close()

	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		h.log.Warnw("peer connection broke", "conn", connID, "err", err)
	} else {
		h.log.Infow("peer left", "conn", connID)
	}
	if p.info == nil {
		return
	}

	for i, q := range h.order {
		if q == p {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.metrics.IncLeft()

	next := game.MarkDead(h.state, p.info.ID)
	if next != h.state {
		h.state = next
		h.broadcastState()
	}
	h.notifyRoster()
	h.log.Infow("player disconnected", "player", p.info.ID)
}

// handleTick advances the match. Paused and finished games tick to the
// same pointer, so the idle cadence broadcasts nothing.
func (h *Host) handleTick() {
	start := time.Now()
	next := game.Tick(h.state)
	if next == h.state {
		return
	}
	h.state = next
	h.metrics.AddTick(time.Since(start).Nanoseconds())
	h.broadcastState()
}

// broadcastState marshals the authoritative state once and fans the
// identical frame out to every joined peer. A peer whose queue is full
// gets dropped on the spot instead of stalling the others.
func (h *Host) broadcastState() {
	frame, err := protocol.Marshal(protocol.TypeStateUpdate, h.state)
	if err != nil {
		h.log.Errorw("encoding state failed", "err", err)
		return
	}
	for _, p := range h.order {
		if !p.enqueue(frame) {
			h.log.Warnw("peer cannot keep up, closing", "player", p.info.ID)
			p.close()
		}
	}
	h.metrics.IncBroadcast()
	if h.OnState != nil {
		h.OnState(h.state)
	}
}

// notifyRoster reports current seats, host first, then joined peers in
// join order.
func (h *Host) notifyRoster() {
	if h.OnRoster == nil {
		return
	}
	roster := make([]PlayerInfo, 0, len(h.order)+1)
	roster = append(roster, h.info)
	for _, p := range h.order {
		roster = append(roster, *p.info)
	}
	h.OnRoster(roster)
}
