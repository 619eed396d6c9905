package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/InvictusNavarchus/snakegame-coop/pkg/game"
	"github.com/InvictusNavarchus/snakegame-coop/pkg/protocol"
)

// joinTimeout bounds how long a client waits for the host to answer its
// join request. The explicit rejection is the normal failure path; this
// only catches a host that never answers at all.
const joinTimeout = 10 * time.Second

// Client is the replica side of a session. It never advances the game
// itself: every STATE_UPDATE from the host replaces its copy wholesale,
// so the last received update always wins. Losing the host tears the
// whole session identity down; there is nothing worth keeping without
// one.
type Client struct {
	role     Role
	playerID string
	log      *zap.SugaredLogger

	mu     sync.RWMutex
	status Status
	info   *PlayerInfo
	state  *game.GameState

	conn      wsConn
	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	joinTimer *time.Timer

	// OnState is called from the read goroutine after every adopted
	// update. The callee must treat the state as read-only.
	OnState func(*game.GameState)
	// OnStatus is called on every lifecycle transition.
	OnStatus func(Status)
}

// NewClient creates a disconnected client with a fresh player id.
func NewClient(log *zap.SugaredLogger) *Client {
	return &Client{
		role:     RoleClient,
		playerID: uuid.New().String(),
		log:      log,
		status:   StatusDisconnected,
		done:     make(chan struct{}),
	}
}

// Role returns RoleClient.
func (c *Client) Role() Role { return c.role }

// PlayerID returns the id this client joins under.
func (c *Client) PlayerID() string { return c.playerID }

// Done closes when the session is torn down for any reason.
func (c *Client) Done() <-chan struct{} { return c.done }

// Connect dials the host, sends the join request and starts the read
// loop. It returns once the transport is up; the seat assignment
// arrives asynchronously as JOIN_ACCEPTED or JOIN_REJECTED.
func (c *Client) Connect(ctx context.Context, url string) error {
	c.setStatus(StatusConnecting)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		c.setStatus(StatusError)
		return fmt.Errorf("dial host %s: %w", url, err)
	}
	c.conn = ws

	frame, err := protocol.Marshal(protocol.TypeJoinRequest, protocol.JoinRequest{ID: c.playerID})
	if err != nil {
		_ = ws.Close()
		c.setStatus(StatusError)
		return fmt.Errorf("encode join request: %w", err)
	}
	if err := c.write(frame); err != nil {
		_ = ws.Close()
		c.setStatus(StatusError)
		return fmt.Errorf("send join request: %w", err)
	}

	c.joinTimer = time.AfterFunc(joinTimeout, c.joinTimedOut)
	go c.readLoop()
	c.log.Infow("join requested", "player", c.playerID, "host", url)
	return nil
}

// Close leaves the session. Safe to call at any point.
func (c *Client) Close() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Steer asks the host to point our snake in dir. Nothing changes
// locally; the result, if any, comes back in the next STATE_UPDATE.
func (c *Client) Steer(dir game.Direction) {
	if c.Info() == nil {
		c.log.Debugw("steer before join accepted, ignored")
		return
	}
	frame, err := protocol.Marshal(protocol.TypeDirectionChange, protocol.DirectionChange{
		ID:        c.playerID,
		Direction: dir,
	})
	if err != nil {
		c.log.Errorw("encode direction change", "err", err)
		return
	}
	if err := c.write(frame); err != nil {
		c.log.Warnw("send direction change", "err", err)
	}
}

// TogglePause is refused locally: pausing is a host capability and the
// wire has no message for a client to request it.
func (c *Client) TogglePause() {
	if !c.role.CanPause() {
		c.log.Warnw("pause intent ignored", "role", c.role)
		return
	}
}

// Restart asks the host to deal a fresh match.
func (c *Client) Restart() {
	if c.Info() == nil {
		c.log.Debugw("restart before join accepted, ignored")
		return
	}
	frame, err := protocol.Marshal(protocol.TypeRestart, protocol.Restart{})
	if err != nil {
		c.log.Errorw("encode restart", "err", err)
		return
	}
	if err := c.write(frame); err != nil {
		c.log.Warnw("send restart", "err", err)
	}
}

// State returns the latest replica, nil before the first update.
func (c *Client) State() *game.GameState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Info returns the seat assignment, nil until the join is accepted.
func (c *Client) Info() *PlayerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// Status returns the current lifecycle state.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// write serializes socket writes. The read loop never writes, so this
// mutex is the only coordination the socket needs.
func (c *Client) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// readLoop applies host frames strictly in arrival order. It is the
// only writer of the replica state.
func (c *Client) readLoop() {
	defer c.teardown()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warnw("host connection broke", "err", err)
			}
			return
		}
		c.handleFrame(raw)
	}
}

func (c *Client) handleFrame(raw []byte) {
	env, err := protocol.Unmarshal(raw)
	if err != nil {
		c.log.Warnw("dropping malformed frame", "err", err)
		return
	}

	switch env.Type {
	case protocol.TypeJoinAccepted:
		var acc protocol.JoinAccepted
		if err := json.Unmarshal(env.Data, &acc); err != nil {
			c.log.Warnw("dropping bad join acceptance", "err", err)
			return
		}
		c.stopJoinTimer()
		c.mu.Lock()
		c.info = &PlayerInfo{ID: acc.ID, IsHost: acc.IsHost, PlayerIndex: acc.PlayerIndex, Color: acc.Color}
		c.status = StatusConnected
		c.mu.Unlock()
		c.notifyStatus(StatusConnected)
		c.log.Infow("join accepted", "player", acc.ID, "index", acc.PlayerIndex, "color", acc.Color)

	case protocol.TypeJoinRejected:
		var rej protocol.JoinRejected
		if err := json.Unmarshal(env.Data, &rej); err != nil {
			c.log.Warnw("dropping bad join rejection", "err", err)
			return
		}
		c.stopJoinTimer()
		c.log.Warnw("could not join", "reason", rej.Reason)
		c.setStatus(StatusError)
		_ = c.conn.Close()

	case protocol.TypeStateUpdate:
		var st game.GameState
		if err := json.Unmarshal(env.Data, &st); err != nil {
			c.log.Warnw("dropping bad state update", "err", err)
			return
		}
		c.mu.Lock()
		c.state = &st
		c.mu.Unlock()
		if c.OnState != nil {
			c.OnState(&st)
		}

	default:
		// Client-authored and unknown types have no business here.
		c.log.Warnw("dropping unexpected frame", "type", env.Type)
	}
}

// teardown clears the whole session identity: seat, replica and
// transport. Rejections keep their error status; everything else ends
// as a plain disconnect.
func (c *Client) teardown() {
	c.stopJoinTimer()
	_ = c.conn.Close()
	c.mu.Lock()
	c.info = nil
	c.state = nil
	endStatus := c.status
	if endStatus != StatusError {
		endStatus = StatusDisconnected
	}
	c.status = endStatus
	c.mu.Unlock()
	c.notifyStatus(endStatus)
	c.closeOnce.Do(func() { close(c.done) })
	c.log.Infow("session torn down", "status", endStatus)
}

// joinTimedOut fires when the host never answered the join request.
func (c *Client) joinTimedOut() {
	if c.Info() != nil {
		return
	}
	c.log.Warnw("could not join: host did not answer", "timeout", joinTimeout)
	c.setStatus(StatusError)
	_ = c.conn.Close()
}

func (c *Client) stopJoinTimer() {
	if c.joinTimer != nil {
		c.joinTimer.Stop()
	}
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	c.notifyStatus(s)
}

func (c *Client) notifyStatus(s Status) {
	if c.OnStatus != nil {
		c.OnStatus(s)
	}
}
