package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn is the slice of *websocket.Conn the session layer touches.
// Tests substitute an in-memory implementation.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

const (
	// sendQueueSize bounds the per-peer outbound buffer. A peer that
	// falls this many frames behind is dropped rather than allowed to
	// stall the tick.
	sendQueueSize = 64

	writeWait = 5 * time.Second
)

// peer is one remote participant as seen by the host: a transport
// handle plus, once its join went through, the seat assignment.
// The id is the connection id for its whole lifetime; the player id
// lives in info.
type peer struct {
	id   string
	info *PlayerInfo
	conn wsConn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newPeer(id string, conn wsConn) *peer {
	return &peer{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

// enqueue hands a frame to the write pump without blocking. False means
// the peer is closing or its buffer is full; either way the caller
// should treat the peer as gone.
func (p *peer) enqueue(frame []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- frame:
		return true
	default:
		return false
	}
}

// close stops the pumps. The write pump flushes what is already queued
// and then closes the socket, so a final frame (a join rejection, say)
// still reaches the peer. Safe to call more than once, from any
// goroutine.
func (p *peer) close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// writePump owns every write on this peer's socket, so frames never
// interleave. It exits on the first write error or once the peer is
// closed and the queue has drained, and it is the one that closes the
// underlying connection.
func (p *peer) writePump() {
	defer p.conn.Close()
	for {
		select {
		case <-p.done:
			for {
				select {
				case frame := <-p.send:
					_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
						return
					}
				default:
					return
				}
			}
		case frame := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}
}

// readPump forwards every inbound frame to the host loop and reports
// the terminal read error exactly once. It never touches session state
// itself. done is the host's shutdown signal; once it closes, nobody is
// listening and the pump just exits.
func (p *peer) readPump(events chan<- hostEvent, done <-chan struct{}) {
	defer p.close()
	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			select {
			case events <- peerClosed{connID: p.id, err: err}:
			case <-done:
			}
			return
		}
		select {
		case events <- peerMessage{connID: p.id, raw: raw}:
		case <-done:
			return
		}
	}
}
