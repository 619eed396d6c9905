package session

import "github.com/InvictusNavarchus/snakegame-coop/pkg/game"

// hostEvent is anything the host loop can receive: transport frames,
// transport closures, freshly accepted connections and the host
// player's own local intents. The set is closed. A remote disconnect
// is its own event type here, never a synthesized wire message.
type hostEvent interface{ isHostEvent() }

// peerAccepted hands a freshly upgraded connection to the loop.
type peerAccepted struct{ p *peer }

// peerMessage is one raw frame read from a peer's socket.
type peerMessage struct {
	connID string
	raw    []byte
}

// peerClosed reports that a peer's transport is gone for good.
type peerClosed struct {
	connID string
	err    error
}

// directionIntent is the host player steering their own snake.
type directionIntent struct{ dir game.Direction }

// pauseIntent toggles the pause flag.
type pauseIntent struct{}

// restartIntent starts a fresh match for everyone still connected.
type restartIntent struct{}

func (peerAccepted) isHostEvent()    {}
func (peerMessage) isHostEvent()     {}
func (peerClosed) isHostEvent()      {}
func (directionIntent) isHostEvent() {}
func (pauseIntent) isHostEvent()     {}
func (restartIntent) isHostEvent()   {}
