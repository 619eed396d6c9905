// Package protocol defines the JSON frames spoken between a session
// host and its clients.
//
// Every frame is an envelope: {"type":"...","data":{...}}.
//
//	Client → Host:
//	  JOIN_REQUEST     {"type":"JOIN_REQUEST","data":{"id":"<uuid>"}}
//	  DIRECTION_CHANGE {"type":"DIRECTION_CHANGE","data":{"id":"<uuid>","direction":"LEFT"}}
//	  RESTART          {"type":"RESTART","data":{}}
//	Host → Client:
//	  JOIN_ACCEPTED    {"type":"JOIN_ACCEPTED","data":{"id":"<uuid>","isHost":false,"playerIndex":1,"color":"#3498db"}}
//	  JOIN_REJECTED    {"type":"JOIN_REJECTED","data":{"reason":"game is full"}}
//	  STATE_UPDATE     {"type":"STATE_UPDATE","data":{...complete GameState...}}
//
// STATE_UPDATE always carries the complete state, never a delta. A
// client that misses one update is fully repaired by the next.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/InvictusNavarchus/snakegame-coop/pkg/game"
)

// MessageType discriminates envelopes.
type MessageType string

const (
	TypeJoinRequest     MessageType = "JOIN_REQUEST"
	TypeJoinAccepted    MessageType = "JOIN_ACCEPTED"
	TypeJoinRejected    MessageType = "JOIN_REJECTED"
	TypeStateUpdate     MessageType = "STATE_UPDATE"
	TypeDirectionChange MessageType = "DIRECTION_CHANGE"
	TypeRestart         MessageType = "RESTART"
)

// Envelope is the outer frame of every message. Data stays raw until
// the receiver knows which payload type to decode it into.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// JoinRequest announces a joining player's self-chosen id.
type JoinRequest struct {
	ID string `json:"id"`
}

// JoinAccepted carries the seat assignment for an accepted player.
type JoinAccepted struct {
	ID          string `json:"id"`
	IsHost      bool   `json:"isHost"`
	PlayerIndex int    `json:"playerIndex"`
	Color       string `json:"color"`
}

// JoinRejected tells a joiner why it was turned away. The host closes
// the connection right after sending it.
type JoinRejected struct {
	Reason string `json:"reason"`
}

// DirectionChange asks the host to steer the identified snake.
type DirectionChange struct {
	ID        string         `json:"id"`
	Direction game.Direction `json:"direction"`
}

// Restart asks the host to start a fresh match with everyone present.
type Restart struct{}

// Marshal encodes payload and wraps it in an envelope of type t.
func Marshal(t MessageType, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Data: data})
}

// Unmarshal decodes the outer envelope, leaving Data raw.
func Unmarshal(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
