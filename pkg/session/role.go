package session

// Role is the participant kind. Every privileged action checks the
// role's capability first; there is no fall-through from one role to
// the other.
type Role int

const (
	RoleClient Role = iota
	RoleHost
)

func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "client"
}

// CanAuthorState reports whether this role runs the engine and may
// publish STATE_UPDATE frames. Exactly one participant per session has
// this capability.
func (r Role) CanAuthorState() bool { return r == RoleHost }

// CanPause reports whether this role may toggle the pause flag.
func (r Role) CanPause() bool { return r == RoleHost }

// Status is the connection lifecycle as surfaced to the presence layer.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// PlayerInfo is a participant's identity once its seat is established.
type PlayerInfo struct {
	ID          string `json:"id"`
	IsHost      bool   `json:"isHost"`
	PlayerIndex int    `json:"playerIndex"`
	Color       string `json:"color"`
}
