package core

// ConnectionState is the lifecycle of the single transport a handle owns.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	// StateReconnecting means the previous connection dropped and a new
	// attempt is scheduled after a backoff delay.
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// DisconnectReason explains a transition into StateDisconnected.
type DisconnectReason int

const (
	ReasonNone DisconnectReason = iota
	ReasonRefused
	ReasonTimedOut
	ReasonProtocolError
	ReasonClosedByPeer
	ReasonClosedByClient
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonRefused:
		return "refused"
	case ReasonTimedOut:
		return "timed-out"
	case ReasonProtocolError:
		return "protocol-error"
	case ReasonClosedByPeer:
		return "closed-by-peer"
	case ReasonClosedByClient:
		return "closed-by-client"
	default:
		return "unknown"
	}
}

type PresenceKind int

const (
	PresenceJoined PresenceKind = iota
	PresenceLeft
	// PresenceSync carries a count fetched out of band (REST) before any
	// presence event arrived on the connection.
	PresenceSync
)

func (k PresenceKind) String() string {
	switch k {
	case PresenceJoined:
		return "joined"
	case PresenceLeft:
		return "left"
	case PresenceSync:
		return "sync"
	default:
		return "unknown"
	}
}

// PresenceEvent reports the room's participant count as of the most
// recently received event. User is informational and may be nil.
type PresenceEvent struct {
	Kind             PresenceKind
	RoomID           RoomID
	ParticipantCount int
	User             *UserProfile
}
