package peer

import "github.com/pion/webrtc/v3"

type State int

const (
	StateNegotiating State = iota + 1
	StateConnecting
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Entry is the one connection held towards one remote participant.
type Entry struct {
	RemoteID  string
	Initiator bool
	State     State

	conn       Connection
	video      Sender
	pendingICE []webrtc.ICECandidateInit
	// SDP of the remote offer applied to conn, to spot redeliveries.
	remoteOffer string
	// Set when we kept our offer over a colliding remote one. Candidates
	// queued until the answer lands came from the remote's dropped offer.
	collided bool
}

type PeerInfo struct {
	RemoteID   string
	Initiator  bool
	State      State
	PendingICE int
}

func (e *Entry) info() PeerInfo {
	return PeerInfo{
		RemoteID:   e.RemoteID,
		Initiator:  e.Initiator,
		State:      e.State,
		PendingICE: len(e.pendingICE),
	}
}
