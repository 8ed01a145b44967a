package peer

import "github.com/pion/webrtc/v3"

// Connection is the surface of a WebRTC peer connection the manager drives.
type Connection interface {
	AddTrack(track webrtc.TrackLocal) (Sender, error)
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	// OnICECandidate receives nil once gathering completes.
	OnICECandidate(fn func(candidate *webrtc.ICECandidateInit))
	OnConnectionStateChange(fn func(state webrtc.PeerConnectionState))
	OnTrack(fn func(track *webrtc.TrackRemote))
	Close() error
}

// Sender carries one outgoing track and can swap it without renegotiation.
type Sender interface {
	ReplaceTrack(track webrtc.TrackLocal) error
	Track() webrtc.TrackLocal
}

type ConnectionFactory interface {
	NewConnection() (Connection, error)
}

type ConnectionFactoryFunc func() (Connection, error)

func (f ConnectionFactoryFunc) NewConnection() (Connection, error) {
	return f()
}
