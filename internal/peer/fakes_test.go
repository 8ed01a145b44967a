package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/immxrtalbeast/meetroom/internal/relay"
	"github.com/pion/webrtc/v3"
)

var errNoRemoteDescription = errors.New("remote description not set")

type fakeSender struct {
	mu    sync.Mutex
	track webrtc.TrackLocal
}

func (s *fakeSender) ReplaceTrack(track webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track = track
	return nil
}

func (s *fakeSender) Track() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

type fakeConn struct {
	id int

	mu         sync.Mutex
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	senders    []*fakeSender
	closed     bool
	setRemotes int
	onICE      func(*webrtc.ICECandidateInit)
	onState    func(webrtc.PeerConnectionState)
}

func (c *fakeConn) AddTrack(track webrtc.TrackLocal) (Sender, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &fakeSender{track: track}
	c.senders = append(c.senders, s)
	return s, nil
}

func (c *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", c.id)}, nil
}

func (c *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		return webrtc.SessionDescription{}, errNoRemoteDescription
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", c.id)}, nil
}

func (c *fakeConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = &desc
	return nil
}

func (c *fakeConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote = &desc
	c.setRemotes++
	return nil
}

func (c *fakeConn) LocalDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *fakeConn) RemoteDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

func (c *fakeConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		return errNoRemoteDescription
	}
	c.candidates = append(c.candidates, candidate)
	return nil
}

func (c *fakeConn) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

func (c *fakeConn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *fakeConn) OnTrack(func(*webrtc.TrackRemote)) {}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	fn := c.onState
	c.mu.Unlock()
	// pion reports closed synchronously from Close.
	if fn != nil {
		fn(webrtc.PeerConnectionStateClosed)
	}
	return nil
}

func (c *fakeConn) fireState(s webrtc.PeerConnectionState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	fn(s)
}

func (c *fakeConn) gather(candidate string) {
	c.mu.Lock()
	fn := c.onICE
	c.mu.Unlock()
	fn(&webrtc.ICECandidateInit{Candidate: candidate})
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) remoteCandidates() []webrtc.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), c.candidates...)
}

func (c *fakeConn) remoteSets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setRemotes
}

func (c *fakeConn) videoTrack() webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.senders {
		if t := s.Track(); t != nil && t.Kind() == webrtc.RTPCodecTypeVideo {
			return t
		}
	}
	return nil
}

type fakeFactory struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (f *fakeFactory) NewConnection() (Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeConn{id: len(f.conns) + 1}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeFactory) conn(i int) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[i]
}

type fakeSignaler struct {
	mu     sync.Mutex
	sent   []relay.Event
	calls  []string
	closed bool
}

func (s *fakeSignaler) Send(_ context.Context, ev relay.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, ev)
	s.calls = append(s.calls, "send:"+string(ev.Type))
	return nil
}

func (s *fakeSignaler) Leave(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "leave")
	return nil
}

func (s *fakeSignaler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "close")
	s.closed = true
	return nil
}

func (s *fakeSignaler) events(t relay.EventType) []relay.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []relay.Event
	for _, ev := range s.sent {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (s *fakeSignaler) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type fakeMedia struct {
	tracks  []webrtc.TrackLocal
	mu      sync.Mutex
	stopped bool
}

func (m *fakeMedia) Tracks() []webrtc.TrackLocal { return m.tracks }

func (m *fakeMedia) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *fakeMedia) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}
