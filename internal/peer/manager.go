package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/immxrtalbeast/meetroom/internal/domain"
	"github.com/immxrtalbeast/meetroom/internal/relay"
	"github.com/immxrtalbeast/meetroom/lib/logger/sl"
	"github.com/pion/webrtc/v3"
	"golang.org/x/sync/errgroup"
)

const (
	callbackBuffer = 256
	outboxBuffer   = 256
)

// Signaler is the manager's view of a relay binding.
type Signaler interface {
	// Send broadcasts an event to the room.
	Send(ctx context.Context, ev relay.Event) error
	// Leave announces this participant's departure the way the binding does it.
	Leave(ctx context.Context) error
	Close() error
}

// LocalMedia is the captured outgoing media. Stop ends every track.
type LocalMedia interface {
	Tracks() []webrtc.TrackLocal
	Stop()
}

// Handlers observe the session. They run on the manager goroutine: they must
// not block and must not call back into the Manager.
type Handlers struct {
	OnPeerState   func(remoteID string, state State)
	OnPeerRemoved func(remoteID string)
	OnRemoteTrack func(remoteID string, track *webrtc.TrackRemote)
	OnMembers     func(count int, members []string)
	OnChat        func(msg relay.ChatMessage)
	OnScreenShare func(userID string, active bool)
}

type Config struct {
	SelfID   string
	Factory  ConnectionFactory
	Signaler Signaler
	Retry    RetryPolicy
	Handlers Handlers
	Log      *slog.Logger
}

type parkedOffer struct {
	offer relay.Signal
	ice   []webrtc.ICECandidateInit
}

// Manager keeps exactly one connection per remote participant of one room.
// All state lives on the goroutine started by Run; exported methods hand work
// to it and wait for the result.
type Manager struct {
	self     string
	factory  ConnectionFactory
	signaler Signaler
	retry    RetryPolicy
	handlers Handlers
	log      *slog.Logger

	ops     chan func()
	events  chan func()
	outbox  chan relay.Event
	quit    chan struct{}
	stopped chan struct{}
	sent    chan struct{}

	entries  map[string]*Entry
	waiting  map[string]bool
	parked   map[string]*parkedOffer
	retries  map[string]*retryTimer
	attempts map[string]int
	media    LocalMedia
	camera   webrtc.TrackLocal
	screen   webrtc.TrackLocal
	left     bool
}

func NewManager(cfg Config) (*Manager, error) {
	if err := domain.ValidateParticipantID(cfg.SelfID); err != nil {
		return nil, err
	}
	if cfg.Factory == nil {
		return nil, errors.New("connection factory is required")
	}
	if cfg.Signaler == nil {
		return nil, errors.New("signaler is required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		self:     cfg.SelfID,
		factory:  cfg.Factory,
		signaler: cfg.Signaler,
		retry:    cfg.Retry,
		handlers: cfg.Handlers,
		log:      log.With(slog.String("self", cfg.SelfID)),
		ops:      make(chan func()),
		events:   make(chan func(), callbackBuffer),
		outbox:   make(chan relay.Event, outboxBuffer),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		sent:     make(chan struct{}),
		entries:  make(map[string]*Entry),
		waiting:  make(map[string]bool),
		parked:   make(map[string]*parkedOffer),
		retries:  make(map[string]*retryTimer),
		attempts: make(map[string]int),
	}, nil
}

// Run drives the manager until Leave completes or ctx is cancelled. Call it
// once.
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.sendLoop(gctx)
		return nil
	})
	g.Go(func() error {
		return m.loop(gctx)
	})
	return g.Wait()
}

func (m *Manager) loop(ctx context.Context) error {
	defer close(m.stopped)
	for {
		select {
		case op := <-m.ops:
			op()
		case op := <-m.events:
			op()
		case <-m.quit:
			return nil
		case <-ctx.Done():
			m.teardown()
			return ctx.Err()
		}
	}
}

// sendLoop keeps relay I/O off the manager goroutine while preserving the
// order events were emitted in.
func (m *Manager) sendLoop(ctx context.Context) {
	defer close(m.sent)
	for {
		select {
		case ev, ok := <-m.outbox:
			if !ok {
				return
			}
			if err := m.signaler.Send(ctx, ev); err != nil {
				m.log.Warn("signal send failed", slog.String("event", string(ev.Type)), sl.Err(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	op := func() { result <- fn() }

	select {
	case m.ops <- op:
	case <-m.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-m.stopped:
		select {
		case err := <-result:
			return err
		default:
			return ErrClosed
		}
	}
}

// post queues a connection callback. It never blocks the caller, which may
// be the manager goroutine itself when a Close fires a state change.
func (m *Manager) post(fn func()) {
	select {
	case m.events <- fn:
	case <-m.stopped:
	default:
		go func() {
			select {
			case m.events <- fn:
			case <-m.stopped:
			}
		}()
	}
}

func (m *Manager) emit(t relay.EventType, payload any) {
	if m.left {
		return
	}
	ev, err := relay.NewEvent(t, payload)
	if err != nil {
		m.log.Error("encode outgoing event", slog.String("event", string(t)), sl.Err(err))
		return
	}
	select {
	case m.outbox <- ev:
	default:
		m.log.Warn("signaling queue full, dropping event", slog.String("event", string(t)))
	}
}

// SetLocalMedia supplies the outgoing tracks. Nothing is negotiated before
// this: membership and offers seen earlier are replayed now.
func (m *Manager) SetLocalMedia(ctx context.Context, media LocalMedia) error {
	return m.do(ctx, func() error {
		if m.left {
			return ErrClosed
		}
		if m.media != nil {
			return ErrMediaAlreadySet
		}
		tracks := media.Tracks()
		if len(tracks) == 0 {
			return ErrNoLocalMedia
		}

		m.media = media
		for _, track := range tracks {
			if track.Kind() == webrtc.RTPCodecTypeVideo {
				m.camera = track
				break
			}
		}

		m.log.Info("local media ready",
			slog.Int("tracks", len(tracks)),
			slog.Int("waiting_peers", len(m.waiting)),
			slog.Int("parked_offers", len(m.parked)),
		)

		for remote, initiator := range m.waiting {
			delete(m.waiting, remote)
			m.connect(remote, initiator)
		}
		for remote, p := range m.parked {
			delete(m.parked, remote)
			m.handleOffer(p.offer)
			for _, c := range p.ice {
				m.handleCandidate(relay.Signal{From: remote, To: m.self, Candidate: &c})
			}
		}
		return nil
	})
}

// HandleEvent applies one relay event. Duplicates and reordering are expected.
func (m *Manager) HandleEvent(ctx context.Context, ev relay.Event) error {
	return m.do(ctx, func() error {
		if m.left {
			return ErrClosed
		}
		return m.dispatch(ev)
	})
}

func (m *Manager) dispatch(ev relay.Event) error {
	switch ev.Type {
	case relay.EventRoomCreated:
		var p relay.RoomCreated
		if err := ev.Decode(&p); err != nil {
			return err
		}
		m.members(p.UserCount, p.AllUsers)

	case relay.EventUserJoined:
		var p relay.UserJoined
		if err := ev.Decode(&p); err != nil {
			return err
		}
		m.members(p.UserCount, p.AllUsers)
		if p.UserID == m.self {
			// We are the newcomer: we call everybody already there.
			for _, remote := range p.ExistingUsers {
				m.connect(remote, true)
			}
			return nil
		}
		if len(p.AllUsers) > 0 && !slices.Contains(p.AllUsers, m.self) {
			// They joined ahead of us. Our own user-joined lists them as
			// existing and we call them then.
			m.log.Debug("participant joined before us", slog.String("remote", p.UserID))
			return nil
		}
		m.connect(p.UserID, false)

	case relay.EventUserLeft:
		var p relay.UserLeft
		if err := ev.Decode(&p); err != nil {
			return err
		}
		m.members(p.UserCount, p.AllUsers)
		if p.UserID != "" && p.UserID != m.self {
			m.removePeer(p.UserID)
		}

	case relay.EventOffer, relay.EventAnswer, relay.EventICECandidate:
		var sig relay.Signal
		if err := ev.Decode(&sig); err != nil {
			return err
		}
		if !accept(m.self, sig) {
			return nil
		}
		switch ev.Type {
		case relay.EventOffer:
			if sig.Offer != nil {
				m.handleOffer(sig)
			}
		case relay.EventAnswer:
			if sig.Answer != nil {
				m.handleAnswer(sig)
			}
		case relay.EventICECandidate:
			if sig.Candidate != nil {
				m.handleCandidate(sig)
			}
		}

	case relay.EventChatMessage:
		var msg relay.ChatMessage
		if err := ev.Decode(&msg); err != nil {
			return err
		}
		if m.handlers.OnChat != nil {
			m.handlers.OnChat(msg)
		}

	case relay.EventScreenShareStart, relay.EventScreenShareStop:
		var p relay.ScreenShare
		if err := ev.Decode(&p); err != nil {
			return err
		}
		if p.UserID != m.self && m.handlers.OnScreenShare != nil {
			m.handlers.OnScreenShare(p.UserID, ev.Type == relay.EventScreenShareStart)
		}

	default:
		m.log.Debug("ignoring event", slog.String("event", string(ev.Type)))
	}
	return nil
}

func (m *Manager) members(count int, members []string) {
	if m.handlers.OnMembers != nil {
		m.handlers.OnMembers(count, members)
	}
}

// connect makes sure an entry towards remote exists or will exist once media
// is available. It is a no-op for a tracked peer.
func (m *Manager) connect(remote string, initiator bool) {
	if remote == "" || remote == m.self {
		return
	}
	if _, ok := m.entries[remote]; ok {
		return
	}
	if _, ok := m.retries[remote]; ok {
		return
	}
	if m.media == nil {
		m.waiting[remote] = m.waiting[remote] || initiator
		return
	}
	if _, err := m.createPeer(remote, initiator); err != nil {
		m.failed(remote, err)
	}
}

// createPeer returns the existing entry for remote or builds one with every
// local track attached. An initiator sends its offer right away.
func (m *Manager) createPeer(remote string, initiator bool) (*Entry, error) {
	if e, ok := m.entries[remote]; ok {
		return e, nil
	}

	conn, err := m.factory.NewConnection()
	if err != nil {
		return nil, negotiationErr("create connection", remote, err)
	}

	e := &Entry{
		RemoteID:  remote,
		Initiator: initiator,
		State:     StateNegotiating,
		conn:      conn,
	}
	for _, track := range m.media.Tracks() {
		sender, err := conn.AddTrack(track)
		if err != nil {
			_ = conn.Close()
			return nil, negotiationErr("add track", remote, err)
		}
		if track == m.camera {
			e.video = sender
		}
	}
	if m.screen != nil && e.video != nil {
		if err := e.video.ReplaceTrack(m.screen); err != nil {
			m.log.Warn("screen track substitution failed", slog.String("remote", remote), sl.Err(err))
		}
	}

	conn.OnICECandidate(func(c *webrtc.ICECandidateInit) {
		m.post(func() { m.onLocalCandidate(remote, conn, c) })
	})
	conn.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		m.post(func() { m.onConnectionState(remote, conn, s) })
	})
	conn.OnTrack(func(track *webrtc.TrackRemote) {
		m.post(func() { m.onRemoteTrack(remote, conn, track) })
	})

	m.entries[remote] = e
	m.log.Debug("peer created", slog.String("remote", remote), slog.Bool("initiator", initiator))
	m.notify(e)

	if initiator {
		if err := m.sendOffer(e); err != nil {
			delete(m.entries, remote)
			_ = conn.Close()
			return nil, err
		}
	}
	return e, nil
}

func (m *Manager) sendOffer(e *Entry) error {
	offer, err := e.conn.CreateOffer()
	if err != nil {
		return negotiationErr("create offer", e.RemoteID, err)
	}
	if err := e.conn.SetLocalDescription(offer); err != nil {
		return negotiationErr("set local offer", e.RemoteID, err)
	}
	m.emit(relay.EventOffer, relay.Signal{From: m.self, To: e.RemoteID, Offer: &offer})
	return nil
}

func (m *Manager) handleOffer(sig relay.Signal) {
	remote := sig.From
	log := m.log.With(slog.String("op", "peer.manager.offer"), slog.String("remote", remote))

	if m.media == nil {
		p, ok := m.parked[remote]
		if !ok {
			p = &parkedOffer{}
			m.parked[remote] = p
		}
		p.offer = sig
		log.Debug("offer parked until local media is ready")
		return
	}

	if e, ok := m.entries[remote]; ok {
		hasRemote := e.conn.RemoteDescription() != nil
		switch {
		case hasRemote && e.remoteOffer == sig.Offer.SDP:
			log.Debug("duplicate offer ignored")
			return
		case !hasRemote && e.Initiator && e.conn.LocalDescription() != nil:
			// Both sides offered. The lower id keeps its offer.
			if m.self < remote {
				log.Debug("offer collision, keeping ours")
				e.pendingICE = nil
				e.collided = true
				return
			}
			log.Debug("offer collision, yielding")
			m.closeEntry(e, StateClosed)
		case hasRemote:
			log.Info("remote restarted negotiation")
			m.closeEntry(e, StateClosed)
		}
	}

	m.cancelRetry(remote)
	e, err := m.createPeer(remote, false)
	if err != nil {
		m.failed(remote, err)
		return
	}
	if err := m.answer(e, *sig.Offer); err != nil {
		m.fail(e, err)
	}
}

func (m *Manager) answer(e *Entry, offer webrtc.SessionDescription) error {
	if err := e.conn.SetRemoteDescription(offer); err != nil {
		return negotiationErr("set remote offer", e.RemoteID, err)
	}
	e.remoteOffer = offer.SDP
	m.flushICE(e)

	ans, err := e.conn.CreateAnswer()
	if err != nil {
		return negotiationErr("create answer", e.RemoteID, err)
	}
	if err := e.conn.SetLocalDescription(ans); err != nil {
		return negotiationErr("set local answer", e.RemoteID, err)
	}

	m.setState(e, StateConnecting)
	m.emit(relay.EventAnswer, relay.Signal{From: m.self, To: e.RemoteID, Answer: &ans})
	return nil
}

func (m *Manager) handleAnswer(sig relay.Signal) {
	remote := sig.From
	log := m.log.With(slog.String("op", "peer.manager.answer"), slog.String("remote", remote))

	e, ok := m.entries[remote]
	if !ok {
		log.Debug("answer for unknown peer dropped")
		return
	}
	if !e.Initiator || e.conn.LocalDescription() == nil {
		log.Warn("answer without a pending local offer ignored")
		return
	}
	if e.conn.RemoteDescription() != nil {
		log.Debug("duplicate answer ignored")
		return
	}

	if err := e.conn.SetRemoteDescription(*sig.Answer); err != nil {
		m.fail(e, negotiationErr("set remote answer", remote, err))
		return
	}
	if e.collided {
		if n := len(e.pendingICE); n > 0 {
			log.Debug("dropping candidates of the abandoned remote offer", slog.Int("count", n))
		}
		e.pendingICE = nil
		e.collided = false
	}
	m.flushICE(e)
	m.setState(e, StateConnecting)
}

func (m *Manager) handleCandidate(sig relay.Signal) {
	remote := sig.From

	e, ok := m.entries[remote]
	if !ok {
		if p, parked := m.parked[remote]; parked {
			p.ice = append(p.ice, *sig.Candidate)
			return
		}
		m.log.Debug("candidate for unknown peer dropped", slog.String("remote", remote))
		return
	}
	if e.conn.RemoteDescription() == nil {
		e.pendingICE = append(e.pendingICE, *sig.Candidate)
		return
	}
	if err := e.conn.AddICECandidate(*sig.Candidate); err != nil {
		m.log.Warn("add remote candidate failed", slog.String("remote", remote), sl.Err(err))
	}
}

func (m *Manager) flushICE(e *Entry) {
	queued := e.pendingICE
	e.pendingICE = nil
	for _, c := range queued {
		if err := e.conn.AddICECandidate(c); err != nil {
			m.log.Warn("add queued candidate failed", slog.String("remote", e.RemoteID), sl.Err(err))
		}
	}
}

func (m *Manager) onLocalCandidate(remote string, conn Connection, c *webrtc.ICECandidateInit) {
	if c == nil {
		return
	}
	e, ok := m.entries[remote]
	if !ok || e.conn != conn {
		return
	}
	m.emit(relay.EventICECandidate, relay.Signal{From: m.self, To: remote, Candidate: c})
}

func (m *Manager) onConnectionState(remote string, conn Connection, s webrtc.PeerConnectionState) {
	e, ok := m.entries[remote]
	if !ok || e.conn != conn {
		return
	}

	switch s {
	case webrtc.PeerConnectionStateConnecting:
		if e.State == StateNegotiating {
			m.setState(e, StateConnecting)
		}
	case webrtc.PeerConnectionStateConnected:
		delete(m.attempts, remote)
		m.setState(e, StateConnected)
		m.log.Info("peer connected", slog.String("remote", remote))
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		m.fail(e, negotiationErr("connect", remote, fmt.Errorf("connection %s", s)))
	}
}

func (m *Manager) onRemoteTrack(remote string, conn Connection, track *webrtc.TrackRemote) {
	e, ok := m.entries[remote]
	if !ok || e.conn != conn {
		return
	}
	if m.handlers.OnRemoteTrack != nil {
		m.handlers.OnRemoteTrack(remote, track)
	}
}

// fail tears the entry down and schedules a retry.
func (m *Manager) fail(e *Entry, err error) {
	m.closeEntry(e, StateFailed)
	m.failed(e.RemoteID, err)
}

func (m *Manager) failed(remote string, err error) {
	m.log.Warn("peer connection failed", slog.String("remote", remote), sl.Err(err))
	m.scheduleRetry(remote)
}

func (m *Manager) removePeer(remote string) {
	m.cancelRetry(remote)
	delete(m.attempts, remote)
	delete(m.waiting, remote)
	delete(m.parked, remote)
	if e, ok := m.entries[remote]; ok {
		m.closeEntry(e, StateClosed)
		m.log.Info("peer left", slog.String("remote", remote))
	}
}

func (m *Manager) closeEntry(e *Entry, final State) {
	delete(m.entries, e.RemoteID)
	e.pendingICE = nil
	if err := e.conn.Close(); err != nil {
		m.log.Debug("close connection", slog.String("remote", e.RemoteID), sl.Err(err))
	}
	m.setState(e, final)
	if m.handlers.OnPeerRemoved != nil {
		m.handlers.OnPeerRemoved(e.RemoteID)
	}
}

func (m *Manager) setState(e *Entry, s State) {
	if e.State == s {
		return
	}
	e.State = s
	m.notify(e)
}

func (m *Manager) notify(e *Entry) {
	if m.handlers.OnPeerState != nil {
		m.handlers.OnPeerState(e.RemoteID, e.State)
	}
}

// StartScreenShare substitutes track for the camera on every connection.
// Negotiation state is untouched.
func (m *Manager) StartScreenShare(ctx context.Context, track webrtc.TrackLocal) error {
	return m.do(ctx, func() error {
		if m.left {
			return ErrClosed
		}
		if m.camera == nil {
			return ErrNoVideoTrack
		}
		m.screen = track
		m.replaceVideo(track)
		m.emit(relay.EventScreenShareStart, relay.ScreenShare{UserID: m.self})
		return nil
	})
}

func (m *Manager) StopScreenShare(ctx context.Context) error {
	return m.do(ctx, func() error {
		if m.left {
			return ErrClosed
		}
		if m.screen == nil {
			return nil
		}
		m.screen = nil
		m.replaceVideo(m.camera)
		m.emit(relay.EventScreenShareStop, relay.ScreenShare{UserID: m.self})
		return nil
	})
}

func (m *Manager) replaceVideo(track webrtc.TrackLocal) {
	for remote, e := range m.entries {
		if e.video == nil {
			continue
		}
		if err := e.video.ReplaceTrack(track); err != nil {
			m.log.Warn("replace video track failed", slog.String("remote", remote), sl.Err(err))
		}
	}
}

func (m *Manager) SendChat(ctx context.Context, text string) error {
	return m.do(ctx, func() error {
		if m.left {
			return ErrClosed
		}
		msg, err := domain.NewChatMessage(m.self, text)
		if err != nil {
			return err
		}
		m.emit(relay.EventChatMessage, relay.ChatMessage{
			UserID:    msg.UserID,
			Message:   msg.Message,
			Timestamp: msg.Timestamp,
		})
		return nil
	})
}

// Snapshot reports every current entry by remote id.
func (m *Manager) Snapshot(ctx context.Context) (map[string]PeerInfo, error) {
	var out map[string]PeerInfo
	err := m.do(ctx, func() error {
		out = make(map[string]PeerInfo, len(m.entries))
		for remote, e := range m.entries {
			out[remote] = e.info()
		}
		return nil
	})
	return out, err
}

// Leave tears down every connection, stops local media, announces the
// departure and closes the relay, in that order. Run returns afterwards.
func (m *Manager) Leave(ctx context.Context) error {
	const op = "peer.manager.leave"

	err := m.do(ctx, func() error {
		if m.left {
			return ErrClosed
		}
		m.teardown()
		close(m.outbox)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	select {
	case <-m.sent:
	case <-ctx.Done():
	}

	var errs []error
	if err := m.signaler.Leave(ctx); err != nil {
		errs = append(errs, fmt.Errorf("announce leave: %w", err))
	}
	if err := m.signaler.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close relay: %w", err))
	}
	close(m.quit)

	if len(errs) > 0 {
		return fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}
	m.log.Info("left room")
	return nil
}

func (m *Manager) teardown() {
	if m.left {
		return
	}
	for remote := range m.retries {
		m.cancelRetry(remote)
	}
	for _, e := range m.entries {
		m.closeEntry(e, StateClosed)
	}
	if m.media != nil {
		m.media.Stop()
	}
	m.left = true
	clear(m.waiting)
	clear(m.parked)
	clear(m.attempts)
}
