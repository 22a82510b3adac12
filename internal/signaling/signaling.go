// Package signaling drives the offer/answer/candidate exchange of one
// two-party media session. A Manager owns the relay channel and the
// negotiation object, sequences every message against the negotiation
// object's lifecycle and republishes what happens on an Event Bus.
package signaling

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcsignal/internal/config"
	"github.com/1ureka/rtcsignal/internal/protocol"
	"github.com/1ureka/rtcsignal/internal/pubsub"
	"github.com/1ureka/rtcsignal/internal/transport"
	"github.com/1ureka/rtcsignal/internal/util"
	rtc "github.com/1ureka/rtcsignal/internal/webrtc"
)

// PeerConnection is the negotiation object the Manager drives. Every method
// may block; the Manager only calls them from its operation worker. Event
// handlers may fire on any goroutine.
type PeerConnection interface {
	CreateOffer() (protocol.SessionDescription, error)
	CreateAnswer() (protocol.SessionDescription, error)
	SetLocalDescription(protocol.SessionDescription) error
	SetRemoteDescription(protocol.SessionDescription) error
	AddICECandidate(protocol.Candidate) error
	AddTrack(webrtc.TrackLocal) error
	RemoteOffersVideo() bool
	Close() error

	OnICECandidate(func(*protocol.Candidate))
	OnStreamAdded(func(rtc.Stream))
	OnStreamRemoved(func(rtc.Stream))
	OnSignalingStateChange(func(string))
	OnICEConnectionStateChange(func(string))
}

// Channel is the Manager's connection to the relay server.
type Channel interface {
	Send(protocol.Message)
	DeliverViaPrimary(protocol.Message)
	DeliverViaSecondary(protocol.Message)
	Shutdown()
	Wait()
}

// ChannelFactory opens a Channel that reports inbound messages to onMessage.
type ChannelFactory func(cfg config.Config, onMessage func(protocol.Message)) Channel

// PeerConnectionFactory creates the negotiation object for a session.
type PeerConnectionFactory func(cfg config.Config) (PeerConnection, error)

// Option customizes a Manager.
type Option func(*Manager)

// WithChannelFactory replaces the relay WebSocket channel.
func WithChannelFactory(f ChannelFactory) Option {
	return func(m *Manager) { m.newChannel = f }
}

// WithPeerConnectionFactory replaces the pion-backed negotiation object.
func WithPeerConnectionFactory(f PeerConnectionFactory) Option {
	return func(m *Manager) { m.newPC = f }
}

func openRelayChannel(cfg config.Config, onMessage func(protocol.Message)) Channel {
	return transport.Open(context.Background(), transport.Options{
		Session:       cfg.Session,
		RelayHost:     cfg.RelayHost,
		Secure:        cfg.RelayTLS,
		RoomServerURL: cfg.RoomServerURL,
		OnMessage:     onMessage,
	})
}

func newPionPeerConnection(cfg config.Config) (PeerConnection, error) {
	return rtc.NewPeerConnection(rtc.NewAPI(), cfg)
}

// Manager is the signaling state machine of one session.
//
// All state lives on a single event-loop goroutine. Channel callbacks,
// negotiation-object events and operation completions are posted to it, so
// nothing the Manager owns is touched concurrently. The loop exits once the
// Manager reaches Closed; anything posted afterwards is dropped.
//
// Event Bus publications are delivered in order on a separate notifier
// goroutine, never on the loop, so handlers may call back into the Manager.
type Manager struct {
	cfg  config.Config
	role config.Role
	bus  *pubsub.Bus

	newChannel ChannelFactory
	newPC      PeerConnectionFactory

	ch       Channel
	ops      *worker
	notifier *worker
	events   chan func()
	loopDone chan struct{}
	done     chan struct{}
	state    atomicState

	// Owned by the event loop.
	pc                 PeerConnection
	pendingInbound     util.Queue[protocol.Message]
	deferredCandidates []protocol.Candidate
	remoteRequested    bool
}

// New creates a Manager in the Idle state and opens its relay channel.
// Messages that arrive before Start are held until the negotiation object
// exists.
func New(cfg config.Config, bus *pubsub.Bus, opts ...Option) *Manager {
	m := &Manager{
		cfg:        cfg,
		role:       cfg.Role(),
		bus:        bus,
		newChannel: openRelayChannel,
		newPC:      newPionPeerConnection,
		events:     make(chan func(), 64),
		loopDone:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.ops = newWorker()
	m.notifier = newWorker()
	m.ch = m.newChannel(cfg, func(msg protocol.Message) {
		m.post(func() { m.receive(msg) })
	})

	util.LogInfo("signaling manager for room %s as %s (%s)", cfg.Session.RoomID, cfg.Session.ClientID, m.role)
	go m.run()
	return m
}

// Role reports whether this party sends the offer or answers it.
func (m *Manager) Role() config.Role { return m.role }

// State reports the current session state.
func (m *Manager) State() State { return m.state.load() }

// Done is closed once the Manager reaches Closed and every Event Bus
// publication it made has been delivered.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Start creates the negotiation object and begins negotiating: the initiator
// creates an offer, the responder applies the offer from the join history.
// Local tracks are optional. Start returns immediately; a second call is
// logged and ignored.
func (m *Manager) Start(tracks ...webrtc.TrackLocal) {
	m.post(func() { m.start(tracks) })
}

// Shutdown notifies the peer with bye on both delivery paths, releases the
// negotiation object and closes the relay channel, then waits for in-flight
// deliveries. Idempotent, and a no-op for the notifications after a remote
// hangup. Safe to call from an Event Bus handler; it returns once the session
// is Closed, without waiting for publications still queued behind the
// handler (see Done).
func (m *Manager) Shutdown() {
	m.post(func() { m.close(true) })
	<-m.loopDone
	m.ch.Wait()
}

// ---------------------------------------------------------------------------
// Event loop
// ---------------------------------------------------------------------------

func (m *Manager) run() {
	defer close(m.done)
	for fn := range m.events {
		fn()
		if m.state.load() == Closed {
			break
		}
	}
	close(m.loopDone)

	m.notifier.finish()
	<-m.notifier.done
}

// post schedules fn on the event loop. Dropped once the loop has exited.
func (m *Manager) post(fn func()) {
	select {
	case m.events <- fn:
	case <-m.loopDone:
	}
}

// publish queues an Event Bus publication behind the ones already made.
func (m *Manager) publish(topic pubsub.Topic, payload any) {
	m.notifier.submit(func() { m.bus.Publish(topic, payload) })
}

func (m *Manager) setState(s State) {
	if m.state.load() == s {
		return
	}
	util.LogDebug("session state: %s -> %s", m.state.load(), s)
	m.state.store(s)
	m.publish(TopicSessionState, s)
}

// activate marks the session Active once media is known to flow or known to
// be absent.
func (m *Manager) activate() {
	if m.state.load() == Negotiating {
		m.setState(Active)
	}
}

func (m *Manager) start(tracks []webrtc.TrackLocal) {
	if m.state.load() == Closed {
		return
	}
	if m.pc != nil {
		util.LogError("negotiation object already exists")
		return
	}

	pc, err := m.newPC(m.cfg)
	if err != nil {
		m.fail("create peer connection", err)
		return
	}
	m.pc = pc
	m.watch(pc)

	if len(tracks) == 0 {
		util.LogInfo("not sending any stream")
	}
	for _, t := range tracks {
		if err := pc.AddTrack(t); err != nil {
			m.fail("add track", err)
		}
	}
	m.setState(Negotiating)

	if m.role == config.RoleInitiator {
		m.createOffer()
	} else {
		for _, raw := range m.cfg.Messages {
			msg, err := protocol.Decode([]byte(raw))
			if err != nil {
				util.LogError("skipping join history entry: %v", err)
				continue
			}
			m.classify(msg)
		}
	}

	if n := m.pendingInbound.Len(); n > 0 {
		util.LogDebug("draining %d message(s) received before start", n)
	}
	for _, msg := range m.pendingInbound.Drain() {
		m.classify(msg)
	}
}

// close moves the session to Closed. notify sends bye to the peer first.
func (m *Manager) close(notify bool) {
	if m.state.load() == Closed {
		return
	}
	if notify {
		m.ch.DeliverViaSecondary(protocol.Bye{})
		m.ch.Send(protocol.Bye{})
	}

	m.ops.shutdown()
	if m.pc != nil {
		if err := m.pc.Close(); err != nil {
			util.LogWarning("close peer connection: %v", err)
		}
		m.pc = nil
	}
	m.ch.Shutdown()
	m.setState(Closed)
	util.LogInfo("session closed")
}

// ---------------------------------------------------------------------------
// Negotiation operations
// ---------------------------------------------------------------------------

// negotiate runs task against pc on the operation worker and posts the
// result back to the loop. Completions for a negotiation object that has
// since been released are ignored.
func negotiate[T any](m *Manager, op string, task func(PeerConnection) (T, error), onSuccess func(T)) {
	pc := m.pc
	m.ops.submit(func() {
		res, err := task(pc)
		m.post(func() {
			if m.pc != pc {
				util.LogDebug("ignoring %s completion for a released peer connection", op)
				return
			}
			if err != nil {
				m.fail(op, err)
				return
			}
			if onSuccess != nil {
				onSuccess(res)
			}
		})
	})
}

func (m *Manager) fail(op string, err error) {
	wrapped := fmt.Errorf("%w: %s: %v", ErrNegotiationFailure, op, err)
	util.LogError("%v", wrapped)
	m.publish(TopicNegotiationFailure, NegotiationFailure{Op: op, Err: wrapped})
}

func (m *Manager) createOffer() {
	util.LogInfo("sending offer to peer")
	negotiate(m, "create offer", func(pc PeerConnection) (protocol.SessionDescription, error) {
		return pc.CreateOffer()
	}, m.setLocalAndSend)
}

func (m *Manager) createAnswer() {
	util.LogInfo("sending answer to peer")
	negotiate(m, "create answer", func(pc PeerConnection) (protocol.SessionDescription, error) {
		return pc.CreateAnswer()
	}, m.setLocalAndSend)
}

func (m *Manager) setRemote(desc protocol.SessionDescription) {
	m.remoteRequested = true
	negotiate(m, "set remote description", func(pc PeerConnection) (bool, error) {
		if err := pc.SetRemoteDescription(desc); err != nil {
			return false, err
		}
		return pc.RemoteOffersVideo(), nil
	}, func(video bool) {
		m.onRemoteDescriptionApplied(desc, video)
	})

	deferred := m.deferredCandidates
	m.deferredCandidates = nil
	for _, c := range deferred {
		m.addRemoteCandidate(c)
	}
}

func (m *Manager) addRemoteCandidate(c protocol.Candidate) {
	negotiate(m, "add ICE candidate", func(pc PeerConnection) (struct{}, error) {
		return struct{}{}, pc.AddICECandidate(c)
	}, nil)
}

func (m *Manager) onRemoteDescriptionApplied(desc protocol.SessionDescription, video bool) {
	util.LogInfo("set remote %s description", desc.Type)

	// Stream events and this completion may arrive in either order.
	if video {
		util.LogDebug("waiting for remote video")
		m.publish(TopicRemoteVideoPending, nil)
	} else {
		util.LogDebug("no remote video")
		m.publish(TopicRemoteVideoNone, nil)
		m.activate()
	}

	if desc.Type == protocol.KindOffer {
		m.createAnswer()
	}
}
