package client

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/peerline/peerline/model"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type (
	sentSignal struct {
		roomID string
		to     string
		sig    model.Signal
	}

	respondCall struct {
		accepted bool
		roomID   string
		toUser   string
		reason   string
	}

	endCall struct {
		roomID string
		toUser string
		reason string
	}

	fakeSignaler struct {
		mx      sync.Mutex
		joinAck model.JoinAck
		joinErr error

		joins    []string
		leaves   []string
		signals  []sentSignal
		invites  []model.Invite
		responds []respondCall
		ends     []endCall
	}
)

func (s *fakeSignaler) JoinRoom(_ context.Context, roomID string) (model.JoinAck, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.joins = append(s.joins, roomID)
	return s.joinAck, s.joinErr
}

func (s *fakeSignaler) LeaveRoom(_ context.Context, roomID, _ string) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.leaves = append(s.leaves, roomID)
	return nil
}

func (s *fakeSignaler) Signal(_ context.Context, roomID, to string, sig model.Signal) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.signals = append(s.signals, sentSignal{roomID: roomID, to: to, sig: sig})
	return nil
}

func (s *fakeSignaler) Invite(_ context.Context, _ string, inv model.Invite) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.invites = append(s.invites, inv)
	return nil
}

func (s *fakeSignaler) Respond(_ context.Context, accepted bool, roomID, toUser, reason string) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.responds = append(s.responds, respondCall{accepted: accepted, roomID: roomID, toUser: toUser, reason: reason})
	return nil
}

func (s *fakeSignaler) End(_ context.Context, roomID, toUser, reason string) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.ends = append(s.ends, endCall{roomID: roomID, toUser: toUser, reason: reason})
	return nil
}

func (s *fakeSignaler) sentSignals() []sentSignal {
	s.mx.Lock()
	defer s.mx.Unlock()
	out := make([]sentSignal, len(s.signals))
	copy(out, s.signals)
	return out
}

func (s *fakeSignaler) respondCalls() []respondCall {
	s.mx.Lock()
	defer s.mx.Unlock()
	out := make([]respondCall, len(s.responds))
	copy(out, s.responds)
	return out
}

func (s *fakeSignaler) endCalls() []endCall {
	s.mx.Lock()
	defer s.mx.Unlock()
	out := make([]endCall, len(s.ends))
	copy(out, s.ends)
	return out
}

func (s *fakeSignaler) joinCount() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.joins)
}

func (s *fakeSignaler) leaveCount() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.leaves)
}

type fakeLink struct {
	mx            sync.Mutex
	offers        []bool
	appliedOffers []model.Signal
	appliedAnsw   []model.Signal
	rollbacks     int
	candidates    []model.Signal
	closed        int
	onICE         func(model.Signal)
	onState       func(webrtc.PeerConnectionState)
}

func (l *fakeLink) CreateOffer(iceRestart bool) (model.Signal, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.offers = append(l.offers, iceRestart)
	return model.Signal{Type: model.SignalOffer, SDP: "local-offer", ICERestart: iceRestart}, nil
}

func (l *fakeLink) ApplyOffer(sig model.Signal) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.appliedOffers = append(l.appliedOffers, sig)
	return nil
}

func (l *fakeLink) CreateAnswer() (model.Signal, error) {
	return model.Signal{Type: model.SignalAnswer, SDP: "local-answer"}, nil
}

func (l *fakeLink) ApplyAnswer(sig model.Signal) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.appliedAnsw = append(l.appliedAnsw, sig)
	return nil
}

func (l *fakeLink) Rollback() error {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.rollbacks++
	return nil
}

func (l *fakeLink) AddICECandidate(sig model.Signal) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.candidates = append(l.candidates, sig)
	return nil
}

func (l *fakeLink) OnICECandidate(fn func(model.Signal)) { l.onICE = fn }

func (l *fakeLink) OnStateChange(fn func(webrtc.PeerConnectionState)) { l.onState = fn }

func (l *fakeLink) Close() error {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.closed++
	return nil
}

func (l *fakeLink) closedCount() int {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.closed
}

func (l *fakeLink) offerFlags() []bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	out := make([]bool, len(l.offers))
	copy(out, l.offers)
	return out
}

func (l *fakeLink) addedCandidates() []model.Signal {
	l.mx.Lock()
	defer l.mx.Unlock()
	out := make([]model.Signal, len(l.candidates))
	copy(out, l.candidates)
	return out
}

type fakeMedia struct {
	mx    sync.Mutex
	err   error
	stops int
}

func (m *fakeMedia) Acquire(_ context.Context, _ string) (*LocalMedia, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &LocalMedia{
		stop: func() {
			m.mx.Lock()
			m.stops++
			m.mx.Unlock()
		},
	}, nil
}

func (m *fakeMedia) stopCount() int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.stops
}

func newTestController(sig *fakeSignaler, media *fakeMedia, link *fakeLink) *Controller {
	logger := zerolog.Nop()
	return NewController(Config{
		Signaler: sig,
		Media:    media,
		NewLink: func(_ []webrtc.TrackLocal) (PeerLink, error) {
			return link, nil
		},
		Logger:          &logger,
		CallTimeout:     300 * time.Millisecond,
		EndedDisplay:    time.Second,
		RestartDebounce: 20 * time.Millisecond,
	})
}

func sigEnv(roomID, from string, sig model.Signal) model.Envelope {
	return model.Envelope{
		Type:    model.TypeSignal,
		Room:    roomID,
		From:    from,
		Payload: model.RawPayload(sig),
	}
}

func incomingEnv(roomID, from string) model.Envelope {
	return model.Envelope{
		Type:    model.TypeIncomingCall,
		Room:    roomID,
		From:    from,
		Payload: model.RawPayload(model.CallEvent{ChatID: "chat", FromUser: from, CallKind: model.CallKindVoice}),
	}
}

func waitState(t *testing.T, c *Controller, want State) string {
	t.Helper()
	var reason string
	require.Eventually(t, func() bool {
		st, r := c.State()
		reason = r
		return st == want
	}, time.Second, 5*time.Millisecond, "state never reached %s", want)
	return reason
}

func TestStartCallInitiatorOffersWhenPeerPresent(t *testing.T) {
	sig := &fakeSignaler{joinAck: model.JoinAck{
		OK:          true,
		IsInitiator: true,
		Peers:       []model.Member{{ConnID: "p1", UserID: "bob"}},
	}}
	link := &fakeLink{}
	c := newTestController(sig, &fakeMedia{}, link)

	require.NoError(t, c.StartCall(context.Background(), "R", "chat", "bob", model.CallKindVoice))

	st, _ := c.State()
	assert.Equal(t, StateCalling, st)
	require.Len(t, sig.invites, 1)
	assert.Equal(t, "bob", sig.invites[0].ToUser)

	sent := sig.sentSignals()
	require.Len(t, sent, 1)
	assert.Equal(t, model.SignalOffer, sent[0].sig.Type)
	assert.Equal(t, "p1", sent[0].to)
	assert.False(t, sent[0].sig.ICERestart)
}

func TestStartCallOffersOncePeerJoins(t *testing.T) {
	sig := &fakeSignaler{joinAck: model.JoinAck{OK: true, IsInitiator: true}}
	link := &fakeLink{}
	c := newTestController(sig, &fakeMedia{}, link)

	require.NoError(t, c.StartCall(context.Background(), "R", "chat", "bob", model.CallKindVoice))
	assert.Empty(t, sig.sentSignals(), "no offer before the peer is in the room")

	c.HandlePeerJoined(model.Envelope{
		Type:    model.TypePeerJoined,
		Room:    "R",
		From:    "p1",
		Payload: model.RawPayload(model.Member{ConnID: "p1", UserID: "bob"}),
	})

	sent := sig.sentSignals()
	require.Len(t, sent, 1)
	assert.Equal(t, model.SignalOffer, sent[0].sig.Type)
	assert.Equal(t, "p1", sent[0].to)
}

func TestStartCallRefusedWhileBusy(t *testing.T) {
	sig := &fakeSignaler{joinAck: model.JoinAck{OK: true, IsInitiator: true}}
	c := newTestController(sig, &fakeMedia{}, &fakeLink{})

	require.NoError(t, c.StartCall(context.Background(), "R", "chat", "bob", model.CallKindVoice))
	assert.ErrorIs(t, c.StartCall(context.Background(), "R2", "chat2", "carol", model.CallKindVoice), ErrNotIdle)
}

func TestStartCallMediaFailure(t *testing.T) {
	sig := &fakeSignaler{}
	c := newTestController(sig, &fakeMedia{err: ErrMediaUnavailable}, &fakeLink{})

	err := c.StartCall(context.Background(), "R", "chat", "bob", model.CallKindVoice)
	assert.ErrorIs(t, err, ErrMedia)

	st, reason := c.State()
	assert.Equal(t, StateEnded, st)
	assert.Equal(t, model.ReasonMedia, reason)
	assert.Equal(t, 0, sig.joinCount(), "no join attempted without media")
}

func TestStartCallRoomFull(t *testing.T) {
	sig := &fakeSignaler{joinAck: model.JoinAck{Error: model.ReasonRoomFull}}
	link := &fakeLink{}
	media := &fakeMedia{}
	c := newTestController(sig, media, link)

	err := c.StartCall(context.Background(), "R", "chat", "bob", model.CallKindVoice)
	assert.ErrorIs(t, err, ErrJoin)

	st, reason := c.State()
	assert.Equal(t, StateEnded, st)
	assert.Equal(t, model.ReasonRoomFull, reason)
	assert.Equal(t, 1, link.closedCount())
	assert.Equal(t, 1, media.stopCount())
}

func TestAnswerCompletesNegotiation(t *testing.T) {
	sig := &fakeSignaler{joinAck: model.JoinAck{
		OK:          true,
		IsInitiator: true,
		Peers:       []model.Member{{ConnID: "p1"}},
	}}
	link := &fakeLink{}
	c := newTestController(sig, &fakeMedia{}, link)
	require.NoError(t, c.StartCall(context.Background(), "R", "chat", "bob", model.CallKindVoice))

	c.HandleSignal(sigEnv("R", "p1", model.Signal{Type: model.SignalAnswer, SDP: "remote-answer"}))

	st, _ := c.State()
	assert.Equal(t, StateAccepted, st)
	require.Len(t, link.appliedAnsw, 1)
	assert.Equal(t, "remote-answer", link.appliedAnsw[0].SDP)

	// negotiation is done, the ringing timeout must not fire anymore
	time.Sleep(400 * time.Millisecond)
	st, _ = c.State()
	assert.Equal(t, StateAccepted, st)
}

func TestCandidatesQueuedUntilRemoteDescription(t *testing.T) {
	sig := &fakeSignaler{joinAck: model.JoinAck{
		OK:          true,
		IsInitiator: true,
		Peers:       []model.Member{{ConnID: "p1"}},
	}}
	link := &fakeLink{}
	c := newTestController(sig, &fakeMedia{}, link)
	require.NoError(t, c.StartCall(context.Background(), "R", "chat", "bob", model.CallKindVoice))

	c.HandleSignal(sigEnv("R", "p1", model.Signal{Type: model.SignalICE, Candidate: json.RawMessage(`"c1"`)}))
	c.HandleSignal(sigEnv("R", "p1", model.Signal{Type: model.SignalICE, Candidate: json.RawMessage(`"c2"`)}))
	assert.Empty(t, link.addedCandidates(), "candidates buffered before the answer")

	c.HandleSignal(sigEnv("R", "p1", model.Signal{Type: model.SignalAnswer, SDP: "remote-answer"}))

	added := link.addedCandidates()
	require.Len(t, added, 2)
	assert.Equal(t, json.RawMessage(`"c1"`), added[0].Candidate)
	assert.Equal(t, json.RawMessage(`"c2"`), added[1].Candidate)

	// live candidates now apply directly
	c.HandleSignal(sigEnv("R", "p1", model.Signal{Type: model.SignalICE, Candidate: json.RawMessage(`"c3"`)}))
	assert.Len(t, link.addedCandidates(), 3)
}

func TestGlareInitiatorHoldsOffer(t *testing.T) {
	sig := &fakeSignaler{joinAck: model.JoinAck{
		OK:          true,
		IsInitiator: true,
		Peers:       []model.Member{{ConnID: "p1"}},
	}}
	link := &fakeLink{}
	c := newTestController(sig, &fakeMedia{}, link)
	require.NoError(t, c.StartCall(context.Background(), "R", "chat", "bob", model.CallKindVoice))
	require.Len(t, sig.sentSignals(), 1)

	// colliding remote offer is ignored, the local one stands
	c.HandleSignal(sigEnv("R", "p1", model.Signal{Type: model.SignalOffer, SDP: "remote-offer"}))
	assert.Zero(t, link.rollbacks)
	assert.Empty(t, link.appliedOffers)

	c.HandleSignal(sigEnv("R", "p1", model.Signal{Type: model.SignalAnswer, SDP: "remote-answer"}))
	st, _ := c.State()
	assert.Equal(t, StateAccepted, st)
}

func TestGlareResponderRollsBack(t *testing.T) {
	sig := &fakeSignaler{joinAck: model.JoinAck{
		OK:          true,
		IsInitiator: false,
		Peers:       []model.Member{{ConnID: "p1", UserID: "alice"}},
	}}
	link := &fakeLink{}
	c := newTestController(sig, &fakeMedia{}, link)

	c.HandleIncomingCall(incomingEnv("R", "alice"))
	require.NoError(t, c.Accept(context.Background()))

	// connectivity failure puts an ice-restart offer in flight
	link.onState(webrtc.PeerConnectionStateFailed)
	require.Eventually(t, func() bool {
		return len(sig.sentSignals()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true}, link.offerFlags())

	// the colliding remote offer wins: roll back, apply, answer
	c.HandleSignal(sigEnv("R", "p1", model.Signal{Type: model.SignalOffer, SDP: "remote-offer"}))
	assert.Equal(t, 1, link.rollbacks)
	require.Len(t, link.appliedOffers, 1)

	sent := sig.sentSignals()
	require.Len(t, sent, 2)
	assert.Equal(t, model.SignalAnswer, sent[1].sig.Type)
	assert.Equal(t, "p1", sent[1].to)
}

func TestCallTimeout(t *testing.T) {
	sig := &fakeSignaler{joinAck: model.JoinAck{OK: true, IsInitiator: true}}
	c := newTestController(sig, &fakeMedia{}, &fakeLink{})
	require.NoError(t, c.StartCall(context.Background(), "R", "chat", "bob", model.CallKindVoice))

	reason := waitState(t, c, StateEnded)
	assert.Equal(t, model.ReasonTimeout, reason)

	require.Eventually(t, func() bool {
		return len(sig.endCalls()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.ReasonTimeout, sig.endCalls()[0].reason)
}

func TestIncomingAcceptFlow(t *testing.T) {
	sig := &fakeSignaler{joinAck: model.JoinAck{
		OK:    true,
		Peers: []model.Member{{ConnID: "p1", UserID: "alice"}},
	}}
	link := &fakeLink{}
	c := newTestController(sig, &fakeMedia{}, link)

	c.HandleIncomingCall(incomingEnv("R", "alice"))
	st, _ := c.State()
	require.Equal(t, StateIncoming, st)

	require.NoError(t, c.Accept(context.Background()))

	sess := c.Session()
	assert.Equal(t, StateAccepted, sess.State)
	assert.Equal(t, RoleResponder, sess.Role)
	assert.Equal(t, "R", sess.RoomID)
	assert.Equal(t, "chat", sess.ChatID)
	assert.Equal(t, "alice", sess.PeerUser)
	assert.False(t, sess.Accepted.IsZero())
	responds := sig.respondCalls()
	require.Len(t, responds, 1)
	assert.True(t, responds[0].accepted)
	assert.Equal(t, "alice", responds[0].toUser)
	assert.Empty(t, sig.sentSignals(), "responder waits for the caller's offer")
}

func TestIncomingAutoRejectedWhileBusy(t *testing.T) {
	sig := &fakeSignaler{joinAck: model.JoinAck{OK: true, IsInitiator: true}}
	c := newTestController(sig, &fakeMedia{}, &fakeLink{})
	require.NoError(t, c.StartCall(context.Background(), "R", "chat", "bob", model.CallKindVoice))

	c.HandleIncomingCall(incomingEnv("R2", "carol"))

	require.Eventually(t, func() bool {
		return len(sig.respondCalls()) == 1
	}, time.Second, 5*time.Millisecond)
	r := sig.respondCalls()[0]
	assert.False(t, r.accepted)
	assert.Equal(t, "R2", r.roomID)
	assert.Equal(t, model.ReasonBusy, r.reason)

	// the protected call is untouched
	st, _ := c.State()
	assert.Equal(t, StateCalling, st)
}

func TestRejectIncoming(t *testing.T) {
	sig := &fakeSignaler{}
	c := newTestController(sig, &fakeMedia{}, &fakeLink{})

	c.HandleIncomingCall(incomingEnv("R", "alice"))
	require.NoError(t, c.Reject(context.Background(), ""))

	responds := sig.respondCalls()
	require.Len(t, responds, 1)
	assert.False(t, responds[0].accepted)
	assert.Equal(t, model.ReasonRejected, responds[0].reason)

	st, reason := c.State()
	assert.Equal(t, StateEnded, st)
	assert.Equal(t, model.ReasonRejected, reason)
}

func TestAcceptMediaFailureRejectsCall(t *testing.T) {
	sig := &fakeSignaler{}
	c := newTestController(sig, &fakeMedia{err: ErrMediaBusy}, &fakeLink{})

	c.HandleIncomingCall(incomingEnv("R", "alice"))
	err := c.Accept(context.Background())
	assert.ErrorIs(t, err, ErrMedia)

	// the caller must not be left ringing
	responds := sig.respondCalls()
	require.Len(t, responds, 1)
	assert.False(t, responds[0].accepted)
	assert.Equal(t, model.ReasonMedia, responds[0].reason)
}

func TestHangupReleasesSynchronously(t *testing.T) {
	sig := &fakeSignaler{joinAck: model.JoinAck{
		OK:          true,
		IsInitiator: true,
		Peers:       []model.Member{{ConnID: "p1"}},
	}}
	link := &fakeLink{}
	media := &fakeMedia{}
	c := newTestController(sig, media, link)
	require.NoError(t, c.StartCall(context.Background(), "R", "chat", "bob", model.CallKindVoice))

	c.Hangup()

	assert.Equal(t, 1, link.closedCount(), "peer connection closed before Hangup returns")
	assert.Equal(t, 1, media.stopCount(), "capture stopped before Hangup returns")
	st, reason := c.State()
	assert.Equal(t, StateEnded, st)
	assert.Equal(t, model.ReasonHangup, reason)

	require.Eventually(t, func() bool {
		return sig.leaveCount() == 1 && len(sig.endCalls()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "bob", sig.endCalls()[0].toUser)
}

func TestRemoteHangup(t *testing.T) {
	sig := &fakeSignaler{joinAck: model.JoinAck{
		OK:          true,
		IsInitiator: true,
		Peers:       []model.Member{{ConnID: "p1"}},
	}}
	c := newTestController(sig, &fakeMedia{}, &fakeLink{})
	require.NoError(t, c.StartCall(context.Background(), "R", "chat", "bob", model.CallKindVoice))
	c.HandleSignal(sigEnv("R", "p1", model.Signal{Type: model.SignalAnswer, SDP: "a"}))

	c.HandleEndCall(model.Envelope{Type: model.TypeEndCall, Room: "R", Reason: model.ReasonHangup})

	st, reason := c.State()
	assert.Equal(t, StateEnded, st)
	assert.Equal(t, model.ReasonHangup, reason)

	// local teardown only: no end-call echoed back to the peer
	require.Eventually(t, func() bool {
		return sig.leaveCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, sig.endCalls())
}

func TestReconnectRejoinsAndRestartsICE(t *testing.T) {
	sig := &fakeSignaler{joinAck: model.JoinAck{
		OK:          true,
		IsInitiator: true,
		Peers:       []model.Member{{ConnID: "p1"}},
	}}
	link := &fakeLink{}
	c := newTestController(sig, &fakeMedia{}, link)
	require.NoError(t, c.StartCall(context.Background(), "R", "chat", "bob", model.CallKindVoice))
	c.HandleSignal(sigEnv("R", "p1", model.Signal{Type: model.SignalAnswer, SDP: "a"}))

	c.HandleTransportReconnected()

	assert.Equal(t, 2, sig.joinCount(), "rejoined the call room")
	flags := link.offerFlags()
	require.Len(t, flags, 2)
	assert.True(t, flags[1], "post-reconnect offer carries ice restart")
}

func TestReconnectIgnoredWhenIdle(t *testing.T) {
	sig := &fakeSignaler{}
	c := newTestController(sig, &fakeMedia{}, &fakeLink{})

	c.HandleTransportReconnected()
	assert.Zero(t, sig.joinCount())
}

func TestConnectivityRestartDebounced(t *testing.T) {
	sig := &fakeSignaler{joinAck: model.JoinAck{
		OK:          true,
		IsInitiator: true,
		Peers:       []model.Member{{ConnID: "p1"}},
	}}
	link := &fakeLink{}
	c := newTestController(sig, &fakeMedia{}, link)
	require.NoError(t, c.StartCall(context.Background(), "R", "chat", "bob", model.CallKindVoice))
	c.HandleSignal(sigEnv("R", "p1", model.Signal{Type: model.SignalAnswer, SDP: "a"}))

	link.onState(webrtc.PeerConnectionStateFailed)
	link.onState(webrtc.PeerConnectionStateFailed)
	link.onState(webrtc.PeerConnectionStateFailed)

	require.Eventually(t, func() bool {
		return len(link.offerFlags()) == 2
	}, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Len(t, link.offerFlags(), 2, "failure burst collapses into one restart")
	assert.True(t, link.offerFlags()[1])
}

func TestEndedReturnsToIdle(t *testing.T) {
	sig := &fakeSignaler{joinAck: model.JoinAck{OK: true, IsInitiator: true}}
	logger := zerolog.Nop()
	var transitions []State
	var mx sync.Mutex
	c := NewController(Config{
		Signaler: sig,
		Media:    &fakeMedia{},
		NewLink: func(_ []webrtc.TrackLocal) (PeerLink, error) {
			return &fakeLink{}, nil
		},
		Logger:       &logger,
		EndedDisplay: 30 * time.Millisecond,
		OnStateChange: func(st State, _ string) {
			mx.Lock()
			transitions = append(transitions, st)
			mx.Unlock()
		},
	})
	require.NoError(t, c.StartCall(context.Background(), "R", "chat", "bob", model.CallKindVoice))

	c.Hangup()
	waitState(t, c, StateIdle)

	mx.Lock()
	seen := make([]State, len(transitions))
	copy(seen, transitions)
	mx.Unlock()
	assert.Equal(t, []State{StateCalling, StateEnded, StateIdle}, seen)

	// a fresh call is possible again
	assert.NoError(t, c.StartCall(context.Background(), "R2", "chat", "bob", model.CallKindVoice))
}
