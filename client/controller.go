package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/peerline/peerline/model"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// State is the session lifecycle phase. Ended is a transient display
// state: the controller returns to idle on its own after a short delay.
type State string

const (
	StateIdle     State = "idle"
	StateCalling  State = "calling"
	StateIncoming State = "incoming"
	StateAccepted State = "accepted"
	StateEnded    State = "ended"
)

// Role is the negotiation role derived from the relay's join ack. The
// initiator produces the first offer; on glare the non-initiator is
// always the side that rolls back.
type Role string

const (
	RoleNone      Role = ""
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

var (
	ErrNotIdle   = errors.New("another call is in progress")
	ErrNoCall    = errors.New("no call in that state")
	ErrJoin      = errors.New("unable to join room")
	ErrMedia     = errors.New("unable to acquire local media")
	ErrPeerSetup = errors.New("unable to create peer connection")
)

const (
	defaultCallTimeout     = 30 * time.Second
	defaultEndedDisplay    = 3 * time.Second
	defaultRestartDebounce = 2 * time.Second
)

type (
	Config struct {
		Signaler Signaler
		Media    MediaSource
		NewLink  LinkFactory
		Logger   *zerolog.Logger

		CallTimeout     time.Duration
		EndedDisplay    time.Duration
		RestartDebounce time.Duration

		// OnStateChange is invoked on every transition with the new
		// state and, for ended, the reason. It runs under the
		// controller's lock and must not call back into the controller.
		OnStateChange func(state State, reason string)
	}

	// Controller owns one client's call session: local media, the peer
	// connection, negotiation role, candidate buffering, glare
	// resolution, reconnection and timeout recovery. At most one
	// non-idle session exists per controller.
	Controller struct {
		signaler Signaler
		media    MediaSource
		newLink  LinkFactory
		logger   zerolog.Logger

		callTimeout     time.Duration
		endedDisplay    time.Duration
		restartDebounce time.Duration
		onStateChange   func(State, string)

		mx    sync.Mutex
		state State
		role  Role

		roomID   string
		chatID   string
		peerUser string
		peerConn string
		kind     string

		link  PeerLink
		local *LocalMedia

		pendingLocalOffer bool
		remoteSet         bool
		queued            []model.Signal

		callTimer    *time.Timer
		idleTimer    *time.Timer
		restartTimer *time.Timer
		restartArmed bool

		lastReason string
		startedAt  time.Time
		acceptedAt time.Time
	}
)

func NewController(cfg Config) *Controller {
	c := &Controller{
		signaler:        cfg.Signaler,
		media:           cfg.Media,
		newLink:         cfg.NewLink,
		logger:          cfg.Logger.With().Str("component", "session-controller").Logger(),
		callTimeout:     cfg.CallTimeout,
		endedDisplay:    cfg.EndedDisplay,
		restartDebounce: cfg.RestartDebounce,
		onStateChange:   cfg.OnStateChange,
		state:           StateIdle,
	}
	if c.callTimeout == 0 {
		c.callTimeout = defaultCallTimeout
	}
	if c.endedDisplay == 0 {
		c.endedDisplay = defaultEndedDisplay
	}
	if c.restartDebounce == 0 {
		c.restartDebounce = defaultRestartDebounce
	}
	return c
}

// State returns the current session state and, when ended, the reason.
func (c *Controller) State() (State, string) {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.state, c.lastReason
}

// Session is a read-only snapshot of the current call for display.
type Session struct {
	State    State
	Reason   string
	Role     Role
	RoomID   string
	ChatID   string
	PeerUser string
	Kind     string
	Started  time.Time
	Accepted time.Time
}

func (c *Controller) Session() Session {
	c.mx.Lock()
	defer c.mx.Unlock()
	return Session{
		State:    c.state,
		Reason:   c.lastReason,
		Role:     c.role,
		RoomID:   c.roomID,
		ChatID:   c.chatID,
		PeerUser: c.peerUser,
		Kind:     c.kind,
		Started:  c.startedAt,
		Accepted: c.acceptedAt,
	}
}

// StartCall places an outgoing call: acquire media, create the peer
// connection, join the room and deliver the invitation. The controller
// reserves itself (state calling) before the blocking media acquisition,
// so a second start is refused while one is pending.
func (c *Controller) StartCall(ctx context.Context, roomID, chatID, calleeID, kind string) error {
	c.mx.Lock()
	if c.state != StateIdle {
		c.mx.Unlock()
		return ErrNotIdle
	}
	c.state = StateCalling
	c.lastReason = ""
	c.roomID = roomID
	c.chatID = chatID
	c.peerUser = calleeID
	c.kind = kind
	c.startedAt = time.Now()
	c.notifyLocked()
	c.mx.Unlock()

	local, err := c.media.Acquire(ctx, kind)
	if err != nil {
		c.failSetup(model.ReasonMedia, false)
		return errors.Join(ErrMedia, err)
	}
	link, err := c.newLink(local.Tracks)
	if err != nil {
		local.Stop()
		c.failSetup(model.ReasonMedia, false)
		return errors.Join(ErrPeerSetup, err)
	}

	ack, err := c.signaler.JoinRoom(ctx, roomID)
	if err != nil || !ack.OK {
		local.Stop()
		_ = link.Close()
		reason := model.ReasonRoomFull
		if err != nil {
			reason = "join-failed"
			err = errors.Join(ErrJoin, err)
		} else {
			err = errors.Join(ErrJoin, errors.New(ack.Error))
		}
		c.failSetup(reason, false)
		return err
	}

	c.mx.Lock()
	defer c.mx.Unlock()
	if c.state != StateCalling || c.roomID != roomID {
		// the call was ended while we were setting up
		local.Stop()
		_ = link.Close()
		return ErrNoCall
	}
	c.local = local
	c.attachLinkLocked(link)
	c.applyJoinLocked(ack)

	if sendErr := c.signaler.Invite(ctx, roomID, model.Invite{
		ToUser:   calleeID,
		ChatID:   chatID,
		CallKind: kind,
	}); sendErr != nil {
		c.endLocked("invite-failed", false)
		return sendErr
	}

	c.callTimer = time.AfterFunc(c.callTimeout, c.onCallTimeout)

	if c.role == RoleInitiator && len(ack.Peers) > 0 {
		c.sendOfferLocked(false)
	}
	c.logger.Debug().
		Str("roomID", roomID).
		Str("callee", calleeID).
		Str("kind", kind).
		Msg("call started")
	return nil
}

// Accept answers the pending incoming call.
func (c *Controller) Accept(ctx context.Context) error {
	c.mx.Lock()
	if c.state != StateIncoming {
		c.mx.Unlock()
		return ErrNoCall
	}
	c.state = StateAccepted
	c.acceptedAt = time.Now()
	var (
		roomID = c.roomID
		peer   = c.peerUser
		kind   = c.kind
	)
	c.notifyLocked()
	c.mx.Unlock()

	local, err := c.media.Acquire(ctx, kind)
	if err != nil {
		// the caller must not be left ringing
		_ = c.signaler.Respond(ctx, false, roomID, peer, model.ReasonMedia)
		c.failSetup(model.ReasonMedia, false)
		return errors.Join(ErrMedia, err)
	}
	link, err := c.newLink(local.Tracks)
	if err != nil {
		local.Stop()
		_ = c.signaler.Respond(ctx, false, roomID, peer, model.ReasonMedia)
		c.failSetup(model.ReasonMedia, false)
		return errors.Join(ErrPeerSetup, err)
	}

	ack, err := c.signaler.JoinRoom(ctx, roomID)
	if err != nil || !ack.OK {
		local.Stop()
		_ = link.Close()
		_ = c.signaler.Respond(ctx, false, roomID, peer, model.ReasonRoomFull)
		c.failSetup(model.ReasonRoomFull, false)
		if err == nil {
			err = errors.New(ack.Error)
		}
		return errors.Join(ErrJoin, err)
	}

	c.mx.Lock()
	defer c.mx.Unlock()
	if c.state != StateAccepted || c.roomID != roomID {
		local.Stop()
		_ = link.Close()
		return ErrNoCall
	}
	c.local = local
	c.attachLinkLocked(link)
	c.applyJoinLocked(ack)

	if sendErr := c.signaler.Respond(ctx, true, roomID, peer, ""); sendErr != nil {
		c.endLocked("accept-failed", false)
		return sendErr
	}
	// if the caller is not in the room yet, the offer goes out once
	// peer-joined arrives
	if c.role == RoleInitiator && len(ack.Peers) > 0 {
		c.sendOfferLocked(false)
	}
	c.logger.Debug().
		Str("roomID", roomID).
		Str("caller", peer).
		Msg("call accepted")
	return nil
}

// Reject declines the pending incoming call.
func (c *Controller) Reject(ctx context.Context, reason string) error {
	c.mx.Lock()
	if c.state != StateIncoming {
		c.mx.Unlock()
		return ErrNoCall
	}
	var (
		roomID = c.roomID
		peer   = c.peerUser
	)
	if reason == "" {
		reason = model.ReasonRejected
	}
	c.endLocked(reason, false)
	c.mx.Unlock()

	return c.signaler.Respond(ctx, false, roomID, peer, reason)
}

// Hangup terminates the active call locally and notifies the peer.
func (c *Controller) Hangup() {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.state == StateIdle || c.state == StateEnded {
		return
	}
	c.endLocked(model.ReasonHangup, true)
}

// HandleIncomingCall transitions idle to incoming. A busy controller
// auto-rejects the new invitation without touching the protected call.
func (c *Controller) HandleIncomingCall(env model.Envelope) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state != StateIdle {
		c.logger.Debug().
			Str("roomID", env.Room).
			Str("from", env.From).
			Msg("busy, auto-rejecting invitation")
		go func() {
			_ = c.signaler.Respond(context.Background(), false, env.Room, env.From, model.ReasonBusy)
		}()
		return
	}

	var ev model.CallEvent
	_ = json.Unmarshal(env.Payload, &ev)
	c.state = StateIncoming
	c.lastReason = ""
	c.roomID = env.Room
	c.chatID = ev.ChatID
	c.peerUser = env.From
	c.kind = ev.CallKind
	c.startedAt = time.Now()
	c.notifyLocked()
}

// HandleCalling stores the callee's resolved connection id so offers and
// candidates can be targeted directly.
func (c *Controller) HandleCalling(env model.Envelope) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state != StateCalling || env.Room != c.roomID {
		return
	}
	var ev model.CallEvent
	if err := json.Unmarshal(env.Payload, &ev); err == nil {
		c.peerConn = ev.PeerConn
	}
}

// HandleSignal processes one relayed negotiation payload.
func (c *Controller) HandleSignal(env model.Envelope) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.link == nil || env.Room != c.roomID {
		return
	}
	var sig model.Signal
	if err := json.Unmarshal(env.Payload, &sig); err != nil {
		c.logger.Debug().Err(err).Msg("malformed signal payload, dropped")
		return
	}

	switch sig.Type {
	case model.SignalOffer:
		c.handleRemoteOfferLocked(env.From, sig)
	case model.SignalAnswer:
		c.handleRemoteAnswerLocked(sig)
	case model.SignalICE:
		c.handleRemoteCandidateLocked(sig)
	}
}

// handleRemoteOfferLocked applies a remote offer, resolving glare first.
// Tie-break: the non-initiator always rolls back its own in-flight
// offer; the initiator holds its offer and ignores the colliding one.
func (c *Controller) handleRemoteOfferLocked(from string, sig model.Signal) {
	if c.pendingLocalOffer {
		if c.role == RoleInitiator {
			c.logger.Debug().Msg("offer glare, holding local offer")
			return
		}
		c.logger.Debug().Msg("offer glare, rolling back local offer")
		if err := c.link.Rollback(); err != nil {
			c.logger.Error().Err(err).Msg("rollback failed")
			c.endLocked("negotiation-failed", true)
			return
		}
		c.pendingLocalOffer = false
	}

	if err := c.link.ApplyOffer(sig); err != nil {
		c.logger.Error().Err(err).Msg("failed to apply remote offer")
		c.endLocked("negotiation-failed", true)
		return
	}
	c.remoteSet = true
	c.peerConn = from
	c.flushCandidatesLocked()

	answer, err := c.link.CreateAnswer()
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to create answer")
		c.endLocked("negotiation-failed", true)
		return
	}
	if err = c.signaler.Signal(context.Background(), c.roomID, from, answer); err != nil {
		c.logger.Error().Err(err).Msg("failed to send answer")
		return
	}
	c.negotiatedLocked()
}

func (c *Controller) handleRemoteAnswerLocked(sig model.Signal) {
	if !c.pendingLocalOffer {
		c.logger.Debug().Msg("unexpected answer, dropped")
		return
	}
	if err := c.link.ApplyAnswer(sig); err != nil {
		c.logger.Error().Err(err).Msg("failed to apply answer")
		c.endLocked("negotiation-failed", true)
		return
	}
	c.pendingLocalOffer = false
	c.remoteSet = true
	c.flushCandidatesLocked()
	c.negotiatedLocked()
}

// handleRemoteCandidateLocked queues candidates arriving before the
// remote description and applies them in arrival order afterwards.
func (c *Controller) handleRemoteCandidateLocked(sig model.Signal) {
	if !c.remoteSet {
		c.queued = append(c.queued, sig)
		return
	}
	if err := c.link.AddICECandidate(sig); err != nil {
		c.logger.Warn().Err(err).Msg("failed to add candidate")
	}
}

func (c *Controller) flushCandidatesLocked() {
	for _, sig := range c.queued {
		if err := c.link.AddICECandidate(sig); err != nil {
			c.logger.Warn().Err(err).Msg("failed to add queued candidate")
		}
	}
	c.queued = nil
}

// negotiatedLocked marks the exchange complete: the timeout disarms and
// a calling session advances to accepted.
func (c *Controller) negotiatedLocked() {
	if c.callTimer != nil {
		c.callTimer.Stop()
		c.callTimer = nil
	}
	if c.state == StateCalling {
		c.state = StateAccepted
		c.acceptedAt = time.Now()
		c.notifyLocked()
	}
}

// HandlePeerJoined sends the first offer once the peer is in the room,
// if this side is the initiator.
func (c *Controller) HandlePeerJoined(env model.Envelope) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if env.Room != c.roomID || c.link == nil {
		return
	}
	if c.state != StateCalling && c.state != StateAccepted {
		return
	}
	var m model.Member
	if err := json.Unmarshal(env.Payload, &m); err == nil && m.ConnID != "" {
		c.peerConn = m.ConnID
	} else {
		c.peerConn = env.From
	}
	if c.role == RoleInitiator && !c.pendingLocalOffer {
		c.sendOfferLocked(false)
	}
}

func (c *Controller) HandlePeerLeft(env model.Envelope) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if env.Room != c.roomID {
		return
	}
	if c.state != StateCalling && c.state != StateAccepted {
		return
	}
	reason := env.Reason
	if reason == "" {
		reason = model.ReasonHangup
	}
	c.endLocked(reason, false)
}

func (c *Controller) HandleCallAccepted(env model.Envelope) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state != StateCalling || env.Room != c.roomID {
		return
	}
	c.logger.Debug().Str("roomID", env.Room).Msg("peer accepted, negotiating")
}

func (c *Controller) HandleCallRejected(env model.Envelope) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state != StateCalling || env.Room != c.roomID {
		return
	}
	reason := env.Reason
	if reason == "" {
		reason = model.ReasonRejected
	}
	c.endLocked(reason, false)
}

func (c *Controller) HandleEndCall(env model.Envelope) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if env.Room != c.roomID || c.state == StateIdle || c.state == StateEnded {
		return
	}
	reason := env.Reason
	if reason == "" {
		reason = model.ReasonHangup
	}
	c.endLocked(reason, false)
}

func (c *Controller) HandleRoomFull(env model.Envelope) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state != StateCalling || env.Room != c.roomID {
		return
	}
	c.endLocked(model.ReasonRoomFull, false)
}

func (c *Controller) HandleBusy(env model.Envelope) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state != StateCalling || env.Room != c.roomID {
		return
	}
	reason := env.Reason
	if reason == "" {
		reason = model.ReasonBusy
	}
	c.endLocked(reason, false)
}

// HandleTransportReconnected re-derives room and initiator state from
// the relay after the signaling connection came back. Safe to call any
// number of times; a rejoin is idempotent server-side.
func (c *Controller) HandleTransportReconnected() {
	c.mx.Lock()
	if c.state != StateCalling && c.state != StateAccepted {
		c.mx.Unlock()
		return
	}
	roomID := c.roomID
	c.mx.Unlock()

	ack, err := c.signaler.JoinRoom(context.Background(), roomID)

	c.mx.Lock()
	defer c.mx.Unlock()
	if c.roomID != roomID || (c.state != StateCalling && c.state != StateAccepted) {
		return
	}
	if err != nil || !ack.OK {
		c.logger.Error().Err(err).Str("roomID", roomID).Msg("rejoin failed")
		c.endLocked("reconnect-failed", false)
		return
	}
	c.applyJoinLocked(ack)
	c.logger.Debug().
		Str("roomID", roomID).
		Str("role", string(c.role)).
		Msg("rejoined after reconnect")

	if c.role == RoleInitiator && len(ack.Peers) > 0 && c.link != nil {
		c.sendOfferLocked(true)
	}
}

func (c *Controller) applyJoinLocked(ack model.JoinAck) {
	if ack.IsInitiator {
		c.role = RoleInitiator
	} else {
		c.role = RoleResponder
	}
	if len(ack.Peers) > 0 {
		c.peerConn = ack.Peers[0].ConnID
	}
}

func (c *Controller) attachLinkLocked(link PeerLink) {
	c.link = link
	link.OnICECandidate(func(sig model.Signal) {
		c.mx.Lock()
		var (
			active = c.state == StateCalling || c.state == StateAccepted
			roomID = c.roomID
			to     = c.peerConn
		)
		c.mx.Unlock()
		if !active {
			return
		}
		if err := c.signaler.Signal(context.Background(), roomID, to, sig); err != nil {
			c.logger.Warn().Err(err).Msg("failed to send candidate")
		}
	})
	link.OnStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed {
			c.onConnectivityFailed()
		}
	})
}

// onConnectivityFailed schedules a single debounced renegotiation with
// ice restart; concurrent failure signals collapse into one attempt.
func (c *Controller) onConnectivityFailed() {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state != StateAccepted && c.state != StateCalling {
		return
	}
	if c.restartArmed {
		return
	}
	c.restartArmed = true
	c.restartTimer = time.AfterFunc(c.restartDebounce, c.attemptRestart)
	c.logger.Warn().Str("roomID", c.roomID).Msg("connectivity failed, scheduling ice restart")
}

func (c *Controller) attemptRestart() {
	c.mx.Lock()
	defer c.mx.Unlock()

	c.restartArmed = false
	if c.link == nil {
		return
	}
	if c.state != StateAccepted && c.state != StateCalling {
		return
	}
	c.sendOfferLocked(true)
}

func (c *Controller) sendOfferLocked(iceRestart bool) {
	offer, err := c.link.CreateOffer(iceRestart)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to create offer")
		c.endLocked("negotiation-failed", true)
		return
	}
	c.pendingLocalOffer = true
	if err = c.signaler.Signal(context.Background(), c.roomID, c.peerConn, offer); err != nil {
		c.logger.Error().Err(err).Msg("failed to send offer")
	}
}

func (c *Controller) onCallTimeout() {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state != StateCalling {
		return
	}
	c.endLocked(model.ReasonTimeout, true)
}

// failSetup resolves a half-built session into ended without touching
// link or media, which the caller has already released.
func (c *Controller) failSetup(reason string, notifyPeer bool) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state == StateIdle || c.state == StateEnded {
		return
	}
	c.endLocked(reason, notifyPeer)
}

// endLocked is the single teardown path. Local resources are released
// synchronously: close the peer connection, stop capture, clear timers.
// Network notifications go out asynchronously afterwards and never delay
// the release.
func (c *Controller) endLocked(reason string, notifyPeer bool) {
	if c.state == StateIdle || c.state == StateEnded {
		return
	}

	if c.callTimer != nil {
		c.callTimer.Stop()
		c.callTimer = nil
	}
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
	c.restartArmed = false
	if c.link != nil {
		if err := c.link.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("peer link close failed")
		}
		c.link = nil
	}
	if c.local != nil {
		c.local.Stop()
		c.local = nil
	}
	c.pendingLocalOffer = false
	c.remoteSet = false
	c.queued = nil

	var (
		roomID = c.roomID
		peer   = c.peerUser
	)
	c.state = StateEnded
	c.lastReason = reason
	c.notifyLocked()
	c.idleTimer = time.AfterFunc(c.endedDisplay, c.backToIdle)

	go func() {
		ctx := context.Background()
		if err := c.signaler.LeaveRoom(ctx, roomID, reason); err != nil {
			c.logger.Debug().Err(err).Msg("leave-room not delivered")
		}
		if notifyPeer && peer != "" {
			if err := c.signaler.End(ctx, roomID, peer, reason); err != nil {
				c.logger.Debug().Err(err).Msg("end-call not delivered")
			}
		}
	}()

	c.logger.Debug().
		Str("roomID", roomID).
		Str("reason", reason).
		Msg("call ended")
}

func (c *Controller) backToIdle() {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state != StateEnded {
		return
	}
	c.state = StateIdle
	c.role = RoleNone
	c.roomID = ""
	c.chatID = ""
	c.peerUser = ""
	c.peerConn = ""
	c.kind = ""
	c.startedAt = time.Time{}
	c.acceptedAt = time.Time{}
	c.notifyLocked()
}

func (c *Controller) notifyLocked() {
	if c.onStateChange != nil {
		c.onStateChange(c.state, c.lastReason)
	}
}
