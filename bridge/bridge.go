package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/peerline/peerline/model"
	"github.com/rs/zerolog"
)

var (
	ErrSelfCall      = errors.New("caller and callee are the same user")
	ErrNotMembers    = errors.New("users do not share the conversation")
	ErrCalleeOffline = errors.New("callee is offline")
	ErrCalleeBusy    = errors.New("callee is in another call")
	ErrMembership    = errors.New("membership check failed")
)

type (
	Sender interface {
		Send(ctx context.Context, connID string, env model.Envelope) bool
	}

	Presence interface {
		ConnectionsOf(userID string) []string
		PrimaryConnection(userID string) (string, bool)
	}

	Rooms interface {
		UserBusy(userID string) bool
	}

	// MembershipStore is the external collaborator deciding whether two
	// users share the conversation a call is placed in.
	MembershipStore interface {
		IsMemberPair(ctx context.Context, chatID, userA, userB string) (bool, error)
	}

	// CallSink receives finished call records. Implementations must not
	// block; failures never affect live calls.
	CallSink interface {
		Record(e Entry)
	}

	Entry struct {
		CallerID string `json:"caller_id"`
		CalleeID string `json:"callee_id"`
		Kind     string `json:"kind"`
		Outcome  string `json:"outcome"`
		Duration time.Duration
	}
)

// invite is the transient invitation record. It exists from invite until
// the call is resolved by accept+end, reject, offline or timeout.
type invite struct {
	caller   string
	callee   string
	chatID   string
	kind     string
	created  time.Time
	accepted time.Time
}

// Bridge validates and routes call-lifecycle events between users. It
// fans events out to every connection of the target user so multiple
// tabs of the same user stay consistent.
type Bridge struct {
	presence   Presence
	rooms      Rooms
	sender     Sender
	membership MembershipStore
	sink       CallSink
	logger     zerolog.Logger

	pendingTTL time.Duration

	mx      sync.Mutex
	pending map[string]*invite
}

type Config struct {
	Presence   Presence
	Rooms      Rooms
	Sender     Sender
	Membership MembershipStore
	Sink       CallSink
	Logger     *zerolog.Logger

	// PendingTTL bounds how long an unanswered invitation may stay
	// registered. Clients run their own ringing timeout; this only keeps
	// the pending table from accumulating records nobody will resolve.
	PendingTTL time.Duration
}

const defaultPendingTTL = time.Minute

func NewBridge(cfg Config) *Bridge {
	sink := cfg.Sink
	if sink == nil {
		sink = nopSink{}
	}
	ttl := cfg.PendingTTL
	if ttl == 0 {
		ttl = defaultPendingTTL
	}
	return &Bridge{
		presence:   cfg.Presence,
		rooms:      cfg.Rooms,
		sender:     cfg.Sender,
		membership: cfg.Membership,
		sink:       sink,
		logger:     cfg.Logger.With().Str("component", "bridge").Logger(),
		pendingTTL: ttl,
		pending:    make(map[string]*invite),
	}
}

// Invite validates and delivers a call invitation. The callee gets an
// incoming-call on every open connection; the caller gets a calling ack
// carrying the callee's resolved connection id, or an immediate
// busy/offline notification. No invitation record is created on failure.
func (b *Bridge) Invite(ctx context.Context, callerID, callerConn, roomID string, inv model.Invite) error {
	if inv.ToUser == callerID {
		return ErrSelfCall
	}

	ok, err := b.membership.IsMemberPair(ctx, inv.ChatID, callerID, inv.ToUser)
	if err != nil {
		return errors.Join(ErrMembership, err)
	}
	if !ok {
		return ErrNotMembers
	}

	if b.rooms.UserBusy(inv.ToUser) {
		b.sender.Send(ctx, callerConn, model.Envelope{
			Type:   model.TypeBusy,
			Room:   roomID,
			From:   inv.ToUser,
			Reason: model.ReasonInCall,
		})
		b.record(Entry{CallerID: callerID, CalleeID: inv.ToUser, Kind: inv.CallKind, Outcome: model.ReasonBusy})
		return ErrCalleeBusy
	}

	conns := b.presence.ConnectionsOf(inv.ToUser)
	if len(conns) == 0 {
		b.sender.Send(ctx, callerConn, model.Envelope{
			Type:   model.TypeCallRejected,
			Room:   roomID,
			From:   inv.ToUser,
			Reason: model.ReasonOffline,
		})
		b.record(Entry{CallerID: callerID, CalleeID: inv.ToUser, Kind: inv.CallKind, Outcome: model.ReasonOffline})
		return ErrCalleeOffline
	}

	b.mx.Lock()
	b.expireStaleLocked()
	b.pending[roomID] = &invite{
		caller:  callerID,
		callee:  inv.ToUser,
		chatID:  inv.ChatID,
		kind:    inv.CallKind,
		created: time.Now(),
	}
	b.mx.Unlock()

	incoming := model.Envelope{
		Type: model.TypeIncomingCall,
		Room: roomID,
		From: callerID,
		Payload: model.RawPayload(model.CallEvent{
			ChatID:   inv.ChatID,
			FromUser: callerID,
			CallKind: inv.CallKind,
		}),
	}
	for _, connID := range conns {
		b.sender.Send(ctx, connID, incoming)
	}

	primary, _ := b.presence.PrimaryConnection(inv.ToUser)
	b.sender.Send(ctx, callerConn, model.Envelope{
		Type: model.TypeCalling,
		Room: roomID,
		Payload: model.RawPayload(model.CallEvent{
			ChatID:   inv.ChatID,
			FromUser: inv.ToUser,
			PeerConn: primary,
			CallKind: inv.CallKind,
		}),
	})

	b.logger.Debug().
		Str("caller", callerID).
		Str("callee", inv.ToUser).
		Str("roomID", roomID).
		Str("kind", inv.CallKind).
		Msg("invitation delivered")
	return nil
}

// Respond fans an accept or reject out to all connections of toUser.
// A reject resolves the pending invitation; an accept marks it answered
// so End can report the call duration.
func (b *Bridge) Respond(ctx context.Context, accepted bool, roomID, fromUser, toUser, reason string) {
	env := model.Envelope{
		Type:   model.TypeCallAccepted,
		Room:   roomID,
		From:   fromUser,
		Reason: reason,
	}
	if !accepted {
		env.Type = model.TypeCallRejected
		if env.Reason == "" {
			env.Reason = model.ReasonRejected
		}
	}
	for _, connID := range b.presence.ConnectionsOf(toUser) {
		b.sender.Send(ctx, connID, env)
	}

	b.mx.Lock()
	inv, ok := b.pending[roomID]
	if ok {
		if accepted {
			inv.accepted = time.Now()
		} else {
			delete(b.pending, roomID)
		}
	}
	b.mx.Unlock()

	if ok && !accepted {
		b.record(Entry{CallerID: inv.caller, CalleeID: inv.callee, Kind: inv.kind, Outcome: env.Reason})
	}
}

// End notifies toUser (if known) that the call is over and echoes the
// termination to the caller's own connections. Room membership cleanup is
// the caller's responsibility, done before End.
func (b *Bridge) End(ctx context.Context, roomID, fromUser, toUser, reason string) {
	env := model.Envelope{
		Type:   model.TypeEndCall,
		Room:   roomID,
		From:   fromUser,
		Reason: reason,
	}
	if toUser != "" {
		for _, connID := range b.presence.ConnectionsOf(toUser) {
			b.sender.Send(ctx, connID, env)
		}
	}
	for _, connID := range b.presence.ConnectionsOf(fromUser) {
		b.sender.Send(ctx, connID, env)
	}
	b.resolve(roomID, reason)
}

// HandleOffline fails pending invitations fast when a user loses their
// last connection: a ringing caller learns the callee is gone, a ringing
// callee learns the caller is gone.
func (b *Bridge) HandleOffline(ctx context.Context, userID string) {
	b.mx.Lock()
	var gone []struct {
		roomID string
		inv    *invite
	}
	for roomID, inv := range b.pending {
		if inv.accepted.IsZero() && (inv.callee == userID || inv.caller == userID) {
			gone = append(gone, struct {
				roomID string
				inv    *invite
			}{roomID, inv})
			delete(b.pending, roomID)
		}
	}
	b.mx.Unlock()

	for _, g := range gone {
		var env model.Envelope
		var notify string
		if g.inv.callee == userID {
			notify = g.inv.caller
			env = model.Envelope{
				Type:   model.TypeCallRejected,
				Room:   g.roomID,
				From:   userID,
				Reason: model.ReasonOffline,
			}
		} else {
			notify = g.inv.callee
			env = model.Envelope{
				Type:   model.TypeEndCall,
				Room:   g.roomID,
				From:   userID,
				Reason: model.ReasonDisconnect,
			}
		}
		for _, connID := range b.presence.ConnectionsOf(notify) {
			b.sender.Send(ctx, connID, env)
		}
		b.record(Entry{CallerID: g.inv.caller, CalleeID: g.inv.callee, Kind: g.inv.kind, Outcome: model.ReasonOffline})
		b.logger.Debug().
			Str("userID", userID).
			Str("roomID", g.roomID).
			Msg("pending invitation failed fast")
	}
}

func (b *Bridge) resolve(roomID, outcome string) {
	b.mx.Lock()
	inv, ok := b.pending[roomID]
	if ok {
		delete(b.pending, roomID)
	}
	b.mx.Unlock()
	if !ok {
		return
	}

	var duration time.Duration
	if !inv.accepted.IsZero() {
		duration = time.Since(inv.accepted)
	}
	if outcome == "" {
		outcome = model.ReasonHangup
	}
	b.record(Entry{
		CallerID: inv.caller,
		CalleeID: inv.callee,
		Kind:     inv.kind,
		Outcome:  outcome,
		Duration: duration,
	})
}

// expireStaleLocked drops unanswered invitations older than the ttl. The
// ringing clients have long timed out on their own by then; only the
// record remains to be written.
func (b *Bridge) expireStaleLocked() {
	cutoff := time.Now().Add(-b.pendingTTL)
	for roomID, inv := range b.pending {
		if inv.accepted.IsZero() && inv.created.Before(cutoff) {
			delete(b.pending, roomID)
			b.record(Entry{CallerID: inv.caller, CalleeID: inv.callee, Kind: inv.kind, Outcome: model.ReasonTimeout})
			b.logger.Debug().Str("roomID", roomID).Msg("stale invitation expired")
		}
	}
}

// record hands the entry to the sink without waiting on it.
func (b *Bridge) record(e Entry) {
	go b.sink.Record(e)
}

type nopSink struct{}

func (nopSink) Record(Entry) {}
