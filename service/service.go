package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/davecgh/go-spew/spew"
	"github.com/peerline/peerline/model"
	"github.com/peerline/peerline/room"
	"github.com/rs/zerolog"
)

type (
	Presence interface {
		Register(userID, connID string)
		Unregister(userID, connID string) bool
		ConnectionsOf(userID string) []string
		OnlineCount() int
	}

	Rooms interface {
		Join(roomID string, m room.Member) (room.JoinResult, error)
		Leave(roomID, connID string) (room.Member, []room.Member, bool)
		LeaveAll(connID string) []room.Departure
		MemberOf(roomID, connID string) bool
		Peers(roomID, connID string) []room.Member
		Stats() (rooms, members int)
	}

	Sender interface {
		Connect(connID string, wire model.Wire)
		Disconnect(connID string)
		Send(ctx context.Context, connID string, env model.Envelope) bool
	}

	Calls interface {
		Invite(ctx context.Context, callerID, callerConn, roomID string, inv model.Invite) error
		Respond(ctx context.Context, accepted bool, roomID, fromUser, toUser, reason string)
		End(ctx context.Context, roomID, fromUser, toUser, reason string)
		HandleOffline(ctx context.Context, userID string)
	}

	// Service is the relay's per-event dispatcher. One dispatch loop runs
	// per connection; all shared state lives behind the guarded presence
	// and room registries, so no handler can stall unrelated rooms.
	Service struct {
		presence Presence
		rooms    Rooms
		sender   Sender
		calls    Calls
		logger   zerolog.Logger
	}

	Config struct {
		Presence Presence
		Rooms    Rooms
		Sender   Sender
		Calls    Calls
		Logger   *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		presence: cfg.Presence,
		rooms:    cfg.Rooms,
		sender:   cfg.Sender,
		calls:    cfg.Calls,
		logger:   cfg.Logger.With().Str("component", "relay").Logger(),
	}
}

// Connect attaches an authenticated transport connection to the relay and
// starts its dispatch loop.
func (svc *Service) Connect(ctx context.Context, userID, connID string, wire model.Wire) {
	svc.presence.Register(userID, connID)
	svc.sender.Connect(connID, wire)
	svc.logger.Debug().
		Str("userID", userID).
		Str("connID", connID).
		Msg("connection attached")

	go svc.dispatchLoop(ctx, userID, connID, wire.RX)
}

// Disconnect unwinds everything the connection owned: room memberships
// (with exactly one peer-left per remaining member), presence, and, on
// the user's last connection, any pending invitations.
func (svc *Service) Disconnect(ctx context.Context, userID, connID string) {
	for _, dep := range svc.rooms.LeaveAll(connID) {
		svc.notifyLeft(ctx, dep.RoomID, connID, model.ReasonDisconnect, dep.Remaining)
	}
	if svc.presence.Unregister(userID, connID) {
		svc.calls.HandleOffline(ctx, userID)
	}
	svc.sender.Disconnect(connID)
	svc.logger.Debug().
		Str("userID", userID).
		Str("connID", connID).
		Msg("connection detached")
}

// Stats returns a live snapshot for the status API.
func (svc *Service) Stats() model.Stats {
	rooms, members := svc.rooms.Stats()
	return model.Stats{
		OnlineUsers: svc.presence.OnlineCount(),
		OpenRooms:   rooms,
		RoomMembers: members,
	}
}

func (svc *Service) dispatchLoop(ctx context.Context, userID, connID string, rx <-chan model.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-rx:
			if !ok {
				return
			}
			svc.handle(ctx, userID, connID, env)
		}
	}
}

// handle processes one inbound envelope. Errors are per-event: anything
// malformed or unauthorized is dropped (or error-acked) without touching
// state of unrelated rooms.
func (svc *Service) handle(ctx context.Context, userID, connID string, env model.Envelope) {
	if e := svc.logger.Trace(); e.Enabled() {
		e.Str("envelope", spew.Sdump(env)).Msg("event received")
	}

	switch env.Type {
	case model.TypeJoinRoom:
		svc.handleJoinRoom(ctx, userID, connID, env)
	case model.TypeLeaveRoom:
		svc.handleLeaveRoom(ctx, connID, env)
	case model.TypeSignal:
		svc.handleSignal(ctx, connID, env)
	case model.TypeCallInvite:
		svc.handleCallInvite(ctx, userID, connID, env)
	case model.TypeCallAccepted:
		svc.handleRespond(ctx, userID, env, true)
	case model.TypeCallRejected:
		svc.handleRespond(ctx, userID, env, false)
	case model.TypeEndCall:
		svc.handleEndCall(ctx, userID, env)
	default:
		svc.logger.Debug().
			Str("type", env.Type).
			Str("connID", connID).
			Msg("unknown event type, dropped")
	}
}

func (svc *Service) handleJoinRoom(ctx context.Context, userID, connID string, env model.Envelope) {
	if env.Room == "" {
		svc.ack(ctx, connID, env.ID, model.RawPayload(model.JoinAck{Error: "invalid-room"}))
		return
	}

	res, err := svc.rooms.Join(env.Room, room.Member{ConnID: connID, UserID: userID})
	if err != nil {
		if errors.Is(err, room.ErrRoomFull) {
			svc.ack(ctx, connID, env.ID, model.RawPayload(model.JoinAck{Error: model.ReasonRoomFull}))
			svc.sender.Send(ctx, connID, model.Envelope{
				Type: model.TypeRoomFull,
				Room: env.Room,
			})
		}
		return
	}

	svc.ack(ctx, connID, env.ID, model.RawPayload(model.JoinAck{
		OK:          true,
		IsInitiator: res.Initiator,
		Peers:       toWireMembers(res.Peers),
	}))

	// switching rooms implicitly leaves the previous one; its remaining
	// member must not hang waiting for a peer that is gone
	if res.Departed != nil {
		svc.notifyLeft(ctx, res.Departed.RoomID, connID, model.ReasonHangup, res.Departed.Remaining)
	}

	if res.Rejoined {
		// idempotent re-join, no duplicate peer-joined
		return
	}
	joined := model.Envelope{
		Type:    model.TypePeerJoined,
		Room:    env.Room,
		From:    connID,
		Payload: model.RawPayload(model.Member{ConnID: connID, UserID: userID}),
	}
	for _, peer := range res.Peers {
		svc.sender.Send(ctx, peer.ConnID, joined)
	}
	svc.logger.Debug().
		Str("userID", userID).
		Str("roomID", env.Room).
		Bool("initiator", res.Initiator).
		Msg("user joined room")
}

func (svc *Service) handleLeaveRoom(ctx context.Context, connID string, env model.Envelope) {
	if env.Room == "" {
		svc.ack(ctx, connID, env.ID, model.RawPayload(model.Ack{Error: "invalid-room"}))
		return
	}
	_, remaining, left := svc.rooms.Leave(env.Room, connID)
	svc.ack(ctx, connID, env.ID, model.RawPayload(model.Ack{OK: true}))
	if left {
		svc.notifyLeft(ctx, env.Room, connID, env.Reason, remaining)
	}
}

// handleSignal relays one negotiation payload. Non-members and unknown
// payload kinds are dropped silently; a target outside the room is an
// authorization failure and is dropped without leaking room state.
func (svc *Service) handleSignal(ctx context.Context, connID string, env model.Envelope) {
	var sig model.Signal
	if err := json.Unmarshal(env.Payload, &sig); err != nil {
		svc.logger.Debug().Err(err).Str("connID", connID).Msg("malformed signal payload, dropped")
		return
	}
	switch sig.Type {
	case model.SignalOffer, model.SignalAnswer, model.SignalICE:
	default:
		return
	}
	if !svc.rooms.MemberOf(env.Room, connID) {
		return
	}

	out := model.Envelope{
		Type:    model.TypeSignal,
		Room:    env.Room,
		From:    connID,
		Payload: env.Payload,
	}
	if env.To != "" {
		if !svc.rooms.MemberOf(env.Room, env.To) {
			svc.logger.Debug().
				Str("connID", connID).
				Str("to", env.To).
				Str("roomID", env.Room).
				Msg("signal target is not a room member, dropped")
			return
		}
		svc.sender.Send(ctx, env.To, out)
		return
	}
	for _, peer := range svc.rooms.Peers(env.Room, connID) {
		svc.sender.Send(ctx, peer.ConnID, out)
	}
}

func (svc *Service) handleCallInvite(ctx context.Context, userID, connID string, env model.Envelope) {
	var inv model.Invite
	if err := json.Unmarshal(env.Payload, &inv); err != nil {
		svc.logger.Debug().Err(err).Str("connID", connID).Msg("malformed invite payload, dropped")
		return
	}
	if inv.ToUser == "" || env.Room == "" {
		return
	}
	if err := svc.calls.Invite(ctx, userID, connID, env.Room, inv); err != nil {
		svc.logger.Debug().
			Err(err).
			Str("caller", userID).
			Str("callee", inv.ToUser).
			Msg("invitation not delivered")
	}
}

func (svc *Service) handleRespond(ctx context.Context, userID string, env model.Envelope, accepted bool) {
	if env.To == "" || env.Room == "" {
		return
	}
	svc.calls.Respond(ctx, accepted, env.Room, userID, env.To, env.Reason)
}

// handleEndCall forces the caller's connections out of the room, then
// lets the bridge notify both sides.
func (svc *Service) handleEndCall(ctx context.Context, userID string, env model.Envelope) {
	if env.Room == "" {
		return
	}
	reason := env.Reason
	if reason == "" {
		reason = model.ReasonHangup
	}
	for _, connID := range svc.presence.ConnectionsOf(userID) {
		if _, remaining, left := svc.rooms.Leave(env.Room, connID); left {
			svc.notifyLeft(ctx, env.Room, connID, reason, remaining)
		}
	}
	svc.calls.End(ctx, env.Room, userID, env.To, reason)
}

func (svc *Service) notifyLeft(ctx context.Context, roomID, connID, reason string, remaining []room.Member) {
	env := model.Envelope{
		Type:   model.TypePeerLeft,
		Room:   roomID,
		From:   connID,
		Reason: reason,
	}
	for _, m := range remaining {
		svc.sender.Send(ctx, m.ConnID, env)
	}
}

func (svc *Service) ack(ctx context.Context, connID, reqID string, payload json.RawMessage) {
	svc.sender.Send(ctx, connID, model.Envelope{
		Type:    model.TypeAck,
		ID:      reqID,
		Payload: payload,
	})
}

func toWireMembers(in []room.Member) []model.Member {
	out := make([]model.Member, 0, len(in))
	for _, m := range in {
		out = append(out, model.Member{ConnID: m.ConnID, UserID: m.UserID})
	}
	return out
}
