package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/peerline/peerline/model"
	"github.com/rs/zerolog"
)

const (
	defaultRequestTimeout = 5 * time.Second
	defaultReconnectMin   = time.Second
	defaultReconnectMax   = 30 * time.Second
	defaultWriteDeadline  = 5 * time.Second
)

var (
	ErrNotConnected   = errors.New("transport is not connected")
	ErrRequestTimeout = errors.New("no response from relay")
)

type (
	// Signaler is the controller's view of the relay connection.
	// Join and leave are request/acknowledgment round trips; the rest
	// are one-way pushes.
	Signaler interface {
		JoinRoom(ctx context.Context, roomID string) (model.JoinAck, error)
		LeaveRoom(ctx context.Context, roomID, reason string) error
		Signal(ctx context.Context, roomID, to string, sig model.Signal) error
		Invite(ctx context.Context, roomID string, inv model.Invite) error
		Respond(ctx context.Context, accepted bool, roomID, toUser, reason string) error
		End(ctx context.Context, roomID, toUser, reason string) error
	}

	// EventHandler receives pushed relay events. Calls are made from a
	// single goroutine and each handler runs to completion before the
	// next event is dispatched.
	EventHandler interface {
		HandleIncomingCall(env model.Envelope)
		HandleCalling(env model.Envelope)
		HandleSignal(env model.Envelope)
		HandlePeerJoined(env model.Envelope)
		HandlePeerLeft(env model.Envelope)
		HandleCallAccepted(env model.Envelope)
		HandleCallRejected(env model.Envelope)
		HandleEndCall(env model.Envelope)
		HandleRoomFull(env model.Envelope)
		HandleBusy(env model.Envelope)
		HandleTransportReconnected()
	}

	TransportConfig struct {
		URL            string
		Logger         *zerolog.Logger
		Handler        EventHandler
		RequestTimeout time.Duration
		ReconnectMin   time.Duration
		ReconnectMax   time.Duration
	}

	// Transport keeps one signaling connection to the relay, redialing
	// with backoff, correlating request acks, and feeding pushed events
	// to the handler in arrival order.
	Transport struct {
		url        string
		handler    EventHandler
		logger     zerolog.Logger
		reqTimeout time.Duration
		minDelay   time.Duration
		maxDelay   time.Duration

		mx      sync.Mutex
		conn    *websocket.Conn
		pending map[string]chan model.Envelope
	}
)

func NewTransport(cfg TransportConfig) *Transport {
	t := &Transport{
		url:        cfg.URL,
		handler:    cfg.Handler,
		logger:     cfg.Logger.With().Str("component", "signaling-transport").Logger(),
		reqTimeout: cfg.RequestTimeout,
		minDelay:   cfg.ReconnectMin,
		maxDelay:   cfg.ReconnectMax,
		pending:    make(map[string]chan model.Envelope),
	}
	if t.reqTimeout == 0 {
		t.reqTimeout = defaultRequestTimeout
	}
	if t.minDelay == 0 {
		t.minDelay = defaultReconnectMin
	}
	if t.maxDelay == 0 {
		t.maxDelay = defaultReconnectMax
	}
	return t
}

// Run dials the relay and keeps the connection alive until the context is
// canceled. After every successful re-dial the handler's reconnected hook
// fires so in-flight calls can re-derive their room state.
func (t *Transport) Run(ctx context.Context) error {
	var (
		first = true
		delay = t.minDelay
	)
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
		if err != nil {
			t.logger.Warn().Err(err).Dur("retry", delay).Msg("dial failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			if delay *= 2; delay > t.maxDelay {
				delay = t.maxDelay
			}
			continue
		}
		delay = t.minDelay

		t.mx.Lock()
		t.conn = conn
		t.mx.Unlock()
		t.logger.Info().Str("url", t.url).Msg("connected")

		if !first {
			t.handler.HandleTransportReconnected()
		}
		first = false

		t.readLoop(ctx, conn)

		t.mx.Lock()
		t.conn = nil
		for id, ch := range t.pending {
			close(ch)
			delete(t.pending, id)
		}
		t.mx.Unlock()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.logger.Warn().Msg("connection lost, redialing")
	}
}

func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()
	for {
		if ctx.Err() != nil {
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway) {
				t.logger.Warn().Err(err).Msg("connection closed")
			} else {
				t.logger.Error().Err(err).Msg("unexpected error during receive")
			}
			return
		}

		var env model.Envelope
		if err = json.Unmarshal(msg, &env); err != nil {
			t.logger.Error().Err(err).Msg("failed to unmarshall incoming message")
			continue
		}
		if env.Type == model.TypeAck {
			t.resolve(env)
			continue
		}
		t.dispatch(env)
	}
}

func (t *Transport) dispatch(env model.Envelope) {
	switch env.Type {
	case model.TypeIncomingCall:
		t.handler.HandleIncomingCall(env)
	case model.TypeCalling:
		t.handler.HandleCalling(env)
	case model.TypeSignal:
		t.handler.HandleSignal(env)
	case model.TypePeerJoined:
		t.handler.HandlePeerJoined(env)
	case model.TypePeerLeft:
		t.handler.HandlePeerLeft(env)
	case model.TypeCallAccepted:
		t.handler.HandleCallAccepted(env)
	case model.TypeCallRejected:
		t.handler.HandleCallRejected(env)
	case model.TypeEndCall:
		t.handler.HandleEndCall(env)
	case model.TypeRoomFull:
		t.handler.HandleRoomFull(env)
	case model.TypeBusy:
		t.handler.HandleBusy(env)
	default:
		t.logger.Debug().Str("type", env.Type).Msg("unknown event type, dropped")
	}
}

func (t *Transport) resolve(env model.Envelope) {
	t.mx.Lock()
	ch, ok := t.pending[env.ID]
	if ok {
		delete(t.pending, env.ID)
	}
	t.mx.Unlock()
	if ok {
		ch <- env
	}
}

// request sends the envelope and waits for its correlated ack.
func (t *Transport) request(ctx context.Context, env model.Envelope) (model.Envelope, error) {
	env.ID = uuid.NewString()
	ch := make(chan model.Envelope, 1)

	t.mx.Lock()
	t.pending[env.ID] = ch
	t.mx.Unlock()

	if err := t.send(env); err != nil {
		t.mx.Lock()
		delete(t.pending, env.ID)
		t.mx.Unlock()
		return model.Envelope{}, err
	}

	select {
	case <-ctx.Done():
		return model.Envelope{}, ctx.Err()
	case <-time.After(t.reqTimeout):
		t.mx.Lock()
		delete(t.pending, env.ID)
		t.mx.Unlock()
		return model.Envelope{}, ErrRequestTimeout
	case resp, ok := <-ch:
		if !ok {
			return model.Envelope{}, ErrNotConnected
		}
		return resp, nil
	}
}

func (t *Transport) send(env model.Envelope) error {
	t.mx.Lock()
	defer t.mx.Unlock()

	if t.conn == nil {
		return ErrNotConnected
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(defaultWriteDeadline)); err != nil {
		return err
	}
	return t.conn.WriteJSON(&env)
}

func (t *Transport) JoinRoom(ctx context.Context, roomID string) (model.JoinAck, error) {
	resp, err := t.request(ctx, model.Envelope{
		Type: model.TypeJoinRoom,
		Room: roomID,
	})
	if err != nil {
		return model.JoinAck{}, err
	}
	var ack model.JoinAck
	if err = json.Unmarshal(resp.Payload, &ack); err != nil {
		return model.JoinAck{}, err
	}
	return ack, nil
}

func (t *Transport) LeaveRoom(ctx context.Context, roomID, reason string) error {
	_, err := t.request(ctx, model.Envelope{
		Type:   model.TypeLeaveRoom,
		Room:   roomID,
		Reason: reason,
	})
	return err
}

func (t *Transport) Signal(_ context.Context, roomID, to string, sig model.Signal) error {
	return t.send(model.Envelope{
		Type:    model.TypeSignal,
		Room:    roomID,
		To:      to,
		Payload: model.RawPayload(sig),
	})
}

func (t *Transport) Invite(_ context.Context, roomID string, inv model.Invite) error {
	return t.send(model.Envelope{
		Type:    model.TypeCallInvite,
		Room:    roomID,
		Payload: model.RawPayload(inv),
	})
}

func (t *Transport) Respond(_ context.Context, accepted bool, roomID, toUser, reason string) error {
	msgType := model.TypeCallAccepted
	if !accepted {
		msgType = model.TypeCallRejected
	}
	return t.send(model.Envelope{
		Type:   msgType,
		Room:   roomID,
		To:     toUser,
		Reason: reason,
	})
}

func (t *Transport) End(_ context.Context, roomID, toUser, reason string) error {
	return t.send(model.Envelope{
		Type:   model.TypeEndCall,
		Room:   roomID,
		To:     toUser,
		Reason: reason,
	})
}
