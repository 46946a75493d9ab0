package _switch

import (
	"context"
	"sync"
	"time"

	"github.com/peerline/peerline/model"
	"github.com/rs/zerolog"
)

const (
	defaultFwdTimout = time.Second
)

// Switch owns the outbound wire of every live transport connection and
// pushes envelopes into them with a bounded wait, so one dead endpoint
// cannot stall delivery to others.
type Switch struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	wires  map[string]model.Wire
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		mx:     &sync.RWMutex{},
		wires:  make(map[string]model.Wire),
	}
}

func (sw *Switch) Connect(connID string, wire model.Wire) {
	sw.mx.Lock()
	sw.wires[connID] = wire
	sw.mx.Unlock()
	sw.logger.Debug().
		Str("connID", connID).
		Msg("endpoint connected")
}

func (sw *Switch) Disconnect(connID string) {
	sw.mx.Lock()
	delete(sw.wires, connID)
	sw.mx.Unlock()
	sw.logger.Debug().
		Str("connID", connID).
		Msg("endpoint disconnected")
}

// Send pushes the envelope to one connection. It reports whether the
// envelope was handed to the connection's sender before the forward
// timeout elapsed.
func (sw *Switch) Send(ctx context.Context, connID string, env model.Envelope) bool {
	sw.mx.RLock()
	wire, ok := sw.wires[connID]
	sw.mx.RUnlock()

	logger := sw.logger.With().
		Str("connID", connID).
		Str("type", env.Type).
		Logger()

	if !ok {
		logger.Debug().Msg("cannot forward, endpoint not found")
		return false
	}

	var sent bool
	tCh := time.NewTimer(defaultFwdTimout)
	select {
	case <-ctx.Done():
	case <-tCh.C:
		logger.Error().Msg("dead endpoint")
	case wire.TX <- env:
		logger.Trace().Msg("envelope forwarded")
		sent = true
	}
	tCh.Stop()
	return sent
}
