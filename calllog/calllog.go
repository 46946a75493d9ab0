// Package calllog provides call history sinks. Sinks are fire-and-forget:
// the bridge hands records off asynchronously and never waits on them.
package calllog

import (
	"github.com/peerline/peerline/bridge"
	"github.com/rs/zerolog"
)

// ZerologSink writes finished call records to the structured log.
type ZerologSink struct {
	logger zerolog.Logger
}

func NewZerologSink(logger *zerolog.Logger) *ZerologSink {
	return &ZerologSink{
		logger: logger.With().Str("component", "call-log").Logger(),
	}
}

func (s *ZerologSink) Record(e bridge.Entry) {
	s.logger.Info().
		Str("caller", e.CallerID).
		Str("callee", e.CalleeID).
		Str("kind", e.Kind).
		Str("outcome", e.Outcome).
		Dur("duration", e.Duration).
		Msg("call finished")
}
