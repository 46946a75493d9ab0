package client

import (
	"encoding/json"

	"github.com/peerline/peerline/model"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type (
	// PeerLink is the negotiation surface of one peer connection. The
	// controller drives it purely through wire-shaped signals so the
	// state machine stays testable without a media stack.
	PeerLink interface {
		CreateOffer(iceRestart bool) (model.Signal, error)
		ApplyOffer(sig model.Signal) error
		CreateAnswer() (model.Signal, error)
		ApplyAnswer(sig model.Signal) error
		Rollback() error
		AddICECandidate(sig model.Signal) error
		OnICECandidate(fn func(model.Signal))
		OnStateChange(fn func(webrtc.PeerConnectionState))
		Close() error
	}

	// LinkFactory builds a fresh PeerLink carrying the given local tracks.
	LinkFactory func(tracks []webrtc.TrackLocal) (PeerLink, error)
)

// PionLink implements PeerLink on a pion PeerConnection.
type PionLink struct {
	pc      *webrtc.PeerConnection
	logger  zerolog.Logger
	onICE   func(model.Signal)
	onState func(webrtc.PeerConnectionState)
}

func DefaultRTCConfiguration() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

func NewPionLink(cfg webrtc.Configuration, tracks []webrtc.TrackLocal, logger *zerolog.Logger) (*PionLink, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	for _, track := range tracks {
		if _, err = pc.AddTrack(track); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}

	link := &PionLink{
		pc:     pc,
		logger: logger.With().Str("component", "peer-link").Logger(),
	}
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || link.onICE == nil {
			return
		}
		b, mErr := json.Marshal(cand.ToJSON())
		if mErr != nil {
			link.logger.Error().Err(mErr).Msg("failed to marshall candidate")
			return
		}
		link.onICE(model.Signal{Type: model.SignalICE, Candidate: b})
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		link.logger.Debug().Str("state", s.String()).Msg("connection state changed")
		if link.onState != nil {
			link.onState(s)
		}
	})
	return link, nil
}

// NewPionLinkFactory binds a configuration to a LinkFactory.
func NewPionLinkFactory(cfg webrtc.Configuration, logger *zerolog.Logger) LinkFactory {
	return func(tracks []webrtc.TrackLocal) (PeerLink, error) {
		return NewPionLink(cfg, tracks, logger)
	}
}

func (l *PionLink) CreateOffer(iceRestart bool) (model.Signal, error) {
	var opts *webrtc.OfferOptions
	if iceRestart {
		opts = &webrtc.OfferOptions{ICERestart: true}
	}
	offer, err := l.pc.CreateOffer(opts)
	if err != nil {
		return model.Signal{}, err
	}
	if err = l.pc.SetLocalDescription(offer); err != nil {
		return model.Signal{}, err
	}
	return model.Signal{
		Type:       model.SignalOffer,
		SDP:        offer.SDP,
		ICERestart: iceRestart,
	}, nil
}

func (l *PionLink) ApplyOffer(sig model.Signal) error {
	return l.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sig.SDP,
	})
}

func (l *PionLink) CreateAnswer() (model.Signal, error) {
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return model.Signal{}, err
	}
	if err = l.pc.SetLocalDescription(answer); err != nil {
		return model.Signal{}, err
	}
	return model.Signal{
		Type: model.SignalAnswer,
		SDP:  answer.SDP,
	}, nil
}

func (l *PionLink) ApplyAnswer(sig model.Signal) error {
	return l.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sig.SDP,
	})
}

// Rollback discards the in-flight local offer, returning signaling state
// to stable so a remote offer can be applied.
func (l *PionLink) Rollback() error {
	return l.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeRollback,
	})
}

func (l *PionLink) AddICECandidate(sig model.Signal) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(sig.Candidate, &init); err != nil {
		return err
	}
	return l.pc.AddICECandidate(init)
}

func (l *PionLink) OnICECandidate(fn func(model.Signal)) {
	l.onICE = fn
}

func (l *PionLink) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	l.onState = fn
}

func (l *PionLink) Close() error {
	return l.pc.Close()
}
