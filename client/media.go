package client

import (
	"context"
	"errors"
	"sync"

	"github.com/peerline/peerline/model"
	"github.com/pion/webrtc/v4"
)

var (
	ErrMediaUnavailable = errors.New("local media unavailable")
	ErrMediaBusy        = errors.New("local media already captured")
)

type (
	// MediaSource hands out exclusive access to local capture. At most
	// one LocalMedia may be live at a time; Acquire fails with
	// ErrMediaBusy until the previous one is stopped.
	MediaSource interface {
		Acquire(ctx context.Context, kind string) (*LocalMedia, error)
	}

	// LocalMedia is one live capture session.
	LocalMedia struct {
		Tracks []webrtc.TrackLocal

		once sync.Once
		stop func()
	}
)

// Stop releases the capture. Safe to call more than once.
func (m *LocalMedia) Stop() {
	m.once.Do(func() {
		if m.stop != nil {
			m.stop()
		}
	})
}

// StaticSource serves pre-built local tracks: headless senders, test
// rigs, or callers that manage capture devices themselves.
type StaticSource struct {
	Audio webrtc.TrackLocal
	Video webrtc.TrackLocal

	mx   sync.Mutex
	busy bool
}

func (s *StaticSource) Acquire(_ context.Context, kind string) (*LocalMedia, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.busy {
		return nil, ErrMediaBusy
	}
	if s.Audio == nil {
		return nil, ErrMediaUnavailable
	}

	tracks := []webrtc.TrackLocal{s.Audio}
	if kind == model.CallKindVideo {
		if s.Video == nil {
			return nil, ErrMediaUnavailable
		}
		tracks = append(tracks, s.Video)
	}

	s.busy = true
	return &LocalMedia{
		Tracks: tracks,
		stop: func() {
			s.mx.Lock()
			s.busy = false
			s.mx.Unlock()
		},
	}, nil
}
