package media

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"

	"github.com/BioHazard786/Duet/internal/config"
)

// Track kinds as used by Negotiator.ReplaceTrack.
const (
	KindVideo = "video"
	KindAudio = "audio"
)

// Library holds the local sources a call publishes.
type Library struct {
	Camera     *Source
	Screen     *Source
	Microphone *Source
}

// NewLibrary creates sources for the files named in cfg. Missing files give
// silent tracks so the call still negotiates audio and video.
func NewLibrary(cfg *config.Client, logger *slog.Logger) (*Library, error) {
	camera, err := NewVideoSource("camera", cfg.CameraFile, logger)
	if err != nil {
		return nil, err
	}
	screen, err := NewVideoSource("screen", cfg.ScreenFile, logger)
	if err != nil {
		return nil, err
	}
	mic, err := NewAudioSource("microphone", cfg.MicrophoneFile, logger)
	if err != nil {
		return nil, err
	}
	return &Library{Camera: camera, Screen: screen, Microphone: mic}, nil
}

// Tracks returns the tracks sent when a call starts: camera and microphone.
func (l *Library) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{l.Camera.Track(), l.Microphone.Track()}
}

// Play runs every source until ctx ends or one of them fails.
func (l *Library) Play(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range []*Source{l.Camera, l.Screen, l.Microphone} {
		g.Go(func() error { return s.Run(ctx) })
	}
	return g.Wait()
}

// SetVideoMuted mutes both video sources so switching doesn't unmute.
func (l *Library) SetVideoMuted(muted bool) {
	l.Camera.SetMuted(muted)
	l.Screen.SetMuted(muted)
}

// TrackReplacer swaps the outgoing track of one kind.
type TrackReplacer interface {
	ReplaceTrack(kind string, track webrtc.TrackLocal) error
}

// VideoSwitch toggles the outgoing video between camera and screen.
type VideoSwitch struct {
	mu        sync.Mutex
	lib       *Library
	screening bool
}

func NewVideoSwitch(lib *Library) *VideoSwitch {
	return &VideoSwitch{lib: lib}
}

// Sharing reports whether the screen is the current video.
func (v *VideoSwitch) Sharing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.screening
}

// Toggle replaces the video track with the other source and returns whether
// the screen is now shared. The state only flips when the swap succeeds.
func (v *VideoSwitch) Toggle(r TrackReplacer) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := v.lib.Screen
	if v.screening {
		next = v.lib.Camera
	}
	if err := r.ReplaceTrack(KindVideo, next.Track()); err != nil {
		return v.screening, err
	}
	v.screening = !v.screening
	return v.screening, nil
}

// Reset goes back to the camera without renegotiating, for a new peer
// connection that will be built from Tracks.
func (v *VideoSwitch) Reset() {
	v.mu.Lock()
	v.screening = false
	v.mu.Unlock()
}
