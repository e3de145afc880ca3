package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// StreamID groups every local track into one remote MediaStream.
const StreamID = "duet"

const (
	opusSampleRate  = 48000
	oggPageDuration = 20 * time.Millisecond
)

var ErrNoFrames = errors.New("media file contains no frames")

// SampleWriter receives paced media samples.
type SampleWriter interface {
	WriteSample(pionmedia.Sample) error
}

type format int

const (
	formatIVF format = iota
	formatOgg
)

// Source plays a media file into a local track in a loop, standing in for a
// capture device. A source without a file keeps its track silent.
type Source struct {
	name   string
	path   string
	format format
	track  *webrtc.TrackLocalStaticSample
	muted  atomic.Bool
	log    *slog.Logger
}

// NewVideoSource creates a VP8 track fed from an IVF file.
func NewVideoSource(name, path string, logger *slog.Logger) (*Source, error) {
	return newSource(name, path, formatIVF, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, logger)
}

// NewAudioSource creates an Opus track fed from an Ogg file.
func NewAudioSource(name, path string, logger *slog.Logger) (*Source, error) {
	return newSource(name, path, formatOgg, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, logger)
}

func newSource(name, path string, f format, codec webrtc.RTPCodecCapability, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	track, err := webrtc.NewTrackLocalStaticSample(codec, name, StreamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", name, err)
	}
	return &Source{
		name:   name,
		path:   path,
		format: f,
		track:  track,
		log:    logger.With("source", name),
	}, nil
}

func (s *Source) Name() string { return s.name }

func (s *Source) Track() *webrtc.TrackLocalStaticSample { return s.track }

// SetMuted stops or resumes writing samples. Pacing continues while muted
// so unmuting resumes mid-file rather than bursting.
func (s *Source) SetMuted(muted bool) { s.muted.Store(muted) }

func (s *Source) Muted() bool { return s.muted.Load() }

// Run plays the file until ctx is cancelled, starting over at each EOF.
func (s *Source) Run(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	for {
		err := s.playOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("play %s: %w", s.path, err)
		}
		s.log.Debug("restarting media file")
	}
}

func (s *Source) playOnce(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	var frames int
	switch s.format {
	case formatIVF:
		frames, err = streamIVF(ctx, f, s.track, s.muted.Load)
	default:
		frames, err = streamOgg(ctx, f, s.track, s.muted.Load)
	}
	if errors.Is(err, io.EOF) {
		err = nil
	}
	if err == nil && frames == 0 {
		err = ErrNoFrames
	}
	return err
}

// streamIVF writes IVF frames to w paced by the file's timebase. It returns
// the number of frames read and io.EOF at the end of the file.
func streamIVF(ctx context.Context, r io.Reader, w SampleWriter, muted func() bool) (int, error) {
	reader, header, err := ivfreader.NewWith(r)
	if err != nil {
		return 0, err
	}

	frameDuration := time.Second * time.Duration(header.TimebaseNumerator) / time.Duration(header.TimebaseDenominator)
	if frameDuration <= 0 {
		return 0, fmt.Errorf("invalid IVF timebase %d/%d", header.TimebaseNumerator, header.TimebaseDenominator)
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	frames := 0
	for {
		frame, _, err := reader.ParseNextFrame()
		if err != nil {
			return frames, err
		}
		frames++

		if !muted() {
			if err := w.WriteSample(pionmedia.Sample{Data: frame, Duration: frameDuration}); err != nil {
				return frames, err
			}
		}

		select {
		case <-ctx.Done():
			return frames, ctx.Err()
		case <-ticker.C:
		}
	}
}

// streamOgg writes Ogg/Opus pages to w, one page per tick. Sample durations
// come from the granule position delta.
func streamOgg(ctx context.Context, r io.Reader, w SampleWriter, muted func() bool) (int, error) {
	reader, _, err := oggreader.NewWith(r)
	if err != nil {
		return 0, err
	}

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	pages := 0
	for {
		page, header, err := reader.ParseNextPage()
		if err != nil {
			return pages, err
		}
		pages++

		duration := granuleDuration(lastGranule, header.GranulePosition)
		lastGranule = header.GranulePosition

		if !muted() {
			if err := w.WriteSample(pionmedia.Sample{Data: page, Duration: duration}); err != nil {
				return pages, err
			}
		}

		select {
		case <-ctx.Done():
			return pages, ctx.Err()
		case <-ticker.C:
		}
	}
}

// granuleDuration converts an Opus granule delta into playback time.
func granuleDuration(last, current uint64) time.Duration {
	if current <= last {
		return 0
	}
	return time.Duration(current-last) * time.Second / opusSampleRate
}
