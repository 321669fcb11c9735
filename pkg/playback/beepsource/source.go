// Package beepsource implements the playback source contract on top of
// gopxl/beep: it fetches the track artifact, decodes it, and republishes
// the speaker's lifecycle as playback events.
package beepsource

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"

	"podcastle/pkg/auth"
	"podcastle/pkg/playback"
)

const (
	targetSampleRate = beep.SampleRate(48000)
	tickInterval     = 500 * time.Millisecond
)

var speakerOnce sync.Once

// ensureSpeaker initializes the global speaker exactly once at 48kHz.
func ensureSpeaker() error {
	var err error
	speakerOnce.Do(func() {
		err = speaker.Init(targetSampleRate, targetSampleRate.N(time.Second/10))
	})
	return err
}

// Fetcher downloads a remote artifact to a local path.
type Fetcher interface {
	Download(ctx context.Context, u, destPath string, headers map[string]string) error
}

// CredentialSource supplies the bearer credential for artifact fetches.
type CredentialSource interface {
	Current() auth.Credential
}

// Factory builds one beep-backed source per attachment. Track URLs may
// be absolute or relative to the backend base.
type Factory struct {
	fetch   Fetcher
	creds   CredentialSource
	baseURL *url.URL
}

// NewFactory creates a factory. baseURL is the backend API root used to
// resolve relative audio URLs.
func NewFactory(fetch Fetcher, creds CredentialSource, baseURL string) (*Factory, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend base url: %w", err)
	}
	return &Factory{fetch: fetch, creds: creds, baseURL: base}, nil
}

// Source builds a fresh source bound to onEvent. It satisfies
// playback.SourceFactory.
func (f *Factory) Source(onEvent func(playback.Event)) playback.Source {
	s := &source{
		factory: f,
		onEvent: onEvent,
		events:  make(chan playback.Event, 16),
		done:    make(chan struct{}),
		volume:  100,
	}
	go s.dispatch()
	return s
}

type source struct {
	factory *Factory
	onEvent func(playback.Event)

	// events serializes event delivery so the manager observes them in
	// the order they happened.
	events chan playback.Event
	done   chan struct{}

	mu       sync.Mutex
	ctrl     *beep.Ctrl
	vol      *effects.Volume
	streamer beep.StreamSeekCloser
	format   beep.Format
	tmpPath  string
	volume   int
	started  bool
	closed   bool
}

func (s *source) dispatch() {
	for {
		select {
		case ev := <-s.events:
			s.onEvent(ev)
		case <-s.done:
			return
		}
	}
}

// emit queues an event for asynchronous delivery. Events are dropped
// once the source is closed or the queue overflows.
func (s *source) emit(ev playback.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	default:
		slog.Debug("BeepSource: Event queue full, dropping", "kind", ev.Kind)
	}
}

// Load fetches the track artifact to a temp file and decodes it. The
// decoded duration is published before Load returns.
func (s *source) Load(ctx context.Context, trackURL string) error {
	resolved, err := s.resolve(trackURL)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "podcastle-*.audio")
	if err != nil {
		return fmt.Errorf("failed to create audio temp file: %w", err)
	}
	tmp.Close()

	headers := map[string]string{}
	if s.factory.creds != nil {
		headers = s.factory.creds.Current().Header()
	}
	if err := s.factory.fetch.Download(ctx, resolved, tmp.Name(), headers); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to fetch track: %w", err)
	}

	streamer, format, err := decode(tmp.Name())
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if err := ensureSpeaker(); err != nil {
		streamer.Close()
		os.Remove(tmp.Name())
		slog.Error("BeepSource: Failed to initialize speaker", "error", err)
		return err
	}

	s.mu.Lock()
	s.streamer = streamer
	s.format = format
	s.tmpPath = tmp.Name()
	s.mu.Unlock()

	s.emit(playback.Event{
		Kind:     playback.EventDurationChange,
		Duration: format.SampleRate.D(streamer.Len()).Seconds(),
	})
	slog.Debug("BeepSource: Track loaded", "url", resolved, "path", tmp.Name())
	return nil
}

// resolve joins a relative track URL onto the backend base.
func (s *source) resolve(trackURL string) (string, error) {
	u, err := url.Parse(trackURL)
	if err != nil {
		return "", fmt.Errorf("invalid track url %q: %w", trackURL, err)
	}
	if u.IsAbs() {
		return trackURL, nil
	}
	return s.factory.baseURL.ResolveReference(u).String(), nil
}

// Play starts or resumes playback. The first call hands the stream to
// the speaker; later calls just unpause.
func (s *source) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("source closed")
	}
	if s.streamer == nil {
		return fmt.Errorf("no track loaded")
	}

	if !s.started {
		resampled := beep.Resample(3, s.format.SampleRate, targetSampleRate, s.streamer)
		s.vol = &effects.Volume{
			Streamer: resampled,
			Base:     2,
			Volume:   percentToPower(s.volume),
			Silent:   s.volume <= 0,
		}
		s.ctrl = &beep.Ctrl{Streamer: s.vol}

		speaker.Play(beep.Seq(s.ctrl, beep.Callback(func() {
			// Runs on the speaker goroutine, get off it quickly.
			go s.emit(playback.Event{Kind: playback.EventEnded})
		})))
		s.started = true
		go s.tickLoop()
	} else {
		speaker.Lock()
		s.ctrl.Paused = false
		speaker.Unlock()
	}

	s.emit(playback.Event{Kind: playback.EventPlaying})
	return nil
}

// Pause suspends playback.
func (s *source) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl == nil {
		return nil
	}
	speaker.Lock()
	s.ctrl.Paused = true
	speaker.Unlock()

	s.emit(playback.Event{Kind: playback.EventPaused})
	return nil
}

// Seek repositions the stream, clamped to its length.
func (s *source) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamer == nil {
		return fmt.Errorf("no track loaded")
	}

	sample := s.format.SampleRate.N(time.Duration(seconds * float64(time.Second)))
	if sample < 0 {
		sample = 0
	}
	if max := s.streamer.Len(); sample > max {
		sample = max
	}

	speaker.Lock()
	err := s.streamer.Seek(sample)
	speaker.Unlock()
	if err != nil {
		return fmt.Errorf("seek failed: %w", err)
	}

	s.emit(playback.Event{
		Kind:     playback.EventTimeUpdate,
		Position: s.format.SampleRate.D(sample).Seconds(),
	})
	return nil
}

// SetVolume maps a 0..100 percent onto beep's exponential volume. Calls
// made before Play are remembered and applied when the stream starts.
func (s *source) SetVolume(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.volume = percent
	if s.vol == nil {
		return
	}
	speaker.Lock()
	s.vol.Volume = percentToPower(percent)
	s.vol.Silent = percent <= 0
	speaker.Unlock()
}

// Close stops playback, releases the stream, and deletes the fetched
// artifact. No events are delivered after Close returns.
func (s *source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	if s.started {
		speaker.Clear()
	}
	if s.streamer != nil {
		s.streamer.Close()
		s.streamer = nil
	}
	if s.tmpPath != "" {
		if err := os.Remove(s.tmpPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("BeepSource: Failed to remove audio artifact", "path", s.tmpPath, "error", err)
		}
		s.tmpPath = ""
	}
	return nil
}

// tickLoop publishes the playhead position twice a second while the
// source is live.
func (s *source) tickLoop() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.streamer == nil || s.ctrl == nil {
				s.mu.Unlock()
				continue
			}
			paused := s.ctrl.Paused
			pos := s.format.SampleRate.D(s.streamer.Position()).Seconds()
			s.mu.Unlock()

			if !paused {
				s.emit(playback.Event{Kind: playback.EventTimeUpdate, Position: pos})
			}
		}
	}
}

// decode opens the file as mp3 first, then wav.
func decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	streamer, format, err := mp3.Decode(f)
	if err == nil {
		return streamer, format, nil
	}

	// The failed mp3 attempt leaves the reader position uncertain.
	f.Close()
	f, err = os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	streamer, format, err = wav.Decode(f)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("unsupported audio format: %w", err)
	}
	return streamer, format, nil
}

// percentToPower maps 0..100 linear volume onto beep's base-2 exponent.
func percentToPower(percent int) float64 {
	v := float64(percent) / 100
	if v <= 0.01 {
		return -10
	}
	if v > 1 {
		v = 1
	}
	return math.Log2(v)
}

