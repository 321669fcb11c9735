// Package playback owns the single playback session: zero or one media
// resource, the transport commands against it, and the session state the
// resource's events drive.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"podcastle/pkg/model"
)

// State is the playback session state.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateEnded   State = "ended"
	StateErrored State = "errored"
)

// ErrPlaybackRejected wraps a definitive refusal from the media source.
var ErrPlaybackRejected = errors.New("playback rejected")

// eventState maps each state-bearing resource event onto the session
// state it dictates. Events outrank commands: whatever was requested,
// the session always reconciles to the latest event.
var eventState = map[EventKind]State{
	EventPlaying: StatePlaying,
	EventPaused:  StatePaused,
	EventEnded:   StateEnded,
	EventError:   StateErrored,
}

// Status is a read-side snapshot of the session.
type Status struct {
	State    State   `json:"state"`
	TrackID  string  `json:"track_id,omitempty"`
	Title    string  `json:"title,omitempty"`
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
	Volume   int     `json:"volume"`
	Error    string  `json:"error,omitempty"`
}

// Manager is the playback session manager. It holds at most one source
// attachment at a time; switching tracks detaches the old source fully
// before the new one is bound.
type Manager struct {
	mu        sync.RWMutex
	newSource SourceFactory

	src      Source
	gen      uint64 // attachment generation, events from stale sources are dropped
	state    State
	track    model.Track
	position float64
	duration float64
	volume   int
	lastErr  error
}

// New creates an idle manager. volume is the initial volume in percent.
func New(factory SourceFactory, volume int) *Manager {
	return &Manager{
		newSource: factory,
		state:     StateIdle,
		volume:    clampVolume(volume),
	}
}

// PlayTrack plays the given track. If the track is already attached this
// is a transport toggle, not a reload. Otherwise the current attachment
// is detached and the new track is loaded and started.
func (m *Manager) PlayTrack(ctx context.Context, track model.Track) error {
	m.mu.Lock()

	if m.src != nil && m.track.ID == track.ID {
		m.mu.Unlock()
		m.TogglePlayPause()
		return nil
	}

	m.detachLocked()

	m.state = StateLoading
	m.track = track
	m.position = 0
	m.duration = 0
	m.lastErr = nil

	gen := m.gen
	src := m.newSource(func(ev Event) { m.handleEvent(gen, ev) })
	m.src = src
	vol := m.volume
	m.mu.Unlock()

	slog.Info("Playback: Loading track", "id", track.ID, "title", track.Title)

	if err := src.Load(ctx, track.AudioURL); err != nil {
		return m.reject(gen, fmt.Errorf("load %q: %w", track.ID, err))
	}
	src.SetVolume(vol)
	if err := src.Play(); err != nil {
		return m.reject(gen, fmt.Errorf("play %q: %w", track.ID, err))
	}
	return nil
}

// TogglePlayPause pauses a playing session or starts a paused one.
// Command errors are logged and leave the session state untouched; the
// next resource event settles what actually happened.
func (m *Manager) TogglePlayPause() {
	m.mu.RLock()
	src := m.src
	state := m.state
	m.mu.RUnlock()

	if src == nil {
		slog.Debug("Playback: Toggle with no track attached")
		return
	}

	var err error
	switch state {
	case StatePlaying:
		err = src.Pause()
	case StatePaused, StateEnded, StateLoading, StateErrored:
		err = src.Play()
	default:
		return
	}
	if err != nil {
		slog.Warn("Playback: Transport command failed", "state", state, "error", err)
	}
}

// Seek moves the playhead to seconds, clamped to [0, duration]. The
// position is updated optimistically so the UI tracks the request; the
// resource's next timeupdate corrects it if the seek landed elsewhere.
func (m *Manager) Seek(seconds float64) {
	m.mu.Lock()
	src := m.src
	if src == nil {
		m.mu.Unlock()
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	if m.duration > 0 && seconds > m.duration {
		seconds = m.duration
	}
	m.position = seconds
	m.mu.Unlock()

	if err := src.Seek(seconds); err != nil {
		slog.Warn("Playback: Seek failed", "seconds", seconds, "error", err)
	}
}

// SetVolume applies a volume in percent, clamped to [0, 100]. The value
// belongs to the session, not the track, so it survives track changes.
func (m *Manager) SetVolume(percent int) {
	percent = clampVolume(percent)

	m.mu.Lock()
	m.volume = percent
	src := m.src
	m.mu.Unlock()

	if src != nil {
		src.SetVolume(percent)
	}
}

// Volume returns the session volume in percent.
func (m *Manager) Volume() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.volume
}

// Detach stops playback, releases the source, and returns to Idle.
func (m *Manager) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detachLocked()
	m.state = StateIdle
	m.track = model.Track{}
	m.position = 0
	m.duration = 0
	m.lastErr = nil
}

// Snapshot returns the current session state.
func (m *Manager) Snapshot() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Status{
		State:    m.state,
		TrackID:  m.track.ID,
		Title:    m.track.Title,
		Position: m.position,
		Duration: m.duration,
		Volume:   m.volume,
	}
	if m.lastErr != nil {
		st.Error = m.lastErr.Error()
	}
	return st
}

// detachLocked releases the current attachment. The generation bump
// makes any event still in flight from the old source a stale no-op.
func (m *Manager) detachLocked() {
	if m.src == nil {
		return
	}
	if err := m.src.Pause(); err != nil {
		slog.Debug("Playback: Pause during detach failed", "error", err)
	}
	if err := m.src.Close(); err != nil {
		slog.Warn("Playback: Source close failed", "error", err)
	}
	m.src = nil
	m.gen++
}

// reject records a definitive playback refusal for the given attachment
// and surfaces it to the caller.
func (m *Manager) reject(gen uint64, err error) error {
	m.mu.Lock()
	if gen == m.gen {
		m.state = StateErrored
		m.lastErr = err
	}
	m.mu.Unlock()

	slog.Warn("Playback: Track rejected", "error", err)
	return fmt.Errorf("%w: %v", ErrPlaybackRejected, err)
}

// handleEvent folds one resource event into the session. Events from a
// detached source are discarded.
func (m *Manager) handleEvent(gen uint64, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return
	}

	switch ev.Kind {
	case EventTimeUpdate:
		m.position = ev.Position
	case EventDurationChange:
		m.duration = ev.Duration
	case EventError:
		m.lastErr = ev.Err
		m.state = eventState[ev.Kind]
		slog.Warn("Playback: Source reported error", "track", m.track.ID, "error", ev.Err)
	default:
		if next, ok := eventState[ev.Kind]; ok {
			if m.state != next {
				slog.Debug("Playback: State change", "from", m.state, "to", next)
			}
			m.state = next
			if ev.Kind == EventEnded && m.duration > 0 {
				m.position = m.duration
			}
		}
	}
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
