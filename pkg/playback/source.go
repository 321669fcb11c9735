package playback

import "context"

// EventKind names the asynchronous events a media source emits.
type EventKind string

const (
	EventPlaying        EventKind = "playing"
	EventPaused         EventKind = "paused"
	EventEnded          EventKind = "ended"
	EventTimeUpdate     EventKind = "timeupdate"
	EventDurationChange EventKind = "durationchange"
	EventError          EventKind = "error"
)

// Event is one notification from the media source. Position and Duration
// are in seconds and only meaningful for timeupdate and durationchange.
type Event struct {
	Kind     EventKind
	Position float64
	Duration float64
	Err      error
}

// Source is one attachable media resource. Commands are requests; the
// source reports what actually happened through its event handler, and
// those events are the authoritative playback state.
//
// Implementations must deliver events from their own goroutine, never
// synchronously from inside a command call.
type Source interface {
	// Load resolves the track URL and prepares the resource for playback.
	Load(ctx context.Context, url string) error
	// Play requests playback. A definitive refusal is returned as an error.
	Play() error
	// Pause requests a pause.
	Pause() error
	// Seek requests a new position, in seconds.
	Seek(seconds float64) error
	// SetVolume applies a volume in percent, 0 to 100.
	SetVolume(percent int)
	// Close stops playback and releases the resource.
	Close() error
}

// SourceFactory builds a fresh source bound to an event handler. The
// manager creates one source per attachment and closes it on detach.
type SourceFactory func(onEvent func(Event)) Source
