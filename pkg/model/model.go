package model

import (
	"time"
)

// JobState describes where a generation job is in its lifecycle.
// States form a total order: Queued -> Generating -> {Completed | Failed}.
// A job never moves backward.
type JobState string

const (
	StateQueued     JobState = "queued"
	StateGenerating JobState = "generating"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
)

// rank maps states onto the progress order. Completed and Failed share the
// top rank; they are alternative terminals, not steps past each other.
func (s JobState) rank() int {
	switch s {
	case StateQueued:
		return 0
	case StateGenerating:
		return 1
	case StateCompleted, StateFailed:
		return 2
	}
	return -1
}

// Valid reports whether s is a known state.
func (s JobState) Valid() bool {
	return s.rank() >= 0
}

// Terminal reports whether s is a terminal state.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Active reports whether a job in this state is still being generated
// and therefore belongs in the poll set.
func (s JobState) Active() bool {
	return s == StateQueued || s == StateGenerating
}

// CanAdvanceTo reports whether a transition from s to next is legitimate.
// Re-observing the same state is always allowed (idempotent polling).
func (s JobState) CanAdvanceTo(next JobState) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	// Completed and Failed share a rank but are not interchangeable.
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// SpeakerMode selects single-host or two-host generation.
type SpeakerMode string

const (
	SpeakerSingle SpeakerMode = "single"
	SpeakerTwo    SpeakerMode = "two"
)

// Job is one podcast generation request and its tracked lifecycle.
// ID is assigned by the backend on creation and never changes.
type Job struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Topic      string `json:"topic"`
	CategoryID string `json:"category_id"`

	// Generation settings
	Duration    int         `json:"duration"` // requested length, minutes
	SpeakerMode SpeakerMode `json:"speaker_mode"`

	// Tracked status
	State    JobState `json:"state"`
	Progress int      `json:"progress"` // 0-100, meaningful only while active
	Stage    string   `json:"stage"`    // advisory phase label from the backend

	// Outcome; ResultURL is set iff Completed, ErrorMessage iff Failed.
	ResultURL    string `json:"result_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Track identifies a playable artifact for the playback session.
type Track struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	AudioURL string `json:"audio_url"`
}

// TrackOf returns the playable track for a completed job.
func (j *Job) TrackOf() Track {
	return Track{ID: j.ID, Title: j.Title, AudioURL: j.ResultURL}
}

// StatusReply is one fresh observation of a job from the status endpoint.
type StatusReply struct {
	ID           string   `json:"id"`
	State        JobState `json:"status"`
	Progress     int      `json:"progress"`
	Stage        string   `json:"stage"`
	ResultURL    string   `json:"audio_url,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// Category groups published podcasts for discovery.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

// CreateRequest is the payload for a new generation request.
type CreateRequest struct {
	Topic       string      `json:"topic"`
	CategoryID  string      `json:"category_id"`
	Duration    int         `json:"duration"`
	SpeakerMode SpeakerMode `json:"speaker_mode"`
}
