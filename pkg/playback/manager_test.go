package playback

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podcastle/pkg/model"
)

// fakeSource records commands and lets tests fire events through the
// handler the manager bound at attach time.
type fakeSource struct {
	mu      sync.Mutex
	onEvent func(Event)
	loads   []string
	plays   int
	pauses  int
	seeks   []float64
	volumes []int
	closed  bool
	playErr error
	loadErr error
}

func (s *fakeSource) Load(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads = append(s.loads, url)
	return s.loadErr
}

func (s *fakeSource) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays++
	return s.playErr
}

func (s *fakeSource) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses++
	return nil
}

func (s *fakeSource) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeks = append(s.seeks, seconds)
	return nil
}

func (s *fakeSource) SetVolume(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes = append(s.volumes, percent)
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) emit(ev Event) {
	s.mu.Lock()
	h := s.onEvent
	s.mu.Unlock()
	h(ev)
}

// sourceRig hands out fake sources and remembers every one it built.
type sourceRig struct {
	mu      sync.Mutex
	sources []*fakeSource
	next    *fakeSource // preconfigured source for the next attach, optional
}

func (r *sourceRig) factory(onEvent func(Event)) Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.next
	if s == nil {
		s = &fakeSource{}
	}
	r.next = nil
	s.onEvent = onEvent
	r.sources = append(r.sources, s)
	return s
}

func (r *sourceRig) last() *fakeSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sources[len(r.sources)-1]
}

func trackA() model.Track {
	return model.Track{ID: "track-a", Title: "Episode A", AudioURL: "https://cdn.example/a.mp3"}
}

func TestPlayTrack_FromIdle(t *testing.T) {
	rig := &sourceRig{}
	m := New(rig.factory, 80)
	a := trackA()

	require.NoError(t, m.PlayTrack(context.Background(), a))

	src := rig.last()
	assert.Equal(t, []string{a.AudioURL}, src.loads)
	assert.Equal(t, 1, src.plays)
	assert.Equal(t, []int{80}, src.volumes, "session volume applied to the new attachment")
	assert.Equal(t, StateLoading, m.Snapshot().State, "state stays Loading until the source confirms")

	src.emit(Event{Kind: EventDurationChange, Duration: 300})
	src.emit(Event{Kind: EventPlaying})

	st := m.Snapshot()
	assert.Equal(t, StatePlaying, st.State)
	assert.Equal(t, a.ID, st.TrackID)
	assert.Equal(t, 300.0, st.Duration)
}

func TestPlayTrack_SameTrackTogglesWithoutReload(t *testing.T) {
	rig := &sourceRig{}
	m := New(rig.factory, 80)
	a := trackA()

	require.NoError(t, m.PlayTrack(context.Background(), a))
	src := rig.last()
	src.emit(Event{Kind: EventPlaying})

	// Same track again: transport toggle, no new attachment
	require.NoError(t, m.PlayTrack(context.Background(), a))
	assert.Len(t, rig.sources, 1)
	assert.Len(t, src.loads, 1)
	assert.Equal(t, 1, src.pauses)

	src.emit(Event{Kind: EventPaused})
	assert.Equal(t, StatePaused, m.Snapshot().State)

	// And again: back to play
	require.NoError(t, m.PlayTrack(context.Background(), a))
	assert.Equal(t, 2, src.plays)
}

func TestPlayTrack_SwitchDetachesPreviousSource(t *testing.T) {
	rig := &sourceRig{}
	m := New(rig.factory, 80)

	require.NoError(t, m.PlayTrack(context.Background(), trackA()))
	first := rig.last()
	first.emit(Event{Kind: EventPlaying})

	b := model.Track{ID: "track-b", AudioURL: "https://cdn.example/b.mp3"}
	require.NoError(t, m.PlayTrack(context.Background(), b))
	second := rig.last()

	assert.True(t, first.closed, "previous attachment released before the new one binds")
	assert.NotSame(t, first, second)
	assert.Equal(t, b.ID, m.Snapshot().TrackID)

	// A straggler event from the old source must not corrupt the session
	first.emit(Event{Kind: EventEnded})
	assert.Equal(t, StateLoading, m.Snapshot().State)
}

func TestPlayTrack_RejectionSurfacesAsErrored(t *testing.T) {
	rig := &sourceRig{next: &fakeSource{playErr: errors.New("codec unsupported")}}
	m := New(rig.factory, 80)

	err := m.PlayTrack(context.Background(), trackA())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlaybackRejected)

	st := m.Snapshot()
	assert.Equal(t, StateErrored, st.State)
	assert.Contains(t, st.Error, "codec unsupported")
}

func TestPlayTrack_RetrySameTrackAfterRejection(t *testing.T) {
	src := &fakeSource{playErr: errors.New("device busy")}
	rig := &sourceRig{next: src}
	m := New(rig.factory, 80)
	a := trackA()

	require.ErrorIs(t, m.PlayTrack(context.Background(), a), ErrPlaybackRejected)
	require.Equal(t, StateErrored, m.Snapshot().State)

	// The device frees up; asking for the same track again must retry
	// the transport instead of staying stuck in the errored state.
	src.mu.Lock()
	src.playErr = nil
	src.mu.Unlock()

	require.NoError(t, m.PlayTrack(context.Background(), a))
	assert.Len(t, rig.sources, 1, "retry reuses the existing attachment")
	assert.Equal(t, 2, src.plays)

	src.emit(Event{Kind: EventPlaying})
	assert.Equal(t, StatePlaying, m.Snapshot().State)
}

func TestPlayTrack_LoadFailureSurfacesAsErrored(t *testing.T) {
	rig := &sourceRig{next: &fakeSource{loadErr: errors.New("404 fetching audio")}}
	m := New(rig.factory, 80)

	err := m.PlayTrack(context.Background(), trackA())
	assert.ErrorIs(t, err, ErrPlaybackRejected)
	assert.Equal(t, StateErrored, m.Snapshot().State)
}

func TestTogglePlayPause_NoAttachmentIsNoOp(t *testing.T) {
	rig := &sourceRig{}
	m := New(rig.factory, 80)

	m.TogglePlayPause()
	assert.Equal(t, StateIdle, m.Snapshot().State)
	assert.Empty(t, rig.sources)
}

func TestEvents_AreAuthoritativeOverCommands(t *testing.T) {
	rig := &sourceRig{}
	m := New(rig.factory, 80)

	require.NoError(t, m.PlayTrack(context.Background(), trackA()))
	src := rig.last()

	// The play command succeeded, but the resource never actually
	// started and reports paused instead. The session must follow the
	// event, not the command.
	src.emit(Event{Kind: EventPaused})
	assert.Equal(t, StatePaused, m.Snapshot().State)

	src.emit(Event{Kind: EventPlaying})
	src.emit(Event{Kind: EventTimeUpdate, Position: 12.5})
	st := m.Snapshot()
	assert.Equal(t, StatePlaying, st.State)
	assert.Equal(t, 12.5, st.Position)
}

func TestEvents_EndedAndError(t *testing.T) {
	rig := &sourceRig{}
	m := New(rig.factory, 80)

	require.NoError(t, m.PlayTrack(context.Background(), trackA()))
	src := rig.last()
	src.emit(Event{Kind: EventDurationChange, Duration: 120})
	src.emit(Event{Kind: EventPlaying})

	src.emit(Event{Kind: EventEnded})
	st := m.Snapshot()
	assert.Equal(t, StateEnded, st.State)
	assert.Equal(t, 120.0, st.Position, "playhead parked at the end")

	src.emit(Event{Kind: EventError, Err: errors.New("decoder underrun")})
	st = m.Snapshot()
	assert.Equal(t, StateErrored, st.State)
	assert.Contains(t, st.Error, "decoder underrun")
}

func TestSeek_Clamps(t *testing.T) {
	rig := &sourceRig{}
	m := New(rig.factory, 80)

	require.NoError(t, m.PlayTrack(context.Background(), trackA()))
	src := rig.last()
	src.emit(Event{Kind: EventDurationChange, Duration: 100})

	m.Seek(-5)
	m.Seek(250)
	m.Seek(42)

	assert.Equal(t, []float64{0, 100, 42}, src.seeks)
	assert.Equal(t, 42.0, m.Snapshot().Position, "position updated optimistically")
}

func TestSeek_NoAttachmentIsNoOp(t *testing.T) {
	m := New((&sourceRig{}).factory, 80)
	m.Seek(10)
	assert.Equal(t, 0.0, m.Snapshot().Position)
}

func TestSetVolume_ClampsAndSurvivesTrackChange(t *testing.T) {
	rig := &sourceRig{}
	m := New(rig.factory, 80)

	m.SetVolume(150)
	assert.Equal(t, 100, m.Volume())
	m.SetVolume(-3)
	assert.Equal(t, 0, m.Volume())
	m.SetVolume(65)

	require.NoError(t, m.PlayTrack(context.Background(), trackA()))
	assert.Equal(t, []int{65}, rig.last().volumes)

	require.NoError(t, m.PlayTrack(context.Background(), model.Track{ID: "track-b", AudioURL: "b.mp3"}))
	assert.Equal(t, []int{65}, rig.last().volumes, "volume carried over to the next attachment")
	assert.Equal(t, 65, m.Volume())
}

func TestDetach_ReturnsToIdle(t *testing.T) {
	rig := &sourceRig{}
	m := New(rig.factory, 80)

	require.NoError(t, m.PlayTrack(context.Background(), trackA()))
	src := rig.last()
	src.emit(Event{Kind: EventPlaying})

	m.Detach()

	assert.True(t, src.closed)
	st := m.Snapshot()
	assert.Equal(t, StateIdle, st.State)
	assert.Empty(t, st.TrackID)

	// Late event from the released source is ignored
	src.emit(Event{Kind: EventError, Err: errors.New("late")})
	assert.Equal(t, StateIdle, m.Snapshot().State)
}
