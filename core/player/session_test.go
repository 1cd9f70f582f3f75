package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"MuseFM/model"
)

// fakeElement records every command the session issues.
type fakeElement struct {
	mu       sync.Mutex
	loads    []string
	commands []string
}

func (f *fakeElement) record(cmd string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
}

func (f *fakeElement) Load(src string) {
	f.mu.Lock()
	f.loads = append(f.loads, src)
	f.mu.Unlock()
	f.record("load:" + src)
}
func (f *fakeElement) Play()               { f.record("play") }
func (f *fakeElement) Pause()              { f.record("pause") }
func (f *fakeElement) Seek(offset float64) { f.record(fmt.Sprintf("seek:%g", offset)) }
func (f *fakeElement) SetVolume(v float64) { f.record(fmt.Sprintf("volume:%g", v)) }
func (f *fakeElement) SetMuted(m bool)     { f.record(fmt.Sprintf("muted:%v", m)) }

func (f *fakeElement) count(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if c == cmd {
			n++
		}
	}
	return n
}

func (f *fakeElement) lastLoad() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.loads) == 0 {
		return ""
	}
	return f.loads[len(f.loads)-1]
}

func (f *fakeElement) has(cmd string) bool { return f.count(cmd) > 0 }

func (f *fakeElement) cmds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.commands))
	copy(out, f.commands)
	return out
}

// fakeCatalog looks tracks up from a fixed set.
type fakeCatalog struct {
	tracks map[int64]*model.Track
}

func (f *fakeCatalog) GetTrackByID(id int64) (*model.Track, error) {
	t, ok := f.tracks[id]
	if !ok {
		return nil, errors.New("track not found")
	}
	return t, nil
}

// fakeRecorder captures recently-played calls.
type fakeRecorder struct {
	mu    sync.Mutex
	calls []int64
	err   error
}

func (f *fakeRecorder) RecordPlay(userID, trackID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, trackID)
	return f.err
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeSnapshotStore keeps one snapshot per client in memory.
type fakeSnapshotStore struct {
	mu    sync.Mutex
	snaps map[string]PlaybackSnapshot
	saves int
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{snaps: make(map[string]PlaybackSnapshot)}
}

func (f *fakeSnapshotStore) Save(ctx context.Context, clientID string, snap PlaybackSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[clientID] = snap
	f.saves++
	return nil
}

func (f *fakeSnapshotStore) Load(ctx context.Context, clientID string) (*PlaybackSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snaps[clientID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (f *fakeSnapshotStore) Delete(ctx context.Context, clientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.snaps, clientID)
	return nil
}

func (f *fakeSnapshotStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func testTracks() []*model.Track {
	return []*model.Track{
		{ID: 1, Title: "A", Artist: "X", Duration: 180},
		{ID: 2, Title: "B", Artist: "Y", Duration: 200},
		{ID: 3, Title: "C", Artist: "Z", Duration: 90},
	}
}

func streamURL(id int64) string {
	return fmt.Sprintf("/api/songs/%d/stream", id)
}

type sessionFixture struct {
	session  *Session
	element  *fakeElement
	recorder *fakeRecorder
	store    *fakeSnapshotStore
	catalog  *fakeCatalog
}

func newFixture(cfg Config) *sessionFixture {
	element := &fakeElement{}
	recorder := &fakeRecorder{}
	store := newFakeSnapshotStore()
	catalog := &fakeCatalog{tracks: make(map[int64]*model.Track)}
	for _, t := range testTracks() {
		catalog.tracks[t.ID] = t
	}
	session := NewSession(cfg, element, streamURL, catalog, recorder, store, "client-1", 7)
	return &sessionFixture{session: session, element: element, recorder: recorder, store: store, catalog: catalog}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func TestLoadTrackHappyPath(t *testing.T) {
	fx := newFixture(Config{})
	tracks := testTracks()

	fx.session.LoadTrack(tracks[1], tracks)

	if got := fx.session.Status().State; got != "loading" {
		t.Fatalf("expected loading, got %s", got)
	}
	if got := fx.element.lastLoad(); got != "/api/songs/2/stream" {
		t.Fatalf("expected stream URL for track 2, got %s", got)
	}

	fx.session.OnReady(2)
	if !fx.element.has("play") {
		t.Fatal("expected play command after ready")
	}

	fx.session.OnPlaying(2)
	st := fx.session.Status()
	if st.State != "playing" {
		t.Errorf("expected playing, got %s", st.State)
	}
	if st.TrackID != 2 || st.QueueIndex != 1 {
		t.Errorf("expected track 2 at queue index 1, got track %d index %d", st.TrackID, st.QueueIndex)
	}

	// Recently played is fired on successful start, off the transport path.
	eventually(t, func() bool { return fx.recorder.count() == 1 }, "recently played recorded")
}

func TestLoadTrackErrorTransitionsToError(t *testing.T) {
	fx := newFixture(Config{})
	tracks := testTracks()

	fx.session.LoadTrack(tracks[0], tracks)
	fx.session.OnMediaError(1, "network error")

	st := fx.session.Status()
	if st.State != "error" {
		t.Errorf("expected error state, got %s", st.State)
	}
	if !strings.Contains(st.Error, ErrPlaybackStartFailed.Error()) ||
		!strings.Contains(st.Error, "network error") {
		t.Errorf("expected failure cause in status, got %q", st.Error)
	}
	if fx.recorder.count() != 0 {
		t.Errorf("failed start must not record a play")
	}

	// Pressing play retries the load and drops the stale error.
	if err := fx.session.TogglePlayPause(); err != nil {
		t.Fatalf("retry toggle failed: %v", err)
	}
	st = fx.session.Status()
	if st.State != "loading" || st.Error != "" {
		t.Errorf("expected clean loading state on retry, got state %s error %q", st.State, st.Error)
	}
}

func TestReadyTimeoutForcesPlayAttempt(t *testing.T) {
	fx := newFixture(Config{ReadyTimeout: 20 * time.Millisecond})
	tracks := testTracks()

	fx.session.LoadTrack(tracks[0], tracks)
	if fx.element.has("play") {
		t.Fatal("play must not be issued before ready or timeout")
	}

	eventually(t, func() bool { return fx.element.has("play") }, "forced play after timeout")
	// Still loading until the element confirms.
	if got := fx.session.Status().State; got != "loading" {
		t.Errorf("expected loading while forced attempt pending, got %s", got)
	}
}

func TestStaleLoadCallbacksAreDiscarded(t *testing.T) {
	fx := newFixture(Config{})
	tracks := testTracks()

	fx.session.LoadTrack(tracks[0], tracks)
	fx.session.LoadTrack(tracks[2], nil) // supersedes the first load

	// Late events for track 1 arrive after track 3 became current.
	fx.session.OnPlaying(1)
	if got := fx.session.Status().State; got != "loading" {
		t.Errorf("stale playing event must not change state, got %s", got)
	}

	fx.session.OnMediaError(1, "timeout")
	if got := fx.session.Status().State; got != "loading" {
		t.Errorf("stale error event must not change state, got %s", got)
	}

	fx.session.OnReady(3)
	fx.session.OnPlaying(3)
	st := fx.session.Status()
	if st.State != "playing" || st.TrackID != 3 {
		t.Errorf("expected track 3 playing, got track %d state %s", st.TrackID, st.State)
	}
}

func TestTogglePlayPause(t *testing.T) {
	fx := newFixture(Config{})
	tracks := testTracks()

	fx.session.LoadTrack(tracks[0], tracks)
	fx.session.OnReady(1)
	fx.session.OnPlaying(1)

	fx.session.TogglePlayPause()
	if got := fx.session.Status().State; got != "paused" {
		t.Fatalf("expected paused, got %s", got)
	}
	if !fx.element.has("pause") {
		t.Fatal("expected pause command")
	}

	fx.session.TogglePlayPause()
	if got := fx.session.Status().State; got != "playing" {
		t.Errorf("expected playing, got %s", got)
	}
}

func TestTogglePlayPauseWithoutTrackStartsQueue(t *testing.T) {
	fx := newFixture(Config{})
	tracks := testTracks()

	fx.session.SetQueue(tracks)
	fx.session.TogglePlayPause()

	st := fx.session.Status()
	if st.State != "loading" || st.TrackID != 1 {
		t.Errorf("expected first queue track loading, got track %d state %s", st.TrackID, st.State)
	}
}

func TestTogglePlayPauseEmptyQueueIsNoOp(t *testing.T) {
	fx := newFixture(Config{})
	if err := fx.session.TogglePlayPause(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("expected ErrQueueEmpty, got %v", err)
	}
	if got := fx.session.Status().State; got != "idle" {
		t.Errorf("expected idle, got %s", got)
	}
}

func TestSeekClampsToLiveDuration(t *testing.T) {
	fx := newFixture(Config{})
	tracks := testTracks()

	fx.session.LoadTrack(tracks[0], tracks)
	fx.session.OnReady(1)
	fx.session.OnPlaying(1)
	fx.session.OnMetadata(1, 175.5)

	fx.session.Seek(500)
	if !fx.element.has("seek:175.5") {
		t.Errorf("expected seek clamped to live duration, commands: %v", fx.element.cmds())
	}

	fx.session.Seek(-10)
	if !fx.element.has("seek:0") {
		t.Errorf("expected negative seek clamped to 0")
	}
}

func TestSeekWhileIdleIsNoOp(t *testing.T) {
	fx := newFixture(Config{})
	fx.session.Seek(30)
	if fx.element.has("seek:30") {
		t.Error("seek while idle must be a no-op")
	}
}

func TestSkipRelativeClamps(t *testing.T) {
	fx := newFixture(Config{})
	tracks := testTracks()

	fx.session.LoadTrack(tracks[0], tracks)
	fx.session.OnReady(1)
	fx.session.OnPlaying(1)
	fx.session.OnMetadata(1, 180)
	fx.session.OnTimeUpdate(1, 5)

	fx.session.SkipRelative(-10)
	if !fx.element.has("seek:0") {
		t.Errorf("expected skip back clamped to 0, commands: %v", fx.element.cmds())
	}

	fx.session.OnTimeUpdate(1, 175)
	fx.session.SkipRelative(10)
	if !fx.element.has("seek:180") {
		t.Errorf("expected skip forward clamped to duration, commands: %v", fx.element.cmds())
	}
}

func TestEndedAtLastIndexRepeatNoneGoesIdle(t *testing.T) {
	fx := newFixture(Config{})
	tracks := testTracks()

	fx.session.LoadTrack(tracks[2], tracks)
	fx.session.OnReady(3)
	fx.session.OnPlaying(3)
	fx.session.OnEnded(3)

	if got := fx.session.Status().State; got != "idle" {
		t.Errorf("expected idle after terminal next, got %s", got)
	}
}

func TestEndedAtLastIndexRepeatAllWrapsToFirst(t *testing.T) {
	fx := newFixture(Config{})
	tracks := testTracks()

	fx.session.LoadTrack(tracks[2], tracks)
	fx.session.CycleRepeatMode() // all
	fx.session.OnReady(3)
	fx.session.OnPlaying(3)
	fx.session.OnEnded(3)

	st := fx.session.Status()
	if st.State != "loading" || st.TrackID != 1 {
		t.Errorf("expected first track loading, got track %d state %s", st.TrackID, st.State)
	}
}

func TestEndedRepeatOneRestartsSameTrack(t *testing.T) {
	fx := newFixture(Config{})
	tracks := testTracks()

	fx.session.LoadTrack(tracks[1], tracks)
	fx.session.CycleRepeatMode() // all
	fx.session.CycleRepeatMode() // one
	fx.session.OnReady(2)
	fx.session.OnPlaying(2)
	fx.session.OnEnded(2)

	st := fx.session.Status()
	if st.TrackID != 2 {
		t.Errorf("repeat one must keep the same track, got %d", st.TrackID)
	}
	if st.State != "playing" {
		t.Errorf("expected playing after restart, got %s", st.State)
	}
	if !fx.element.has("seek:0") {
		t.Error("expected restart seek to 0")
	}
}

func TestPreviousPastThresholdRestartsTrack(t *testing.T) {
	fx := newFixture(Config{})
	tracks := testTracks()

	fx.session.LoadTrack(tracks[1], tracks)
	fx.session.OnReady(2)
	fx.session.OnPlaying(2)
	fx.session.OnTimeUpdate(2, 42)

	fx.session.Previous()
	st := fx.session.Status()
	if st.TrackID != 2 {
		t.Errorf("previous past threshold must not change track, got %d", st.TrackID)
	}
	if !fx.element.has("seek:0") {
		t.Error("expected restart seek to 0")
	}
}

func TestVolumeClamping(t *testing.T) {
	fx := newFixture(Config{})

	fx.session.SetVolume(1.5)
	if got := fx.session.Status().Volume; got != 1.0 {
		t.Errorf("expected volume clamped to 1.0, got %g", got)
	}

	fx.session.SetVolume(-0.2)
	if got := fx.session.Status().Volume; got != 0.0 {
		t.Errorf("expected volume clamped to 0.0, got %g", got)
	}
}

func TestRecentlyPlayedFailureDoesNotAffectTransport(t *testing.T) {
	fx := newFixture(Config{})
	fx.recorder.err = errors.New("history service down")
	tracks := testTracks()

	fx.session.LoadTrack(tracks[0], tracks)
	fx.session.OnReady(1)
	fx.session.OnPlaying(1)

	eventually(t, func() bool { return fx.recorder.count() == 1 }, "record attempted")
	if got := fx.session.Status().State; got != "playing" {
		t.Errorf("recorder failure must not affect transport, got %s", got)
	}
}

func TestSnapshotWrittenAtCoarseInterval(t *testing.T) {
	fx := newFixture(Config{SnapshotInterval: 50 * time.Millisecond})
	tracks := testTracks()

	fx.session.LoadTrack(tracks[0], tracks)
	fx.session.OnReady(1)
	fx.session.OnPlaying(1)
	eventually(t, func() bool { return fx.store.saveCount() >= 1 }, "snapshot on start")

	// Rapid progress reports within the interval collapse to no extra writes.
	base := fx.store.saveCount()
	for i := 0; i < 10; i++ {
		fx.session.OnTimeUpdate(1, float64(i))
	}
	if got := fx.store.saveCount(); got != base {
		t.Errorf("expected no snapshot inside interval, got %d extra", got-base)
	}

	time.Sleep(60 * time.Millisecond)
	fx.session.OnTimeUpdate(1, 11)
	eventually(t, func() bool { return fx.store.saveCount() > base }, "snapshot after interval")
}

func TestRestoreResumesPlayback(t *testing.T) {
	fx := newFixture(Config{UnmuteDelay: 10 * time.Millisecond})
	tracks := testTracks()
	fx.session.SetQueue(tracks)

	fx.store.snaps["client-1"] = PlaybackSnapshot{
		TrackID: 2, OffsetSeconds: 42, Volume: 0.5, WasPlaying: true,
	}

	if err := fx.session.Restore(context.Background()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	st := fx.session.Status()
	if st.TrackID != 2 || st.State != "loading" {
		t.Fatalf("expected track 2 loading, got track %d state %s", st.TrackID, st.State)
	}
	if st.Volume != 0.5 {
		t.Errorf("expected restored volume 0.5, got %g", st.Volume)
	}

	// Seek happens only once the byte source is ready.
	if fx.element.has("seek:42") {
		t.Fatal("seek must wait for metadata")
	}
	fx.session.OnMetadata(2, 200)
	if !fx.element.has("seek:42") {
		t.Fatal("expected deferred seek to persisted offset")
	}

	// Muted-first autoplay workaround.
	if !fx.element.has("muted:true") || !fx.element.has("play") {
		t.Fatalf("expected muted play attempt, commands: %v", fx.element.cmds())
	}

	fx.session.OnPlaying(2)
	if got := fx.session.Status().State; got != "playing" {
		t.Errorf("expected playing after resume, got %s", got)
	}
	eventually(t, func() bool { return fx.element.has("muted:false") }, "unmute after start")
}

func TestRestoreWithoutResumeSettlesPaused(t *testing.T) {
	fx := newFixture(Config{})
	tracks := testTracks()
	fx.session.SetQueue(tracks)

	fx.store.snaps["client-1"] = PlaybackSnapshot{
		TrackID: 1, OffsetSeconds: 10, Volume: 0.8, WasPlaying: false,
	}

	if err := fx.session.Restore(context.Background()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	fx.session.OnMetadata(1, 180)

	if got := fx.session.Status().State; got != "paused" {
		t.Errorf("expected paused, got %s", got)
	}
	if fx.element.has("play") {
		t.Error("restore without wasPlaying must not start playback")
	}
}

func TestRestoreBlockedAutoplayLeavesPaused(t *testing.T) {
	fx := newFixture(Config{})
	tracks := testTracks()
	fx.session.SetQueue(tracks)

	fx.store.snaps["client-1"] = PlaybackSnapshot{
		TrackID: 2, OffsetSeconds: 42, Volume: 0.5, WasPlaying: true,
	}

	if err := fx.session.Restore(context.Background()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	fx.session.OnMetadata(2, 200)
	fx.session.OnPlayBlocked(2)

	st := fx.session.Status()
	if st.State != "paused" {
		t.Errorf("expected paused after blocked autoplay, got %s", st.State)
	}
	if st.Error != ErrAutoplayBlocked.Error() {
		t.Errorf("expected blocked autoplay surfaced in status, got %q", st.Error)
	}
	if st.Muted {
		t.Error("blocked autoplay must leave the session unmuted")
	}
	if !fx.element.has("muted:false") {
		t.Error("expected unmute command after blocked autoplay")
	}

	// A user-initiated resume clears the surfaced condition.
	if err := fx.session.TogglePlayPause(); err != nil {
		t.Fatalf("resume toggle failed: %v", err)
	}
	if got := fx.session.Status().Error; got != "" {
		t.Errorf("expected error cleared on resume, got %q", got)
	}
}

func TestRestoreMissingTrackDropsSnapshot(t *testing.T) {
	fx := newFixture(Config{})
	fx.store.snaps["client-1"] = PlaybackSnapshot{TrackID: 99, OffsetSeconds: 5, Volume: 0.5}

	if err := fx.session.Restore(context.Background()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if got := fx.session.Status().State; got != "idle" {
		t.Errorf("expected idle when track is gone, got %s", got)
	}
	if _, ok := fx.store.snaps["client-1"]; ok {
		t.Error("stale snapshot should have been dropped")
	}
}

func TestRestoreClampsVolume(t *testing.T) {
	fx := newFixture(Config{})
	tracks := testTracks()
	fx.session.SetQueue(tracks)

	fx.store.snaps["client-1"] = PlaybackSnapshot{TrackID: 1, Volume: 2.5, WasPlaying: false}

	if err := fx.session.Restore(context.Background()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if got := fx.session.Status().Volume; got != 1.0 {
		t.Errorf("expected volume clamped to 1.0, got %g", got)
	}
}

func TestRestoreWithoutSnapshotIsNoOp(t *testing.T) {
	fx := newFixture(Config{})
	if err := fx.session.Restore(context.Background()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if got := fx.session.Status().State; got != "idle" {
		t.Errorf("expected idle, got %s", got)
	}
}
