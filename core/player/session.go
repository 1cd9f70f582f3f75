package player

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"MuseFM/logger"
	"MuseFM/model"
)

// State is the transport lifecycle state of a playback session.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
	StateEnded
	StateError
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

var (
	// ErrPlaybackStartFailed means the media element refused or errored on start.
	ErrPlaybackStartFailed = errors.New("playback start failed")
	// ErrAutoplayBlocked means automated start was blocked by host policy;
	// recoverable by an explicit user action.
	ErrAutoplayBlocked = errors.New("autoplay blocked")
	// ErrQueueEmpty means a transport action needs a queue and there is none.
	ErrQueueEmpty = errors.New("queue is empty")
)

// MediaElement is the command surface of the audio element the session
// drives. Commands are fire-and-forget; outcomes come back through the
// session's On* event methods, each tagged with the track id they belong to.
type MediaElement interface {
	Load(src string)
	Play()
	Pause()
	Seek(offsetSeconds float64)
	SetVolume(volume float64)
	SetMuted(muted bool)
}

// CatalogLookup resolves track ids against the catalog.
type CatalogLookup interface {
	GetTrackByID(id int64) (*model.Track, error)
}

// PlayRecorder appends to the user's recently-played history. Calls are
// best-effort: failures never affect transport state.
type PlayRecorder interface {
	RecordPlay(userID, trackID int64) error
}

// Config tunes a Session.
type Config struct {
	// ReadyTimeout bounds the wait for the element to report readiness
	// before playback is attempted anyway.
	ReadyTimeout time.Duration
	// SnapshotInterval is the minimum gap between persisted snapshots.
	SnapshotInterval time.Duration
	// UnmuteDelay is the pause between a successful muted autoplay start
	// and unmuting.
	UnmuteDelay time.Duration
	// Rand returns a uniform value in [0, n); nil uses math/rand.
	Rand func(n int) int
}

// Session owns one client's playback: current track, queue, transport state,
// volume, shuffle and repeat flags. All UI handlers issue intents against it;
// nothing mutates its fields directly. Safe for concurrent use.
type Session struct {
	mu sync.Mutex

	element   MediaElement
	streamURL func(trackID int64) string
	catalog   CatalogLookup
	recent    PlayRecorder
	snapshots SnapshotStore

	clientID string
	userID   int64

	readyTimeout     time.Duration
	snapshotInterval time.Duration
	unmuteDelay      time.Duration
	rnd              func(n int) int

	queue   []*model.Track
	index   int
	current *model.Track

	state        State
	lastErr      error
	volume       float64
	muted        bool
	shuffle      bool
	repeat       RepeatMode
	position     float64
	liveDuration float64

	// Superseding guard: each Load bumps the generation; callbacks from an
	// older load compare and bail.
	loadGen    uint64
	readyTimer *time.Timer

	// Set by Restore: applied once the element reports metadata.
	pendingSeek   float64
	pendingResume bool
	restoreMuted  bool
	autoStart     bool

	lastSnapshot time.Time
}

// NewSession creates a playback session for one client.
func NewSession(
	cfg Config,
	element MediaElement,
	streamURL func(trackID int64) string,
	catalog CatalogLookup,
	recent PlayRecorder,
	snapshots SnapshotStore,
	clientID string,
	userID int64,
) *Session {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 5 * time.Second
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 2 * time.Second
	}
	if cfg.UnmuteDelay <= 0 {
		cfg.UnmuteDelay = 100 * time.Millisecond
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.Intn
	}

	return &Session{
		element:          element,
		streamURL:        streamURL,
		catalog:          catalog,
		recent:           recent,
		snapshots:        snapshots,
		clientID:         clientID,
		userID:           userID,
		readyTimeout:     cfg.ReadyTimeout,
		snapshotInterval: cfg.SnapshotInterval,
		unmuteDelay:      cfg.UnmuteDelay,
		rnd:              rnd,
		index:            -1,
		state:            StateIdle,
		volume:           0.7,
	}
}

// Status is the externally visible snapshot of a session, pushed to the
// client after every transition.
type Status struct {
	TrackID    int64   `json:"trackId"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Album      string  `json:"album"`
	State      string  `json:"state"`
	Error      string  `json:"error,omitempty"`
	Position   float64 `json:"position"`
	Duration   int     `json:"duration"`
	Volume     float64 `json:"volume"`
	Muted      bool    `json:"muted"`
	Shuffle    bool    `json:"shuffle"`
	Repeat     string  `json:"repeat"`
	QueueLen   int     `json:"queueLength"`
	QueueIndex int     `json:"queueIndex"`
}

// Status returns the current session snapshot.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	st := Status{
		State:      s.state.String(),
		Position:   s.position,
		Volume:     s.volume,
		Muted:      s.muted,
		Shuffle:    s.shuffle,
		Repeat:     s.repeat.String(),
		QueueLen:   len(s.queue),
		QueueIndex: s.index,
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	if s.current != nil {
		st.TrackID = s.current.ID
		st.Title = s.current.Title
		st.Artist = s.current.Artist
		st.Album = s.current.Album
		st.Duration = s.current.Duration
	}
	return st
}

// SetQueue replaces the play queue wholesale, recomputing the cursor by
// identity match against the current track. Used when the user starts
// playback from a different listing.
func (s *Session) SetQueue(tracks []*model.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = tracks
	s.index = s.findIndexLocked(s.current)
}

func (s *Session) findIndexLocked(track *model.Track) int {
	if track == nil {
		return -1
	}
	for i, t := range s.queue {
		if t.ID == track.ID {
			return i
		}
	}
	return -1
}

// LoadTrack makes track current (replacing the queue when one is provided)
// and starts loading its stream. A previously in-flight load is superseded:
// its late callbacks are discarded.
func (s *Session) LoadTrack(track *model.Track, queue []*model.Track) {
	if track == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if queue != nil {
		s.queue = queue
	}
	s.loadTrackLocked(track)
}

func (s *Session) loadTrackLocked(track *model.Track) {
	s.current = track
	s.index = s.findIndexLocked(track)
	s.state = StateLoading
	s.lastErr = nil
	s.position = 0
	s.liveDuration = 0
	s.pendingSeek = 0
	s.pendingResume = false
	s.restoreMuted = false
	s.autoStart = true

	s.loadGen++
	gen := s.loadGen

	s.stopReadyTimerLocked()
	s.element.Load(s.streamURL(track.ID))

	// Slow backends must not hang the transport: after the timeout, try to
	// start playback anyway rather than waiting for readiness.
	s.readyTimer = time.AfterFunc(s.readyTimeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.loadGen || s.state != StateLoading {
			return
		}
		logger.Warn("stream not ready before timeout, forcing play attempt",
			logger.Int64("trackId", track.ID),
			logger.Duration("timeout", s.readyTimeout))
		s.element.Play()
	})

	logger.Debug("loading track",
		logger.Int64("trackId", track.ID),
		logger.String("title", track.Title))
}

func (s *Session) stopReadyTimerLocked() {
	if s.readyTimer != nil {
		s.readyTimer.Stop()
		s.readyTimer = nil
	}
}

// staleLocked reports whether an element event belongs to a superseded track.
func (s *Session) staleLocked(trackID int64) bool {
	return s.current == nil || s.current.ID != trackID
}

// TogglePlayPause toggles between playing and paused. With no current track
// it starts the queue from the top; with an empty queue it reports
// ErrQueueEmpty and changes nothing.
func (s *Session) TogglePlayPause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		if len(s.queue) == 0 {
			return ErrQueueEmpty
		}
		s.loadTrackLocked(s.queue[0])
		return nil
	}

	switch s.state {
	case StatePlaying:
		s.element.Pause()
		s.state = StatePaused
	case StatePaused, StateEnded, StateIdle:
		s.element.Play()
		s.lastErr = nil
		s.state = StatePlaying
	case StateError:
		// Pressing play again after a failed start retries the load.
		s.loadTrackLocked(s.current)
	}
	// Loading keeps its state; the in-flight load decides the outcome.
	return nil
}

// Next advances according to the queue policy.
func (s *Session) Next() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLocked()
}

func (s *Session) nextLocked() {
	idx, action := NextIndex(len(s.queue), s.index, s.shuffle, s.repeat, s.rnd)
	switch action {
	case NavRestart:
		s.element.Seek(0)
		s.position = 0
		s.element.Play()
		s.state = StatePlaying
	case NavAdvance:
		s.index = idx
		s.loadTrackLocked(s.queue[idx])
	case NavStop:
		if s.state == StatePlaying || s.state == StateEnded {
			s.element.Pause()
		}
		s.state = StateIdle
	}
}

// Previous restarts the current track when more than a few seconds in,
// otherwise moves back through the queue, wrapping at the start.
func (s *Session) Previous() {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, action := PrevIndex(len(s.queue), s.index, s.position)
	switch action {
	case NavRestart:
		s.element.Seek(0)
		s.position = 0
	case NavAdvance:
		s.index = idx
		s.loadTrackLocked(s.queue[idx])
	case NavStop:
		// Empty queue: nothing to navigate.
	}
}

// Seek moves the playhead, clamped to the live duration when known and the
// stored track duration otherwise. Undefined outside playing/paused; then a
// no-op, not an error.
func (s *Session) Seek(offsetSeconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seekLocked(offsetSeconds)
}

func (s *Session) seekLocked(offsetSeconds float64) {
	if s.state != StatePlaying && s.state != StatePaused {
		return
	}

	max := s.liveDuration
	if max <= 0 && s.current != nil {
		max = float64(s.current.Duration)
	}
	if offsetSeconds < 0 {
		offsetSeconds = 0
	}
	if max > 0 && offsetSeconds > max {
		offsetSeconds = max
	}

	s.element.Seek(offsetSeconds)
	s.position = offsetSeconds
}

// SkipRelative nudges the playhead by delta seconds, clamped like Seek.
func (s *Session) SkipRelative(deltaSeconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seekLocked(s.position + deltaSeconds)
}

// SetShuffle sets the shuffle flag. No transport change.
func (s *Session) SetShuffle(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shuffle = on
}

// CycleRepeatMode advances none → all → one → none. No transport change.
func (s *Session) CycleRepeatMode() RepeatMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repeat = s.repeat.Cycle()
	return s.repeat
}

// SetVolume sets the volume, clamped to [0, 1].
func (s *Session) SetVolume(volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = clampVolume(volume)
	s.element.SetVolume(s.volume)
}

// ToggleMute flips the muted flag without losing the volume setting.
func (s *Session) ToggleMute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = !s.muted
	s.element.SetMuted(s.muted)
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// --- element events ---

// OnReady handles the element reporting it can begin playback.
func (s *Session) OnReady(trackID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleLocked(trackID) || s.state != StateLoading {
		return
	}
	s.stopReadyTimerLocked()
	if s.autoStart {
		s.element.Play()
	}
}

// OnMetadata handles the element learning the stream duration. Deferred
// restore work (seek, muted resume) runs here: position cannot be set before
// the byte source is ready.
func (s *Session) OnMetadata(trackID int64, durationSeconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleLocked(trackID) {
		return
	}
	s.liveDuration = durationSeconds

	if s.pendingSeek > 0 {
		offset := s.pendingSeek
		if durationSeconds > 0 && offset > durationSeconds {
			offset = durationSeconds
		}
		s.pendingSeek = 0
		s.element.Seek(offset)
		s.position = offset
	}

	if s.pendingResume {
		s.pendingResume = false
		// Autoplay workaround: start muted, unmute shortly after success.
		s.restoreMuted = true
		s.muted = true
		s.element.SetMuted(true)
		s.element.Play()
	} else if !s.autoStart && s.state == StateLoading {
		// Restored but not resuming: settle into paused, ready to retry.
		s.state = StatePaused
	}
}

// OnPlaying handles the element confirming playback started.
func (s *Session) OnPlaying(trackID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleLocked(trackID) {
		return
	}
	s.stopReadyTimerLocked()
	s.state = StatePlaying
	s.lastErr = nil

	if s.restoreMuted {
		s.restoreMuted = false
		volume := s.volume
		gen := s.loadGen
		time.AfterFunc(s.unmuteDelay, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if gen != s.loadGen {
				return
			}
			s.muted = false
			s.element.SetMuted(false)
			s.element.SetVolume(volume)
		})
	}

	s.recordPlayLocked(trackID)
	s.persistSnapshotLocked()
}

// OnPlayBlocked handles host autoplay policy refusing the start. Recoverable:
// the session settles into paused instead of erroring.
func (s *Session) OnPlayBlocked(trackID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleLocked(trackID) {
		return
	}
	s.stopReadyTimerLocked()

	if s.restoreMuted {
		// Even the muted attempt was blocked; undo the workaround.
		s.restoreMuted = false
		s.muted = false
		s.element.SetMuted(false)
		s.element.SetVolume(s.volume)
	}

	logger.Info("autoplay blocked, waiting for user action",
		logger.Int64("trackId", trackID))
	s.lastErr = ErrAutoplayBlocked
	s.state = StatePaused
}

// OnMediaError handles a hard element failure. Only stream-load failures
// change transport state; the session becomes retryable, not stuck.
func (s *Session) OnMediaError(trackID int64, cause string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleLocked(trackID) {
		return
	}
	s.stopReadyTimerLocked()
	s.lastErr = fmt.Errorf("%w: %s", ErrPlaybackStartFailed, cause)
	logger.Error("stream playback failed",
		logger.Int64("trackId", trackID),
		logger.ErrorField(s.lastErr))
	s.state = StateError
}

// OnEnded handles natural end of the current track: consult the queue policy
// and either advance or go idle.
func (s *Session) OnEnded(trackID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleLocked(trackID) {
		return
	}
	s.state = StateEnded
	s.nextLocked()
}

// OnTimeUpdate handles playhead progress reports and drives coarse-grained
// snapshot persistence.
func (s *Session) OnTimeUpdate(trackID int64, offsetSeconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleLocked(trackID) {
		return
	}
	s.position = offsetSeconds
	s.maybeSnapshotLocked()
}

// recordPlayLocked appends to recently-played off the transport path.
// Failures are logged and swallowed.
func (s *Session) recordPlayLocked(trackID int64) {
	if s.recent == nil || s.userID == 0 {
		return
	}
	userID := s.userID
	recorder := s.recent
	go func() {
		if err := recorder.RecordPlay(userID, trackID); err != nil {
			logger.Warn("failed to record recently played",
				logger.Int64("trackId", trackID),
				logger.ErrorField(err))
		}
	}()
}
