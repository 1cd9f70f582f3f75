package player

import (
	"context"
	"time"

	"MuseFM/logger"
)

// PlaybackSnapshot is the persisted cross-session playback position. One
// record per client; single writer, single reader.
type PlaybackSnapshot struct {
	TrackID       int64   `json:"trackId"`
	OffsetSeconds float64 `json:"offsetSeconds"`
	Volume        float64 `json:"volume"`
	WasPlaying    bool    `json:"wasPlaying"`
}

// SnapshotStore persists playback snapshots across process restarts.
type SnapshotStore interface {
	Save(ctx context.Context, clientID string, snap PlaybackSnapshot) error
	// Load returns nil, nil when no snapshot exists.
	Load(ctx context.Context, clientID string) (*PlaybackSnapshot, error)
	Delete(ctx context.Context, clientID string) error
}

// maybeSnapshotLocked persists the playback position at most once per
// snapshot interval.
func (s *Session) maybeSnapshotLocked() {
	if time.Since(s.lastSnapshot) < s.snapshotInterval {
		return
	}
	s.persistSnapshotLocked()
}

// persistSnapshotLocked writes the snapshot now. Best-effort: a failed write
// is logged and playback continues.
func (s *Session) persistSnapshotLocked() {
	if s.snapshots == nil || s.current == nil {
		return
	}
	s.lastSnapshot = time.Now()

	snap := PlaybackSnapshot{
		TrackID:       s.current.ID,
		OffsetSeconds: s.position,
		Volume:        clampVolume(s.volume),
		WasPlaying:    s.state == StatePlaying,
	}
	store := s.snapshots
	clientID := s.clientID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := store.Save(ctx, clientID, snap); err != nil {
			logger.Warn("failed to persist playback snapshot",
				logger.String("clientId", clientID),
				logger.ErrorField(err))
		}
	}()
}

// Restore reloads the last persisted playback position, if any. The track
// must still exist in the catalog; the seek is deferred until the element
// reports metadata, and playback resumes muted-first only when the previous
// session was playing.
func (s *Session) Restore(ctx context.Context) error {
	if s.snapshots == nil || s.catalog == nil {
		return nil
	}

	snap, err := s.snapshots.Load(ctx, s.clientID)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}

	track, err := s.catalog.GetTrackByID(snap.TrackID)
	if err != nil || track == nil {
		// Track no longer in the catalog; the snapshot is dead weight.
		logger.Info("persisted track no longer in catalog, dropping snapshot",
			logger.Int64("trackId", snap.TrackID))
		if delErr := s.snapshots.Delete(ctx, s.clientID); delErr != nil {
			logger.Warn("failed to drop stale snapshot", logger.ErrorField(delErr))
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.volume = clampVolume(snap.Volume)
	s.element.SetVolume(s.volume)

	s.current = track
	s.index = s.findIndexLocked(track)
	s.state = StateLoading
	s.position = 0
	s.liveDuration = 0
	s.pendingSeek = snap.OffsetSeconds
	s.pendingResume = snap.WasPlaying
	s.restoreMuted = false
	s.autoStart = false

	s.loadGen++
	s.stopReadyTimerLocked()
	s.element.Load(s.streamURL(track.ID))

	logger.Info("restored playback session",
		logger.Int64("trackId", track.ID),
		logger.Float64("offset", snap.OffsetSeconds),
		logger.Bool("wasPlaying", snap.WasPlaying))
	return nil
}
