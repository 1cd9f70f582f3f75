package repository

import (
	"database/sql"
	"fmt"
	"time"

	"MuseFM/db"
	"MuseFM/model"
)

// RecentPlayRepository records and lists per-user playback history.
type RecentPlayRepository interface {
	// RecordPlay upserts a (user, track) history row with the current time
	// and trims the user's history to model.RecentPlayLimit entries.
	RecordPlay(userID, trackID int64) error
	GetRecentPlays(userID int64) ([]*model.RecentPlayEntry, error)
}

type mysqlRecentPlayRepository struct {
	DB *sql.DB
}

// NewMySQLRecentPlayRepository creates a new instance of mysqlRecentPlayRepository.
func NewMySQLRecentPlayRepository() RecentPlayRepository {
	return &mysqlRecentPlayRepository{DB: db.DB}
}

// RecordPlay upserts the history row and trims the per-user cap.
func (r *mysqlRecentPlayRepository) RecordPlay(userID, trackID int64) error {
	// Replaying a track bumps its timestamp instead of adding a duplicate.
	query := `INSERT INTO recent_plays (user_id, track_id, played_at)
	           VALUES (?, ?, ?)
	           ON DUPLICATE KEY UPDATE played_at = VALUES(played_at)`
	if _, err := r.DB.Exec(query, userID, trackID, time.Now()); err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}

	// Keep only the newest entries per user.
	trim := `DELETE FROM recent_plays
		WHERE user_id = ? AND id NOT IN (
			SELECT id FROM (
				SELECT id FROM recent_plays
				WHERE user_id = ?
				ORDER BY played_at DESC
				LIMIT ?
			) keep
		)`
	if _, err := r.DB.Exec(trim, userID, userID, model.RecentPlayLimit); err != nil {
		return fmt.Errorf("failed to trim recent plays: %w", err)
	}
	return nil
}

// GetRecentPlays returns the user's history joined with track rows, newest first.
func (r *mysqlRecentPlayRepository) GetRecentPlays(userID int64) ([]*model.RecentPlayEntry, error) {
	query := `SELECT t.id, t.title, t.artist, t.album, t.duration, t.mime_type,
			t.direct_url, t.object_key, t.created_at, t.updated_at, rp.played_at
		FROM recent_plays rp
		JOIN tracks t ON t.id = rp.track_id
		WHERE rp.user_id = ?
		ORDER BY rp.played_at DESC
		LIMIT ?`
	rows, err := r.DB.Query(query, userID, model.RecentPlayLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent plays: %w", err)
	}
	defer rows.Close()

	var entries []*model.RecentPlayEntry
	for rows.Next() {
		var t model.Track
		var directURL, objectKey, mimeType sql.NullString
		var playedAt time.Time
		err := rows.Scan(&t.ID, &t.Title, &t.Artist, &t.Album, &t.Duration,
			&mimeType, &directURL, &objectKey, &t.CreatedAt, &t.UpdatedAt, &playedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recent play row: %w", err)
		}
		t.MimeType = mimeType.String
		t.DirectURL = directURL.String
		t.ObjectKey = objectKey.String
		entries = append(entries, &model.RecentPlayEntry{Track: &t, PlayedAt: playedAt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recent play rows: %w", err)
	}
	return entries, nil
}
