package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"MuseFM/db"
	"MuseFM/model"
)

// ErrTrackNotFound is returned when a track id does not exist in the catalog.
var ErrTrackNotFound = errors.New("track not found")

// TrackRepository defines the interface for catalog data operations.
type TrackRepository interface {
	GetTrackByID(id int64) (*model.Track, error)
	GetAllTracks() ([]*model.Track, error)
	SearchTracks(query string, limit int) ([]*model.Track, error)
	CreateTrack(track *model.Track) (int64, error)
	UpdateTrackMetadata(id int64, title, artist, album string, duration int) error
	UpdateTrackSource(id int64, directURL, objectKey, mimeType string) error
	DeleteTrack(id int64) error
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository() TrackRepository {
	return &mysqlTrackRepository{DB: db.DB}
}

const trackColumns = `id, title, artist, album, duration, mime_type, direct_url, object_key, created_at, updated_at`

func scanTrack(row interface{ Scan(...interface{}) error }) (*model.Track, error) {
	var t model.Track
	var directURL, objectKey, mimeType sql.NullString
	err := row.Scan(&t.ID, &t.Title, &t.Artist, &t.Album, &t.Duration,
		&mimeType, &directURL, &objectKey, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.MimeType = mimeType.String
	t.DirectURL = directURL.String
	t.ObjectKey = objectKey.String
	return &t, nil
}

// GetTrackByID fetches a single track by its id.
func (r *mysqlTrackRepository) GetTrackByID(id int64) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	track, err := scanTrack(r.DB.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTrackNotFound
		}
		return nil, fmt.Errorf("failed to query track %d: %w", id, err)
	}
	return track, nil
}

// GetAllTracks returns the whole catalog, newest first.
func (r *mysqlTrackRepository) GetAllTracks() ([]*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks ORDER BY created_at DESC`
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*model.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track row: %w", err)
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating track rows: %w", err)
	}
	return tracks, nil
}

// SearchTracks matches the query against title, artist and album,
// case-insensitively. An empty query returns no results.
func (r *mysqlTrackRepository) SearchTracks(query string, limit int) ([]*model.Track, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	pattern := "%" + query + "%"
	stmt := `SELECT ` + trackColumns + ` FROM tracks
		WHERE title LIKE ? OR artist LIKE ? OR album LIKE ?
		ORDER BY title ASC
		LIMIT ?`
	rows, err := r.DB.Query(stmt, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*model.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track row: %w", err)
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating track rows: %w", err)
	}
	return tracks, nil
}

// CreateTrack adds a new track to the catalog.
func (r *mysqlTrackRepository) CreateTrack(track *model.Track) (int64, error) {
	query := `INSERT INTO tracks (title, artist, album, duration, mime_type, direct_url, object_key, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(track.Title, track.Artist, track.Album, track.Duration,
		track.MimeType, track.DirectURL, track.ObjectKey, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateTrack: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateTrack: %w", err)
	}
	return id, nil
}

// UpdateTrackMetadata edits the mutable metadata fields of a track.
func (r *mysqlTrackRepository) UpdateTrackMetadata(id int64, title, artist, album string, duration int) error {
	query := `UPDATE tracks SET title = ?, artist = ?, album = ?, duration = ?, updated_at = ? WHERE id = ?`
	res, err := r.DB.Exec(query, title, artist, album, duration, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update track metadata: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTrackNotFound
	}
	return nil
}

// UpdateTrackSource replaces the storage locator of a track. Re-uploads swap
// the locator wholesale: exactly one of directURL/objectKey should be set.
func (r *mysqlTrackRepository) UpdateTrackSource(id int64, directURL, objectKey, mimeType string) error {
	query := `UPDATE tracks SET direct_url = ?, object_key = ?, mime_type = ?, updated_at = ? WHERE id = ?`
	res, err := r.DB.Exec(query, directURL, objectKey, mimeType, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update track source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTrackNotFound
	}
	return nil
}

// DeleteTrack removes a track row. Callers delete the backing object first.
func (r *mysqlTrackRepository) DeleteTrack(id int64) error {
	res, err := r.DB.Exec(`DELETE FROM tracks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTrackNotFound
	}
	return nil
}
