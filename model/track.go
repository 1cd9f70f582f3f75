package model

import "time"

// Storage kinds backing a track's audio bytes.
const (
	SourceDirect  = "direct"  // external store serves bytes (and ranges) itself
	SourceChunked = "chunked" // gateway proxies byte ranges out of object storage
)

// Track represents one song in the shared catalog. Metadata is editable;
// the audio source is replaced wholesale on re-upload and the row is deleted
// only together with its backing bytes.
type Track struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Title     string    `json:"title" gorm:"size:255;not null"`
	Artist    string    `json:"artist" gorm:"size:255;not null"`
	Album     string    `json:"album" gorm:"size:255"`
	Duration  int       `json:"duration"` // seconds, computed once at ingest
	MimeType  string    `json:"mimeType" gorm:"size:100"`
	DirectURL string    `json:"-" gorm:"size:1024"` // resolvable external URL, direct backend
	ObjectKey string    `json:"-" gorm:"size:512"`  // object key in the chunked store
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName maps Track to the tracks table.
func (Track) TableName() string { return "tracks" }

// SourceKind reports which storage backend holds the track's bytes, or ""
// when the track has no resolvable source.
func (t *Track) SourceKind() string {
	switch {
	case t.DirectURL != "":
		return SourceDirect
	case t.ObjectKey != "":
		return SourceChunked
	default:
		return ""
	}
}
