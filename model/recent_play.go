package model

import "time"

// RecentPlayLimit caps how many history rows are kept per user.
const RecentPlayLimit = 20

// RecentPlay records that a user started playback of a track. At most one row
// exists per (user, track); replaying bumps PlayedAt instead of duplicating.
type RecentPlay struct {
	ID       int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID   int64     `json:"userId" gorm:"index:idx_recent_user_track,unique;not null"`
	TrackID  int64     `json:"trackId" gorm:"index:idx_recent_user_track,unique;not null"`
	PlayedAt time.Time `json:"playedAt" gorm:"index"`
}

// TableName maps RecentPlay to the recent_plays table.
func (RecentPlay) TableName() string { return "recent_plays" }

// RecentPlayEntry is the joined view returned by the history API.
type RecentPlayEntry struct {
	Track    *Track    `json:"track"`
	PlayedAt time.Time `json:"playedAt"`
}
