package activity

import (
	"errors"
	"fmt"
)

// Origin tags which store holds the authoritative copy of an entity.
// It routes delete/update calls; it is provenance, not ownership.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

const (
	StatusActive      = "active"
	StatusCompleted   = "completed"
	StatusStopped     = "stopped"
	StatusInterrupted = "interrupted"
)

const (
	maxTitleLen = 50
	maxNoteLen  = 200
)

type PointOfInterest struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude,omitempty"`
	// Distance and Time are offsets within the owning session.
	Distance  float64   `json:"distance"`
	Time      int64     `json:"time"`
	Title     string    `json:"title"`
	Note      string    `json:"note,omitempty"`
	PhotoURI  string    `json:"photo_uri,omitempty"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	SessionID string    `json:"session_id"`
	CreatedAt Timestamp `json:"created_at"`
	Origin    Origin    `json:"origin"`
	Draft     bool      `json:"draft,omitempty"`
}

func (p PointOfInterest) Validate() error {
	if p.Title == "" {
		return errors.New("title required")
	}
	if len([]rune(p.Title)) > maxTitleLen {
		return fmt.Errorf("title exceeds %d characters", maxTitleLen)
	}
	if len([]rune(p.Note)) > maxNoteLen {
		return fmt.Errorf("note exceeds %d characters", maxNoteLen)
	}
	return nil
}

// Photo is a photo embedded in a session payload.
type Photo struct {
	ID      string    `json:"id"`
	URI     string    `json:"uri,omitempty"`
	URL     string    `json:"url,omitempty"`
	TakenAt Timestamp `json:"taken_at"`
}

type Session struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Sport     Sport     `json:"sport"`
	Distance  float64   `json:"distance"`
	Duration  int64     `json:"duration"`
	Calories  float64   `json:"calories"`
	AvgSpeed  float64   `json:"avg_speed"`
	MaxSpeed  float64   `json:"max_speed"`
	Steps     int       `json:"steps"`
	Status    string    `json:"status"`
	Photos    []Photo   `json:"photos,omitempty"`
	CreatedAt Timestamp `json:"created_at"`
}

// PhotoItem is the unit shown in the reconciled feed: a POI photo or a
// session-embedded photo, flattened to one shape.
type PhotoItem struct {
	ID        string  `json:"id"`
	URI       string  `json:"uri,omitempty"`
	URL       string  `json:"url,omitempty"`
	Title     string  `json:"title,omitempty"`
	Note      string  `json:"note,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
	TakenAt   int64   `json:"taken_at"`
	Origin    Origin  `json:"origin"`
}

// Identity returns the dedup key for a photo item: id, falling back to uri.
func (p PhotoItem) Identity() string {
	if p.ID != "" {
		return p.ID
	}
	return p.URI
}

type SessionPerformance struct {
	SessionID string  `json:"session_id"`
	Sport     Sport   `json:"sport"`
	Distance  float64 `json:"distance"`
	Duration  int64   `json:"duration"`
	Calories  float64 `json:"calories"`
	Steps     int     `json:"steps"`
}

// DailyPerformance is the per-day aggregate cached under daily_stats_<date>.
type DailyPerformance struct {
	Date          string               `json:"date"`
	TotalDistance float64              `json:"total_distance"`
	TotalDuration int64                `json:"total_duration"`
	TotalCalories float64              `json:"total_calories"`
	SessionsList  []SessionPerformance `json:"sessions_list"`
}

type SessionGroup struct {
	SessionID   string              `json:"session_id"`
	Photos      []PhotoItem         `json:"photos"`
	Performance *SessionPerformance `json:"performance,omitempty"`
}

// DayGroup is the unit of reconciliation: all activity for one local
// calendar day. Every photo belongs to exactly one session group or to
// OrphanPhotos, never both.
type DayGroup struct {
	Date          string         `json:"date"`
	SessionGroups []SessionGroup `json:"session_groups"`
	OrphanPhotos  []PhotoItem    `json:"orphan_photos"`
}

// Sessions returns the session-group count for the merge rule.
func (d DayGroup) Sessions() int {
	return len(d.SessionGroups)
}

// Photos returns the total photo count, orphans included.
func (d DayGroup) Photos() int {
	n := len(d.OrphanPhotos)
	for _, g := range d.SessionGroups {
		n += len(g.Photos)
	}
	return n
}

// Assigned returns the photo count inside session groups only.
func (d DayGroup) Assigned() int {
	n := 0
	for _, g := range d.SessionGroups {
		n += len(g.Photos)
	}
	return n
}

// SyncQueueItem snapshots a mutation that failed to reach the remote store.
type SyncQueueItem struct {
	ID       string           `json:"id"`
	Session  *Session         `json:"session,omitempty"`
	POI      *PointOfInterest `json:"poi,omitempty"`
	UserID   string           `json:"user_id"`
	DeviceID string           `json:"device_id"`
	QueuedAt int64            `json:"queued_at"`
	Attempts int              `json:"attempts"`
}
