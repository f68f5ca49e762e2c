// Package models defines the data model for the placement tracker
package models

import (
	"fmt"
	"strings"
	"time"
)

// WorkItem identifies one song to enrich. Either ExternalID is set (catalog identity already known) or the name pair is.
type WorkItem struct {
	ExternalID   string `json:"external_id,omitempty"`
	SongName     string `json:"song_name,omitempty"`
	ArtistName   string `json:"artist_name,omitempty"`
	KnownTrackID string `json:"known_track_id,omitempty"`
}

// CatalogItem creates a WorkItem whose catalog identity is already known.
func CatalogItem(id string) WorkItem {
	return WorkItem{ExternalID: id}
}

// NamedItem creates a WorkItem from a name pair and an optional streaming track id.
func NamedItem(song, artist, trackID string) WorkItem {
	return WorkItem{SongName: song, ArtistName: artist, KnownTrackID: trackID}
}

// HasExternalID reports whether the catalog identity is known up front.
func (w WorkItem) HasExternalID() bool {
	return w.ExternalID != ""
}

// Validate checks that the item carries either an external id or a complete name pair.
func (w WorkItem) Validate() error {
	if w.HasExternalID() {
		return nil
	}
	if strings.TrimSpace(w.SongName) == "" || strings.TrimSpace(w.ArtistName) == "" {
		return fmt.Errorf("work item needs an external id or a song and artist name")
	}
	return nil
}

func (w WorkItem) String() string {
	if w.HasExternalID() {
		return "song #" + w.ExternalID
	}
	return w.ArtistName + " - " + w.SongName
}

// SongRecord is the enriched output for one WorkItem.
//
// Every pointer field is optional: nil means "not obtainable", never an error.
type SongRecord struct {
	SongName              string  `json:"song_name"`
	ArtistName            string  `json:"artist_name"`
	CoProducers           *string `json:"co_producers"`
	Label                 *string `json:"label"`
	Copyright             *string `json:"copyright"`
	PhonographicCopyright *string `json:"phonographic_copyright"`
	TrackID               *string `json:"track_id"`
	CanonicalTrackName    *string `json:"canonical_track_name"`
	StreamCount           *int64  `json:"stream_count"`
	DailyStreamDelta      *int64  `json:"daily_stream_delta"`
	VideoURL              *string `json:"video_url"`
	VideoViews            *int64  `json:"video_views"`
}

// ArtistTitle renders the "<artist> - <song>" display key.
func (r SongRecord) ArtistTitle() string {
	return r.ArtistName + " - " + r.SongName
}

// Simplify projects the record onto the fixed simplified field subset.
func (r SongRecord) Simplify() SimplifiedRecord {
	return SimplifiedRecord{
		ArtistTitle:      r.ArtistTitle(),
		CoProducers:      r.CoProducers,
		Label:            r.Label,
		StreamCount:      r.StreamCount,
		DailyStreamDelta: r.DailyStreamDelta,
		VideoViews:       r.VideoViews,
	}
}

// SimplifiedRecord is the reduced projection handed to export collaborators.
type SimplifiedRecord struct {
	ArtistTitle      string  `json:"artist_title"`
	CoProducers      *string `json:"co_producers"`
	Label            *string `json:"label"`
	StreamCount      *int64  `json:"stream_count"`
	DailyStreamDelta *int64  `json:"daily_stream_delta"`
	VideoViews       *int64  `json:"video_views"`
}

// Simplify projects every record.
func Simplify(records []SongRecord) []SimplifiedRecord {
	out := make([]SimplifiedRecord, 0, len(records))
	for _, r := range records {
		out = append(out, r.Simplify())
	}
	return out
}

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// RunSummary describes a finished (or running) aggregation run.
type RunSummary struct {
	ID         string     `json:"id"`
	Sequence   int        `json:"sequence,omitempty"`
	Reference  string     `json:"reference"`
	Source     string     `json:"source"`
	Status     RunStatus  `json:"status"`
	Total      int        `json:"total_items"`
	Records    int        `json:"records"`
	Failed     int        `json:"failed"`
	Dropped    int        `json:"dropped"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// NonEmpty returns a pointer to s, or nil when s is blank.
func NonEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
