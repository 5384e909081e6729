package models

import "fmt"

// SongSuggestion is an immutable title/artist/album triple produced by a suggestion source.
type SongSuggestion struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Label renders the suggestion the way error messages and reports refer to it.
func (s SongSuggestion) Label() string {
	return fmt.Sprintf("%q by %s", s.Title, s.Artist)
}

// ItemTypeAudio is the catalog item type eligible for matching.
const ItemTypeAudio = "Audio"

// LibraryTrack is a read-only projection of a media server catalog item.
type LibraryTrack struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	AlbumArtist     string `json:"album_artist,omitempty"`
	Album           string `json:"album,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	ImageRef        string `json:"image_ref,omitempty"`
	Type            string `json:"type,omitempty"`
}

// Matchable reports whether the item may be scored; an empty type is treated as audio.
func (t LibraryTrack) Matchable() bool {
	return t.Type == "" || t.Type == ItemTypeAudio
}

// MatchResult pairs a suggestion with its accepted candidate. Track is nil when nothing cleared the threshold.
type MatchResult struct {
	Suggestion SongSuggestion `json:"suggestion"`
	Track      *LibraryTrack  `json:"track,omitempty"`
	Score      int            `json:"score"`
}

// TaskState is the lifecycle state of a server-side scheduled task.
type TaskState string

const (
	TaskIdle       TaskState = "Idle"
	TaskRunning    TaskState = "Running"
	TaskCancelling TaskState = "Cancelling"
	TaskCancelled  TaskState = "Cancelled"
)

// ScanTask is an observed re-index job. It is never created by this program, only triggered and read.
type ScanTask struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Key             string    `json:"key"`
	State           TaskState `json:"state"`
	ProgressPercent *float64  `json:"progress_percent,omitempty"`
	StatusMessage   string    `json:"status_message,omitempty"`
}

// Active reports whether the task still counts as in progress.
func (t ScanTask) Active() bool {
	return t.State == TaskRunning || t.State == TaskCancelling
}

// Collection is a top-level library on the media server.
type Collection struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
}

// Playlist is playlist metadata on the media server.
type Playlist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TrackCount int    `json:"track_count"`
}
