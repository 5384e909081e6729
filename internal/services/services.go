// package services defines the collaborators the synthesis pipeline talks to
//
// Jellyfin, suggestion sources (LLM, Spotify), acquisition tool
package services

import (
	"context"

	"github.com/desertthunder/curate/internal/models"
)

// Library is the media server catalog as seen by the pipeline.
//
// Implementations are expected to handle authentication themselves; see [GuardedLibrary].
type Library interface {
	// Search returns catalog items matching query, at most limit of them.
	Search(ctx context.Context, query string, limit int) ([]models.LibraryTrack, error)

	// CreatePlaylist creates an empty playlist and returns its id.
	CreatePlaylist(ctx context.Context, name string) (string, error)

	// AddToPlaylist appends tracks to a playlist in the given order.
	AddToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error

	// DeletePlaylist removes a playlist.
	DeletePlaylist(ctx context.Context, playlistID string) error

	// ListCollections returns the top-level libraries.
	ListCollections(ctx context.Context) ([]models.Collection, error)

	// TriggerScan starts a re-index of one collection without waiting for it.
	TriggerScan(ctx context.Context, collectionID string) error

	// ListActiveTasks returns the server's scheduled tasks with their current state.
	ListActiveTasks(ctx context.Context) ([]models.ScanTask, error)
}

// SuggestionSource produces song suggestions for a seed.
//
// A payload that cannot be read as a list of songs is reported as [shared.ErrMalformedSuggestions];
// an unreachable source as [shared.ErrServiceUnavailable].
type SuggestionSource interface {
	Suggest(ctx context.Context, seed, mode string, count int) ([]models.SongSuggestion, error)

	// Name returns the name of the source (e.g., "llm", "spotify")
	Name() string
}

// FetchRequest describes one song to acquire.
type FetchRequest struct {
	Title     string
	Artist    string
	Album     string
	TargetDir string
}

// FetchResult is a successful acquisition.
type FetchResult struct {
	FilePath string
}

// Acquirer downloads songs missing from the library into a directory the server indexes.
type Acquirer interface {
	// HealthCheck reports whether the acquisition tool can be used.
	HealthCheck(ctx context.Context) bool

	// Fetch acquires one song. A nil error means the file was written.
	Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error)
}
