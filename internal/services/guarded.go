package services

import (
	"context"

	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/session"
)

// GuardedLibrary implements [Library] by running every [JellyfinService] call through a [session.Guard].
type GuardedLibrary struct {
	api   *JellyfinService
	guard *session.Guard
}

// NewGuardedLibrary pairs api with guard. The guard is normally built around api itself.
func NewGuardedLibrary(api *JellyfinService, guard *session.Guard) *GuardedLibrary {
	return &GuardedLibrary{api: api, guard: guard}
}

// Guard exposes the session guard, e.g. to verify a session before starting a run.
func (g *GuardedLibrary) Guard() *session.Guard {
	return g.guard
}

func (g *GuardedLibrary) Search(ctx context.Context, query string, limit int) ([]models.LibraryTrack, error) {
	return session.Call(ctx, g.guard, func(ctx context.Context, s session.Session) ([]models.LibraryTrack, error) {
		return g.api.Search(ctx, s, query, limit)
	})
}

func (g *GuardedLibrary) CreatePlaylist(ctx context.Context, name string) (string, error) {
	return session.Call(ctx, g.guard, func(ctx context.Context, s session.Session) (string, error) {
		return g.api.CreatePlaylist(ctx, s, name)
	})
}

func (g *GuardedLibrary) AddToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	return g.guard.Do(ctx, func(ctx context.Context, s session.Session) error {
		return g.api.AddToPlaylist(ctx, s, playlistID, trackIDs)
	})
}

func (g *GuardedLibrary) DeletePlaylist(ctx context.Context, playlistID string) error {
	return g.guard.Do(ctx, func(ctx context.Context, s session.Session) error {
		return g.api.DeletePlaylist(ctx, s, playlistID)
	})
}

func (g *GuardedLibrary) ListCollections(ctx context.Context) ([]models.Collection, error) {
	return session.Call(ctx, g.guard, func(ctx context.Context, s session.Session) ([]models.Collection, error) {
		return g.api.ListCollections(ctx, s)
	})
}

func (g *GuardedLibrary) TriggerScan(ctx context.Context, collectionID string) error {
	return g.guard.Do(ctx, func(ctx context.Context, s session.Session) error {
		return g.api.TriggerScan(ctx, s, collectionID)
	})
}

func (g *GuardedLibrary) ListActiveTasks(ctx context.Context) ([]models.ScanTask, error) {
	return session.Call(ctx, g.guard, func(ctx context.Context, s session.Session) ([]models.ScanTask, error) {
		return g.api.ListActiveTasks(ctx, s)
	})
}

// Playlists lists the session user's playlists.
func (g *GuardedLibrary) Playlists(ctx context.Context) ([]models.Playlist, error) {
	return session.Call(ctx, g.guard, func(ctx context.Context, s session.Session) ([]models.Playlist, error) {
		return g.api.Playlists(ctx, s)
	})
}

// PlaylistItems returns the tracks of a playlist.
func (g *GuardedLibrary) PlaylistItems(ctx context.Context, playlistID string) ([]models.LibraryTrack, error) {
	return session.Call(ctx, g.guard, func(ctx context.Context, s session.Session) ([]models.LibraryTrack, error) {
		return g.api.PlaylistItems(ctx, s, playlistID)
	})
}
