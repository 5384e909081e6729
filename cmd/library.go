package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/curate/internal/matching"
	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/scanner"
	"github.com/desertthunder/curate/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// LibraryLogin exchanges the configured credentials for a session and prints it.
//
// With no password configured and a terminal attached, the password is read without echo.
func (r *Runner) LibraryLogin(ctx context.Context, cmd *cli.Command) error {
	if r.config.Jellyfin.Password == "" && term.IsTerminal(int(r.input.Fd())) {
		r.writePlain("Password for %s@%s: ", r.config.Jellyfin.Username, r.config.Jellyfin.URL)
		pw, err := term.ReadPassword(int(r.input.Fd()))
		r.writePlain("\n")
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		r.config.Jellyfin.Password = string(pw)
		r.library = nil
		r.guard = nil
	}

	if _, err := r.libraryClient(); err != nil {
		return err
	}
	if r.guard == nil {
		return fmt.Errorf("%w: no session guard configured", shared.ErrServiceUnavailable)
	}

	s, err := r.guard.Session(ctx)
	if err != nil {
		return err
	}

	r.writePlain("✓ Signed in to %s\n", r.config.Jellyfin.URL)
	r.writePlain("User ID: %s\n", s.UserID)
	r.writePlain("Session trusted until: %s\n", s.ExpiresAt.Format(time.RFC1123))
	return nil
}

// LibrarySearch runs the pipeline's query cascade for one song and prints the best match.
func (r *Runner) LibrarySearch(ctx context.Context, cmd *cli.Command) error {
	s := models.SongSuggestion{
		Title:  strings.TrimSpace(cmd.StringArg("title")),
		Artist: strings.TrimSpace(cmd.StringArg("artist")),
	}
	if s.Title == "" {
		return fmt.Errorf("%w: title", shared.ErrMissingArgument)
	}

	library, err := r.libraryClient()
	if err != nil {
		return err
	}

	var candidates []models.LibraryTrack
	var best models.MatchResult
	for _, q := range matching.BuildQueries(s) {
		found, err := library.Search(ctx, q, r.config.Jellyfin.SearchLimit)
		if err != nil {
			r.logger.Warn("search failed", "query", q, "error", err)
			continue
		}
		r.logger.Debug("searched", "query", q, "results", len(found))
		candidates = append(candidates, found...)
		if best = matching.BestMatch(s, found); best.Track != nil {
			break
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"match": best, "candidates": candidates}, true)
	}

	r.writePlainHeader(fmt.Sprintf("Search: %s", s.Label()))
	if best.Track == nil {
		r.writePlain("No match (%d candidates)\n", len(candidates))
		return nil
	}
	r.writePlain("✓ %s by %s [%s] score %d\n", best.Track.Name, best.Track.AlbumArtist, best.Track.ID, best.Score)
	return nil
}

// LibraryCollections lists the server's top-level libraries.
func (r *Runner) LibraryCollections(ctx context.Context, cmd *cli.Command) error {
	library, err := r.libraryClient()
	if err != nil {
		return err
	}

	collections, err := library.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	r.writePlainHeader(fmt.Sprintf("Collections (%d)", len(collections)))
	for _, c := range collections {
		r.writePlain("%-36s  %-10s  %s\n", c.ID, c.ContentType, c.Name)
	}
	return nil
}

// LibraryScan triggers a re-index and, unless --no-wait, polls until the server is idle.
func (r *Runner) LibraryScan(ctx context.Context, cmd *cli.Command) error {
	library, err := r.libraryClient()
	if err != nil {
		return err
	}

	poller := scanner.NewPoller(library, scanner.Options{
		ProgressInterval: r.config.Scan.ProgressInterval.Duration,
		OnProgress: func(p scanner.Progress) {
			if pct := p.Percent(); pct >= 0 {
				r.writePlain("scanning... %.0f%% (%s)\n", pct, p.Elapsed.Round(time.Second))
			} else {
				r.writePlain("scanning... (%s)\n", p.Elapsed.Round(time.Second))
			}
		},
		Logger: r.logger,
	})

	collectionID := cmd.String("collection")
	if collectionID == "" {
		collectionID = r.config.Jellyfin.CollectionID
	}
	if collectionID == "" {
		if collectionID, err = poller.FindCollectionID(ctx, scanner.ContentTypeMusic); err != nil {
			return err
		}
		if collectionID == "" {
			return fmt.Errorf("%w: no %s collection on the server", shared.ErrInvalidArgument, scanner.ContentTypeMusic)
		}
	}

	if err := poller.TriggerScan(ctx, collectionID); err != nil {
		return err
	}
	r.writePlain("✓ Scan triggered for %s\n", collectionID)
	if cmd.Bool("no-wait") {
		return nil
	}

	timeout := cmd.Duration("timeout")
	if timeout <= 0 {
		timeout = r.config.Scan.Timeout.Duration
	}
	if !poller.AwaitScanCompletion(ctx, timeout, r.config.Scan.PollInterval.Duration) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return shared.ErrScanTimeout
	}
	r.writePlain("✓ Scan finished\n")
	return nil
}

// LibraryTasks lists the server's scheduled tasks.
func (r *Runner) LibraryTasks(ctx context.Context, cmd *cli.Command) error {
	library, err := r.libraryClient()
	if err != nil {
		return err
	}

	list, err := library.ListActiveTasks(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	if cmd.Bool("active") {
		list = scanner.ActiveScans(list)
	}

	r.writePlainHeader(fmt.Sprintf("Tasks (%d)", len(list)))
	for _, t := range list {
		progress := ""
		if t.ProgressPercent != nil {
			progress = fmt.Sprintf(" %.0f%%", *t.ProgressPercent)
		}
		r.writePlain("%-10s %s%s\n", t.State, t.Name, progress)
	}
	return nil
}

// LibraryPlaylists lists playlists, or the tracks of the playlist given as argument.
func (r *Runner) LibraryPlaylists(ctx context.Context, cmd *cli.Command) error {
	library, err := r.libraryClient()
	if err != nil {
		return err
	}

	if id := cmd.StringArg("id"); id != "" {
		tracks, err := library.PlaylistItems(ctx, id)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}
		if cmd.Bool("json") {
			return r.writeJSON(tracks, true)
		}
		r.writePlainHeader(fmt.Sprintf("Playlist %s (%d tracks)", id, len(tracks)))
		for i, t := range tracks {
			r.writePlain("%3d. %s - %s\n", i+1, t.Name, t.AlbumArtist)
		}
		return nil
	}

	playlists, err := library.Playlists(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	if cmd.Bool("json") {
		return r.writeJSON(playlists, true)
	}

	r.writePlainHeader(fmt.Sprintf("Playlists (%d)", len(playlists)))
	for _, p := range playlists {
		r.writePlain("%-36s  %4d  %s\n", p.ID, p.TrackCount, p.Name)
	}
	return nil
}

// LibraryDeletePlaylist removes a playlist from the server.
func (r *Runner) LibraryDeletePlaylist(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	library, err := r.libraryClient()
	if err != nil {
		return err
	}
	if err := library.DeletePlaylist(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return r.writePlain("✓ Deleted playlist %s\n", id)
}
