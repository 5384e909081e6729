package tasks

import (
	"fmt"
	"time"

	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/scanner"
)

// ProgressUpdate represents a progress event during a synthesis run.
//
// Used to send real-time updates to the CLI, TUI or HTTP layer for display.
type ProgressUpdate struct {
	Phase    Phase    // Operation phase
	Step     int      // Current step number within phase
	Total    int      // Total steps in this phase
	Message  string   // Human-readable message for display
	Counters Counters // Counters as of the last phase boundary
	Done     bool     // Set on the last update of a phase, after its counters were tallied
	Data     any      // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	CheckSession Phase = iota
	FetchSuggestions
	CreatePlaylist
	SearchLibrary
	AddFound
	AcquireMissing
	ScanLibrary
	AddDownloaded
	Complete
	BulkSynthesis
)

func (p Phase) String() string {
	switch p {
	case CheckSession:
		return "check_session"
	case FetchSuggestions:
		return "fetch_suggestions"
	case CreatePlaylist:
		return "create_playlist"
	case SearchLibrary:
		return "search_library"
	case AddFound:
		return "add_found"
	case AcquireMissing:
		return "acquire_missing"
	case ScanLibrary:
		return "scan_library"
	case AddDownloaded:
		return "add_downloaded"
	case Complete:
		return "complete"
	case BulkSynthesis:
		return "bulk_synthesis"
	default:
		return ""
	}
}

// Title is the label shown next to a phase in progress displays.
func (p Phase) Title() string {
	switch p {
	case CheckSession:
		return "Signing in"
	case FetchSuggestions:
		return "Fetching suggestions"
	case CreatePlaylist:
		return "Creating playlist"
	case SearchLibrary:
		return "Searching library"
	case AddFound:
		return "Adding found tracks"
	case AcquireMissing:
		return "Downloading missing songs"
	case ScanLibrary:
		return "Rescanning library"
	case AddDownloaded:
		return "Adding downloaded tracks"
	case Complete:
		return "Done"
	case BulkSynthesis:
		return "Building playlists"
	default:
		return ""
	}
}

func checkSessionUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   CheckSession,
		Step:    0,
		Total:   1,
		Message: "Checking media server session...",
	}
}

func fetchSuggestionsUpdate(seed, source string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSuggestions,
		Step:    0,
		Total:   1,
		Message: fmt.Sprintf("Asking %s for songs like %q...", source, seed),
	}
}

func suggestionsReceivedUpdate(n int, c Counters) ProgressUpdate {
	return ProgressUpdate{
		Phase:    FetchSuggestions,
		Step:     1,
		Total:    1,
		Message:  fmt.Sprintf("Received %d suggestions", n),
		Counters: c,
		Done:     true,
	}
}

func createPlaylistUpdate(name, id string, c Counters) ProgressUpdate {
	return ProgressUpdate{
		Phase:    CreatePlaylist,
		Step:     1,
		Total:    1,
		Message:  fmt.Sprintf("Created playlist %q", name),
		Counters: c,
		Done:     true,
		Data:     id,
	}
}

func searchTrackUpdate(step, total int, s models.SongSuggestion, match *models.LibraryTrack) ProgressUpdate {
	msg := fmt.Sprintf("Not in library: %s", s.Label())
	if match != nil {
		msg = fmt.Sprintf("Found %s", s.Label())
	}
	return ProgressUpdate{
		Phase:   SearchLibrary,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    s,
	}
}

func addTrackUpdate(phase Phase, step, total int, s models.SongSuggestion, err error) ProgressUpdate {
	msg := fmt.Sprintf("Added %s", s.Label())
	if err != nil {
		msg = fmt.Sprintf("Failed to add %s: %v", s.Label(), err)
	}
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    s,
	}
}

func acquisitionSkippedUpdate(n int, reason string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AcquireMissing,
		Step:    n,
		Total:   n,
		Message: fmt.Sprintf("Skipping %d downloads: %s", n, reason),
	}
}

func acquireBatchUpdate(batch, batches, size int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AcquireMissing,
		Step:    batch,
		Total:   batches,
		Message: fmt.Sprintf("Downloading batch %d/%d (%d songs)...", batch, batches, size),
	}
}

func acquireTrackUpdate(step, total int, s models.SongSuggestion, err error) ProgressUpdate {
	msg := fmt.Sprintf("Downloaded %s", s.Label())
	if err != nil {
		msg = fmt.Sprintf("Download failed for %s", s.Label())
	}
	return ProgressUpdate{
		Phase:   AcquireMissing,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    s,
	}
}

func scanStartedUpdate(collectionID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ScanLibrary,
		Step:    0,
		Total:   1,
		Message: "Waiting for the library scan to finish...",
		Data:    collectionID,
	}
}

func scanProgressUpdate(p scanner.Progress) ProgressUpdate {
	msg := fmt.Sprintf("Library scan running (%s elapsed)", p.Elapsed.Round(time.Second))
	if pct := p.Percent(); pct >= 0 {
		msg = fmt.Sprintf("Library scan %.0f%% (%s elapsed)", pct, p.Elapsed.Round(time.Second))
	}
	return ProgressUpdate{
		Phase:   ScanLibrary,
		Step:    0,
		Total:   1,
		Message: msg,
		Data:    p,
	}
}

func phaseDoneUpdate(phase Phase, c Counters) ProgressUpdate {
	return ProgressUpdate{
		Phase:    phase,
		Step:     c.Total,
		Total:    c.Total,
		Message:  fmt.Sprintf("%s: done", phase.Title()),
		Counters: c,
		Done:     true,
	}
}

func completeUpdate(r *SynthesisResult) ProgressUpdate {
	return ProgressUpdate{
		Phase: Complete,
		Step:  1,
		Total: 1,
		Message: fmt.Sprintf("Added %d of %d suggestions to %q (%d errors)",
			r.AddedCount, r.TotalSuggestions, r.PlaylistName, len(r.Errors)),
		Counters: r.Counters(),
		Done:     true,
		Data:     r,
	}
}

func bulkRunUpdate(step, total int, seed string, err error) ProgressUpdate {
	msg := fmt.Sprintf("Finished %q", seed)
	if err != nil {
		msg = fmt.Sprintf("Failed %q: %v", seed, err)
	}
	return ProgressUpdate{
		Phase:   BulkSynthesis,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    seed,
	}
}
