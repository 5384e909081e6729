package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/services"
	"github.com/desertthunder/curate/internal/session"
	"github.com/desertthunder/curate/internal/shared"
)

// mockLibrary answers a search with every catalog track whose name occurs in the query.
// Tracks in pending become searchable once a scan is triggered.
type mockLibrary struct {
	mu             sync.Mutex
	catalog        []models.LibraryTrack
	pending        []models.LibraryTrack
	failQueries    string // searches whose query contains this fail
	createErr      error
	addErr         map[string]error // by track id
	addDelay       time.Duration
	collections    []models.Collection
	collectionsErr error
	tasks          []models.ScanTask // returned on every poll

	created   []string
	added     []string
	triggered []string
	searches  int
	addsNow   int
	maxAdds   int
}

func (m *mockLibrary) Search(ctx context.Context, query string, limit int) ([]models.LibraryTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches++
	if m.failQueries != "" && strings.Contains(strings.ToLower(query), strings.ToLower(m.failQueries)) {
		return nil, fmt.Errorf("%w: status 500", shared.ErrAPIRequest)
	}
	var out []models.LibraryTrack
	for _, t := range m.catalog {
		if strings.Contains(strings.ToLower(query), strings.ToLower(t.Name)) {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockLibrary) CreatePlaylist(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.created = append(m.created, name)
	return fmt.Sprintf("pl-%d", len(m.created)), nil
}

func (m *mockLibrary) AddToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	m.mu.Lock()
	m.addsNow++
	m.maxAdds = max(m.maxAdds, m.addsNow)
	m.mu.Unlock()

	time.Sleep(m.addDelay)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.addsNow--
	for _, id := range trackIDs {
		if err := m.addErr[id]; err != nil {
			return err
		}
	}
	m.added = append(m.added, trackIDs...)
	return nil
}

func (m *mockLibrary) DeletePlaylist(ctx context.Context, playlistID string) error { return nil }

func (m *mockLibrary) ListCollections(ctx context.Context) ([]models.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collections, m.collectionsErr
}

func (m *mockLibrary) TriggerScan(ctx context.Context, collectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggered = append(m.triggered, collectionID)
	m.catalog = append(m.catalog, m.pending...)
	m.pending = nil
	return nil
}

func (m *mockLibrary) ListActiveTasks(ctx context.Context) ([]models.ScanTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks, nil
}

func (m *mockLibrary) snapshot() (added, triggered []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.added), slices.Clone(m.triggered)
}

type mockSource struct {
	mu          sync.Mutex
	suggestions []models.SongSuggestion
	bySeed      map[string][]models.SongSuggestion
	err         error
	calls       int
	gotMode     string
	gotCount    int
}

func (m *mockSource) Name() string { return "mock" }

func (m *mockSource) Suggest(ctx context.Context, seed, mode string, count int) ([]models.SongSuggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.gotMode, m.gotCount = mode, count
	if m.err != nil {
		return nil, m.err
	}
	if s, ok := m.bySeed[seed]; ok {
		return s, nil
	}
	if m.bySeed != nil {
		return nil, fmt.Errorf("%w: unknown seed", shared.ErrServiceUnavailable)
	}
	return m.suggestions, nil
}

// mockAcquirer records how many fetches overlap.
type mockAcquirer struct {
	unhealthy bool
	failFor   map[string]error // by title
	delay     time.Duration
	onFetch   func()

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (m *mockAcquirer) HealthCheck(ctx context.Context) bool { return !m.unhealthy }

func (m *mockAcquirer) Fetch(ctx context.Context, req services.FetchRequest) (*services.FetchResult, error) {
	m.calls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxSeen.Load()
		if n <= cur || m.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}

	if m.onFetch != nil {
		m.onFetch()
	}
	time.Sleep(m.delay)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.failFor[req.Title]; err != nil {
		return nil, err
	}
	return &services.FetchResult{FilePath: filepath.Join(req.TargetDir, req.Artist+" - "+req.Title+".mp3")}, nil
}

type mockRecorder struct {
	mu   sync.Mutex
	runs []*models.Run
}

func (m *mockRecorder) Create(run *models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

type sessionFunc func(ctx context.Context) (session.Session, error)

func (f sessionFunc) Session(ctx context.Context) (session.Session, error) { return f(ctx) }

func track(id, name, artist string) models.LibraryTrack {
	return models.LibraryTrack{ID: id, Name: name, AlbumArtist: artist, Type: models.ItemTypeAudio}
}

func song(title, artist string) models.SongSuggestion {
	return models.SongSuggestion{Title: title, Artist: artist}
}

// fiveSongs is three songs in the library, one that downloads and appears after the scan, and one whose
// download fails.
func fiveSongs() (*mockLibrary, *mockSource, *mockAcquirer) {
	lib := &mockLibrary{
		catalog: []models.LibraryTrack{
			track("t-heroes", "Heroes", "David Bowie"),
			track("t-roxanne", "Roxanne", "The Police"),
			track("t-hallelujah", "Hallelujah", "Jeff Buckley"),
		},
		pending:     []models.LibraryTrack{track("t-obscure", "Obscure B-Side", "Nobody Band")},
		collections: []models.Collection{{ID: "c-movies", Name: "Movies", ContentType: "movies"}, {ID: "c-music", Name: "Music", ContentType: "music"}},
	}
	src := &mockSource{suggestions: []models.SongSuggestion{
		song("Heroes", "David Bowie"),
		song("Obscure B-Side", "Nobody Band"),
		song("Roxanne", "The Police"),
		song("Lost Demo", "Ghost Artist"),
		song("Hallelujah", "Jeff Buckley"),
	}}
	acq := &mockAcquirer{failFor: map[string]error{"Lost Demo": errors.New("no video results")}}
	return lib, src, acq
}

func testOptions() Options {
	return Options{
		PreserveOrder: true,
		TargetDir:     "/music/incoming",
		ScanTimeout:   500 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
		Now:           func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func newTestEngine(lib *mockLibrary, src *mockSource, acq *mockAcquirer, opts Options, rec RunRecorder) *SynthesisEngine {
	deps := Dependencies{
		Library: lib,
		Source:  src,
		Logger:  shared.NewLogger(io.Discard),
	}
	if acq != nil {
		deps.Acquirer = acq
	}
	if rec != nil {
		deps.Recorder = rec
	}
	return NewSynthesisEngine(deps, opts)
}

func drain(ch chan ProgressUpdate) []ProgressUpdate {
	close(ch)
	var out []ProgressUpdate
	for u := range ch {
		out = append(out, u)
	}
	return out
}

func phaseDone(updates []ProgressUpdate, phase Phase) (ProgressUpdate, bool) {
	for _, u := range updates {
		if u.Phase == phase && u.Done {
			return u, true
		}
	}
	return ProgressUpdate{}, false
}

func TestSynthesisEngineRun(t *testing.T) {
	t.Run("Full Pipeline", func(t *testing.T) {
		lib, src, acq := fiveSongs()
		rec := &mockRecorder{}
		engine := newTestEngine(lib, src, acq, testOptions(), rec)
		progress := make(chan ProgressUpdate, 256)

		result, err := engine.Run(context.Background(), SynthesisRequest{Seed: "Low by David Bowie"}, progress)
		updates := drain(progress)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.TotalSuggestions != 5 || result.FoundCount != 3 || result.DownloadedCount != 1 || result.AddedCount != 4 {
			t.Errorf("unexpected counters %+v", result.Counters())
		}
		if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], `"Lost Demo" by Ghost Artist`) {
			t.Errorf("expected one error naming the failed song, got %q", result.Errors)
		}
		if result.PlaylistID != "pl-1" || result.PlaylistName != "Low by David Bowie (similar)" {
			t.Errorf("unexpected playlist %s %q", result.PlaylistID, result.PlaylistName)
		}

		added, triggered := lib.snapshot()
		if want := []string{"t-heroes", "t-roxanne", "t-hallelujah", "t-obscure"}; !slices.Equal(added, want) {
			t.Errorf("expected adds %v, got %v", want, added)
		}
		if !slices.Equal(triggered, []string{"c-music"}) {
			t.Errorf("expected exactly one scan of the music collection, got %v", triggered)
		}
		if acq.calls.Load() != 2 {
			t.Errorf("expected 2 fetches, got %d", acq.calls.Load())
		}

		if u, ok := phaseDone(updates, AddFound); !ok || u.Counters.Added != 3 || u.Counters.Found != 3 || u.Counters.Downloaded != 0 {
			t.Errorf("expected added=3 after phase 2, got %+v (found=%v)", u.Counters, ok)
		}
		if u, ok := phaseDone(updates, AcquireMissing); !ok || u.Counters.Downloaded != 1 || u.Counters.Added != 3 {
			t.Errorf("expected downloaded=1 after phase 3, got %+v", u.Counters)
		}
		if u, ok := phaseDone(updates, Complete); !ok || u.Counters.Added != 4 {
			t.Errorf("expected completion update, got %+v", u)
		}

		statuses := map[string]models.OutcomeStatus{}
		for _, o := range result.Outcomes {
			statuses[o.Suggestion.Title] = o.Status
		}
		want := map[string]models.OutcomeStatus{
			"Heroes":         models.OutcomeAdded,
			"Roxanne":        models.OutcomeAdded,
			"Hallelujah":     models.OutcomeAdded,
			"Obscure B-Side": models.OutcomeDownloaded,
			"Lost Demo":      models.OutcomeFailed,
		}
		for title, status := range want {
			if statuses[title] != status {
				t.Errorf("%s: expected %s, got %s", title, status, statuses[title])
			}
		}

		if len(rec.runs) != 1 {
			t.Fatalf("expected one recorded run, got %d", len(rec.runs))
		}
		if run := rec.runs[0]; run.Status != models.RunCompleted || run.AddedCount != 4 || run.ErrorCount != 1 || run.ID() != result.RunID {
			t.Errorf("unexpected recorded run %+v", run)
		}
	})

	t.Run("Malformed Suggestions", func(t *testing.T) {
		lib, src, acq := fiveSongs()
		src.err = fmt.Errorf("%w: not JSON", shared.ErrMalformedSuggestions)

		result, err := newTestEngine(lib, src, acq, testOptions(), nil).Run(context.Background(), SynthesisRequest{Seed: "x"}, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.TotalSuggestions != 0 || result.FoundCount != 0 || result.DownloadedCount != 0 || result.AddedCount != 0 {
			t.Errorf("expected zero counters, got %+v", result.Counters())
		}
		if result.Errors == nil || len(result.Errors) != 0 {
			t.Errorf("expected empty error list, got %#v", result.Errors)
		}
		if len(lib.created) != 0 {
			t.Errorf("no playlist should be created, got %v", lib.created)
		}
	})

	t.Run("Concurrent Adds", func(t *testing.T) {
		lib, src, acq := fiveSongs()
		lib.addDelay = 20 * time.Millisecond
		opts := testOptions()
		opts.PreserveOrder = false

		result, err := newTestEngine(lib, src, acq, opts, nil).Run(context.Background(), SynthesisRequest{Seed: "x"}, nil)
		if err != nil {
			t.Fatal(err)
		}

		added, _ := lib.snapshot()
		found := slices.Clone(added[:3])
		slices.Sort(found)
		if want := []string{"t-hallelujah", "t-heroes", "t-roxanne"}; !slices.Equal(found, want) {
			t.Errorf("expected found tracks before downloaded ones, got %v", added)
		}
		if added[3] != "t-obscure" || result.AddedCount != 4 {
			t.Errorf("expected downloaded track last, got %v", added)
		}
		if lib.maxAdds < 2 {
			t.Errorf("expected overlapping adds, max in flight %d", lib.maxAdds)
		}
	})

	t.Run("Ordered Adds Never Overlap", func(t *testing.T) {
		lib, src, acq := fiveSongs()
		lib.addDelay = 5 * time.Millisecond

		if _, err := newTestEngine(lib, src, acq, testOptions(), nil).Run(context.Background(), SynthesisRequest{Seed: "x"}, nil); err != nil {
			t.Fatal(err)
		}
		if lib.maxAdds != 1 {
			t.Errorf("expected serialized adds, max in flight %d", lib.maxAdds)
		}
	})

	t.Run("Acquisition Concurrency Cap", func(t *testing.T) {
		lib := &mockLibrary{collections: []models.Collection{{ID: "c-music", ContentType: "music"}}}
		src := &mockSource{}
		for i := range 5 {
			src.suggestions = append(src.suggestions, song(fmt.Sprintf("Missing %d", i), fmt.Sprintf("Artist %d", i)))
		}
		acq := &mockAcquirer{delay: 30 * time.Millisecond}
		opts := testOptions()
		opts.BatchSize = 2

		result, err := newTestEngine(lib, src, acq, opts, nil).Run(context.Background(), SynthesisRequest{Seed: "x"}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if acq.calls.Load() != 5 || result.DownloadedCount != 5 {
			t.Errorf("expected 5 downloads, got %d calls and %d downloaded", acq.calls.Load(), result.DownloadedCount)
		}
		if got := acq.maxSeen.Load(); got > 2 {
			t.Errorf("expected at most 2 fetches in flight, saw %d", got)
		}
		if got := acq.maxSeen.Load(); got != 2 {
			t.Errorf("expected batches to run concurrently, saw %d in flight", got)
		}
		if len(result.Errors) != 5 || !strings.Contains(result.Errors[0], "not found after library scan") {
			t.Errorf("expected 5 not-found-after-scan errors, got %q", result.Errors)
		}
	})

	t.Run("Acquisition Skipped", func(t *testing.T) {
		tc := []struct {
			name   string
			modify func(o *Options, a *mockAcquirer)
			reason string
		}{
			{name: "No Target Dir", modify: func(o *Options, a *mockAcquirer) { o.TargetDir = "" }, reason: "no target directory"},
			{name: "Failed Health Check", modify: func(o *Options, a *mockAcquirer) { a.unhealthy = true }, reason: "health check"},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				lib, src, acq := fiveSongs()
				opts := testOptions()
				tt.modify(&opts, acq)

				result, err := newTestEngine(lib, src, acq, opts, nil).Run(context.Background(), SynthesisRequest{Seed: "x"}, nil)
				if err != nil {
					t.Fatal(err)
				}
				if acq.calls.Load() != 0 {
					t.Errorf("expected no fetches, got %d", acq.calls.Load())
				}
				if result.AddedCount != 3 || result.DownloadedCount != 0 {
					t.Errorf("unexpected counters %+v", result.Counters())
				}
				if len(result.Errors) != 2 {
					t.Fatalf("expected one error per unmatched song, got %q", result.Errors)
				}
				for _, e := range result.Errors {
					if !strings.Contains(e, "acquisition tool unavailable") || !strings.Contains(e, tt.reason) {
						t.Errorf("unexpected error %q", e)
					}
				}
				if _, triggered := lib.snapshot(); len(triggered) != 0 {
					t.Errorf("no scan expected without downloads, got %v", triggered)
				}
			})
		}
	})

	t.Run("No Acquirer", func(t *testing.T) {
		lib, src, _ := fiveSongs()
		result, err := newTestEngine(lib, src, nil, testOptions(), nil).Run(context.Background(), SynthesisRequest{Seed: "x"}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(result.Errors) != 2 || !strings.Contains(result.Errors[0], "no acquisition tool") {
			t.Errorf("unexpected errors %q", result.Errors)
		}
	})

	t.Run("Scan Timeout Still Adds Downloads", func(t *testing.T) {
		lib, src, acq := fiveSongs()
		pct := 40.0
		lib.tasks = []models.ScanTask{{ID: "1", Name: "Scan Media Library", State: models.TaskRunning, ProgressPercent: &pct}}
		opts := testOptions()
		opts.ScanTimeout = 40 * time.Millisecond

		result, err := newTestEngine(lib, src, acq, opts, nil).Run(context.Background(), SynthesisRequest{Seed: "x"}, nil)
		if err != nil {
			t.Fatal(err)
		}

		var scanErrors int
		for _, e := range result.Errors {
			if strings.Contains(e, shared.ErrScanTimeout.Error()) {
				scanErrors++
			}
		}
		if scanErrors != 1 || len(result.Errors) != 2 {
			t.Errorf("expected one aggregate scan error plus the failed download, got %q", result.Errors)
		}
		if result.AddedCount != 4 {
			t.Errorf("expected phase 5 to run after the timeout, added=%d", result.AddedCount)
		}
	})

	t.Run("Configured Collection Skips Lookup", func(t *testing.T) {
		lib, src, acq := fiveSongs()
		lib.collections = nil
		lib.collectionsErr = errors.New("should not be called")
		opts := testOptions()
		opts.CollectionID = "c-configured"

		result, err := newTestEngine(lib, src, acq, opts, nil).Run(context.Background(), SynthesisRequest{Seed: "x"}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if _, triggered := lib.snapshot(); !slices.Equal(triggered, []string{"c-configured"}) {
			t.Errorf("expected configured collection to be scanned, got %v", triggered)
		}
		if result.AddedCount != 4 {
			t.Errorf("expected 4 added, got %d", result.AddedCount)
		}
	})

	t.Run("No Music Collection", func(t *testing.T) {
		lib, src, acq := fiveSongs()
		lib.collections = []models.Collection{{ID: "c-movies", ContentType: "movies"}}

		result, err := newTestEngine(lib, src, acq, testOptions(), nil).Run(context.Background(), SynthesisRequest{Seed: "x"}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if result.AddedCount != 3 || result.DownloadedCount != 1 {
			t.Errorf("unexpected counters %+v", result.Counters())
		}
		if len(result.Errors) != 3 || !strings.Contains(strings.Join(result.Errors, "\n"), "library scan skipped") {
			t.Errorf("expected skipped scan, missing download and failed download errors, got %q", result.Errors)
		}
	})

	t.Run("Search Failures Are Not Downloaded", func(t *testing.T) {
		lib, src, acq := fiveSongs()
		lib.failQueries = "Broken"
		src.suggestions = append(src.suggestions, song("Broken Song", "Broken Band"))

		result, err := newTestEngine(lib, src, acq, testOptions(), nil).Run(context.Background(), SynthesisRequest{Seed: "x"}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if acq.calls.Load() != 2 {
			t.Errorf("expected only the two missing songs to be fetched, got %d", acq.calls.Load())
		}
		var found bool
		for _, o := range result.Outcomes {
			if o.Suggestion.Title == "Broken Song" {
				found = true
				if o.Status != models.OutcomeFailed || o.Stage != StageSearch {
					t.Errorf("unexpected outcome %+v", o)
				}
			}
		}
		if !found || len(result.Errors) != 2 {
			t.Errorf("expected search and download errors, got %q", result.Errors)
		}
	})

	t.Run("Partial Search Failures", func(t *testing.T) {
		tests := []struct {
			name        string
			failQueries string
			wantStatus  models.OutcomeStatus
			wantStage   Stage
			wantFetches int32
		}{
			// "heroes david bowie" fails, "heroes" still finds the track
			{"later query matches", "bowie", models.OutcomeAdded, StageAdd, 2},
			// every query naming the title fails and "david bowie" finds nothing
			{"no query matches", "heroes", models.OutcomeFailed, StageSearch, 2},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				lib, src, acq := fiveSongs()
				lib.failQueries = tt.failQueries

				result, err := newTestEngine(lib, src, acq, testOptions(), nil).Run(context.Background(), SynthesisRequest{Seed: "x"}, nil)
				if err != nil {
					t.Fatal(err)
				}

				heroes := result.Outcomes[0]
				if heroes.Status != tt.wantStatus || heroes.Stage != tt.wantStage {
					t.Errorf("expected %s at %s, got %s at %s (%v)", tt.wantStatus, tt.wantStage, heroes.Status, heroes.Stage, heroes.Err)
				}
				if got := acq.calls.Load(); got != tt.wantFetches {
					t.Errorf("expected %d fetches, got %d", tt.wantFetches, got)
				}

				errs := strings.Join(result.Errors, "\n")
				if tt.wantStatus == models.OutcomeFailed {
					if !strings.Contains(errs, `"Heroes" by David Bowie: search failed`) {
						t.Errorf("expected a search error for Heroes, got %q", result.Errors)
					}
					if strings.Contains(errs, "not found after library scan") {
						t.Errorf("expected no post-scan error for Heroes, got %q", result.Errors)
					}
				} else if strings.Contains(errs, "Heroes") {
					t.Errorf("expected no error for Heroes, got %q", result.Errors)
				}
			})
		}
	})

	t.Run("Add Failure", func(t *testing.T) {
		lib, src, acq := fiveSongs()
		lib.addErr = map[string]error{"t-roxanne": &shared.StatusError{StatusCode: 500}}

		result, err := newTestEngine(lib, src, acq, testOptions(), nil).Run(context.Background(), SynthesisRequest{Seed: "x"}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if result.FoundCount != 2 || result.AddedCount != 3 {
			t.Errorf("unexpected counters %+v", result.Counters())
		}
		if !strings.Contains(strings.Join(result.Errors, "\n"), `"Roxanne" by The Police: failed to add to playlist`) {
			t.Errorf("expected add failure keyed by song, got %q", result.Errors)
		}
	})

	t.Run("Cancellation", func(t *testing.T) {
		lib, src, acq := fiveSongs()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		acq.onFetch = cancel
		opts := testOptions()
		opts.BatchSize = 1

		result, err := newTestEngine(lib, src, acq, opts, nil).Run(ctx, SynthesisRequest{Seed: "x"}, nil)
		if err != nil {
			t.Fatalf("cancellation after setup should not fail the run, got %v", err)
		}
		if acq.calls.Load() != 1 {
			t.Errorf("expected no batch after cancellation, got %d fetches", acq.calls.Load())
		}
		if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "run cancelled") {
			t.Errorf("expected one cancellation error, got %q", result.Errors)
		}
		if result.AddedCount != 3 || result.FoundCount != 3 || result.DownloadedCount != 0 {
			t.Errorf("unexpected counters %+v", result.Counters())
		}
		if _, triggered := lib.snapshot(); len(triggered) != 0 {
			t.Errorf("no scan expected after cancellation, got %v", triggered)
		}
	})
}

func TestSynthesisEngineSetup(t *testing.T) {
	t.Run("No Session", func(t *testing.T) {
		lib, src, acq := fiveSongs()
		engine := NewSynthesisEngine(Dependencies{
			Library:  lib,
			Source:   src,
			Acquirer: acq,
			Sessions: sessionFunc(func(ctx context.Context) (session.Session, error) {
				return session.Session{}, fmt.Errorf("%w: bad password", shared.ErrRefreshFailed)
			}),
			Logger: shared.NewLogger(io.Discard),
		}, testOptions())

		result, err := engine.Run(context.Background(), SynthesisRequest{Seed: "x"}, nil)
		if result != nil {
			t.Errorf("expected nil result, got %+v", result)
		}
		var setup *SetupError
		if !errors.As(err, &setup) || setup.Stage != StageSession {
			t.Fatalf("expected session SetupError, got %v", err)
		}
		for _, target := range []error{shared.ErrSetup, shared.ErrNoSession, shared.ErrRefreshFailed} {
			if !errors.Is(err, target) {
				t.Errorf("expected %v in chain of %v", target, err)
			}
		}
		if src.calls != 0 {
			t.Error("suggestion source should not be called without a session")
		}
	})

	t.Run("Source Unreachable", func(t *testing.T) {
		lib, src, acq := fiveSongs()
		src.err = fmt.Errorf("%w: connection refused", shared.ErrServiceUnavailable)
		rec := &mockRecorder{}

		_, err := newTestEngine(lib, src, acq, testOptions(), rec).Run(context.Background(), SynthesisRequest{Seed: "x"}, nil)
		var setup *SetupError
		if !errors.As(err, &setup) || setup.Stage != StageSuggest || !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Fatalf("expected suggest SetupError, got %v", err)
		}
		if len(lib.created) != 0 {
			t.Error("no playlist should be created")
		}
		if len(rec.runs) != 1 || rec.runs[0].Status != models.RunFailed || rec.runs[0].ErrorMessage == "" {
			t.Errorf("expected failed run to be recorded, got %+v", rec.runs)
		}
	})

	t.Run("Playlist Creation Fails", func(t *testing.T) {
		lib, src, acq := fiveSongs()
		lib.createErr = &shared.StatusError{StatusCode: 403}

		_, err := newTestEngine(lib, src, acq, testOptions(), nil).Run(context.Background(), SynthesisRequest{Seed: "x"}, nil)
		var setup *SetupError
		if !errors.As(err, &setup) || setup.Stage != StagePlaylist || !errors.Is(err, shared.ErrSetup) {
			t.Fatalf("expected playlist SetupError, got %v", err)
		}
		if lib.searches != 0 {
			t.Errorf("no search expected, got %d", lib.searches)
		}
	})

	t.Run("Missing Seed", func(t *testing.T) {
		lib, src, acq := fiveSongs()
		_, err := newTestEngine(lib, src, acq, testOptions(), nil).Run(context.Background(), SynthesisRequest{Seed: "  "}, nil)
		if !errors.Is(err, shared.ErrMissingArgument) || !errors.Is(err, shared.ErrSetup) {
			t.Errorf("expected missing seed setup error, got %v", err)
		}
	})

	t.Run("Missing Collaborators", func(t *testing.T) {
		engine := NewSynthesisEngine(Dependencies{Logger: shared.NewLogger(io.Discard)}, Options{})
		if _, err := engine.Run(context.Background(), SynthesisRequest{Seed: "x"}, nil); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("Request Defaults", func(t *testing.T) {
		lib, src, acq := fiveSongs()
		opts := testOptions()
		opts.DefaultCount = 7
		opts.DefaultMode = "discover"
		opts.PlaylistName = "{mode}: {seed} {date}"

		result, err := newTestEngine(lib, src, acq, opts, nil).Run(context.Background(), SynthesisRequest{Seed: "Low"}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if src.gotCount != 7 || src.gotMode != "discover" {
			t.Errorf("expected defaults to reach the source, got count=%d mode=%q", src.gotCount, src.gotMode)
		}
		if result.PlaylistName != "discover: Low 2025-03-01" {
			t.Errorf("unexpected playlist name %q", result.PlaylistName)
		}

		result, _ = newTestEngine(lib, src, acq, opts, nil).Run(context.Background(), SynthesisRequest{Seed: "Low", Name: "Mine", Count: 2}, nil)
		if result.PlaylistName != "Mine" || result.TotalSuggestions != 2 {
			t.Errorf("expected explicit name and count, got %q with %d", result.PlaylistName, result.TotalSuggestions)
		}
	})
}

func TestCleanSuggestions(t *testing.T) {
	raw := []models.SongSuggestion{
		song("Heroes", "David Bowie"),
		song("  ", "Nobody"),
		song("Untitled", ""),
		song("HEROES!", "david bowie"),
		song(" Héroes ", "David Bowie"),
		song("Low", "David Bowie"),
		song("Sound and Vision", "David Bowie"),
	}

	got := cleanSuggestions(raw, 0)
	titles := make([]string, 0, len(got))
	for _, s := range got {
		titles = append(titles, s.Title)
	}
	if want := []string{"Heroes", "Low", "Sound and Vision"}; !slices.Equal(titles, want) {
		t.Errorf("expected %v, got %v", want, titles)
	}

	if got := cleanSuggestions(raw, 2); len(got) != 2 || got[1].Title != "Low" {
		t.Errorf("expected truncation to 2, got %+v", got)
	}
}

func TestSetupError(t *testing.T) {
	cause := fmt.Errorf("%w: boom", shared.ErrServiceUnavailable)
	err := error(&SetupError{Stage: StageSuggest, Err: cause})

	if !errors.Is(err, shared.ErrSetup) || !errors.Is(err, shared.ErrServiceUnavailable) {
		t.Errorf("expected chain to include setup and cause, got %v", err)
	}
	if want := "synthesis setup failed: suggest: service unavailable: boom"; err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestSynthesisResultRun(t *testing.T) {
	completed := time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC)
	tr := track("t-1", "Heroes", "David Bowie")
	r := &SynthesisResult{
		RunID:            "run-1",
		Seed:             "Low",
		Mode:             "similar",
		PlaylistID:       "pl-1",
		PlaylistName:     "Low (similar)",
		TotalSuggestions: 2,
		FoundCount:       1,
		AddedCount:       1,
		Errors:           []string{"x"},
		CompletedAt:      completed,
		Outcomes: []Outcome{
			{Position: 0, Suggestion: song("Heroes", "David Bowie"), Status: models.OutcomeAdded, Stage: StageAdd, Track: &tr, InPlaylist: true},
			{Position: 1, Suggestion: song("Gone", "Someone"), Stage: StageAcquire, Err: errors.New("download failed")},
		},
	}

	run := r.Run()
	if run.ID() != "run-1" || run.ErrorCount != 1 || run.CompletedAt == nil || !run.CompletedAt.Equal(completed) {
		t.Errorf("unexpected run %+v", run)
	}
	if err := run.Validate(); err != nil {
		t.Errorf("converted run should validate: %v", err)
	}
	if run.Outcomes[0].TrackID != "t-1" || run.Outcomes[1].Status != models.OutcomeSkipped || run.Outcomes[1].ErrorMessage != "download failed" {
		t.Errorf("unexpected outcomes %+v", run.Outcomes)
	}
}

func TestPhaseString(t *testing.T) {
	for p := CheckSession; p <= BulkSynthesis; p++ {
		if p.String() == "" || p.Title() == "" {
			t.Errorf("phase %d has no name", p)
		}
	}
	if Phase(99).String() != "" {
		t.Error("expected empty name for unknown phase")
	}
}
