package tasks

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/curate/internal/matching"
	"github.com/desertthunder/curate/internal/metrics"
	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/services"
	"github.com/desertthunder/curate/internal/session"
	"github.com/desertthunder/curate/internal/shared"
	"golang.org/x/time/rate"
)

// Defaults applied by [NewSynthesisEngine] to zero-valued [Options].
const (
	DefaultCount             = 20
	DefaultMode              = "similar"
	DefaultPlaylistName      = "{seed} ({mode})"
	DefaultSearchLimit       = 20
	DefaultSearchConcurrency = 8
	DefaultBatchSize         = 3
)

// Stage tags where in the pipeline an outcome was settled.
type Stage string

const (
	StageInit     Stage = "init"
	StageSession  Stage = "session"
	StageSuggest  Stage = "suggest"
	StagePlaylist Stage = "playlist"
	StageSearch   Stage = "search"
	StageAdd      Stage = "add"
	StageAcquire  Stage = "acquire"
	StageScan     Stage = "scan"
	StageResolve  Stage = "resolve"
)

// SynthesisRequest describes one playlist to build.
type SynthesisRequest struct {
	Seed  string `json:"seed" validate:"required,max=500"`
	Mode  string `json:"mode,omitempty" validate:"max=32"`
	Count int    `json:"count,omitempty" validate:"gte=0,lte=200"`
	Name  string `json:"name,omitempty" validate:"max=200"`
}

// Counters are the run totals at a phase boundary.
type Counters struct {
	Total      int `json:"total"`
	Found      int `json:"found"`
	Downloaded int `json:"downloaded"`
	Added      int `json:"added"`
	Errors     int `json:"errors"`
}

// Outcome is the settled state of one suggestion.
type Outcome struct {
	Position   int
	Suggestion models.SongSuggestion
	Status     models.OutcomeStatus // empty while the suggestion is still moving through the pipeline
	Stage      Stage
	Track      *models.LibraryTrack
	Score      int
	FilePath   string
	InPlaylist bool
	Err        error
}

// Message renders the outcome error keyed by the suggestion, or "" when it has none.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", o.Suggestion.Label(), o.Err)
}

// SynthesisResult contains the data from one synthesis run.
type SynthesisResult struct {
	RunID            string    `json:"runId"`
	Seed             string    `json:"seed"`
	Mode             string    `json:"mode,omitempty"`
	PlaylistID       string    `json:"playlistId"`
	PlaylistName     string    `json:"playlistName"`
	TotalSuggestions int       `json:"totalSuggestions"`
	FoundCount       int       `json:"foundCount"`
	DownloadedCount  int       `json:"downloadedCount"`
	AddedCount       int       `json:"addedCount"`
	Errors           []string  `json:"errors"`
	Outcomes         []Outcome `json:"-"`
	StartedAt        time.Time `json:"startedAt"`
	CompletedAt      time.Time `json:"completedAt"`
}

// Counters returns the result totals.
func (r *SynthesisResult) Counters() Counters {
	return Counters{
		Total:      r.TotalSuggestions,
		Found:      r.FoundCount,
		Downloaded: r.DownloadedCount,
		Added:      r.AddedCount,
		Errors:     len(r.Errors),
	}
}

// Run converts the result to a persistable [models.Run].
func (r *SynthesisResult) Run() *models.Run {
	run := models.NewRun(r.Seed, r.Mode, r.StartedAt)
	run.SetID(r.RunID)
	run.PlaylistID = r.PlaylistID
	run.PlaylistName = r.PlaylistName
	run.TotalSuggestions = r.TotalSuggestions
	run.FoundCount = r.FoundCount
	run.DownloadedCount = r.DownloadedCount
	run.AddedCount = r.AddedCount
	run.ErrorCount = len(r.Errors)
	if !r.CompletedAt.IsZero() {
		completed := r.CompletedAt
		run.CompletedAt = &completed
	}

	run.Outcomes = make([]models.RunOutcome, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		ro := models.RunOutcome{
			Position:   o.Position,
			Suggestion: o.Suggestion,
			Status:     cmp.Or(o.Status, models.OutcomeSkipped),
			Stage:      string(o.Stage),
			FilePath:   o.FilePath,
		}
		if o.Track != nil {
			ro.TrackID = o.Track.ID
		}
		if o.Err != nil {
			ro.ErrorMessage = o.Err.Error()
		}
		run.Outcomes = append(run.Outcomes, ro)
	}
	return run
}

// SetupError aborts a run before any suggestion could be processed.
//
// It matches [shared.ErrSetup] with [errors.Is] and unwraps to its cause.
type SetupError struct {
	Stage Stage
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%v: %s: %v", shared.ErrSetup, e.Stage, e.Err)
}

func (e *SetupError) Unwrap() []error {
	return []error{shared.ErrSetup, e.Err}
}

// Engine defines the synthesis operation.
type Engine interface {
	// Run fetches suggestions for the seed, matches them against the library, downloads what is missing
	// and fills a new playlist. Only a [*SetupError] is ever returned.
	Run(ctx context.Context, req SynthesisRequest, progress chan<- ProgressUpdate) (*SynthesisResult, error)
}

// SessionProvider yields a valid media server session. [*session.Guard] implements it.
type SessionProvider interface {
	Session(ctx context.Context) (session.Session, error)
}

// RunRecorder persists finished runs. repositories.RunRepository implements it.
type RunRecorder interface {
	Create(run *models.Run) error
}

// Options tunes a [SynthesisEngine].
type Options struct {
	DefaultCount      int
	DefaultMode       string
	PlaylistName      string  // template with {seed}, {mode} and {date}
	SearchLimit       int     // results requested per search query
	SearchConcurrency int     // in-flight searches and unordered adds
	RateLimit         float64 // library calls per second; zero disables limiting
	PreserveOrder     bool    // serialize adds so the playlist follows suggestion order
	BatchSize         int     // K, downloads in flight per batch
	TargetDir         string  // acquisition is skipped when empty
	CollectionID      string  // collection to rescan; looked up by content type when empty
	ScanTimeout       time.Duration
	PollInterval      time.Duration
	ProgressInterval  time.Duration
	Now               func() time.Time
}

// OptionsFromConfig maps the pipeline, acquisition, scan and jellyfin config sections to [Options].
func OptionsFromConfig(cfg *shared.Config) Options {
	return Options{
		DefaultCount:      cfg.Pipeline.DefaultCount,
		DefaultMode:       cfg.Pipeline.DefaultMode,
		PlaylistName:      cfg.Pipeline.PlaylistName,
		SearchLimit:       cfg.Jellyfin.SearchLimit,
		SearchConcurrency: cfg.Pipeline.SearchConcurrency,
		RateLimit:         cfg.Pipeline.RateLimit,
		PreserveOrder:     cfg.Pipeline.PreserveOrder,
		BatchSize:         cfg.Acquisition.BatchSize,
		TargetDir:         cfg.Acquisition.TargetDir,
		CollectionID:      cfg.Jellyfin.CollectionID,
		ScanTimeout:       cfg.Scan.Timeout.Duration,
		PollInterval:      cfg.Scan.PollInterval.Duration,
		ProgressInterval:  cfg.Scan.ProgressInterval.Duration,
	}
}

// Dependencies are the collaborators of a [SynthesisEngine]. Library and Source are required;
// everything else may be nil.
type Dependencies struct {
	Library  services.Library
	Source   services.SuggestionSource
	Acquirer services.Acquirer
	Sessions SessionProvider
	Recorder RunRecorder
	Metrics  *metrics.Collector
	Logger   *log.Logger
}

// SynthesisEngine implements [Engine].
type SynthesisEngine struct {
	library  services.Library
	source   services.SuggestionSource
	acquirer services.Acquirer
	sessions SessionProvider
	recorder RunRecorder
	metrics  *metrics.Collector
	logger   *log.Logger
	opts     Options
}

// NewSynthesisEngine creates a new SynthesisEngine with the provided collaborators.
func NewSynthesisEngine(deps Dependencies, opts Options) *SynthesisEngine {
	if opts.DefaultCount <= 0 {
		opts.DefaultCount = DefaultCount
	}
	opts.DefaultMode = cmp.Or(opts.DefaultMode, DefaultMode)
	opts.PlaylistName = cmp.Or(strings.TrimSpace(opts.PlaylistName), DefaultPlaylistName)
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}
	if opts.SearchConcurrency <= 0 {
		opts.SearchConcurrency = DefaultSearchConcurrency
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	opts.ScanTimeout = cmp.Or(opts.ScanTimeout, 120*time.Second)
	opts.PollInterval = cmp.Or(opts.PollInterval, 3*time.Second)
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &SynthesisEngine{
		library:  deps.Library,
		source:   deps.Source,
		acquirer: deps.Acquirer,
		sessions: deps.Sessions,
		recorder: deps.Recorder,
		metrics:  deps.Metrics,
		logger:   shared.WithLogger(deps.Logger, "component", "synthesis"),
		opts:     opts,
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run executes the pipeline: session check, suggestions, playlist creation, then phases 1 to 5.
// Every failure after the playlist exists is recorded in the result; the returned error is always a [*SetupError].
func (e *SynthesisEngine) Run(ctx context.Context, req SynthesisRequest, progress chan<- ProgressUpdate) (*SynthesisResult, error) {
	req.Seed = strings.TrimSpace(req.Seed)
	req.Mode = cmp.Or(strings.TrimSpace(req.Mode), e.opts.DefaultMode)
	if req.Count <= 0 {
		req.Count = e.opts.DefaultCount
	}

	result := &SynthesisResult{
		RunID:     shared.GenerateID(),
		Seed:      req.Seed,
		Mode:      req.Mode,
		Errors:    []string{},
		StartedAt: e.opts.Now(),
	}
	logger := shared.WithLogger(e.logger, "run_id", result.RunID)
	defer e.metrics.RunStarted()()

	if req.Seed == "" {
		return e.fail(result, logger, &SetupError{Stage: StageInit, Err: fmt.Errorf("%w: seed", shared.ErrMissingArgument)})
	}
	if e.library == nil || e.source == nil {
		return e.fail(result, logger, &SetupError{Stage: StageInit, Err: fmt.Errorf("%w: library or suggestion source not initialized", shared.ErrServiceUnavailable)})
	}

	if e.sessions != nil {
		sendProgress(progress, checkSessionUpdate())
		if _, err := e.sessions.Session(ctx); err != nil {
			return e.fail(result, logger, &SetupError{Stage: StageSession, Err: fmt.Errorf("%w: %w", shared.ErrNoSession, err)})
		}
	}

	start := time.Now()
	sendProgress(progress, fetchSuggestionsUpdate(req.Seed, e.source.Name()))
	suggestions, err := e.suggest(ctx, req, logger)
	if err != nil {
		return e.fail(result, logger, &SetupError{Stage: StageSuggest, Err: err})
	}
	e.metrics.ObservePhase(FetchSuggestions.String(), time.Since(start))

	p := &pipeline{
		e:        e,
		logger:   logger,
		progress: progress,
		result:   result,
		outcomes: make([]Outcome, len(suggestions)),
	}
	if e.opts.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(e.opts.RateLimit), 1)
	}
	for i, s := range suggestions {
		p.outcomes[i] = Outcome{Position: i, Suggestion: s}
	}
	p.tally()
	sendProgress(progress, suggestionsReceivedUpdate(len(suggestions), result.Counters()))

	if len(suggestions) == 0 {
		logger.Warn("no usable suggestions, nothing to build", "seed", req.Seed, "source", e.source.Name())
		return e.finish(p), nil
	}

	result.PlaylistName = e.playlistName(req)
	id, err := e.library.CreatePlaylist(ctx, result.PlaylistName)
	if err != nil {
		return e.fail(result, logger, &SetupError{Stage: StagePlaylist, Err: err})
	}
	result.PlaylistID = id
	sendProgress(progress, createPlaylistUpdate(result.PlaylistName, id, result.Counters()))
	logger.Info("created playlist", "name", result.PlaylistName, "id", id, "suggestions", len(suggestions))

	phases := []struct {
		phase Phase
		run   func(ctx context.Context)
	}{
		{SearchLibrary, p.searchAll},
		{AddFound, p.addFound},
		{AcquireMissing, p.acquireMissing},
		{ScanLibrary, p.rescan},
		{AddDownloaded, p.addDownloaded},
	}
	for _, ph := range phases {
		if err := ctx.Err(); err != nil {
			p.cancelled(err)
			break
		}
		start := time.Now()
		ph.run(ctx)
		p.tally()
		e.metrics.ObservePhase(ph.phase.String(), time.Since(start))
		sendProgress(progress, phaseDoneUpdate(ph.phase, result.Counters()))
		logger.Debug("phase complete", "phase", ph.phase, "found", result.FoundCount,
			"downloaded", result.DownloadedCount, "added", result.AddedCount, "errors", len(result.Errors))
	}
	if err := ctx.Err(); err != nil {
		p.cancelled(err)
	}

	return e.finish(p), nil
}

// suggest runs phase 0. A malformed payload yields an empty list.
func (e *SynthesisEngine) suggest(ctx context.Context, req SynthesisRequest, logger *log.Logger) ([]models.SongSuggestion, error) {
	raw, err := e.source.Suggest(ctx, req.Seed, req.Mode, req.Count)
	if err != nil {
		if errors.Is(err, shared.ErrMalformedSuggestions) {
			logger.Warn("suggestion payload unusable, continuing with no songs", "source", e.source.Name(), "error", err)
			return nil, nil
		}
		return nil, err
	}

	cleaned := cleanSuggestions(raw, req.Count)
	if dropped := len(raw) - len(cleaned); dropped > 0 {
		logger.Debug("dropped suggestions", "dropped", dropped, "kept", len(cleaned))
	}
	return cleaned, nil
}

// cleanSuggestions drops entries without a title or artist and duplicates by normalized title and artist,
// then truncates to limit.
func cleanSuggestions(raw []models.SongSuggestion, limit int) []models.SongSuggestion {
	seen := make(map[string]struct{}, len(raw))
	out := make([]models.SongSuggestion, 0, len(raw))
	for _, s := range raw {
		s.Title = strings.TrimSpace(s.Title)
		s.Artist = strings.TrimSpace(s.Artist)
		s.Album = strings.TrimSpace(s.Album)
		if s.Title == "" || s.Artist == "" {
			continue
		}
		key := matching.Normalize(s.Title) + "\x00" + matching.Normalize(s.Artist)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (e *SynthesisEngine) playlistName(req SynthesisRequest) string {
	if name := strings.TrimSpace(req.Name); name != "" {
		return name
	}
	name := strings.NewReplacer(
		"{seed}", req.Seed,
		"{mode}", req.Mode,
		"{date}", e.opts.Now().Format("2006-01-02"),
	).Replace(e.opts.PlaylistName)
	return cmp.Or(strings.TrimSpace(name), req.Seed)
}

func (e *SynthesisEngine) finish(p *pipeline) *SynthesisResult {
	r := p.result
	for i := range p.outcomes {
		if p.outcomes[i].Status == "" {
			p.outcomes[i].Status = models.OutcomeSkipped
		}
	}
	p.tally()
	r.Outcomes = p.outcomes
	r.CompletedAt = e.opts.Now()

	e.metrics.RunFinished(string(models.RunCompleted))
	byStatus := map[models.OutcomeStatus]int{}
	for _, o := range r.Outcomes {
		byStatus[o.Status]++
	}
	for status, n := range byStatus {
		e.metrics.Suggestions(string(status), n)
	}

	e.record(r.Run(), p.logger)
	sendProgress(p.progress, completeUpdate(r))
	p.logger.Info("synthesis complete", "playlist", r.PlaylistName, "suggestions", r.TotalSuggestions,
		"found", r.FoundCount, "downloaded", r.DownloadedCount, "added", r.AddedCount, "errors", len(r.Errors))
	return r
}

func (e *SynthesisEngine) fail(r *SynthesisResult, logger *log.Logger, err *SetupError) (*SynthesisResult, error) {
	r.CompletedAt = e.opts.Now()
	e.metrics.RunFinished(string(models.RunFailed))
	logger.Error("synthesis aborted", "stage", err.Stage, "error", err.Err)

	if r.Seed != "" {
		run := r.Run()
		run.Status = models.RunFailed
		run.ErrorMessage = err.Error()
		e.record(run, logger)
	}
	return nil, err
}

func (e *SynthesisEngine) record(run *models.Run, logger *log.Logger) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Create(run); err != nil {
		logger.Warn("failed to save run history", "error", err)
	}
}
