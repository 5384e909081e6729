package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/curate/internal/matching"
	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/scanner"
	"github.com/desertthunder/curate/internal/services"
	"github.com/desertthunder/curate/internal/shared"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// pipeline holds the state of one run. Each outcome is written by at most one goroutine per phase,
// and the counters on result are only recomputed by tally between phases.
type pipeline struct {
	e        *SynthesisEngine
	logger   *log.Logger
	limiter  *rate.Limiter
	progress chan<- ProgressUpdate
	result   *SynthesisResult
	outcomes []Outcome
	// aggregate errors that belong to the run rather than to one suggestion
	runErrors []string
	cancel    error
}

// tally recomputes the result counters and error list from the outcomes.
func (p *pipeline) tally() {
	r := p.result
	r.TotalSuggestions = len(p.outcomes)
	r.FoundCount, r.DownloadedCount, r.AddedCount = 0, 0, 0
	r.Errors = r.Errors[:0]

	for _, o := range p.outcomes {
		if o.Status == models.OutcomeAdded {
			r.FoundCount++
		}
		if o.FilePath != "" {
			r.DownloadedCount++
		}
		if o.InPlaylist {
			r.AddedCount++
		}
		if o.Err == nil || (p.cancel != nil && isContextErr(o.Err)) {
			continue
		}
		r.Errors = append(r.Errors, o.Message())
	}
	r.Errors = append(r.Errors, p.runErrors...)
}

func (p *pipeline) runError(err error) {
	p.logger.Warn("run error", "error", err)
	p.runErrors = append(p.runErrors, err.Error())
}

// cancelled records the cancellation once. Outcomes that failed only because of it are not reported separately.
func (p *pipeline) cancelled(err error) {
	if p.cancel != nil {
		return
	}
	p.cancel = err
	p.runError(fmt.Errorf("run cancelled: %w", err))
	p.tally()
}

func (p *pipeline) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// indexes returns the positions of outcomes accepted by keep, in suggestion order.
func (p *pipeline) indexes(keep func(o *Outcome) bool) []int {
	var out []int
	for i := range p.outcomes {
		if keep(&p.outcomes[i]) {
			out = append(out, i)
		}
	}
	return out
}

// search runs the queries for s in order and stops at the first accepted match.
// When no query yields a match and any of them failed, the last failure is returned: the song may
// still be in the library, so it must not be treated as missing.
func (p *pipeline) search(ctx context.Context, s models.SongSuggestion) (models.MatchResult, error) {
	var lastErr error
	for _, q := range matching.BuildQueries(s) {
		if err := p.wait(ctx); err != nil {
			return models.MatchResult{Suggestion: s}, err
		}
		tracks, err := p.e.library.Search(ctx, q, p.e.opts.SearchLimit)
		if err != nil {
			if ctx.Err() != nil {
				return models.MatchResult{Suggestion: s}, ctx.Err()
			}
			p.logger.Warn("search query failed", "query", q, "error", err)
			lastErr = err
			continue
		}
		if m := matching.BestMatch(s, tracks); m.Track != nil {
			return m, nil
		}
	}
	return models.MatchResult{Suggestion: s}, lastErr
}

// searchAll is phase 1: every suggestion is searched concurrently.
func (p *pipeline) searchAll(ctx context.Context) {
	total := len(p.outcomes)
	var done atomic.Int64
	var g errgroup.Group
	g.SetLimit(p.e.opts.SearchConcurrency)

	for i := range p.outcomes {
		g.Go(func() error {
			o := &p.outcomes[i]
			m, err := p.search(ctx, o.Suggestion)
			if err != nil {
				o.Status = models.OutcomeFailed
				o.Stage = StageSearch
				o.Err = fmt.Errorf("search failed: %w", err)
			} else {
				o.Track = m.Track
				o.Score = m.Score
			}
			sendProgress(p.progress, searchTrackUpdate(int(done.Add(1)), total, o.Suggestion, m.Track))
			return nil
		})
	}
	g.Wait()
}

// addFound is phase 2.
func (p *pipeline) addFound(ctx context.Context) {
	found := p.indexes(func(o *Outcome) bool { return o.Status == "" && o.Track != nil })
	p.addTracks(ctx, AddFound, found, func(o *Outcome, err error) {
		o.Stage = StageAdd
		if err != nil {
			o.Status = models.OutcomeFailed
			o.Err = fmt.Errorf("failed to add to playlist: %w", err)
			return
		}
		o.Status = models.OutcomeAdded
		o.InPlaylist = true
	})
}

// addTracks adds the matched track of each position to the playlist. With PreserveOrder the adds run one at a
// time in suggestion order, otherwise concurrently.
func (p *pipeline) addTracks(ctx context.Context, phase Phase, positions []int, settle func(o *Outcome, err error)) {
	total := len(positions)
	var done atomic.Int64

	add := func(i int) {
		o := &p.outcomes[i]
		err := p.wait(ctx)
		if err == nil {
			err = p.e.library.AddToPlaylist(ctx, p.result.PlaylistID, []string{o.Track.ID})
		}
		settle(o, err)
		sendProgress(p.progress, addTrackUpdate(phase, int(done.Add(1)), total, o.Suggestion, err))
	}

	if p.e.opts.PreserveOrder {
		for _, i := range positions {
			if ctx.Err() != nil {
				return
			}
			add(i)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(p.e.opts.SearchConcurrency)
	for _, i := range positions {
		g.Go(func() error {
			add(i)
			return nil
		})
	}
	g.Wait()
}

// acquisitionUnavailable returns why downloads cannot run, or "" when they can.
func (p *pipeline) acquisitionUnavailable(ctx context.Context) string {
	switch {
	case p.e.opts.TargetDir == "":
		return "no target directory configured"
	case p.e.acquirer == nil:
		return "no acquisition tool configured"
	case !p.e.acquirer.HealthCheck(ctx):
		return "acquisition tool failed its health check"
	}
	return ""
}

// acquireMissing is phase 3: unmatched suggestions are fetched in sequential batches of K,
// concurrently within a batch.
func (p *pipeline) acquireMissing(ctx context.Context) {
	missing := p.indexes(func(o *Outcome) bool { return o.Status == "" && o.Track == nil })
	if len(missing) == 0 {
		return
	}

	if reason := p.acquisitionUnavailable(ctx); reason != "" {
		p.logger.Warn("skipping acquisition", "songs", len(missing), "reason", reason)
		for _, i := range missing {
			o := &p.outcomes[i]
			o.Status = models.OutcomeSkipped
			o.Stage = StageAcquire
			o.Err = fmt.Errorf("not in library and %w: %s", shared.ErrAcquisitionUnavailable, reason)
		}
		sendProgress(p.progress, acquisitionSkippedUpdate(len(missing), reason))
		return
	}

	k := p.e.opts.BatchSize
	batches := (len(missing) + k - 1) / k
	total := len(missing)
	var done atomic.Int64

	for b := range batches {
		if ctx.Err() != nil {
			return
		}
		batch := missing[b*k : min((b+1)*k, len(missing))]
		sendProgress(p.progress, acquireBatchUpdate(b+1, batches, len(batch)))

		var g errgroup.Group
		for _, i := range batch {
			g.Go(func() error {
				o := &p.outcomes[i]
				o.Stage = StageAcquire
				res, err := p.e.acquirer.Fetch(ctx, services.FetchRequest{
					Title:     o.Suggestion.Title,
					Artist:    o.Suggestion.Artist,
					Album:     o.Suggestion.Album,
					TargetDir: p.e.opts.TargetDir,
				})
				if err == nil && (res == nil || res.FilePath == "") {
					err = errors.New("tool reported no file")
				}
				if err != nil {
					o.Status = models.OutcomeFailed
					o.Err = fmt.Errorf("download failed: %w", err)
				} else {
					o.Status = models.OutcomeDownloaded
					o.FilePath = res.FilePath
				}
				sendProgress(p.progress, acquireTrackUpdate(int(done.Add(1)), total, o.Suggestion, err))
				return nil
			})
		}
		g.Wait()
	}
}

func (p *pipeline) downloaded() []int {
	return p.indexes(func(o *Outcome) bool { return o.Status == models.OutcomeDownloaded && !o.InPlaylist })
}

// rescan is phase 4: one scoped re-index for the whole run when anything was downloaded.
func (p *pipeline) rescan(ctx context.Context) {
	n := len(p.downloaded())
	if n == 0 {
		return
	}

	poller := scanner.NewPoller(p.e.library, scanner.Options{
		ProgressInterval: p.e.opts.ProgressInterval,
		OnProgress:       func(pr scanner.Progress) { sendProgress(p.progress, scanProgressUpdate(pr)) },
		Logger:           p.logger,
	})

	collectionID := p.e.opts.CollectionID
	if collectionID == "" {
		id, err := poller.FindCollectionID(ctx, scanner.ContentTypeMusic)
		if err != nil {
			p.runError(fmt.Errorf("library scan skipped: %w", err))
			return
		}
		if id == "" {
			p.runError(fmt.Errorf("library scan skipped: no %s collection on the server", scanner.ContentTypeMusic))
			return
		}
		collectionID = id
	}

	if err := poller.TriggerScan(ctx, collectionID); err != nil {
		p.runError(fmt.Errorf("library scan not started: %w", err))
		return
	}
	sendProgress(p.progress, scanStartedUpdate(collectionID))

	if !poller.AwaitScanCompletion(ctx, p.e.opts.ScanTimeout, p.e.opts.PollInterval) {
		if ctx.Err() != nil {
			return
		}
		p.runError(fmt.Errorf("%w (waited %s); %d downloaded songs may not be indexed yet",
			shared.ErrScanTimeout, p.e.opts.ScanTimeout, n))
	}
}

// addDownloaded is phase 5: downloaded songs are searched again and added when the library now has them.
func (p *pipeline) addDownloaded(ctx context.Context) {
	pending := p.downloaded()
	if len(pending) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(p.e.opts.SearchConcurrency)
	for _, i := range pending {
		g.Go(func() error {
			o := &p.outcomes[i]
			m, err := p.search(ctx, o.Suggestion)
			o.Stage = StageResolve
			switch {
			case err != nil:
				o.Status = models.OutcomeFailed
				o.Err = fmt.Errorf("downloaded but search failed after library scan: %w", err)
			case m.Track == nil:
				o.Status = models.OutcomeFailed
				o.Err = fmt.Errorf("downloaded but %w after library scan", shared.ErrTrackNotFound)
			default:
				o.Track = m.Track
				o.Score = m.Score
			}
			return nil
		})
	}
	g.Wait()

	matched := p.indexes(func(o *Outcome) bool {
		return o.Status == models.OutcomeDownloaded && o.Stage == StageResolve && o.Track != nil
	})
	p.addTracks(ctx, AddDownloaded, matched, func(o *Outcome, err error) {
		if err != nil {
			o.Status = models.OutcomeFailed
			o.Err = fmt.Errorf("downloaded but failed to add to playlist: %w", err)
			return
		}
		o.InPlaylist = true
	})
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
