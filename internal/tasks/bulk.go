package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/curate/internal/formatter"
	"github.com/desertthunder/curate/internal/shared"
	"golang.org/x/time/rate"
)

// BulkOpts contains configuration for synthesizing several playlists in one go.
type BulkOpts struct {
	Format     string  // Report format: json, csv, markdown, txt
	OutputDir  string  // Report directory (default: curate_batch_{epoch})
	NumWorkers int     // Concurrent runs (default: 2)
	RateLimit  float64 // Runs started per second (default: 1)
}

// BulkRunResult is the outcome of one request within a batch.
type BulkRunResult struct {
	Request    SynthesisRequest
	Result     *SynthesisResult
	ReportFile string
	Error      error
}

// BulkResult contains the results of a batch.
type BulkResult struct {
	Total           int
	Succeeded       int
	Failed          int
	OutputDirectory string
	ManifestPath    string
	Results         []BulkRunResult // in request order
}

type bulkJob struct {
	index int
	req   SynthesisRequest
}

// BulkSynthesize runs several requests with a small worker pool, writes one report per run and a manifest.
//
// Runs share the engine's collaborators, so the session guard refreshes once for the whole batch. A failed run
// is recorded in the manifest and does not stop the others.
func (e *SynthesisEngine) BulkSynthesize(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	reqs []SynthesisRequest,
	opts BulkOpts,
) (*BulkResult, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: no seeds", shared.ErrMissingArgument)
	}

	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("curate_batch_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 2
	}
	if opts.NumWorkers > 4 {
		opts.NumWorkers = 4
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1.0
	}
	if opts.Format == "" {
		opts.Format = formatter.FormatJSON
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BulkResult{
		Total:           len(reqs),
		OutputDirectory: opts.OutputDir,
		Results:         make([]BulkRunResult, len(reqs)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan bulkJob)
	results := make(chan int, len(reqs))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result.Results[job.index] = e.bulkRun(ctx, job.req, opts)
				results <- job.index
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, req := range reqs {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			select {
			case jobs <- bulkJob{index: i, req: req}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for i := range results {
		completed++
		res := result.Results[i]
		sendProgress(prog, bulkRunUpdate(completed, len(reqs), res.Request.Seed, res.Error))
	}

	manifest := &formatter.Manifest{
		GeneratedAt:     time.Now(),
		Format:          opts.Format,
		OutputDirectory: opts.OutputDir,
		Total:           len(reqs),
		Entries:         make([]formatter.ManifestEntry, 0, len(reqs)),
	}
	for i := range result.Results {
		res := &result.Results[i]
		if res.Result == nil && res.Error == nil {
			res.Request = reqs[i]
			res.Error = fmt.Errorf("not started: %w", context.Cause(ctx))
		}

		entry := formatter.ManifestEntry{Seed: res.Request.Seed, ReportFile: res.ReportFile}
		if res.Result != nil {
			entry.RunID = res.Result.RunID
			entry.PlaylistID = res.Result.PlaylistID
			entry.PlaylistName = res.Result.PlaylistName
			entry.AddedCount = res.Result.AddedCount
			entry.ErrorCount = len(res.Result.Errors)
		}
		if res.Error != nil {
			entry.Error = res.Error.Error()
			result.Failed++
		} else {
			result.Succeeded++
		}
		manifest.Entries = append(manifest.Entries, entry)
	}
	manifest.Succeeded = result.Succeeded
	manifest.Failed = result.Failed

	manifestPath := filepath.Join(opts.OutputDir, "manifest.json")
	if err := formatter.WriteManifest(manifest, manifestPath); err != nil {
		return result, fmt.Errorf("batch completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

// bulkRun runs one request and writes its report.
func (e *SynthesisEngine) bulkRun(ctx context.Context, req SynthesisRequest, opts BulkOpts) BulkRunResult {
	res := BulkRunResult{Request: req}

	out, err := e.Run(ctx, req, nil)
	if err != nil {
		res.Error = err
		return res
	}
	res.Result = out

	path, err := formatter.WriteReport(out.Run(), opts.Format, opts.OutputDir)
	if err != nil {
		res.Error = fmt.Errorf("report failed: %w", err)
		return res
	}
	res.ReportFile = filepath.Base(path)
	return res
}
