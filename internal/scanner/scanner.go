// Package scanner triggers scoped media library re-index jobs and waits for them to settle.
package scanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/shared"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxWait          = 120 * time.Second
	DefaultPollInterval     = 3 * time.Second
	DefaultProgressInterval = 10 * time.Second
)

// ContentTypeMusic is the collection type of music libraries.
const ContentTypeMusic = "music"

// scanKeywords select the tasks that belong to a library re-index.
var scanKeywords = []string{"scan", "library", "refresh"}

// Library is the subset of the media server the poller talks to.
type Library interface {
	ListCollections(ctx context.Context) ([]models.Collection, error)
	TriggerScan(ctx context.Context, collectionID string) error
	ListActiveTasks(ctx context.Context) ([]models.ScanTask, error)
}

// Progress describes the scan tasks still running at one poll.
type Progress struct {
	Active  []models.ScanTask
	Elapsed time.Duration
}

// Percent averages the reported progress of the active tasks, or returns -1 when none report one.
func (p Progress) Percent() float64 {
	var sum float64
	var n int
	for _, t := range p.Active {
		if t.ProgressPercent != nil {
			sum += *t.ProgressPercent
			n++
		}
	}
	if n == 0 {
		return -1
	}
	return sum / float64(n)
}

// Options configures a [Poller].
type Options struct {
	ProgressInterval time.Duration  // minimum gap between progress reports; zero reports every poll
	OnProgress       func(Progress) // optional
	Logger           *log.Logger
}

// Poller drives re-index jobs on a [Library].
type Poller struct {
	lib        Library
	logger     *log.Logger
	interval   time.Duration
	onProgress func(Progress)
}

// NewPoller creates a [Poller] for lib.
func NewPoller(lib Library, opts Options) *Poller {
	return &Poller{
		lib:        lib,
		logger:     shared.WithLogger(opts.Logger, "component", "scanner"),
		interval:   opts.ProgressInterval,
		onProgress: opts.OnProgress,
	}
}

// TriggerScan asks the server to re-index one collection and returns without waiting.
func (p *Poller) TriggerScan(ctx context.Context, collectionID string) error {
	if strings.TrimSpace(collectionID) == "" {
		return fmt.Errorf("%w: collection id", shared.ErrMissingArgument)
	}

	if err := p.lib.TriggerScan(ctx, collectionID); err != nil {
		return fmt.Errorf("trigger scan of %s: %w", collectionID, err)
	}

	p.logger.Info("library scan triggered", "collection_id", collectionID)
	return nil
}

// FindCollectionID returns the id of the first collection whose content type matches, or "" when none does.
func (p *Poller) FindCollectionID(ctx context.Context, contentType string) (string, error) {
	collections, err := p.lib.ListCollections(ctx)
	if err != nil {
		return "", fmt.Errorf("list collections: %w", err)
	}

	for _, c := range collections {
		if strings.EqualFold(c.ContentType, contentType) {
			return c.ID, nil
		}
	}

	p.logger.Warn("no collection with content type", "content_type", contentType, "collections", len(collections))
	return "", nil
}

// AwaitScanCompletion polls the server's task list until no re-index task is Running or Cancelling
// and reports true, or reports false once maxWait has elapsed. Failed polls are logged and retried
// on the next tick. A cancelled ctx ends the wait with false.
func (p *Poller) AwaitScanCompletion(ctx context.Context, maxWait, pollInterval time.Duration) bool {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	report := p.reporter()
	start := time.Now()
	deadline := start.Add(maxWait)

	for attempt := 1; ; attempt++ {
		tasks, err := p.lib.ListActiveTasks(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return false
		case err != nil:
			p.logger.Warn("scan status poll failed", "attempt", attempt, "error", err)
		default:
			active := ActiveScans(tasks)
			if len(active) == 0 {
				p.logger.Info("library scan settled", "elapsed", time.Since(start).Round(time.Millisecond))
				return true
			}
			report(Progress{Active: active, Elapsed: time.Since(start)})
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.logger.Warn("library scan still running at deadline", "max_wait", maxWait)
			return false
		}

		if !shared.Sleep(ctx.Done(), min(pollInterval, remaining)) {
			return false
		}
	}
}

func (p *Poller) reporter() func(Progress) {
	throttle := &rate.Sometimes{Interval: p.interval}
	if p.interval <= 0 {
		throttle = &rate.Sometimes{Every: 1}
	}

	return func(pr Progress) {
		throttle.Do(func() {
			p.logger.Info("library scan in progress",
				"active", len(pr.Active), "percent", pr.Percent(), "elapsed", pr.Elapsed.Round(time.Second))
			if p.onProgress != nil {
				p.onProgress(pr)
			}
		})
	}
}

// ActiveScans keeps the re-index tasks that are still Running or Cancelling.
func ActiveScans(tasks []models.ScanTask) []models.ScanTask {
	var active []models.ScanTask
	for _, t := range tasks {
		if t.Active() && isScanTask(t) {
			active = append(active, t)
		}
	}
	return active
}

func isScanTask(t models.ScanTask) bool {
	name, key := strings.ToLower(t.Name), strings.ToLower(t.Key)
	for _, kw := range scanKeywords {
		if strings.Contains(name, kw) || strings.Contains(key, kw) {
			return true
		}
	}
	return false
}
