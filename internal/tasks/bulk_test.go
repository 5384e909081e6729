package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/curate/internal/formatter"
	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/shared"
)

func TestBulkSynthesize(t *testing.T) {
	t.Run("Writes Reports And Manifest", func(t *testing.T) {
		lib, _, acq := fiveSongs()
		src := &mockSource{bySeed: map[string][]models.SongSuggestion{
			"Low":  {song("Heroes", "David Bowie"), song("Roxanne", "The Police")},
			"Blue": {song("Hallelujah", "Jeff Buckley")},
		}}
		engine := newTestEngine(lib, src, acq, testOptions(), nil)
		dir := filepath.Join(t.TempDir(), "batch")
		progress := make(chan ProgressUpdate, 64)

		result, err := engine.BulkSynthesize(context.Background(), progress, []SynthesisRequest{
			{Seed: "Low"}, {Seed: "bad"}, {Seed: "Blue"},
		}, BulkOpts{Format: formatter.FormatMarkdown, OutputDir: dir, RateLimit: 100})
		updates := drain(progress)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.Total != 3 || result.Succeeded != 2 || result.Failed != 1 {
			t.Errorf("unexpected totals %+v", result)
		}
		if result.Results[0].Result.AddedCount != 2 || result.Results[2].Result.AddedCount != 1 {
			t.Errorf("results out of request order: %+v", result.Results)
		}
		if !errors.Is(result.Results[1].Error, shared.ErrSetup) {
			t.Errorf("expected setup error for unknown seed, got %v", result.Results[1].Error)
		}
		if len(updates) != 3 || updates[2].Step != 3 || updates[2].Phase != BulkSynthesis {
			t.Errorf("expected one update per run, got %+v", updates)
		}

		report := filepath.Join(dir, result.Results[0].ReportFile)
		data, err := os.ReadFile(report)
		if err != nil {
			t.Fatalf("expected report at %s: %v", report, err)
		}
		if !strings.HasSuffix(report, ".md") || !strings.Contains(string(data), "Heroes") {
			t.Errorf("unexpected report %s:\n%s", report, data)
		}

		data, err = os.ReadFile(result.ManifestPath)
		if err != nil {
			t.Fatalf("expected manifest: %v", err)
		}
		var manifest formatter.Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			t.Fatalf("manifest is not JSON: %v", err)
		}
		if len(manifest.Entries) != 3 || manifest.Entries[1].Error == "" || manifest.Entries[0].RunID == "" {
			t.Errorf("unexpected manifest entries %+v", manifest.Entries)
		}
		if manifest.Entries[2].ReportFile == "" || manifest.Entries[2].AddedCount != 1 {
			t.Errorf("unexpected entry %+v", manifest.Entries[2])
		}
	})

	t.Run("Cancelled Batch", func(t *testing.T) {
		lib, src, acq := fiveSongs()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := newTestEngine(lib, src, acq, testOptions(), nil).BulkSynthesize(ctx, nil,
			[]SynthesisRequest{{Seed: "a"}, {Seed: "b"}}, BulkOpts{OutputDir: t.TempDir()})
		if err != nil {
			t.Fatal(err)
		}
		if result.Failed != 2 {
			t.Errorf("expected both runs unstarted, got %+v", result)
		}
		for _, r := range result.Results {
			if !errors.Is(r.Error, context.Canceled) || !strings.Contains(r.Error.Error(), "not started") {
				t.Errorf("unexpected error %v", r.Error)
			}
		}
		if src.calls != 0 {
			t.Errorf("no run should have started, got %d suggestion calls", src.calls)
		}
	})

	t.Run("No Requests", func(t *testing.T) {
		lib, src, acq := fiveSongs()
		_, err := newTestEngine(lib, src, acq, testOptions(), nil).BulkSynthesize(context.Background(), nil, nil, BulkOpts{})
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}
