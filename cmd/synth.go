package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/curate/internal/formatter"
	"github.com/desertthunder/curate/internal/shared"
	"github.com/desertthunder/curate/internal/tasks"
	"github.com/desertthunder/curate/internal/ui"
	"github.com/urfave/cli/v3"
)

// SynthRun builds one playlist from a seed.
func (r *Runner) SynthRun(ctx context.Context, cmd *cli.Command) error {
	req := tasks.SynthesisRequest{
		Seed:  strings.TrimSpace(cmd.StringArg("seed")),
		Mode:  cmd.String("mode"),
		Count: cmd.Int("count"),
		Name:  cmd.String("name"),
	}
	if req.Seed == "" {
		return fmt.Errorf("%w: seed", shared.ErrMissingArgument)
	}

	useTUI := cmd.Bool("tui")
	if useTUI {
		// Log lines would tear the full-screen view.
		fileLogger, err := shared.NewFileLogger("./tmp/curate-tui.log")
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		r.SetLogger(fileLogger)
	}

	engine, err := r.synthesisEngine()
	if err != nil {
		return err
	}

	var result *tasks.SynthesisResult
	if useTUI {
		result, err = r.runWithTUI(ctx, engine, req)
	} else {
		result, err = r.runWithProgress(ctx, engine, req, !cmd.Bool("json"))
	}

	if path := cmd.String("report"); path != "" && result != nil {
		written, werr := formatter.WriteReport(result.Run(), cmd.String("format"), path)
		if werr != nil {
			r.logger.Error("failed to write report", "error", werr)
		} else {
			r.logger.Info("report written", "path", written)
		}
	}

	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if cmd.Bool("json") {
		return r.writeJSON(formatter.NewReport(result.Run()), true)
	}
	if useTUI {
		return nil
	}
	return r.printResult(result)
}

// runWithProgress runs the engine and prints each progress message as it arrives.
func (r *Runner) runWithProgress(ctx context.Context, engine tasks.Engine, req tasks.SynthesisRequest, show bool) (*tasks.SynthesisResult, error) {
	progress := make(chan tasks.ProgressUpdate, 64)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for u := range progress {
			if !show || u.Message == "" {
				continue
			}
			if u.Total > 0 && !u.Done {
				r.writePlain("[%s %d/%d] %s\n", u.Phase.Title(), u.Step, u.Total, u.Message)
			} else {
				r.writePlain("[%s] %s\n", u.Phase.Title(), u.Message)
			}
		}
	}()

	result, err := engine.Run(ctx, req, progress)
	close(progress)
	<-done
	return result, err
}

func (r *Runner) runWithTUI(ctx context.Context, engine tasks.Engine, req tasks.SynthesisRequest) (*tasks.SynthesisResult, error) {
	model := ui.NewSynthesisModel(ctx, engine, req)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, fmt.Errorf("error running TUI: %w", err)
	}

	m, ok := final.(*ui.Model)
	if !ok {
		return nil, nil
	}
	return m.Result()
}

func (r *Runner) printResult(result *tasks.SynthesisResult) error {
	if result.PlaylistID == "" {
		r.writePlainHeader(fmt.Sprintf("No playlist for %q", result.Seed))
	} else {
		r.writePlainHeader(fmt.Sprintf("Playlist: %s", result.PlaylistName))
		r.writePlain("ID: %s\n", result.PlaylistID)
	}

	c := result.Counters()
	r.writePlain("Suggestions: %d  Found: %d  Downloaded: %d  Added: %d  Errors: %d\n",
		c.Total, c.Found, c.Downloaded, c.Added, c.Errors)
	r.writePlain("Duration: %s\n", result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond))

	if len(result.Errors) > 0 {
		r.writePlainln("Errors:")
		for _, e := range result.Errors {
			r.writePlain("  ✗ %s\n", e)
		}
	}
	return nil
}

// SynthBatch builds one playlist per seed with a small worker pool and writes a report per run plus a manifest.
func (r *Runner) SynthBatch(ctx context.Context, cmd *cli.Command) error {
	seeds := cmd.Args().Slice()
	if path := cmd.String("file"); path != "" {
		fromFile, err := readSeeds(path)
		if err != nil {
			return err
		}
		seeds = append(seeds, fromFile...)
	}
	if len(seeds) == 0 {
		return fmt.Errorf("%w: pass seeds as arguments or with --file", shared.ErrMissingArgument)
	}

	engine, err := r.synthesisEngine()
	if err != nil {
		return err
	}

	reqs := make([]tasks.SynthesisRequest, len(seeds))
	for i, seed := range seeds {
		reqs[i] = tasks.SynthesisRequest{Seed: seed, Mode: cmd.String("mode"), Count: cmd.Int("count")}
	}

	progress := make(chan tasks.ProgressUpdate, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range progress {
			r.logger.Info(u.Message, "step", u.Step, "total", u.Total)
		}
	}()

	result, err := engine.BulkSynthesize(ctx, progress, reqs, tasks.BulkOpts{
		Format:     cmd.String("format"),
		OutputDir:  cmd.String("output"),
		NumWorkers: cmd.Int("workers"),
		RateLimit:  cmd.Float("rate"),
	})
	close(progress)
	<-done
	if err != nil && result == nil {
		return err
	}

	r.writePlainHeader("Batch Summary")
	r.writePlain("Total: %d  Succeeded: %d  Failed: %d\n", result.Total, result.Succeeded, result.Failed)
	r.writePlain("Output: %s\n", result.OutputDirectory)
	if result.ManifestPath != "" {
		r.writePlain("Manifest: %s\n", result.ManifestPath)
	}
	for _, res := range result.Results {
		if res.Error != nil {
			r.writePlain("  ✗ %s: %v\n", res.Request.Seed, res.Error)
		} else {
			r.writePlain("  ✓ %s: %d added\n", res.Request.Seed, res.Result.AddedCount)
		}
	}
	return err
}

// readSeeds returns the non-blank lines of path, skipping # comments.
func readSeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	var seeds []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return seeds, nil
}
