package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/curate/internal/formatter"
	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/shared"
	"github.com/desertthunder/curate/internal/ui"
	"github.com/urfave/cli/v3"
)

// HistoryList prints saved runs, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	runs, err := r.runStore()
	if err != nil {
		return err
	}

	limit := cmd.Int("limit")
	match := strings.TrimSpace(cmd.String("match"))
	criteria := map[string]any{
		"status": cmd.String("status"),
		"seed":   cmd.String("seed"),
	}
	if match == "" {
		criteria["limit"] = limit
	}

	list, err := runs.List(criteria)
	if err != nil {
		return err
	}
	list = ui.FilterRuns(list, match)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	if cmd.Bool("json") {
		reports := make([]formatter.RunReport, len(list))
		for i, run := range list {
			reports[i] = formatter.NewReport(run)
		}
		return r.writeJSON(reports, true)
	}

	r.writePlainHeader(fmt.Sprintf("Runs (%d)", len(list)))
	for _, run := range list {
		r.writePlain("%s  %s  %-9s  %d/%d added  %s\n",
			run.ID(), run.StartedAt.Format("2006-01-02 15:04"), run.Status,
			run.AddedCount, run.TotalSuggestions, runLabel(run))
	}
	return nil
}

// HistoryShow renders one saved run with its outcomes.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: run id", shared.ErrMissingArgument)
	}

	runs, err := r.runStore()
	if err != nil {
		return err
	}
	run, err := runs.Get(id)
	if err != nil {
		return err
	}

	data, err := formatter.Render(run, cmd.String("format"))
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// HistoryDelete removes a run from the history. The playlist on the server is left alone.
func (r *Runner) HistoryDelete(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: run id", shared.ErrMissingArgument)
	}

	runs, err := r.runStore()
	if err != nil {
		return err
	}
	if err := runs.Delete(id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted run %s\n", id)
}

func runLabel(run *models.Run) string {
	if run.PlaylistName != "" {
		return fmt.Sprintf("%s (%s)", run.PlaylistName, run.Seed)
	}
	return run.Seed
}
