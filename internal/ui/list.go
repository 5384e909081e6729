package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/curate/internal/models"
	"github.com/sahilm/fuzzy"
)

var (
	_ list.Item    = runItem{}
	_ list.Item    = outcomeItem{}
	_ fuzzy.Source = runIndex{}
)

// runItem wraps [models.Run] to implement [list.Item].
type runItem struct {
	run *models.Run
}

func (i runItem) FilterValue() string { return i.run.Seed }
func (i runItem) Title() string {
	if i.run.PlaylistName != "" {
		return i.run.PlaylistName
	}
	return i.run.Seed
}
func (i runItem) Description() string {
	desc := fmt.Sprintf("%s • %d/%d added", i.run.StartedAt.Format("2006-01-02 15:04"), i.run.AddedCount, i.run.TotalSuggestions)
	if i.run.Status == models.RunFailed {
		desc = fmt.Sprintf("%s • %s", desc, styles.err.Render("failed"))
	} else if i.run.ErrorCount > 0 {
		desc = fmt.Sprintf("%s • %d errors", desc, i.run.ErrorCount)
	}
	return desc
}

// outcomeItem wraps [models.RunOutcome] to implement [list.Item].
type outcomeItem struct {
	outcome models.RunOutcome
}

func (i outcomeItem) FilterValue() string { return i.outcome.Suggestion.Title }
func (i outcomeItem) Title() string {
	return fmt.Sprintf("%s %s", styles.Status(i.outcome.Status).Render(statusMark(i.outcome.Status)), i.outcome.Suggestion.Title)
}
func (i outcomeItem) Description() string {
	desc := i.outcome.Suggestion.Artist
	if i.outcome.ErrorMessage != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.outcome.ErrorMessage)
	} else if i.outcome.Status == models.OutcomeDownloaded {
		desc = fmt.Sprintf("%s • downloaded", desc)
	}
	return desc
}

func statusMark(s models.OutcomeStatus) string {
	switch s {
	case models.OutcomeAdded, models.OutcomeDownloaded:
		return "✓"
	case models.OutcomeFailed:
		return "✗"
	default:
		return "-"
	}
}

func outcomeItems(outcomes []models.RunOutcome) []list.Item {
	items := make([]list.Item, len(outcomes))
	for i, o := range outcomes {
		items[i] = outcomeItem{outcome: o}
	}
	return items
}

func runItems(runs []*models.Run) []list.Item {
	items := make([]list.Item, len(runs))
	for i, r := range runs {
		items[i] = runItem{run: r}
	}
	return items
}

// runIndex implements [fuzzy.Source] over lowercased seeds and playlist names.
type runIndex []*models.Run

func (idx runIndex) String(i int) string {
	return strings.ToLower(idx[i].Seed + " " + idx[i].PlaylistName)
}

func (idx runIndex) Len() int { return len(idx) }

// FilterRuns fuzzy-matches query against run seeds and playlist names, best matches first.
// An empty query returns runs unchanged.
func FilterRuns(runs []*models.Run, query string) []*models.Run {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return runs
	}

	matches := fuzzy.FindFrom(query, runIndex(runs))
	out := make([]*models.Run, len(matches))
	for i, m := range matches {
		out[i] = runs[m.Index]
	}
	return out
}
