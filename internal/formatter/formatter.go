// package formatter renders synthesis run reports to JSON, CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/shared"
)

// Supported report formats.
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatText     = "txt"
)

// Formats lists every format accepted by [Render].
var Formats = []string{FormatJSON, FormatCSV, FormatMarkdown, FormatText}

// RunReport is the JSON shape of a run shared by reports and the HTTP API.
type RunReport struct {
	RunID            string          `json:"runId,omitempty"`
	Seed             string          `json:"seed"`
	Mode             string          `json:"mode,omitempty"`
	Status           string          `json:"status"`
	PlaylistID       string          `json:"playlistId,omitempty"`
	PlaylistName     string          `json:"playlistName,omitempty"`
	TotalSuggestions int             `json:"totalSuggestions"`
	FoundCount       int             `json:"foundCount"`
	DownloadedCount  int             `json:"downloadedCount"`
	AddedCount       int             `json:"addedCount"`
	ErrorCount       int             `json:"errorCount"`
	ErrorMessage     string          `json:"errorMessage,omitempty"`
	StartedAt        time.Time       `json:"startedAt"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
	Outcomes         []OutcomeReport `json:"outcomes,omitempty"`
}

// OutcomeReport is one suggestion of a [RunReport].
type OutcomeReport struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	Status   string `json:"status"`
	Stage    string `json:"stage,omitempty"`
	TrackID  string `json:"trackId,omitempty"`
	FilePath string `json:"filePath,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewReport converts a run to its report shape. Outcomes are included when the run carries them.
func NewReport(run *models.Run) RunReport {
	r := RunReport{
		RunID:            run.ID(),
		Seed:             run.Seed,
		Mode:             run.Mode,
		Status:           string(run.Status),
		PlaylistID:       run.PlaylistID,
		PlaylistName:     run.PlaylistName,
		TotalSuggestions: run.TotalSuggestions,
		FoundCount:       run.FoundCount,
		DownloadedCount:  run.DownloadedCount,
		AddedCount:       run.AddedCount,
		ErrorCount:       run.ErrorCount,
		ErrorMessage:     run.ErrorMessage,
		StartedAt:        run.StartedAt,
		CompletedAt:      run.CompletedAt,
		Outcomes:         make([]OutcomeReport, 0, len(run.Outcomes)),
	}
	for _, o := range run.Outcomes {
		r.Outcomes = append(r.Outcomes, OutcomeReport{
			Position: o.Position,
			Title:    o.Suggestion.Title,
			Artist:   o.Suggestion.Artist,
			Album:    o.Suggestion.Album,
			Status:   string(o.Status),
			Stage:    o.Stage,
			TrackID:  o.TrackID,
			FilePath: o.FilePath,
			Error:    o.ErrorMessage,
		})
	}
	return r
}

// ExportToJSON renders the run and its outcomes as indented JSON.
func ExportToJSON(run *models.Run) ([]byte, error) {
	return shared.MarshalJSON(NewReport(run), true)
}

// ExportToCSV converts run outcomes to CSV with columns: Position, Title, Artist, Album, Status, Stage, TrackID, FilePath, Error
func ExportToCSV(run *models.Run) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "Title", "Artist", "Album", "Status", "Stage", "TrackID", "FilePath", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, o := range run.Outcomes {
		record := []string{
			strconv.Itoa(o.Position + 1),
			o.Suggestion.Title,
			o.Suggestion.Artist,
			o.Suggestion.Album,
			string(o.Status),
			o.Stage,
			o.TrackID,
			o.FilePath,
			o.ErrorMessage,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders a run summary followed by added tracks and failures.
func ExportToMarkdown(run *models.Run) ([]byte, error) {
	var buf bytes.Buffer

	title := run.PlaylistName
	if title == "" {
		title = run.Seed
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)
	fmt.Fprintf(&buf, "**Seed**: %s\n", run.Seed)
	if run.Mode != "" {
		fmt.Fprintf(&buf, "**Mode**: %s\n", run.Mode)
	}
	fmt.Fprintf(&buf, "**Status**: %s\n", run.Status)
	if !run.StartedAt.IsZero() {
		fmt.Fprintf(&buf, "**Started**: %s\n", run.StartedAt.Format(time.RFC3339))
	}
	buf.WriteString("\n")

	buf.WriteString("| Suggestions | Found | Downloaded | Added | Errors |\n")
	buf.WriteString("|---|---|---|---|---|\n")
	fmt.Fprintf(&buf, "| %d | %d | %d | %d | %d |\n\n",
		run.TotalSuggestions, run.FoundCount, run.DownloadedCount, run.AddedCount, run.ErrorCount)

	if run.ErrorMessage != "" {
		fmt.Fprintf(&buf, "> %s\n\n", run.ErrorMessage)
	}

	var added, failed []models.RunOutcome
	for _, o := range run.Outcomes {
		switch o.Status {
		case models.OutcomeAdded, models.OutcomeDownloaded:
			added = append(added, o)
		case models.OutcomeFailed, models.OutcomeSkipped:
			failed = append(failed, o)
		}
	}

	if len(added) > 0 {
		buf.WriteString("## Tracks\n\n")
		for i, o := range added {
			note := ""
			if o.Status == models.OutcomeDownloaded {
				note = " _(downloaded)_"
			}
			fmt.Fprintf(&buf, "%d. %s - %s%s\n", i+1, o.Suggestion.Artist, o.Suggestion.Title, note)
		}
		buf.WriteString("\n")
	}

	if len(failed) > 0 {
		buf.WriteString("## Not Added\n\n")
		for _, o := range failed {
			fmt.Fprintf(&buf, "- %s - %s: %s\n", o.Suggestion.Artist, o.Suggestion.Title, o.ErrorMessage)
		}
	}

	return buf.Bytes(), nil
}

// ExportToText renders the counters and one line per outcome.
func ExportToText(run *models.Run) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Seed: %s\n", run.Seed)
	if run.PlaylistName != "" {
		fmt.Fprintf(&buf, "Playlist: %s\n", run.PlaylistName)
	}
	fmt.Fprintf(&buf, "Suggestions: %d  Found: %d  Downloaded: %d  Added: %d  Errors: %d\n\n",
		run.TotalSuggestions, run.FoundCount, run.DownloadedCount, run.AddedCount, run.ErrorCount)

	for _, o := range run.Outcomes {
		line := fmt.Sprintf("%d. [%s] %s - %s", o.Position+1, o.Status, o.Suggestion.Artist, o.Suggestion.Title)
		if o.ErrorMessage != "" {
			line += ": " + o.ErrorMessage
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes(), nil
}

// Render dispatches to the exporter for format. "md" is accepted as an alias for markdown.
func Render(run *models.Run, format string) ([]byte, error) {
	if run == nil {
		return nil, fmt.Errorf("%w: run is nil", shared.ErrInvalidArgument)
	}

	switch normalizeFormat(format) {
	case FormatJSON:
		return ExportToJSON(run)
	case FormatCSV:
		return ExportToCSV(run)
	case FormatMarkdown:
		return ExportToMarkdown(run)
	case FormatText:
		return ExportToText(run)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q (want one of %s)",
			shared.ErrInvalidArgument, format, strings.Join(Formats, ", "))
	}
}

// Extension returns the file extension used for format, including the dot.
func Extension(format string) string {
	switch normalizeFormat(format) {
	case FormatCSV:
		return ".csv"
	case FormatMarkdown:
		return ".md"
	case FormatText:
		return ".txt"
	default:
		return ".json"
	}
}

func normalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	switch f {
	case "":
		return FormatJSON
	case "md":
		return FormatMarkdown
	case "text":
		return FormatText
	}
	return f
}

// WriteReport renders run in format and writes it to path, creating parent directories.
// When path is an existing directory the file is named after the run.
func WriteReport(run *models.Run, format, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: report path", shared.ErrMissingArgument)
	}

	data, err := Render(run, format)
	if err != nil {
		return "", err
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, ReportFilename(run, format))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// ReportFilename derives a file name from the run id, falling back to the seed.
func ReportFilename(run *models.Run, format string) string {
	base := run.ID()
	if base == "" {
		base = slug(run.Seed)
	}
	return "run_" + base + Extension(format)
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "untitled"
	}
	return out
}
