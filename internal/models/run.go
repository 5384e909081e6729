package models

import (
	"errors"
	"fmt"
	"time"
)

// RunStatus is the terminal state of a persisted synthesis run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// OutcomeStatus tags the final state of one suggestion within a run.
type OutcomeStatus string

const (
	OutcomeAdded      OutcomeStatus = "added"
	OutcomeDownloaded OutcomeStatus = "downloaded"
	OutcomeFailed     OutcomeStatus = "failed"
	OutcomeSkipped    OutcomeStatus = "skipped"
)

// Run is one persisted synthesis run.
type Run struct {
	id        string
	sequence  int
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time

	Seed             string
	Mode             string
	PlaylistID       string
	PlaylistName     string
	Status           RunStatus
	TotalSuggestions int
	FoundCount       int
	DownloadedCount  int
	AddedCount       int
	ErrorCount       int
	ErrorMessage     string
	StartedAt        time.Time
	CompletedAt      *time.Time

	Outcomes []RunOutcome
}

// NewRun creates an unsaved [Run] for the given seed.
func NewRun(seed, mode string, startedAt time.Time) *Run {
	now := time.Now()
	return &Run{
		Seed:      seed,
		Mode:      mode,
		Status:    RunCompleted,
		StartedAt: startedAt,
		createdAt: now,
		updatedAt: now,
	}
}

// RestoreRun rebuilds a [Run] from stored columns.
func RestoreRun(id string, sequence int, createdAt, updatedAt time.Time, deletedAt *time.Time) *Run {
	return &Run{id: id, sequence: sequence, createdAt: createdAt, updatedAt: updatedAt, deletedAt: deletedAt}
}

func (r *Run) ID() string { return r.id }
func (r *Run) SetID(id string) { r.id = id }
func (r *Run) Sequence() int { return r.sequence }
func (r *Run) SetSequence(seq int) { r.sequence = seq }
func (r *Run) CreatedAt() time.Time { return r.createdAt }
func (r *Run) UpdatedAt() time.Time { return r.updatedAt }
func (r *Run) SetUpdatedAt(t time.Time) { r.updatedAt = t }
func (r *Run) DeletedAt() *time.Time { return r.deletedAt }

// Validate checks the counter invariants of a run.
func (r *Run) Validate() error {
	if r.id == "" {
		return errors.New("run id is required")
	}
	if r.Seed == "" {
		return errors.New("run seed is required")
	}
	switch r.Status {
	case RunCompleted, RunFailed:
	default:
		return fmt.Errorf("invalid run status %q", r.Status)
	}
	if r.AddedCount > r.FoundCount+r.DownloadedCount {
		return fmt.Errorf("added count %d exceeds found %d + downloaded %d", r.AddedCount, r.FoundCount, r.DownloadedCount)
	}
	if r.FoundCount+r.DownloadedCount > r.TotalSuggestions {
		return fmt.Errorf("found %d + downloaded %d exceeds total %d", r.FoundCount, r.DownloadedCount, r.TotalSuggestions)
	}
	return nil
}

// RunOutcome is the stored result for one suggestion of a run.
type RunOutcome struct {
	Position     int
	Suggestion   SongSuggestion
	Status       OutcomeStatus
	Stage        string
	TrackID      string
	FilePath     string
	ErrorMessage string
}
