package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/shared"
)

// ErrRunNotFound is returned when a run does not exist or was deleted.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `
	id, sequence, seed, mode, playlist_id, playlist_name, status,
	total_suggestions, found_count, downloaded_count, added_count, error_count,
	error_message, started_at, completed_at, created_at, updated_at, deleted_at
`

// RunRepository persists synthesis runs and their per-suggestion outcomes.
type RunRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.Run] = (*RunRepository)(nil)

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a run and its outcomes in one transaction. A run that already carries an id keeps it.
func (r *RunRepository) Create(run *models.Run) error {
	if run.ID() == "" {
		run.SetID(shared.GenerateID())
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	run.SetSequence(sequence)

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (
			id, sequence, seed, mode, playlist_id, playlist_name, status,
			total_suggestions, found_count, downloaded_count, added_count, error_count,
			error_message, started_at, completed_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID(),
		sequence,
		run.Seed,
		run.Mode,
		nullString(run.PlaylistID),
		run.PlaylistName,
		string(run.Status),
		run.TotalSuggestions,
		run.FoundCount,
		run.DownloadedCount,
		run.AddedCount,
		run.ErrorCount,
		nullString(run.ErrorMessage),
		run.StartedAt,
		run.CompletedAt,
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO run_outcomes (id, run_id, position, title, artist, album, status, stage, track_id, file_path, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range run.Outcomes {
		_, err := stmt.Exec(
			shared.GenerateID(),
			run.ID(),
			o.Position,
			o.Suggestion.Title,
			o.Suggestion.Artist,
			o.Suggestion.Album,
			string(o.Status),
			o.Stage,
			nullString(o.TrackID),
			nullString(o.FilePath),
			nullString(o.ErrorMessage),
		)
		if err != nil {
			return fmt.Errorf("failed to insert outcome %d: %w", o.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// Get retrieves a run with its outcomes, excluding soft-deleted runs
func (r *RunRepository) Get(id string) (*models.Run, error) {
	row := r.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ? AND deleted_at IS NULL", id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	outcomes, err := r.outcomes(id)
	if err != nil {
		return nil, err
	}
	run.Outcomes = outcomes
	return run, nil
}

// Delete soft-deletes a run by ID
func (r *RunRepository) Delete(id string) error {
	result, err := r.db.Exec(`
		UPDATE runs
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// List retrieves runs newest first, without outcomes.
//
// Supported criteria: "status" and "seed" (exact match) and "limit" (int).
func (r *RunRepository) List(criteria map[string]any) ([]*models.Run, error) {
	query := "SELECT " + runColumns + " FROM runs WHERE deleted_at IS NULL"
	args := []any{}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	if seed, ok := criteria["seed"].(string); ok && seed != "" {
		query += " AND seed = ?"
		args = append(args, seed)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

func (r *RunRepository) outcomes(runID string) ([]models.RunOutcome, error) {
	rows, err := r.db.Query(`
		SELECT position, title, artist, album, status, stage, track_id, file_path, error_message
		FROM run_outcomes
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []models.RunOutcome
	for rows.Next() {
		var (
			o            models.RunOutcome
			status       string
			trackID      sql.NullString
			filePath     sql.NullString
			errorMessage sql.NullString
		)
		err := rows.Scan(&o.Position, &o.Suggestion.Title, &o.Suggestion.Artist, &o.Suggestion.Album,
			&status, &o.Stage, &trackID, &filePath, &errorMessage)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Status = models.OutcomeStatus(status)
		o.TrackID = trackID.String
		o.FilePath = filePath.String
		o.ErrorMessage = errorMessage.String
		outcomes = append(outcomes, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return outcomes, nil
}

// rowScanner is satisfied by both [sql.Row] and [sql.Rows].
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRun scans one runs row. [sql.ErrNoRows] is returned unwrapped.
func scanRun(row rowScanner) (*models.Run, error) {
	var (
		id           string
		sequence     int
		seed         string
		mode         string
		playlistID   sql.NullString
		playlistName string
		status       string
		total        int
		found        int
		downloaded   int
		added        int
		errorCount   int
		errorMessage sql.NullString
		startedAt    time.Time
		completedAt  sql.NullTime
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &seed, &mode, &playlistID, &playlistName, &status,
		&total, &found, &downloaded, &added, &errorCount,
		&errorMessage, &startedAt, &completedAt, &createdAt, &updatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	var deleted *time.Time
	if deletedAt.Valid {
		deleted = &deletedAt.Time
	}
	run := models.RestoreRun(id, sequence, createdAt, updatedAt, deleted)
	run.Seed = seed
	run.Mode = mode
	run.PlaylistID = playlistID.String
	run.PlaylistName = playlistName
	run.Status = models.RunStatus(status)
	run.TotalSuggestions = total
	run.FoundCount = found
	run.DownloadedCount = downloaded
	run.AddedCount = added
	run.ErrorCount = errorCount
	run.ErrorMessage = errorMessage.String
	run.StartedAt = startedAt
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
