package repositories

import (
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/curate/internal/models"
)

func TestRunRepositoryErrors(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewRunRepository(db)
			run := models.NewRun("", "similar", time.Now())

			if err := repo.Create(run); err == nil {
				t.Fatal("expected validation error for empty seed")
			}
		})

		t.Run("CounterInvariant", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewRunRepository(db)
			run := newTestRun("Low")
			run.AddedCount = 5

			if err := repo.Create(run); err == nil {
				t.Fatal("expected validation error when added exceeds found plus downloaded")
			}
		})

		t.Run("DuplicateID", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewRunRepository(db)
			first := newTestRun("Low")
			first.SetID("run-1")
			if err := repo.Create(first); err != nil {
				t.Fatalf("failed to create first run: %v", err)
			}

			second := newTestRun("Blue")
			second.SetID("run-1")
			if err := repo.Create(second); err == nil {
				t.Fatal("expected error when creating run with duplicate id")
			}

			runs, err := repo.List(nil)
			if err != nil {
				t.Fatalf("failed to list runs: %v", err)
			}
			if len(runs) != 1 {
				t.Errorf("expected the failed insert to leave one run, got %d", len(runs))
			}
		})

		t.Run("DuplicatePosition", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewRunRepository(db)
			run := newTestRun("Low")
			run.Outcomes[1].Position = 0

			if err := repo.Create(run); err == nil {
				t.Fatal("expected error for duplicate outcome position")
			}
			if _, err := repo.Get(run.ID()); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("expected rollback of the run row, got %v", err)
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewRunRepository(db)

			_, err := repo.Get("nonexistent-id")
			if !errors.Is(err, ErrRunNotFound) {
				t.Fatalf("expected ErrRunNotFound, got %v", err)
			}
		})
	})

	t.Run("Delete", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewRunRepository(db)

			if err := repo.Delete("nonexistent-id"); !errors.Is(err, ErrRunNotFound) {
				t.Fatalf("expected ErrRunNotFound, got %v", err)
			}
		})

		t.Run("AlreadyDeleted", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewRunRepository(db)
			run := newTestRun("Low")
			if err := repo.Create(run); err != nil {
				t.Fatalf("failed to create run: %v", err)
			}
			if err := repo.Delete(run.ID()); err != nil {
				t.Fatalf("failed to delete run: %v", err)
			}

			if err := repo.Delete(run.ID()); err == nil {
				t.Fatal("expected error when deleting an already deleted run")
			}
		})
	})

	t.Run("ClosedDatabase", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewRunRepository(db)
		db.Close()

		if err := repo.Create(newTestRun("Low")); err == nil {
			t.Error("expected error on closed database")
		}
		if _, err := repo.List(nil); err == nil {
			t.Error("expected error on closed database")
		}
	})
}
