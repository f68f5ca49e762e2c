package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/placements/internal/models"
	"github.com/desertthunder/placements/internal/shared"
	"github.com/desertthunder/placements/internal/tasks"
	th "github.com/desertthunder/placements/internal/testing"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func newRun(ref string) *models.RunSummary {
	return &models.RunSummary{
		Reference: ref,
		Source:    "manual",
		Status:    models.RunCompleted,
		StartedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRunRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		run := newRun("manual")

		if err := repo.Create(ctx, run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
		if run.ID == "" {
			t.Error("run ID should be set after creation")
		}
		if run.Sequence != 1 {
			t.Errorf("expected sequence 1, got %d", run.Sequence)
		}
	})

	t.Run("Create keeps an existing ID", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		run := newRun("manual")
		run.ID = "run-1"

		if err := repo.Create(ctx, run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
		if run.ID != "run-1" {
			t.Errorf("expected ID to be kept, got %s", run.ID)
		}
	})

	t.Run("Create requires a status", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		run := newRun("manual")
		run.Status = ""
		if err := NewRunRepository(db).Create(ctx, run); err == nil {
			t.Fatal("expected validation error for empty status")
		}
	})

	t.Run("Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		run := newRun("https://genius.com/artists/Producer")
		finished := run.StartedAt.Add(time.Minute)
		run.FinishedAt = &finished
		run.Total, run.Records, run.Failed, run.Dropped = 5, 3, 1, 1

		if err := repo.Create(ctx, run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		got, err := repo.Get(ctx, run.ID)
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.Reference != run.Reference || got.Status != models.RunCompleted {
			t.Errorf("unexpected run %+v", got)
		}
		if got.Total != 5 || got.Records != 3 || got.Failed != 1 || got.Dropped != 1 {
			t.Errorf("unexpected counts %+v", got)
		}
		if !got.StartedAt.Equal(run.StartedAt) {
			t.Errorf("expected started_at %v, got %v", run.StartedAt, got.StartedAt)
		}
		if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
			t.Errorf("expected finished_at %v, got %v", finished, got.FinishedAt)
		}
	})

	t.Run("Get not found", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		_, err := NewRunRepository(db).Get(ctx, "nonexistent-id")
		if !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("GetBySequence", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		first, second := newRun("first"), newRun("second")
		for _, run := range []*models.RunSummary{first, second} {
			if err := repo.Create(ctx, run); err != nil {
				t.Fatalf("failed to create run: %v", err)
			}
		}

		got, err := repo.GetBySequence(ctx, 2)
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.ID != second.ID {
			t.Errorf("expected %s, got %s", second.ID, got.ID)
		}

		if _, err := repo.GetBySequence(ctx, 9); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		for _, ref := range []string{"one", "two", "three"} {
			if err := repo.Create(ctx, newRun(ref)); err != nil {
				t.Fatalf("failed to create run: %v", err)
			}
		}

		runs, err := repo.List(ctx, 0)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 3 {
			t.Fatalf("expected 3 runs, got %d", len(runs))
		}
		if runs[0].Reference != "three" || runs[2].Reference != "one" {
			t.Errorf("expected most recent first, got %s..%s", runs[0].Reference, runs[2].Reference)
		}

		limited, err := repo.List(ctx, 2)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(limited) != 2 {
			t.Errorf("expected 2 runs, got %d", len(limited))
		}
	})

	t.Run("Records round trip", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		run := newRun("manual")
		if err := repo.Create(ctx, run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		records := th.SampleRecords()
		if err := repo.SaveRecords(ctx, run.ID, records); err != nil {
			t.Fatalf("failed to save records: %v", err)
		}

		got, err := repo.Records(ctx, run.ID)
		if err != nil {
			t.Fatalf("failed to load records: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 records, got %d", len(got))
		}
		if got[0].SongName != "Blue" || got[1].SongName != "Red" {
			t.Errorf("expected input order, got %s, %s", got[0].SongName, got[1].SongName)
		}
		if got[0].StreamCount == nil || *got[0].StreamCount != 1234567 {
			t.Errorf("expected stream count, got %v", got[0].StreamCount)
		}
		if got[0].CoProducers == nil || *got[0].CoProducers != "Producer, Other" {
			t.Errorf("expected co-producers, got %v", got[0].CoProducers)
		}
		if got[1].Label != nil || got[1].VideoViews != nil {
			t.Errorf("expected absent fields to stay nil, got %+v", got[1])
		}
	})

	t.Run("SaveRecords replaces", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		run := newRun("manual")
		if err := repo.Create(ctx, run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		if err := repo.SaveRecords(ctx, run.ID, th.SampleRecords()); err != nil {
			t.Fatalf("failed to save records: %v", err)
		}
		if err := repo.SaveRecords(ctx, run.ID, th.SampleRecords()[1:]); err != nil {
			t.Fatalf("failed to save records: %v", err)
		}

		got, _ := repo.Records(ctx, run.ID)
		if len(got) != 1 {
			t.Errorf("expected 1 record after replace, got %d", len(got))
		}
	})

	t.Run("SaveRecords unknown run", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		if err := NewRunRepository(db).SaveRecords(ctx, "missing", th.SampleRecords()); err == nil {
			t.Fatal("expected foreign key error")
		}
	})

	t.Run("Delete cascades", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		run := newRun("manual")
		if err := repo.Create(ctx, run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
		if err := repo.SaveRecords(ctx, run.ID, th.SampleRecords()); err != nil {
			t.Fatalf("failed to save records: %v", err)
		}

		if err := repo.Delete(ctx, run.ID); err != nil {
			t.Fatalf("failed to delete run: %v", err)
		}
		if _, err := repo.Get(ctx, run.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if got, _ := repo.Records(ctx, run.ID); len(got) != 0 {
			t.Errorf("expected records to be removed, got %d", len(got))
		}
		if err := repo.Delete(ctx, run.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("closed database", func(t *testing.T) {
		db := setupTestDB(t)
		db.Close()

		repo := NewRunRepository(db)
		if err := repo.Create(ctx, newRun("manual")); err == nil {
			t.Error("expected error from closed database")
		}
		if _, err := repo.List(ctx, 0); err == nil {
			t.Error("expected error from closed database")
		}
	})
}

func TestRunRecorder(t *testing.T) {
	ctx := context.Background()

	t.Run("Export persists summary and records", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		var exp tasks.Exporter = NewRunRecorder(repo, th.Logger())
		if exp.Name() != "history" {
			t.Errorf("unexpected name %q", exp.Name())
		}

		records := th.SampleRecords()
		result := &tasks.RunResult{
			Summary:    th.SampleSummary(),
			Records:    records,
			Simplified: models.Simplify(records),
		}
		if err := exp.Export(ctx, result); err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		if result.Summary.Sequence != 1 {
			t.Errorf("expected sequence to be filled in, got %d", result.Summary.Sequence)
		}

		got, err := repo.Get(ctx, "run-1")
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.Records != 2 || got.Failed != 1 {
			t.Errorf("unexpected summary %+v", got)
		}
		stored, _ := repo.Records(ctx, "run-1")
		if len(stored) != 2 {
			t.Errorf("expected 2 stored records, got %d", len(stored))
		}
	})

	t.Run("Export duplicate run", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		exp := NewRunRecorder(NewRunRepository(db), nil)
		result := &tasks.RunResult{Summary: th.SampleSummary()}
		if err := exp.Export(ctx, result); err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		if err := exp.Export(ctx, result); err == nil {
			t.Error("expected primary key conflict")
		}
	})
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	seq1, err := NextSequence(ctx, db, "runs")
	if err != nil {
		t.Fatalf("failed to get first sequence: %v", err)
	}
	if seq1 != 1 {
		t.Errorf("expected first sequence to be 1, got %d", seq1)
	}

	seq2, err := NextSequence(ctx, db, "runs")
	if err != nil {
		t.Fatalf("failed to get second sequence: %v", err)
	}
	if seq2 != 2 {
		t.Errorf("expected second sequence to be 2, got %d", seq2)
	}

	if _, err := NextSequence(ctx, db, "missing"); err == nil {
		t.Error("expected error for a table without a sequence")
	}
}
