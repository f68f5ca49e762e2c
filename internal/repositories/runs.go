package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/placements/internal/models"
	"github.com/desertthunder/placements/internal/shared"
)

const runColumns = `id, sequence, reference, source, status, total_items, record_count, failed_count, dropped_count, started_at, finished_at`

// RunRepository stores run summaries and their records.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a run, assigning its sequence and, when missing, its ID.
func (r *RunRepository) Create(ctx context.Context, run *models.RunSummary) error {
	if run.Status == "" {
		return fmt.Errorf("validation failed: run status is required")
	}

	sequence, err := NextSequence(ctx, r.db, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	query := `INSERT INTO runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		sequence,
		run.Reference,
		run.Source,
		string(run.Status),
		run.Total,
		run.Records,
		run.Failed,
		run.Dropped,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	run.Sequence = sequence
	return nil
}

// Get retrieves a run by ID.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id), id)
}

// GetBySequence retrieves a run by its sequence number.
func (r *RunRepository) GetBySequence(ctx context.Context, sequence int) (*models.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE sequence = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, sequence), fmt.Sprintf("#%d", sequence))
}

// List returns the most recent runs first. A limit of 0 returns every run.
func (r *RunRepository) List(ctx context.Context, limit int) ([]models.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY sequence DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// SaveRecords replaces the records stored for a run, keeping their order.
func (r *RunRepository) SaveRecords(ctx context.Context, runID string, records []models.SongRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (
			run_id, position, song_name, artist_name, co_producers, label, copyright,
			phonographic_copyright, track_id, canonical_track_name, stream_count,
			daily_stream_delta, video_url, video_views
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		_, err := stmt.ExecContext(ctx,
			runID,
			i,
			rec.SongName,
			rec.ArtistName,
			rec.CoProducers,
			rec.Label,
			rec.Copyright,
			rec.PhonographicCopyright,
			rec.TrackID,
			rec.CanonicalTrackName,
			rec.StreamCount,
			rec.DailyStreamDelta,
			rec.VideoURL,
			rec.VideoViews,
		)
		if err != nil {
			return fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

// Records returns the records of a run in their original order.
func (r *RunRepository) Records(ctx context.Context, runID string) ([]models.SongRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			song_name, artist_name, co_producers, label, copyright, phonographic_copyright,
			track_id, canonical_track_name, stream_count, daily_stream_delta, video_url, video_views
		FROM records
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []models.SongRecord{}
	for rows.Next() {
		var (
			rec                                  models.SongRecord
			coProducers, label, copyright, phono sql.NullString
			trackID, canonical, videoURL         sql.NullString
			streamCount, dailyDelta, videoViews  sql.NullInt64
		)
		err := rows.Scan(
			&rec.SongName, &rec.ArtistName, &coProducers, &label, &copyright, &phono,
			&trackID, &canonical, &streamCount, &dailyDelta, &videoURL, &videoViews,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		rec.CoProducers = nullString(coProducers)
		rec.Label = nullString(label)
		rec.Copyright = nullString(copyright)
		rec.PhonographicCopyright = nullString(phono)
		rec.TrackID = nullString(trackID)
		rec.CanonicalTrackName = nullString(canonical)
		rec.StreamCount = nullInt(streamCount)
		rec.DailyStreamDelta = nullInt(dailyDelta)
		rec.VideoURL = nullString(videoURL)
		rec.VideoViews = nullInt(videoViews)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// Delete removes a run and, through the foreign key, its records.
func (r *RunRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// scanOne scans a single [sql.Row] into a [models.RunSummary]
func (r *RunRepository) scanOne(row *sql.Row, key string) (*models.RunSummary, error) {
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", key, shared.ErrNotFound)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.RunSummary, error) {
	var (
		run        models.RunSummary
		status     string
		finishedAt sql.NullTime
	)

	err := s.Scan(
		&run.ID, &run.Sequence, &run.Reference, &run.Source, &status,
		&run.Total, &run.Records, &run.Failed, &run.Dropped,
		&run.StartedAt, &finishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = models.RunStatus(status)
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}
