package repositories

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/placements/internal/tasks"
)

// RunRecorder saves finished runs to the history database.
type RunRecorder struct {
	runs   *RunRepository
	logger *log.Logger
}

// NewRunRecorder creates an exporter backed by runs.
func NewRunRecorder(runs *RunRepository, logger *log.Logger) *RunRecorder {
	return &RunRecorder{runs: runs, logger: logger}
}

func (r *RunRecorder) Name() string { return "history" }

// Export stores the run summary and its records. The summary's sequence is filled in on success.
func (r *RunRecorder) Export(ctx context.Context, result *tasks.RunResult) error {
	if err := r.runs.Create(ctx, &result.Summary); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	if err := r.runs.SaveRecords(ctx, result.Summary.ID, result.Records); err != nil {
		return fmt.Errorf("failed to record run %s: %w", result.Summary.ID, err)
	}

	if r.logger != nil {
		r.logger.Debug("run recorded", "id", result.Summary.ID, "sequence", result.Summary.Sequence, "records", len(result.Records))
	}
	return nil
}
