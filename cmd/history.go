package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/placements/internal/models"
	"github.com/desertthunder/placements/internal/repositories"
	"github.com/desertthunder/placements/internal/shared"
	"github.com/desertthunder/placements/internal/ui"
	"github.com/urfave/cli/v3"
)

// HistoryList prints the most recent runs.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := repositories.NewRunRepository(db).List(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, true)
	}
	if len(runs) == 0 {
		r.writePlain("No runs recorded yet\n")
		return nil
	}
	r.writePlain("%s\n", ui.RunsTable(runs))
	return nil
}

// historyEntry is one recorded run with its simplified projection.
type historyEntry struct {
	Summary    models.RunSummary         `json:"summary"`
	Records    []models.SongRecord       `json:"records"`
	Simplified []models.SimplifiedRecord `json:"simplified"`
}

// HistoryShow prints one run. The argument is a run ID, a sequence number, or "#" followed by one.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	key := strings.TrimSpace(cmd.StringArg("id"))
	if key == "" {
		return fmt.Errorf("%w: run ID or sequence number required", shared.ErrInvalidArgument)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	runs := repositories.NewRunRepository(db)

	var run *models.RunSummary
	if n, convErr := strconv.Atoi(strings.TrimPrefix(key, "#")); convErr == nil {
		run, err = runs.GetBySequence(ctx, n)
	} else {
		run, err = runs.Get(ctx, key)
	}
	if err != nil {
		return err
	}

	records, err := runs.Records(ctx, run.ID)
	if err != nil {
		return err
	}
	entry := historyEntry{Summary: *run, Records: records, Simplified: models.Simplify(records)}

	if cmd.Bool("json") {
		return r.writeJSON(entry, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Run #%d", run.Sequence))
	r.writePlain("ID: %s\n", run.ID)
	r.writePlain("Source: %s (%s)\n", run.Reference, run.Source)
	r.writePlain("Status: %s\n", run.Status)
	r.writePlain("Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	r.writePlain("Items: %d  Records: %d  Failed: %d  Dropped: %d\n", run.Total, run.Records, run.Failed, run.Dropped)
	if len(entry.Simplified) > 0 {
		r.writePlain("\n%s\n", ui.RecordsTable(entry.Simplified))
	}
	return nil
}
