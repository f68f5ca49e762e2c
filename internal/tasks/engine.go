package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/placements/internal/models"
	"github.com/desertthunder/placements/internal/resources"
	"github.com/desertthunder/placements/internal/shared"
)

// PipelineConfig is validated once before a run and never changes during it.
type PipelineConfig struct {
	MaxConcurrency int
	// ItemLimit caps the resolved items. 0 means unbounded.
	ItemLimit   int
	Credentials shared.Credentials
}

// Validate checks bounds and the presence of every credential.
func (c PipelineConfig) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("%w: max concurrency must be at least 1, got %d", shared.ErrConfiguration, c.MaxConcurrency)
	}
	if c.ItemLimit < 0 {
		return fmt.Errorf("%w: item limit must not be negative, got %d", shared.ErrConfiguration, c.ItemLimit)
	}
	if err := c.Credentials.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrConfiguration, err)
	}
	return nil
}

// RunResult is the best-effort outcome of a run handed to exporters.
type RunResult struct {
	Summary    models.RunSummary
	Records    []models.SongRecord
	Simplified []models.SimplifiedRecord
	Outcomes   []Outcome
}

// Exporter consumes a finished run.
type Exporter interface {
	Name() string
	Export(ctx context.Context, result *RunResult) error
}

// Preflighter is implemented by exporters that can detect an unusable target before the run starts.
type Preflighter interface {
	Preflight() error
}

// EngineOpts wires an [Engine].
type EngineOpts struct {
	Resolver  *Resolver
	Processor ItemProcessor
	Exporters []Exporter
	Resources *resources.Manager
	Logger    *log.Logger
}

// Engine orchestrates a single run: resolve, process, export, clean up.
type Engine struct {
	resolver  *Resolver
	processor ItemProcessor
	exporters []Exporter
	resources *resources.Manager
	logger    *log.Logger
}

// NewEngine creates an engine. Without a resource manager a private one is used.
func NewEngine(opts EngineOpts) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	rm := opts.Resources
	if rm == nil {
		rm = resources.NewManager(resources.ManagerOpts{Logger: logger})
	}
	return &Engine{
		resolver:  opts.Resolver,
		processor: opts.Processor,
		exporters: opts.Exporters,
		resources: rm,
		logger:    logger.With("component", "engine"),
	}
}

// Run executes the run described by in and cfg, reporting through progress. The reporter is closed on return.
//
// Configuration and source resolution failures abort the run with a nil result. Cancellation returns
// the partial result together with an error wrapping [shared.ErrCancelled]; exporters are skipped.
func (e *Engine) Run(ctx context.Context, in Input, cfg PipelineConfig, progress *Reporter) (*RunResult, error) {
	defer progress.Close()

	summary := models.RunSummary{
		ID:        shared.GenerateID(),
		Reference: in.Reference,
		Status:    models.RunRunning,
		StartedAt: time.Now(),
	}
	if summary.Reference == "" {
		summary.Reference = "manual"
	}

	if err := e.preflight(in, cfg); err != nil {
		return nil, e.fail(progress, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.resources.OnStop(cancel)

	cleanup := func() {
		report := e.resources.Cleanup(context.Background())
		for _, err := range report.Failures {
			progress.Push(LogEvent(LevelWarning, "%v", err))
		}
	}
	stop := context.AfterFunc(ctx, cleanup)
	defer func() {
		stop()
		cleanup()
	}()

	progress.Push(ProgressEvent(0, "resolving source"))
	items, source, err := e.resolver.Resolve(runCtx, in, cfg.ItemLimit)
	summary.Source = source
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", shared.ErrCancelled, ctx.Err())
		}
		return nil, e.fail(progress, err)
	}
	summary.Total = len(items)
	progress.Push(ProgressEvent(10, "resolved %d items from %s", len(items), source))
	e.logger.Info("source resolved", "source", source, "items", len(items))

	res := &PoolResult{}
	if runCtx.Err() == nil {
		pool := NewWorkerPool(e.processor, cfg.MaxConcurrency, e.resources, e.logger)
		res = pool.Run(runCtx, items, progress)
	}

	finished := time.Now()
	summary.Records = len(res.Records)
	summary.Failed = res.Failed
	summary.Dropped = res.Dropped
	summary.FinishedAt = &finished

	result := &RunResult{
		Summary:    summary,
		Records:    res.Records,
		Simplified: models.Simplify(res.Records),
		Outcomes:   res.Outcomes,
	}

	if err := ctx.Err(); err != nil {
		result.Summary.Status = models.RunCancelled
		err = fmt.Errorf("%w: %w", shared.ErrCancelled, err)
		progress.Push(FailedEvent(err))
		e.logger.Warn("run cancelled", "records", summary.Records, "total", summary.Total)
		return result, err
	}

	result.Summary.Status = models.RunCompleted
	e.export(ctx, result, progress)

	progress.Push(DoneEvent(result.Summary))
	e.logger.Info("run finished", "records", summary.Records, "failed", summary.Failed, "dropped", summary.Dropped)
	return result, nil
}

func (e *Engine) preflight(in Input, cfg PipelineConfig) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, exp := range e.exporters {
		p, ok := exp.(Preflighter)
		if !ok {
			continue
		}
		if err := p.Preflight(); err != nil {
			if !errors.Is(err, shared.ErrConfiguration) {
				err = fmt.Errorf("%w: %s: %w", shared.ErrConfiguration, exp.Name(), err)
			}
			return err
		}
	}
	return nil
}

// export hands the result to each exporter. Exporter failures are logged, not fatal.
func (e *Engine) export(ctx context.Context, result *RunResult, progress *Reporter) {
	n := len(e.exporters)
	if n == 0 {
		progress.Push(ProgressEvent(100, "done"))
		return
	}

	progress.Push(ProgressEvent(90, "exporting"))
	for i, exp := range e.exporters {
		if err := exp.Export(ctx, result); err != nil {
			e.logger.Error("export failed", "exporter", exp.Name(), "error", err)
			progress.Push(LogEvent(LevelError, "%s export failed: %v", exp.Name(), err))
		} else {
			progress.Push(LogEvent(LevelSuccess, "exported to %s", exp.Name()))
		}
		progress.Push(ProgressEvent(90+10*float64(i+1)/float64(n), "exported %d/%d", i+1, n))
	}
}

func (e *Engine) fail(progress *Reporter, err error) error {
	e.logger.Error("run failed", "error", err)
	progress.Push(FailedEvent(err))
	return err
}
