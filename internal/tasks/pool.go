package tasks

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/placements/internal/models"
	"github.com/desertthunder/placements/internal/resources"
	"github.com/desertthunder/placements/internal/shared"
	"golang.org/x/sync/errgroup"
)

// Outcome is the terminal result of one submitted item: a record, a failure, or a drop.
type Outcome struct {
	Index  int
	Item   models.WorkItem
	Record *models.SongRecord
	Err    error
}

// Dropped reports an item that produced neither a record nor an error.
func (o Outcome) Dropped() bool {
	return o.Record == nil && o.Err == nil
}

// PoolResult holds every outcome of a pool run, ordered by input position.
type PoolResult struct {
	Records  []models.SongRecord
	Outcomes []Outcome
	Failed   int
	Dropped  int
}

// WorkerPool drives an [ItemProcessor] over work items with bounded concurrency.
type WorkerPool struct {
	processor      ItemProcessor
	maxConcurrency int
	resources      *resources.Manager
	logger         *log.Logger
}

// NewWorkerPool creates a pool. maxConcurrency below 1 is treated as 1; a nil manager skips registration.
func NewWorkerPool(processor ItemProcessor, maxConcurrency int, rm *resources.Manager, logger *log.Logger) *WorkerPool {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &WorkerPool{
		processor:      processor,
		maxConcurrency: maxConcurrency,
		resources:      rm,
		logger:         logger.With("component", "pool"),
	}
}

// aggregator collects outcomes from concurrent workers.
type aggregator struct {
	mu       sync.Mutex
	total    int
	counter  int
	records  []models.SongRecord
	outcomes []Outcome
}

func (a *aggregator) complete(o Outcome, progress *Reporter) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.counter++
	a.outcomes = append(a.outcomes, o)
	if o.Record != nil {
		a.records = append(a.records, *o.Record)
	}

	progress.Push(ProgressEvent(10+80*float64(a.counter)/float64(a.total), "%d/%d items", a.counter, a.total))
	switch {
	case o.Err != nil:
		progress.Push(LogEvent(LevelError, "%s: %v", o.Item, o.Err))
	case o.Record == nil:
		progress.Push(LogEvent(LevelWarning, "%s: no song identity, dropped", o.Item))
	default:
		progress.Push(LogEvent(LevelSuccess, "%s", o.Record.ArtistTitle()))
	}
}

// Run processes items until every submitted item has a terminal outcome.
//
// Cancelling ctx stops submission; in-flight items observe it at their next suspension point.
func (p *WorkerPool) Run(ctx context.Context, items []models.WorkItem, progress *Reporter) *PoolResult {
	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	slots := make(chan struct{}, p.maxConcurrency)
	started := make(chan struct{})
	finished := make(chan struct{})

	if p.resources != nil {
		handle, err := p.resources.Register("worker-pool", resources.LevelPool, func(rctx context.Context) error {
			cancel()
			// Nothing was submitted yet; the cancelled context keeps it that way.
			select {
			case <-started:
			default:
				return nil
			}
			select {
			case <-finished:
				return nil
			case <-rctx.Done():
				return fmt.Errorf("workers still running: %w", rctx.Err())
			}
		})
		if err != nil {
			p.logger.Warn("pool started after cleanup", "error", err)
		} else {
			defer handle.Release(context.Background())
		}
	}
	close(started)

	agg := &aggregator{total: len(items)}
submit:
	for i, item := range items {
		select {
		case <-poolCtx.Done():
			p.logger.Info("submission stopped", "submitted", i, "total", len(items))
			break submit
		case slots <- struct{}{}:
		}
		// A free slot and a cancellation can be ready together.
		if poolCtx.Err() != nil {
			<-slots
			p.logger.Info("submission stopped", "submitted", i, "total", len(items))
			break submit
		}
		g.Go(func() error {
			defer func() { <-slots }()
			agg.complete(p.runOne(poolCtx, i, item), progress)
			return nil
		})
	}
	g.Wait()
	close(finished)

	return agg.result()
}

func (p *WorkerPool) runOne(ctx context.Context, index int, item models.WorkItem) (o Outcome) {
	o = Outcome{Index: index, Item: item}
	defer func() {
		if r := recover(); r != nil {
			o.Record = nil
			o.Err = fmt.Errorf("%w: panic: %v", shared.ErrItemFailure, r)
			p.logger.Error("worker panicked", "item", item.String(), "panic", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		o.Err = fmt.Errorf("%w: %w", shared.ErrCancelled, err)
		return o
	}

	record, err := p.processor.Process(ctx, item)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", shared.ErrCancelled, err)
		}
		o.Err = fmt.Errorf("%w: %w", shared.ErrItemFailure, err)
		p.logger.Warn("item failed", "item", item.String(), "error", err)
	case record == nil:
		p.logger.Warn("item dropped", "item", item.String())
	default:
		o.Record = record
	}
	return o
}

func (a *aggregator) result() *PoolResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	outcomes := slices.Clone(a.outcomes)
	slices.SortFunc(outcomes, func(x, y Outcome) int { return x.Index - y.Index })

	res := &PoolResult{Outcomes: outcomes, Records: make([]models.SongRecord, 0, len(a.records))}
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			res.Failed++
		case o.Record == nil:
			res.Dropped++
		default:
			res.Records = append(res.Records, *o.Record)
		}
	}
	return res
}
