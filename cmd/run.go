package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/placements/internal/browser"
	"github.com/desertthunder/placements/internal/export"
	"github.com/desertthunder/placements/internal/formatter"
	"github.com/desertthunder/placements/internal/models"
	"github.com/desertthunder/placements/internal/repositories"
	"github.com/desertthunder/placements/internal/resources"
	"github.com/desertthunder/placements/internal/shared"
	"github.com/desertthunder/placements/internal/tasks"
	"github.com/desertthunder/placements/internal/ui"
	"github.com/urfave/cli/v3"
)

// runSettings are the flag and config values of one run, resolved in that order.
type runSettings struct {
	input     tasks.Input
	pipeline  tasks.PipelineConfig
	outputDir string
	baseName  string
	upload    bool
	browser   bool
	history   bool
}

func (r *Runner) resolveSettings(cmd *cli.Command, config *shared.Config) (runSettings, error) {
	s := runSettings{
		input: tasks.Input{Reference: strings.TrimSpace(cmd.StringArg("reference"))},
		pipeline: tasks.PipelineConfig{
			MaxConcurrency: config.Pipeline.MaxConcurrency,
			ItemLimit:      config.Pipeline.ItemLimit,
			Credentials:    config.Credentials,
		},
		outputDir: config.Export.OutputDir,
		baseName:  config.Export.BaseName,
		upload:    cmd.Bool("upload") || config.Export.ObjectStore.Enabled,
		browser:   cmd.Bool("browser") || config.Browser.Enabled,
		history:   !cmd.Bool("no-history"),
	}

	manual, err := readManual(cmd.String("manual"), cmd.String("manual-file"), os.Stdin)
	if err != nil {
		return s, err
	}
	s.input.Manual = manual

	if cmd.IsSet("workers") {
		s.pipeline.MaxConcurrency = int(cmd.Int("workers"))
	}
	if cmd.IsSet("limit") {
		s.pipeline.ItemLimit = int(cmd.Int("limit"))
	}
	if dir := cmd.String("output-dir"); dir != "" {
		s.outputDir = dir
	}
	if name := cmd.String("name"); name != "" {
		s.baseName = name
	}
	if strings.TrimSpace(s.baseName) == "" {
		s.baseName = formatter.DefaultBaseName(s.input.Reference, time.Now())
	}
	return s, nil
}

// readManual returns the manual song list from text or a file; "-" reads stdin.
func readManual(text, file string, stdin io.Reader) (string, error) {
	if text != "" && file != "" {
		return "", fmt.Errorf("%w: --manual and --manual-file are mutually exclusive", shared.ErrInvalidArgument)
	}
	if file == "" {
		return text, nil
	}

	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read manual input: %w", err)
	}
	return string(data), nil
}

// session is everything one run needs, built before any network activity.
type session struct {
	engine   *tasks.Engine
	settings runSettings
	csv      *formatter.CSVExporter
	recorder *repositories.RunRecorder
	store    *export.ObjectStoreExporter
	db       *sql.DB
}

func (s *session) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func (r *Runner) newSession(cmd *cli.Command, config *shared.Config, logger *log.Logger) (*session, error) {
	settings, err := r.resolveSettings(cmd, config)
	if err != nil {
		return nil, err
	}
	if err := settings.pipeline.Validate(); err != nil {
		return nil, err
	}

	svc, err := r.buildServices(config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrConfiguration, err)
	}

	rm := resources.NewManager(resources.ManagerOpts{
		Sweeper: resources.NewProcessSweeper(config.Browser.GracePeriod()),
		Logger:  logger,
	})

	resolver := &tasks.Resolver{
		Catalog:  tasks.NewCatalogAdapter(svc.Genius, config.Pipeline.PageDelay(), logger),
		Playlist: tasks.NewPlaylistAdapter(svc.Spotify),
		Album:    tasks.NewAlbumAdapter(svc.Spotify),
		Manual:   tasks.ManualAdapter{},
		Logger:   logger,
	}
	if settings.browser {
		launcher, err := browser.NewLauncher(browser.Opts{
			Path:          config.Browser.Path,
			GracePeriod:   config.Browser.GracePeriod(),
			RenderTimeout: config.Browser.RenderTimeout(),
			Resources:     rm,
			Logger:        logger,
		})
		if err != nil {
			logger.Warn("page scrape fallback disabled", "error", err)
		} else {
			resolver.Scrape = tasks.NewScrapeAdapter(launcher, svc.Genius, logger)
		}
	}

	pipeline := tasks.NewPipeline(tasks.PipelineOpts{
		Credits: svc.Genius,
		Tracks:  svc.Spotify,
		Stats:   svc.Stats,
		Views:   svc.YouTube,
		Limiter: tasks.NewRateLimiter(config.Pipeline.StatsInterval(), nil),
		Logger:  logger,
	})

	s := &session{settings: settings}
	s.csv = formatter.NewCSVExporter(settings.outputDir, settings.baseName)
	exporters := []tasks.Exporter{s.csv}

	if settings.history {
		db, err := r.openDatabase(config)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", shared.ErrConfiguration, err)
		}
		s.db = db
		s.recorder = repositories.NewRunRecorder(repositories.NewRunRepository(db), logger)
		exporters = append(exporters, s.recorder)
	}

	if settings.upload {
		objects := svc.Objects
		if objects == nil {
			client, err := export.NewClient(config.Export.ObjectStore)
			if err != nil {
				s.Close()
				return nil, err
			}
			objects = client
		}
		s.store = export.NewObjectStoreExporter(objects, config.Export.ObjectStore, settings.baseName, logger)
		exporters = append(exporters, s.store)
	}

	s.engine = tasks.NewEngine(tasks.EngineOpts{
		Resolver:  resolver,
		Processor: pipeline,
		Exporters: exporters,
		Resources: rm,
		Logger:    logger,
	})
	return s, nil
}

// execute runs the session and settles cancelled and failed runs with the history and the object store.
func (s *session) execute(ctx context.Context, progress *tasks.Reporter, logger *log.Logger) (*tasks.RunResult, error) {
	started := time.Now()
	result, err := s.engine.Run(ctx, s.settings.input, s.settings.pipeline, progress)
	if err == nil {
		return result, nil
	}

	settle, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if result != nil && errors.Is(err, shared.ErrCancelled) {
		if s.recorder != nil {
			if rerr := s.recorder.Export(settle, result); rerr != nil {
				logger.Error("failed to record cancelled run", "error", rerr)
			}
		}
		if s.store != nil {
			if rerr := s.store.ReportStatus(settle, result.Summary, nil, err); rerr != nil {
				logger.Error("failed to report cancelled run", "error", rerr)
			}
		}
		return result, err
	}

	if s.store != nil && !errors.Is(err, shared.ErrConfiguration) {
		summary := models.RunSummary{
			ID:        shared.GenerateID(),
			Reference: s.settings.input.Reference,
			Status:    models.RunFailed,
			StartedAt: started,
		}
		if errors.Is(err, shared.ErrCancelled) {
			summary.Status = models.RunCancelled
		}
		if rerr := s.store.ReportStatus(settle, summary, nil, err); rerr != nil {
			logger.Error("failed to report failed run", "error", rerr)
		}
	}
	return result, err
}

// Run aggregates metadata and writes the CSV projections, printing progress as it goes.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	s, err := r.newSession(cmd, config, r.logger)
	if err != nil {
		return err
	}
	defer s.Close()

	asJSON := cmd.Bool("json")
	progress := tasks.NewReporter()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		progress.Consume(context.Background(), 200*time.Millisecond, func(e tasks.Event) {
			r.printEvent(e, asJSON)
		})
	}()

	result, err := s.execute(ctx, progress, r.logger)
	<-printed

	if result == nil {
		return err
	}
	if asJSON {
		if werr := formatter.WriteJSON(r.output, result); werr != nil {
			return werr
		}
		return err
	}

	r.printSummary(result, s)
	return err
}

func (r *Runner) printEvent(e tasks.Event, quiet bool) {
	if quiet {
		switch e.Kind {
		case tasks.EventLog:
			r.logger.Info(e.Message, "level", e.Level)
		case tasks.EventFailed:
			r.logger.Error(e.Message)
		}
		return
	}

	switch e.Kind {
	case tasks.EventProgress:
		r.writePlain("[%3.0f%%] %s\n", e.Percent, e.Message)
	case tasks.EventLog:
		r.writePlain("       %s %s\n", levelMark(e.Level), e.Message)
	case tasks.EventFailed:
		r.writePlain("       ✗ %s\n", e.Message)
	}
}

func levelMark(l tasks.Level) string {
	switch l {
	case tasks.LevelSuccess:
		return "✓"
	case tasks.LevelWarning:
		return "!"
	case tasks.LevelError:
		return "✗"
	default:
		return "•"
	}
}

func (r *Runner) printSummary(result *tasks.RunResult, s *session) {
	sum := result.Summary
	title := "Run Complete"
	if sum.Status == models.RunCancelled {
		title = "Run Cancelled"
	}

	r.writePlain("\n")
	r.writePlainHeader(title)
	r.writePlain("Source: %s (%s)\n", sum.Reference, sum.Source)
	r.writePlain("Items: %d  Records: %d  Failed: %d  Dropped: %d\n", sum.Total, sum.Records, sum.Failed, sum.Dropped)
	if sum.Sequence > 0 {
		r.writePlain("History: run #%d (%s)\n", sum.Sequence, sum.ID)
	}
	for _, f := range s.csv.Files() {
		r.writePlain("Wrote: %s\n", f)
	}
	if len(result.Simplified) > 0 {
		r.writePlain("\n%s\n", ui.RecordsTable(result.Simplified))
	}
}
