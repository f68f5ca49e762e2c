package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/placements/internal/export"
	"github.com/desertthunder/placements/internal/services"
	"github.com/desertthunder/placements/internal/shared"
	"github.com/desertthunder/placements/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Services are the external collaborators of a run. Nil fields are built from the configured credentials.
type Services struct {
	Genius interface {
		tasks.CreditsClient
		tasks.CatalogClient
		tasks.SongPageResolver
	}
	Spotify interface {
		tasks.TrackSearcher
		tasks.CollectionClient
	}
	Stats   tasks.StatsClient
	YouTube tasks.ViewsClient
	Objects export.ObjectPutter
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	services   Services
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	Services   Services
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		services:   opts.Services,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger replaces the logger used by commands started after the call.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		runCommand, tuiCommand, historyCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads the config file named by --config, then overlays --secrets and the environment.
//
// A missing config file falls back to the runner's config.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	config := r.config
	if path := cmd.String("config"); path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := shared.LoadConfig(path)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", shared.ErrConfiguration, err)
			}
			config = loaded
		} else {
			r.logger.Debug("config file not found, using defaults", "path", path)
		}
	}

	if path := cmd.String("secrets"); path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := config.LoadSecrets(path); err != nil {
				return nil, fmt.Errorf("%w: %w", shared.ErrConfiguration, err)
			}
		}
	}

	if err := config.LoadEnv(cmd.String("env")); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrConfiguration, err)
	}

	level := config.Logging.Level
	if cmd.IsSet("log-level") {
		level = cmd.String("log-level")
	}
	if err := shared.SetLogLevel(r.logger, level); err != nil {
		return nil, err
	}

	r.config = config
	return config, nil
}

// openDatabase opens the run history database and applies pending migrations.
func (r *Runner) openDatabase(config *shared.Config) (*sql.DB, error) {
	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	shared.ConfigureDatabase(db, config.Database)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// buildServices fills every missing service from the configured credentials.
func (r *Runner) buildServices(config *shared.Config) (Services, error) {
	svc := r.services
	creds := config.Credentials

	httpClient := r.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Pipeline.RequestTimeout()}
	}

	if svc.Genius == nil {
		genius, err := services.NewGeniusService(services.GeniusOpts{Token: creds.GeniusToken, HTTPClient: httpClient})
		if err != nil {
			return svc, err
		}
		svc.Genius = genius
	}
	if svc.Spotify == nil {
		spotify, err := services.NewSpotifyService(services.SpotifyOpts{
			ClientID:     creds.SpotifyClientID,
			ClientSecret: creds.SpotifyClientSecret,
			HTTPClient:   httpClient,
		})
		if err != nil {
			return svc, err
		}
		svc.Spotify = spotify
	}
	if svc.Stats == nil {
		stats, err := services.NewStatsService(services.StatsOpts{APIKey: creds.StatsAPIKey, HTTPClient: httpClient})
		if err != nil {
			return svc, err
		}
		svc.Stats = stats
	}
	if svc.YouTube == nil {
		youtube, err := services.NewYouTubeService(services.YouTubeOpts{APIKey: creds.YouTubeAPIKey, HTTPClient: httpClient})
		if err != nil {
			return svc, err
		}
		svc.YouTube = youtube
	}
	return svc, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
