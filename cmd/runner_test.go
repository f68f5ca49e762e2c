package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/placements/internal/formatter"
	"github.com/desertthunder/placements/internal/models"
	"github.com/desertthunder/placements/internal/repositories"
	"github.com/desertthunder/placements/internal/services"
	"github.com/desertthunder/placements/internal/shared"
	tu "github.com/desertthunder/placements/internal/testing"
	"github.com/minio/minio-go/v7"
	"github.com/urfave/cli/v3"
)

type fakeGenius struct{}

func (fakeGenius) Search(ctx context.Context, song, artist string) ([]services.GeniusHit, error) {
	if song == "Blue" && artist == "Alice" {
		return []services.GeniusHit{{ID: "101", Title: "Blue", PrimaryArtist: "Alice"}}, nil
	}
	return nil, nil
}

func (fakeGenius) SongCredits(ctx context.Context, id string) (*services.GeniusCredits, error) {
	if id != "101" {
		return nil, shared.ErrNotFound
	}
	return &services.GeniusCredits{
		ID:          "101",
		Title:       "Blue",
		Artist:      "Alice",
		CoProducers: []string{"Bob", "Carol"},
		Labels:      []string{"Label A"},
		VideoURL:    "https://www.youtube.com/watch?v=abc123",
	}, nil
}

func (fakeGenius) ArtistID(ctx context.Context, pageURL string) (string, error) {
	return "", shared.ErrNotFound
}

func (fakeGenius) ArtistSongs(ctx context.Context, artistID string, page, perPage int) (*services.GeniusSongsPage, error) {
	return &services.GeniusSongsPage{}, nil
}

func (fakeGenius) SongIDFromPage(ctx context.Context, songURL string) (string, error) {
	return "", shared.ErrNotFound
}

type fakeSpotify struct{}

func (fakeSpotify) SearchTracks(ctx context.Context, title, artist string) ([]services.SpotifyTrack, error) {
	if title == "Blue" {
		return []services.SpotifyTrack{{ID: "trk1", Name: "Blue", Artists: []services.SpotifyArtist{{Name: "Alice"}}}}, nil
	}
	return nil, nil
}

func (fakeSpotify) PlaylistTracks(ctx context.Context, playlistID string, limit int) ([]services.SpotifyTrack, error) {
	return nil, nil
}

func (fakeSpotify) AlbumTracks(ctx context.Context, albumID string, limit int) ([]services.SpotifyTrack, error) {
	return nil, nil
}

type fakeStats struct{}

func (fakeStats) StreamHistory(ctx context.Context, trackID string) ([]services.StreamPoint, error) {
	return []services.StreamPoint{{Date: "2024-01-01", Streams: 1000}, {Date: "2024-01-02", Streams: 1500}}, nil
}

type fakeYouTube struct{}

func (fakeYouTube) ViewCount(ctx context.Context, videoID string) (int64, error) {
	return 9000, nil
}

type fakePutter struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakePutter) PutObject(ctx context.Context, bucket, name string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, name)
	return minio.UploadInfo{Bucket: bucket, Key: name, Size: size}, nil
}

func fakeServices(objects *fakePutter) Services {
	return Services{
		Genius:  fakeGenius{},
		Spotify: fakeSpotify{},
		Stats:   fakeStats{},
		YouTube: fakeYouTube{},
		Objects: objects,
	}
}

// clearEnv keeps PTRACK_* variables from the host out of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PTRACK_GENIUS_TOKEN",
		"PTRACK_SPOTIFY_CLIENT_ID",
		"PTRACK_SPOTIFY_CLIENT_SECRET",
		"PTRACK_YOUTUBE_API_KEY",
		"PTRACK_STATS_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

// writeConfig writes a config.toml with credentials and every path inside dir.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	content := fmt.Sprintf(`
[credentials]
genius_token = "g"
spotify_client_id = "id"
spotify_client_secret = "secret"
youtube_api_key = "yt"
stats_api_key = "stats"

[pipeline]
max_concurrency = 2
stats_interval_ms = 1

[database]
path = %q

[export]
output_dir = %q

[export.object_store]
endpoint = "localhost:9000"
bucket = "placements"
prefix = "runs"

[logging]
level = "error"
`, filepath.Join(dir, "history.db"), filepath.Join(dir, "out"))

	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, r *Runner, ctx context.Context, args ...string) error {
	t.Helper()
	root := &cli.Command{Name: "ptrack", Commands: r.register()}
	return root.Run(ctx, append([]string{"ptrack"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Services:   fakeServices(nil),
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.services.Genius == nil || runner.services.Stats == nil {
				t.Error("expected services to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		var names []string
		for _, c := range runner.register() {
			names = append(names, c.Name)
		}
		if got := strings.Join(names, ","); got != "run,tui,history,setup" {
			t.Errorf("unexpected commands %s", got)
		}
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if expected := `{"key":"value"}` + "\n"; output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("%d records\n", 3); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := runner.writePlainln("Next steps:"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := output.String(); got != "3 records\n\nNext steps:\n" {
			t.Errorf("unexpected output %q", got)
		}

		failing := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
		if err := failing.writePlain("x"); err == nil {
			t.Error("expected error from failing writer")
		}
	})
}

func TestLoadConfig(t *testing.T) {
	load := func(t *testing.T, args ...string) (*shared.Config, error) {
		t.Helper()
		r := NewRunner(RunnerOpts{Output: &bytes.Buffer{}, Logger: tu.Logger()})
		var got *shared.Config
		var loadErr error
		root := &cli.Command{
			Name:  "ptrack",
			Flags: configFlags(),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				got, loadErr = r.loadConfig(cmd)
				return nil
			},
		}
		if err := root.Run(context.Background(), append([]string{"ptrack"}, args...)); err != nil {
			t.Fatalf("unexpected cli error: %v", err)
		}
		return got, loadErr
	}

	t.Run("missing files fall back to defaults", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		config, err := load(t,
			"--config", filepath.Join(dir, "missing.toml"),
			"--secrets", filepath.Join(dir, "missing-secret.toml"),
			"--env", filepath.Join(dir, "missing.env"),
		)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if config.Pipeline.MaxConcurrency != 5 {
			t.Errorf("expected default concurrency, got %d", config.Pipeline.MaxConcurrency)
		}
	})

	t.Run("secrets and dotenv overlay the config file", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		cfgPath := writeConfig(t, dir)

		secrets := filepath.Join(dir, "secret.toml")
		if err := os.WriteFile(secrets, []byte(`genius_token = "from-secrets"`), 0644); err != nil {
			t.Fatal(err)
		}
		dotenv := filepath.Join(dir, ".env")
		if err := os.WriteFile(dotenv, []byte("PTRACK_STATS_API_KEY=from-env\n"), 0644); err != nil {
			t.Fatal(err)
		}

		config, err := load(t, "--config", cfgPath, "--secrets", secrets, "--env", dotenv)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if config.Credentials.GeniusToken != "from-secrets" {
			t.Errorf("expected secrets to win, got %q", config.Credentials.GeniusToken)
		}
		if config.Credentials.StatsAPIKey != "from-env" {
			t.Errorf("expected env to win, got %q", config.Credentials.StatsAPIKey)
		}
		if config.Credentials.SpotifyClientID != "id" {
			t.Errorf("expected config value to survive, got %q", config.Credentials.SpotifyClientID)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("[pipeline\nbroken"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := load(t, "--config", path)
		if !errors.Is(err, shared.ErrConfiguration) {
			t.Errorf("expected configuration error, got %v", err)
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		_, err := load(t, "--config", filepath.Join(dir, "missing.toml"), "--log-level", "loud")
		if err == nil {
			t.Error("expected log level error")
		}
	})
}

func TestReadManual(t *testing.T) {
	t.Run("inline text", func(t *testing.T) {
		got, err := readManual("Blue - Alice", "", nil)
		if err != nil || got != "Blue - Alice" {
			t.Errorf("unexpected %q, %v", got, err)
		}
	})

	t.Run("stdin", func(t *testing.T) {
		got, err := readManual("", "-", strings.NewReader("Red - Bob\n"))
		if err != nil || got != "Red - Bob\n" {
			t.Errorf("unexpected %q, %v", got, err)
		}
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "songs.txt")
		if err := os.WriteFile(path, []byte("Blue - Alice\n"), 0644); err != nil {
			t.Fatal(err)
		}
		got, err := readManual("", path, nil)
		if err != nil || got != "Blue - Alice\n" {
			t.Errorf("unexpected %q, %v", got, err)
		}
	})

	t.Run("both given", func(t *testing.T) {
		if _, err := readManual("x - y", "songs.txt", nil); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected invalid argument, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := readManual("", filepath.Join(t.TempDir(), "nope.txt"), nil); err == nil {
			t.Error("expected read error")
		}
	})
}

func TestRunCommand(t *testing.T) {
	setup := func(t *testing.T) (*Runner, *bytes.Buffer, *fakePutter, string, string) {
		t.Helper()
		clearEnv(t)
		dir := t.TempDir()
		cfgPath := writeConfig(t, dir)
		output := &bytes.Buffer{}
		objects := &fakePutter{}
		r := NewRunner(RunnerOpts{
			Output:   output,
			Logger:   tu.Logger(),
			Services: fakeServices(objects),
		})
		return r, output, objects, dir, cfgPath
	}

	configArgs := func(dir, cfgPath string) []string {
		return []string{
			"--config", cfgPath,
			"--secrets", filepath.Join(dir, "secret.toml"),
			"--env", filepath.Join(dir, ".env"),
		}
	}

	t.Run("manual run writes csv, history and uploads", func(t *testing.T) {
		r, output, objects, dir, cfgPath := setup(t)

		args := append([]string{"run"}, configArgs(dir, cfgPath)...)
		args = append(args, "--manual", "Blue - Alice\nRed - Bob", "--name", "test", "--upload")
		if err := runCLI(t, r, context.Background(), args...); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		out := output.String()
		for _, want := range []string{"Run Complete", "Records: 2", "Alice - Blue", "History: run #1"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}

		raw := filepath.Join(dir, "out", formatter.RawFileName("test"))
		tu.AssertFileExists(t, raw)
		tu.AssertFileExists(t, filepath.Join(dir, "out", formatter.SimplifiedFileName("test")))
		if content := tu.MustReadFile(t, raw); !strings.Contains(content, "Bob, Carol") {
			t.Errorf("expected credits in raw CSV, got %s", content)
		}

		if len(objects.keys) != 3 {
			t.Errorf("expected raw, simplified and status objects, got %v", objects.keys)
		}

		db, err := shared.NewDatabase(filepath.Join(dir, "history.db"))
		if err != nil {
			t.Fatal(err)
		}
		defer db.Close()
		runs, err := repositories.NewRunRepository(db).List(context.Background(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 1 || runs[0].Status != models.RunCompleted || runs[0].Records != 2 {
			t.Errorf("unexpected history %+v", runs)
		}
	})

	t.Run("json output without history", func(t *testing.T) {
		r, output, _, dir, cfgPath := setup(t)

		args := append([]string{"run"}, configArgs(dir, cfgPath)...)
		args = append(args, "--manual", "Blue - Alice", "--no-history", "--json")
		if err := runCLI(t, r, context.Background(), args...); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), `"summary"`) || !strings.Contains(output.String(), `"artist_title": "Alice - Blue"`) {
			t.Errorf("expected JSON document, got %s", output.String())
		}
		if _, err := os.Stat(filepath.Join(dir, "history.db")); !os.IsNotExist(err) {
			t.Error("expected no history database")
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		r := NewRunner(RunnerOpts{Output: &bytes.Buffer{}, Logger: tu.Logger(), Services: fakeServices(nil)})

		args := append([]string{"run"}, configArgs(dir, filepath.Join(dir, "missing.toml"))...)
		args = append(args, "--manual", "Blue - Alice")
		err := runCLI(t, r, context.Background(), args...)
		if !errors.Is(err, shared.ErrConfiguration) || !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected missing credentials, got %v", err)
		}
	})

	t.Run("reference and manual together", func(t *testing.T) {
		r, _, _, dir, cfgPath := setup(t)

		args := append([]string{"run"}, configArgs(dir, cfgPath)...)
		args = append(args, "--manual", "Blue - Alice", "@alice")
		if err := runCLI(t, r, context.Background(), args...); !errors.Is(err, shared.ErrConfiguration) {
			t.Errorf("expected configuration error, got %v", err)
		}
	})

	t.Run("cancelled run is recorded", func(t *testing.T) {
		r, output, _, dir, cfgPath := setup(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		args := append([]string{"run"}, configArgs(dir, cfgPath)...)
		args = append(args, "--manual", "Blue - Alice\nRed - Bob")
		err := runCLI(t, r, ctx, args...)
		if !errors.Is(err, shared.ErrCancelled) {
			t.Fatalf("expected cancelled error, got %v", err)
		}
		if !strings.Contains(output.String(), "Run Cancelled") {
			t.Errorf("expected cancelled summary, got %s", output.String())
		}

		db, err := shared.NewDatabase(filepath.Join(dir, "history.db"))
		if err != nil {
			t.Fatal(err)
		}
		defer db.Close()
		runs, err := repositories.NewRunRepository(db).List(context.Background(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 1 || runs[0].Status != models.RunCancelled {
			t.Errorf("expected one cancelled run, got %+v", runs)
		}
	})
}

func TestHistoryCommands(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	configArgs := []string{
		"--config", cfgPath,
		"--secrets", filepath.Join(dir, "secret.toml"),
		"--env", filepath.Join(dir, ".env"),
	}

	db, err := shared.NewDatabase(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := shared.RunMigrations(db); err != nil {
		t.Fatal(err)
	}
	repo := repositories.NewRunRepository(db)
	summary := tu.SampleSummary()
	if err := repo.Create(context.Background(), &summary); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveRecords(context.Background(), summary.ID, tu.SampleRecords()); err != nil {
		t.Fatal(err)
	}
	db.Close()

	newRunner := func() (*Runner, *bytes.Buffer) {
		output := &bytes.Buffer{}
		return NewRunner(RunnerOpts{Output: output, Logger: tu.Logger()}), output
	}

	t.Run("list", func(t *testing.T) {
		r, output := newRunner()
		if err := runCLI(t, r, context.Background(), append([]string{"history", "list"}, configArgs...)...); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "run-1") || !strings.Contains(output.String(), "2/3") {
			t.Errorf("unexpected list output %s", output.String())
		}
	})

	t.Run("list json", func(t *testing.T) {
		r, output := newRunner()
		args := append([]string{"history"}, configArgs...)
		if err := runCLI(t, r, context.Background(), append(args, "--json")...); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), `"id": "run-1"`) {
			t.Errorf("unexpected JSON output %s", output.String())
		}
	})

	t.Run("show by sequence", func(t *testing.T) {
		r, output := newRunner()
		args := append([]string{"history", "show"}, configArgs...)
		if err := runCLI(t, r, context.Background(), append(args, "#1")...); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, want := range []string{"Run #1", "run-1", "Alice - Blue", "Bob - Red"} {
			if !strings.Contains(output.String(), want) {
				t.Errorf("expected %q in output:\n%s", want, output.String())
			}
		}
	})

	t.Run("show by id as json", func(t *testing.T) {
		r, output := newRunner()
		args := append([]string{"history", "show"}, configArgs...)
		if err := runCLI(t, r, context.Background(), append(args, "--json", "run-1")...); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), `"simplified"`) {
			t.Errorf("unexpected JSON output %s", output.String())
		}
	})

	t.Run("show unknown run", func(t *testing.T) {
		r, _ := newRunner()
		args := append([]string{"history", "show"}, configArgs...)
		if err := runCLI(t, r, context.Background(), append(args, "nope")...); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("show without id", func(t *testing.T) {
		r, _ := newRunner()
		args := append([]string{"history", "show"}, configArgs...)
		if err := runCLI(t, r, context.Background(), args...); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected invalid argument, got %v", err)
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config writes the template once", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		output := &bytes.Buffer{}
		r := NewRunner(RunnerOpts{Output: output, Logger: tu.Logger()})

		if err := runCLI(t, r, context.Background(), "setup", "config", "--config", path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, path)
		if !strings.Contains(output.String(), "Next steps") {
			t.Errorf("expected next steps, got %s", output.String())
		}

		if err := runCLI(t, r, context.Background(), "setup", "config", "--config", path); err != nil {
			t.Errorf("expected existing config to be left alone, got %v", err)
		}
	})

	t.Run("database runs migrations", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		cfgPath := writeConfig(t, dir)
		r := NewRunner(RunnerOpts{Output: &bytes.Buffer{}, Logger: tu.Logger()})

		err := runCLI(t, r, context.Background(), "setup", "database",
			"--config", cfgPath,
			"--secrets", filepath.Join(dir, "secret.toml"),
			"--env", filepath.Join(dir, ".env"),
		)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, filepath.Join(dir, "history.db"))
	})
}
