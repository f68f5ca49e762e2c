// Package browser renders pages with a headless Chromium-family browser.
//
// Each render is a short-lived session: an OS process registered with the run's resources.Manager,
// started in its own process group so a forced shutdown can take its helpers down with it.
package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/placements/internal/resources"
	"github.com/desertthunder/placements/internal/shared"
)

// ErrNoBrowser is returned when no browser binary can be located.
var ErrNoBrowser = errors.New("no headless browser found")

// Opts configures a [Launcher].
type Opts struct {
	// Path overrides binary discovery.
	Path          string
	GracePeriod   time.Duration
	RenderTimeout time.Duration
	Resources     *resources.Manager
	Logger        *log.Logger
}

// Launcher starts one browser session per render.
type Launcher struct {
	path      string
	grace     time.Duration
	timeout   time.Duration
	resources *resources.Manager
	logger    *log.Logger
}

// NewLauncher locates the browser binary and returns a launcher for it.
func NewLauncher(opts Opts) (*Launcher, error) {
	path, err := Locate(opts.Path)
	if err != nil {
		return nil, err
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 2 * time.Second
	}
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Launcher{
		path:      path,
		grace:     opts.GracePeriod,
		timeout:   opts.RenderTimeout,
		resources: opts.Resources,
		logger:    opts.Logger.With("component", "browser"),
	}, nil
}

// Path is the browser binary in use.
func (l *Launcher) Path() string {
	return l.path
}

// Render loads pageURL headlessly and returns the serialised DOM once the page settles.
func (l *Launcher) Render(ctx context.Context, pageURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, l.path, args(pageURL)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	resources.SetProcessGroup(cmd)
	cmd.Cancel = func() error { return resources.Terminate(cmd.Process.Pid) }
	cmd.WaitDelay = l.grace

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	pid := cmd.Process.Pid
	done := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(done)
	}()

	if l.resources != nil {
		l.resources.TrackProcess(pid)
		defer l.resources.UntrackProcess(pid)

		handle, err := l.resources.Register("browser "+pageURL, resources.LevelSession, func(rctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-rctx.Done():
				return fmt.Errorf("browser %d did not exit: %w", pid, rctx.Err())
			}
		})
		if err != nil {
			return nil, err
		}
		defer handle.Release(context.Background())
	}

	l.logger.Debug("browser session started", "pid", pid, "url", pageURL)
	<-done

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if waitErr != nil {
		return nil, fmt.Errorf("browser exited: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: empty document for %s", shared.ErrMalformedResponse, pageURL)
	}
	return stdout.Bytes(), nil
}

func args(pageURL string) []string {
	return []string{
		"--headless=new",
		"--disable-gpu",
		"--no-sandbox",
		"--no-first-run",
		"--mute-audio",
		"--virtual-time-budget=10000",
		"--user-agent=" + userAgent,
		"--dump-dom",
		pageURL,
	}
}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Locate returns override when it is executable, else the first known browser found for this platform.
func Locate(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrNoBrowser, override, err)
		}
		return override, nil
	}

	for _, candidate := range candidates(runtime.GOOS) {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w for %s", ErrNoBrowser, runtime.GOOS)
}

func candidates(goos string) []string {
	switch goos {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		}
	case "windows":
		return []string{"chrome.exe", "msedge.exe", `C:\Program Files\Google\Chrome\Application\chrome.exe`}
	default:
		return []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "microsoft-edge"}
	}
}
