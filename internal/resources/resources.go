// Package resources tracks subordinate resources (worker pools, browser sessions, OS processes)
// and releases each of them exactly once when a run ends.
package resources

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/placements/internal/shared"
)

// Level orders releases: lower levels are released first.
type Level int

const (
	LevelPool Level = iota
	LevelSession
)

func (l Level) String() string {
	switch l {
	case LevelPool:
		return "pool"
	case LevelSession:
		return "session"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ErrClosed is returned by Register once cleanup has started.
var ErrClosed = errors.New("resource manager closed")

// ReleaseFunc terminates one resource.
type ReleaseFunc func(ctx context.Context) error

// Handle is the owner's view of a registered resource.
type Handle struct {
	id      string
	name    string
	level   Level
	seq     int
	release ReleaseFunc
	once    sync.Once
	err     error
	mgr     *Manager
}

func (h *Handle) ID() string   { return h.id }
func (h *Handle) Name() string { return h.name }
func (h *Handle) Level() Level { return h.level }

// Release terminates the resource and stops tracking it. Only the first call runs the release function.
func (h *Handle) Release(ctx context.Context) error {
	h.once.Do(func() {
		h.err = guard(ctx, h.release)
		if h.mgr != nil {
			h.mgr.forget(h.id)
		}
	})
	return h.err
}

// Sweeper terminates tracked OS processes that survived graceful release.
type Sweeper interface {
	Track(pid int)
	Untrack(pid int)
	Sweep(ctx context.Context) error
}

// ManagerOpts configures a [Manager].
type ManagerOpts struct {
	// Timeout bounds a whole cleanup pass. Defaults to 10s.
	Timeout time.Duration
	Sweeper Sweeper
	Logger  *log.Logger
}

// Report summarises one cleanup pass.
type Report struct {
	Released int
	Failures []error
}

// Manager owns every registered resource of one run.
type Manager struct {
	mu      sync.Mutex
	handles map[string]*Handle
	seq     int
	closed  bool
	stops   []func()

	started atomic.Bool
	done    chan struct{}
	report  Report

	timeout time.Duration
	sweeper Sweeper
	logger  *log.Logger
}

// NewManager creates an open manager.
func NewManager(opts ManagerOpts) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Manager{
		handles: make(map[string]*Handle),
		done:    make(chan struct{}),
		timeout: opts.Timeout,
		sweeper: opts.Sweeper,
		logger:  opts.Logger.With("component", "resources"),
	}
}

// OnStop registers fn to run first during cleanup, so producers stop accepting new work.
func (m *Manager) OnStop(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops = append(m.stops, fn)
}

// Register starts tracking a resource. After cleanup has begun the resource is released immediately,
// bounded by the manager timeout, and ErrClosed is returned.
func (m *Manager) Register(name string, level Level, release ReleaseFunc) (*Handle, error) {
	h := &Handle{id: shared.GenerateID(), name: name, level: level, release: release, mgr: m}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		if err := h.Release(ctx); err != nil {
			m.logger.Error("failed to release late resource", "name", name, "error", err)
		}
		return nil, ErrClosed
	}
	m.seq++
	h.seq = m.seq
	m.handles[h.id] = h
	m.mu.Unlock()

	m.logger.Debug("registered resource", "name", name, "level", level, "id", h.id)
	return h, nil
}

// TrackProcess hands pid to the sweeper for the final pass.
func (m *Manager) TrackProcess(pid int) {
	if m.sweeper != nil {
		m.sweeper.Track(pid)
	}
}

// UntrackProcess removes pid from the sweep once the process has exited.
func (m *Manager) UntrackProcess(pid int) {
	if m.sweeper != nil {
		m.sweeper.Untrack(pid)
	}
}

// Len returns the number of tracked resources.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Accepting reports whether cleanup has not started yet.
func (m *Manager) Accepting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Done is closed when the first cleanup pass has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Cleanup stops new work, releases pools before sessions, then sweeps surviving processes.
//
// It never panics or fails. Concurrent and repeated calls wait for the first pass and share its report.
func (m *Manager) Cleanup(ctx context.Context) Report {
	if !m.started.CompareAndSwap(false, true) {
		select {
		case <-m.done:
			return m.report
		case <-ctx.Done():
			return Report{}
		}
	}
	defer close(m.done)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	m.mu.Lock()
	m.closed = true
	stops := m.stops
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, stop := range stops {
		if err := guard(ctx, func(context.Context) error { stop(); return nil }); err != nil {
			m.fail(fmt.Errorf("stop: %w", err))
		}
	}

	slices.SortFunc(handles, func(a, b *Handle) int {
		if a.level != b.level {
			return int(a.level) - int(b.level)
		}
		return a.seq - b.seq
	})

	for _, h := range handles {
		if err := h.Release(ctx); err != nil {
			m.fail(fmt.Errorf("%s %s: %w", h.level, h.name, err))
			continue
		}
		m.report.Released++
		m.logger.Debug("released resource", "name", h.name, "level", h.level)
	}

	if m.sweeper != nil {
		if err := guard(ctx, m.sweeper.Sweep); err != nil {
			m.fail(fmt.Errorf("process sweep: %w", err))
		}
	}

	m.logger.Info("cleanup finished", "released", m.report.Released, "failures", len(m.report.Failures))
	return m.report
}

func (m *Manager) fail(err error) {
	err = fmt.Errorf("%w: %w", shared.ErrResourceRelease, err)
	m.report.Failures = append(m.report.Failures, err)
	m.logger.Error("cleanup step failed", "error", err)
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handles, id)
}

// guard runs fn, converting a panic into an error.
func guard(ctx context.Context, fn ReleaseFunc) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
