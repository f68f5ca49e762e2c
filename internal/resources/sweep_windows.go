//go:build windows

package resources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// ProcessSweeper kills tracked processes. Windows has no process-group signals, so there is no grace period.
type ProcessSweeper struct {
	mu   sync.Mutex
	pids map[int]struct{}
}

// NewProcessSweeper creates a sweeper. grace is ignored on windows.
func NewProcessSweeper(_ time.Duration) *ProcessSweeper {
	return &ProcessSweeper{pids: make(map[int]struct{})}
}

func (s *ProcessSweeper) Track(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pids[pid] = struct{}{}
}

func (s *ProcessSweeper) Untrack(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pids, pid)
}

// Tracked returns the number of pids awaiting a sweep.
func (s *ProcessSweeper) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pids)
}

func (s *ProcessSweeper) Sweep(ctx context.Context) error {
	s.mu.Lock()
	pids := s.pids
	s.pids = make(map[int]struct{})
	s.mu.Unlock()

	var errs []error
	for pid := range pids {
		if ctx.Err() != nil {
			break
		}
		p, err := os.FindProcess(pid)
		if err != nil {
			continue
		}
		if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("kill %d: %w", pid, err))
		}
	}
	return errors.Join(errs...)
}

// SetProcessGroup is a no-op on windows.
func SetProcessGroup(_ *exec.Cmd) {}

// Terminate kills pid.
func Terminate(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
