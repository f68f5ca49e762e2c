//go:build unix

package resources

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ProcessSweeper terminates tracked process groups: SIGTERM, a grace period, then SIGKILL.
type ProcessSweeper struct {
	mu    sync.Mutex
	pids  map[int]struct{}
	grace time.Duration
	poll  time.Duration
}

// NewProcessSweeper creates a sweeper that waits grace between SIGTERM and SIGKILL.
func NewProcessSweeper(grace time.Duration) *ProcessSweeper {
	return &ProcessSweeper{pids: make(map[int]struct{}), grace: grace, poll: 50 * time.Millisecond}
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

// Sweep signals every surviving tracked process group and waits, bounded by ctx.
func (s *ProcessSweeper) Sweep(ctx context.Context) error {
	s.mu.Lock()
	pids := make([]int, 0, len(s.pids))
	for pid := range s.pids {
		pids = append(pids, pid)
	}
	s.pids = make(map[int]struct{})
	s.mu.Unlock()

	var errs []error
	var survivors []int
	for _, pid := range pids {
		if !alive(pid) {
			continue
		}
		if err := signalGroup(pid, syscall.SIGTERM); err != nil {
			errs = append(errs, fmt.Errorf("terminate %d: %w", pid, err))
			continue
		}
		survivors = append(survivors, pid)
	}

	deadline := time.NewTimer(s.grace)
	defer deadline.Stop()
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

wait:
	for len(survivors) > 0 {
		select {
		case <-deadline.C:
			break wait
		case <-ctx.Done():
			break wait
		case <-ticker.C:
			survivors = filterAlive(survivors)
		}
	}

	for _, pid := range filterAlive(survivors) {
		if err := signalGroup(pid, syscall.SIGKILL); err != nil {
			errs = append(errs, fmt.Errorf("kill %d: %w", pid, err))
		}
	}
	return errors.Join(errs...)
}

// SetProcessGroup makes cmd the leader of a new process group so its children are swept with it.
func SetProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Terminate asks the process group of pid to exit.
func Terminate(pid int) error {
	return signalGroup(pid, syscall.SIGTERM)
}

func signalGroup(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, sig)
	}
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func alive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func filterAlive(pids []int) []int {
	out := pids[:0]
	for _, pid := range pids {
		if alive(pid) {
			out = append(out, pid)
		}
	}
	return out
}
