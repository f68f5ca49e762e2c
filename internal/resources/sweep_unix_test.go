//go:build unix

package resources

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func TestProcessSweeper(t *testing.T) {
	path, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}

	t.Run("terminates a surviving process group", func(t *testing.T) {
		cmd := exec.Command(path, "30")
		SetProcessGroup(cmd)
		if err := cmd.Start(); err != nil {
			t.Fatalf("failed to start process: %v", err)
		}
		exited := make(chan struct{})
		go func() {
			cmd.Wait()
			close(exited)
		}()

		s := NewProcessSweeper(500 * time.Millisecond)
		s.Track(cmd.Process.Pid)
		if err := s.Sweep(context.Background()); err != nil {
			t.Errorf("expected no error, got %v", err)
		}

		select {
		case <-exited:
		case <-time.After(5 * time.Second):
			cmd.Process.Kill()
			t.Fatal("process survived the sweep")
		}
		if s.Tracked() != 0 {
			t.Errorf("expected sweep to clear tracked pids")
		}
	})

	t.Run("untracked processes are left alone", func(t *testing.T) {
		cmd := exec.Command(path, "30")
		SetProcessGroup(cmd)
		if err := cmd.Start(); err != nil {
			t.Fatalf("failed to start process: %v", err)
		}
		defer func() {
			cmd.Process.Kill()
			cmd.Wait()
		}()

		s := NewProcessSweeper(10 * time.Millisecond)
		s.Track(cmd.Process.Pid)
		s.Untrack(cmd.Process.Pid)
		s.Sweep(context.Background())

		if !alive(cmd.Process.Pid) {
			t.Error("expected untracked process to keep running")
		}
	})
}
