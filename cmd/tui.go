package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/placements/internal/shared"
	"github.com/desertthunder/placements/internal/tasks"
	"github.com/desertthunder/placements/internal/ui"
	"github.com/urfave/cli/v3"
)

const defaultTUILog = "./tmp/ptrack.log"

// TUI runs with the interactive progress view.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	// Logs go to a file so they do not tear the rendered view.
	path := config.Logging.File
	if path == "" {
		path = defaultTUILog
	}
	fileLogger, err := shared.NewFileLogger(path)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	if err := shared.SetLogLevel(fileLogger, config.Logging.Level); err != nil {
		return err
	}
	r.SetLogger(fileLogger)

	s, err := r.newSession(cmd, config, fileLogger)
	if err != nil {
		return err
	}
	defer s.Close()

	model := ui.NewModel(ctx, func(ctx context.Context, progress *tasks.Reporter) (*tasks.RunResult, error) {
		return s.execute(ctx, progress, fileLogger)
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	_, runErr := p.Run()
	model.Cancel()
	result, err := model.Wait()
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("error running TUI: %w", runErr)
	}

	if result != nil {
		r.printSummary(result, s)
	}
	return err
}
