package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/curate/internal/shared"
	"github.com/desertthunder/curate/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive run history browser.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/curate-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	runs, err := r.runStore()
	if err != nil {
		return fmt.Errorf("%w: run history: %v", shared.ErrServiceUnavailable, err)
	}

	model := ui.NewHistoryModel(ctx, runs)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
