// Package ui implements the terminal progress view using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [RunningView] : progress bar, spinner and a scrolling log fed by the run's [tasks.Reporter]
//  2. [ResultView] : run summary and the simplified records
//
// The [Model] polls the reporter on a short tick rather than blocking on it, so the run never waits on rendering.
// Pressing q or ctrl+c while running cancels the run context; the engine then releases every resource before the
// final result arrives.
//
// [Table] renders run history for the non-interactive commands with lipgloss/table.
package ui
