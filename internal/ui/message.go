package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/placements/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgPoll MsgKind = iota
	MsgRunFinished
)

type runFinished struct {
	result *tasks.RunResult
	err    error
}

// pollMsg is the constructor for [MsgPoll]
func pollMsg(at time.Time) Msg {
	return Msg{kind: MsgPoll, data: at}
}

// runFinishedMsg is the constructor for [MsgRunFinished]
func runFinishedMsg(result *tasks.RunResult, err error) Msg {
	return Msg{kind: MsgRunFinished, data: runFinished{result, err}}
}
