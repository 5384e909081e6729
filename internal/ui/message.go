package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/tasks"
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
	MsgProgressUpdate MsgKind = iota
	MsgSynthesisComplete
	MsgRunsFetched
	MsgRunFetched
)

type synthesisOutcome struct {
	result *tasks.SynthesisResult
	err    error
}

type runsOutcome struct {
	runs []*models.Run
	err  error
}

type runOutcome struct {
	run *models.Run
	err error
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// synthesisCompleteMsg is the constructor for [MsgSynthesisComplete]
func synthesisCompleteMsg(result *tasks.SynthesisResult, err error) Msg {
	return Msg{kind: MsgSynthesisComplete, data: synthesisOutcome{result, err}}
}

// runsFetchedMsg is the constructor for [MsgRunsFetched]
func runsFetchedMsg(runs []*models.Run, err error) Msg {
	return Msg{kind: MsgRunsFetched, data: runsOutcome{runs, err}}
}

// runFetchedMsg is the constructor for [MsgRunFetched]
func runFetchedMsg(run *models.Run, err error) Msg {
	return Msg{kind: MsgRunFetched, data: runOutcome{run, err}}
}
