// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// Two workflows share one [Model]:
//  1. [ProgressView] then [ResultView] : run one synthesis and watch each phase, then browse the per-song outcomes
//  2. [HistoryView] then [RunView] : browse saved runs and open one to see its outcomes
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a buffered channel from the synthesis engine. Pressing x cancels the run's context;
// the engine still returns a partial result, which is shown like any other.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, x, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
