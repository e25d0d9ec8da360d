// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for the reference player UI
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// VolumeControl is the channel pair the TUI uses to push local volume/mute
// changes and quit requests out to whatever owns the playback connection
// (internal/playerclient.Client), decoupling key handling from playback
// control the same way the rest of this module keeps listener dispatch
// outside any lock.
type VolumeControl struct {
	Changes chan VolumeChangeMsg
	Quit    chan QuitMsg
}

// NewVolumeControl constructs a VolumeControl with small buffered channels;
// a full channel means a change is already pending, so senders drop rather
// than block (see Model.sendVolumeChange).
func NewVolumeControl() *VolumeControl {
	return &VolumeControl{
		Changes: make(chan VolumeChangeMsg, 4),
		Quit:    make(chan QuitMsg, 1),
	}
}

// NewModel creates a new TUI model bound to vc (nil is valid for tests or a
// headless run).
func NewModel(vc *VolumeControl) Model {
	return Model{
		volume:     100,
		volumeCtrl: vc,
	}
}

// Run builds the TUI program for the given initial model; the caller starts
// it with the returned program's Run method.
func Run(model Model) (*tea.Program, error) {
	p := tea.NewProgram(model, tea.WithAltScreen())
	return p, nil
}
