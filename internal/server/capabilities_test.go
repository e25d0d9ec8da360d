// ABOUTME: Unit tests for the default CapabilityProvider
package server

import (
	"testing"

	"github.com/resonateaudio/resonate-core/internal/group"
)

func TestAllCommands_ImplementsCapabilityProvider(t *testing.T) {
	var _ group.CapabilityProvider = allCommands{}
}

func TestAllCommands_DeclaresEveryControllerCommand(t *testing.T) {
	want := []string{
		"play", "pause", "stop", "next", "previous",
		"volume", "mute", "repeat_off", "repeat_one", "repeat_all",
		"shuffle", "unshuffle", "switch",
	}
	got := allCommands{}.AvailableCommands()

	gotSet := make(map[string]bool, len(got))
	for _, c := range got {
		gotSet[c] = true
	}
	for _, c := range want {
		if !gotSet[c] {
			t.Errorf("AvailableCommands() missing %q", c)
		}
	}
	if len(got) != len(want) {
		t.Errorf("AvailableCommands() returned %d commands, want %d", len(got), len(want))
	}
}
