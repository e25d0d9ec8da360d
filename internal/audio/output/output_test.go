// ABOUTME: Unit tests for Output's volume/mute bookkeeping (device init needs real hardware)
package output

import (
	"testing"

	"github.com/resonateaudio/resonate-core/internal/audio"
)

func TestNew(t *testing.T) {
	out := New()
	if out == nil {
		t.Fatal("New() returned nil")
	}
	if out.GetVolume() != 100 {
		t.Errorf("GetVolume() = %d, want 100", out.GetVolume())
	}
	if out.IsMuted() {
		t.Error("IsMuted() = true, want false for a fresh Output")
	}
}

func TestSetVolume_Clamps(t *testing.T) {
	out := New()

	out.SetVolume(150)
	if got := out.GetVolume(); got != 100 {
		t.Errorf("SetVolume(150) -> GetVolume() = %d, want 100", got)
	}

	out.SetVolume(-10)
	if got := out.GetVolume(); got != 0 {
		t.Errorf("SetVolume(-10) -> GetVolume() = %d, want 0", got)
	}

	out.SetVolume(42)
	if got := out.GetVolume(); got != 42 {
		t.Errorf("SetVolume(42) -> GetVolume() = %d, want 42", got)
	}
}

func TestSetMuted(t *testing.T) {
	out := New()
	out.SetMuted(true)
	if !out.IsMuted() {
		t.Error("IsMuted() = false after SetMuted(true)")
	}
	out.SetMuted(false)
	if out.IsMuted() {
		t.Error("IsMuted() = true after SetMuted(false)")
	}
}

func TestVolumeMultiplier(t *testing.T) {
	out := New()
	out.SetVolume(50)
	if got := out.volumeMultiplier(); got != 0.5 {
		t.Errorf("volumeMultiplier() at volume=50 = %v, want 0.5", got)
	}

	out.SetMuted(true)
	if got := out.volumeMultiplier(); got != 0.0 {
		t.Errorf("volumeMultiplier() while muted = %v, want 0", got)
	}
}

func TestPlay_BeforeInitializeErrors(t *testing.T) {
	out := New()
	if err := out.Play(audio.Buffer{}); err == nil {
		t.Error("Play() before Initialize() expected an error, got nil")
	}
}
