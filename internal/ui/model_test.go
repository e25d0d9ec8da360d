// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, message handling, and state transitions
package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/resonateaudio/resonate-core/internal/clocksync"
)

func TestNewModel(t *testing.T) {
	model := NewModel(nil) // VolumeControl is optional for testing

	if model.connected {
		t.Error("expected connected to be false initially")
	}

	if model.volume != 100 {
		t.Errorf("expected default volume 100, got %d", model.volume)
	}

	if model.muted {
		t.Error("expected muted to be false initially")
	}

	if model.showDebug {
		t.Error("expected showDebug to be false initially")
	}
}

func TestStatusMsgConnected(t *testing.T) {
	model := NewModel(nil)

	connected := true
	msg := StatusMsg{
		Connected:  &connected,
		ServerName: "test-server",
	}

	model.applyStatus(msg)

	if !model.connected {
		t.Error("expected connected to be true after status update")
	}

	if model.serverName != "test-server" {
		t.Errorf("expected serverName 'test-server', got '%s'", model.serverName)
	}
}

func TestStatusMsgDisconnected(t *testing.T) {
	model := NewModel(nil)

	connected := true
	model.applyStatus(StatusMsg{Connected: &connected})

	disconnected := false
	model.applyStatus(StatusMsg{Connected: &disconnected})

	if model.connected {
		t.Error("expected connected to be false after disconnect")
	}
}

func TestStatusMsgSyncStats(t *testing.T) {
	model := NewModel(nil)

	msg := StatusMsg{
		SyncRTT:     5000,
		SyncQuality: clocksync.QualityGood,
	}

	model.applyStatus(msg)

	if model.syncRTT != 5000 {
		t.Errorf("expected syncRTT 5000, got %d", model.syncRTT)
	}

	if model.syncQuality != clocksync.QualityGood {
		t.Errorf("expected QualityGood, got %v", model.syncQuality)
	}
}

func TestStatusMsgStreamInfo(t *testing.T) {
	model := NewModel(nil)

	msg := StatusMsg{
		Codec:      "opus",
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	}

	model.applyStatus(msg)

	if model.codec != "opus" {
		t.Errorf("expected codec 'opus', got '%s'", model.codec)
	}

	if model.sampleRate != 48000 {
		t.Errorf("expected sampleRate 48000, got %d", model.sampleRate)
	}

	if model.channels != 2 {
		t.Errorf("expected channels 2, got %d", model.channels)
	}

	if model.bitDepth != 16 {
		t.Errorf("expected bitDepth 16, got %d", model.bitDepth)
	}
}

func TestStatusMsgMetadata(t *testing.T) {
	model := NewModel(nil)

	msg := StatusMsg{
		Title:  "Test Song",
		Artist: "Test Artist",
		Album:  "Test Album",
	}

	model.applyStatus(msg)

	if model.title != "Test Song" {
		t.Errorf("expected title 'Test Song', got '%s'", model.title)
	}

	if model.artist != "Test Artist" {
		t.Errorf("expected artist 'Test Artist', got '%s'", model.artist)
	}

	if model.album != "Test Album" {
		t.Errorf("expected album 'Test Album', got '%s'", model.album)
	}
}

func TestStatusMsgArtworkPath(t *testing.T) {
	model := NewModel(nil)

	msg := StatusMsg{
		ArtworkPath: "/tmp/artwork.jpg",
	}

	model.applyStatus(msg)

	if model.artworkPath != "/tmp/artwork.jpg" {
		t.Errorf("expected artworkPath '/tmp/artwork.jpg', got '%s'", model.artworkPath)
	}
}

func TestStatusMsgVolume(t *testing.T) {
	model := NewModel(nil)

	msg := StatusMsg{
		Volume: 75,
	}

	model.applyStatus(msg)

	if model.volume != 75 {
		t.Errorf("expected volume 75, got %d", model.volume)
	}
}

func TestStatusMsgStats(t *testing.T) {
	model := NewModel(nil)

	msg := StatusMsg{
		Received:    1000,
		Played:      950,
		Dropped:     50,
		BufferDepth: 300,
	}

	model.applyStatus(msg)

	if model.received != 1000 {
		t.Errorf("expected received 1000, got %d", model.received)
	}

	if model.played != 950 {
		t.Errorf("expected played 950, got %d", model.played)
	}

	if model.dropped != 50 {
		t.Errorf("expected dropped 50, got %d", model.dropped)
	}

	if model.bufferDepth != 300 {
		t.Errorf("expected bufferDepth 300, got %d", model.bufferDepth)
	}
}

func TestStatusMsgRuntimeStats(t *testing.T) {
	model := NewModel(nil)

	msg := StatusMsg{
		Goroutines: 42,
		MemAlloc:   1024 * 1024,
		MemSys:     2048 * 1024,
	}

	model.applyStatus(msg)

	if model.goroutines != 42 {
		t.Errorf("expected goroutines 42, got %d", model.goroutines)
	}

	if model.memAlloc != 1024*1024 {
		t.Errorf("expected memAlloc %d, got %d", 1024*1024, model.memAlloc)
	}

	if model.memSys != 2048*1024 {
		t.Errorf("expected memSys %d, got %d", 2048*1024, model.memSys)
	}
}

func TestMultipleStatusUpdates(t *testing.T) {
	model := NewModel(nil)

	connected := true
	model.applyStatus(StatusMsg{
		Connected: &connected,
		Codec:     "opus",
	})

	if model.codec != "opus" {
		t.Error("first update failed")
	}

	model.applyStatus(StatusMsg{
		Codec:      "opus",
		SampleRate: 48000,
	})

	if model.codec != "opus" {
		t.Error("previous codec value was lost")
	}

	if model.sampleRate != 48000 {
		t.Error("new sampleRate not applied")
	}
}

func TestStatusMsgZeroValues(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{
		Volume:   75,
		Received: 100,
	})

	model.applyStatus(StatusMsg{
		Volume:   0,
		Received: 0,
	})

	if model.volume == 0 {
		t.Error("volume should not be updated to 0")
	}

	if model.received != 0 {
		t.Error("received stats should be updated to 0")
	}
}

func TestTruncateFunction(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly ten c", 14, "exactly ten c"},
		{"this is longer than allowed", 10, "this is..."},
		{"this is longer than allowed", 15, "this is long..."},
		{"", 10, ""},
		{"a", 10, "a"},
		{"abc", 3, "abc"},
		{"abcd", 4, "abcd"},
		{"abcde", 4, "a..."},
	}

	for _, tt := range tests {
		result := truncate(tt.input, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, expected %q",
				tt.input, tt.maxLen, result, tt.expected)
		}
	}
}

func TestChannelNameFunction(t *testing.T) {
	tests := []struct {
		channels int
		expected string
	}{
		{1, "Mono"},
		{2, "Stereo"},
		{3, "Stereo"},
		{6, "Stereo"},
		{0, "Stereo"},
	}

	for _, tt := range tests {
		result := channelName(tt.channels)
		if result != tt.expected {
			t.Errorf("channelName(%d) = %q, expected %q",
				tt.channels, result, tt.expected)
		}
	}
}

func TestSyncQualityDisplay(t *testing.T) {
	model := NewModel(nil)

	qualities := []clocksync.Quality{
		clocksync.QualityGood,
		clocksync.QualityDegraded,
		clocksync.QualityLost,
	}

	for _, q := range qualities {
		model.applyStatus(StatusMsg{
			SyncQuality: q,
			SyncRTT:     1000,
		})

		if model.syncQuality != q {
			t.Errorf("quality not updated to %v", q)
		}
	}
}

func TestMetadataClearing(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{
		Title:  "Song",
		Artist: "Artist",
		Album:  "Album",
	})

	model.applyStatus(StatusMsg{
		Title:  "",
		Artist: "",
		Album:  "",
	})

	if model.title != "Song" {
		t.Error("title should not be cleared by empty string")
	}
}

func TestVolumeControlQuit(t *testing.T) {
	vc := NewVolumeControl()
	model := NewModel(vc)
	model.width = 80

	m, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Error("expected quit command")
	}
	_ = m

	select {
	case <-vc.Quit:
	default:
		t.Error("expected a QuitMsg on the volume control's Quit channel")
	}
}

func TestVolumeControlChange(t *testing.T) {
	vc := NewVolumeControl()
	model := NewModel(vc)
	model.width = 80
	model.volume = 50

	m, _ := model.Update(tea.KeyMsg{Type: tea.KeyUp})
	updated := m.(Model)
	if updated.volume != 55 {
		t.Errorf("expected volume 55, got %d", updated.volume)
	}

	select {
	case change := <-vc.Changes:
		if change.Volume != 55 {
			t.Errorf("expected change volume 55, got %d", change.Volume)
		}
	default:
		t.Error("expected a VolumeChangeMsg on the volume control's Changes channel")
	}
}

// NOTE: TestConcurrentStatusUpdates was removed because Bubble Tea
// guarantees sequential Update() calls - the Model is never accessed
// concurrently in real usage, so testing concurrent access is unrealistic.
