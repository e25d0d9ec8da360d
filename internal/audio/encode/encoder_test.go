// ABOUTME: Unit tests for the Encoder codec dispatcher
package encode

import (
	"testing"

	"github.com/resonateaudio/resonate-core/internal/audio"
)

func TestNew_Dispatch(t *testing.T) {
	tests := []struct {
		name    string
		format  audio.Format
		wantErr bool
	}{
		{name: "pcm", format: audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16}},
		{name: "opus", format: audio.Format{Codec: "opus", SampleRate: 48000, Channels: 2}},
		{name: "unsupported codec", format: audio.Format{Codec: "flac", SampleRate: 48000, Channels: 2}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := New(tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatal("New() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error = %v", err)
			}
			if enc == nil {
				t.Fatal("New() returned nil encoder")
			}
			enc.Close()
		})
	}
}
