// ABOUTME: Unit tests for the Decoder codec dispatcher
package decode

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
		{name: "pcm", format: audio.Format{Codec: "pcm", BitDepth: 16}},
		{name: "opus", format: audio.Format{Codec: "opus", SampleRate: 48000, Channels: 2}},
		{name: "flac", format: audio.Format{Codec: "flac"}},
		{name: "unsupported codec", format: audio.Format{Codec: "mp3"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := New(tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatal("New() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error = %v", err)
			}
			if dec == nil {
				t.Fatal("New() returned nil decoder")
			}
			dec.Close()
		})
	}
}
