// ABOUTME: Unit tests for the Opus decoder, including an encode/decode round-trip
package decode

import (
	"testing"

	"github.com/resonateaudio/resonate-core/internal/audio"
	"github.com/resonateaudio/resonate-core/internal/audio/encode"
)

func TestNewOpusDecoder(t *testing.T) {
	tests := []struct {
		name    string
		format  audio.Format
		wantErr bool
	}{
		{name: "valid", format: audio.Format{Codec: "opus", SampleRate: 48000, Channels: 2}},
		{name: "invalid codec", format: audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := NewOpus(tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewOpus() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewOpus() unexpected error = %v", err)
			}
			if dec == nil {
				t.Fatal("NewOpus() returned nil decoder")
			}
			dec.Close()
		})
	}
}

func TestOpusDecoder_RoundTripWithEncoder(t *testing.T) {
	format := audio.Format{Codec: "opus", SampleRate: 48000, Channels: 2, BitDepth: 16}

	enc, err := encode.NewOpus(format)
	if err != nil {
		t.Fatalf("NewOpus (encoder) failed: %v", err)
	}
	defer enc.Close()

	dec, err := NewOpus(format)
	if err != nil {
		t.Fatalf("NewOpus (decoder) failed: %v", err)
	}
	defer dec.Close()

	frameSize := 48000 / 50
	samples := make([]int32, frameSize*2)
	for i := range samples {
		samples[i] = int32((i % 500) * 16000)
	}

	packet, err := enc.Encode(samples)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	decoded, err := dec.Decode(packet)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if len(decoded) == 0 {
		t.Fatal("Decode() returned no samples")
	}
	if len(decoded) != frameSize*2 {
		t.Errorf("Decode() returned %d samples, want %d (one full stereo frame)", len(decoded), frameSize*2)
	}
}

func TestOpusDecoder_Close(t *testing.T) {
	dec, err := NewOpus(audio.Format{Codec: "opus", SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("NewOpus() failed: %v", err)
	}
	if err := dec.Close(); err != nil {
		t.Errorf("Close() unexpected error = %v", err)
	}
}
