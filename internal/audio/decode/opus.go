// ABOUTME: Opus audio decoder
// ABOUTME: Decodes Opus packets to int32 samples via gopkg.in/hraban/opus.v2
package decode

import (
	"fmt"

	"github.com/resonateaudio/resonate-core/internal/audio"
	"gopkg.in/hraban/opus.v2"
)

// OpusDecoder wraps libopus's decoder, widening its int16 output to int32.
type OpusDecoder struct {
	decoder  *opus.Decoder
	channels int
}

// NewOpus constructs an Opus decoder for format.SampleRate/Channels.
func NewOpus(format audio.Format) (Decoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus decoder: %s", format.Codec)
	}
	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &OpusDecoder{decoder: dec, channels: format.Channels}, nil
}

func (d *OpusDecoder) Decode(data []byte) ([]int32, error) {
	pcm16 := make([]int16, 5760*d.channels) // largest legal Opus frame
	n, err := d.decoder.Decode(data, pcm16)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	samples := n * d.channels
	out := make([]int32, samples)
	for i := 0; i < samples; i++ {
		out[i] = audio.SampleFromInt16(pcm16[i])
	}
	return out, nil
}

func (d *OpusDecoder) Close() error { return nil }
