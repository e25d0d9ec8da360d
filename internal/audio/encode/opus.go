// ABOUTME: Opus audio encoder
// ABOUTME: Encodes int32 samples to Opus packets at 20ms frame size
package encode

import (
	"fmt"

	"github.com/resonateaudio/resonate-core/internal/audio"
	"gopkg.in/hraban/opus.v2"
)

// OpusEncoder wraps libopus's encoder.
type OpusEncoder struct {
	encoder    *opus.Encoder
	sampleRate int
	channels   int
	frameSize  int
}

// NewOpus creates a new Opus encoder for format.SampleRate/Channels.
func NewOpus(format audio.Format) (Encoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus encoder: %s", format.Codec)
	}

	enc, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}

	return &OpusEncoder{
		encoder:    enc,
		sampleRate: format.SampleRate,
		channels:   format.Channels,
		frameSize:  format.SampleRate / 50, // 20ms frame
	}, nil
}

func (e *OpusEncoder) Encode(samples []int32) ([]byte, error) {
	pcm := make([]int16, len(samples))
	for i, sample := range samples {
		pcm[i] = audio.SampleToInt16(sample)
	}

	out := make([]byte, 4000) // max Opus packet size
	n, err := e.encoder.Encode(pcm, out)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	return out[:n], nil
}

func (e *OpusEncoder) Close() error { return nil }
