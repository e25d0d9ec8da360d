// ABOUTME: PCM audio encoder
// ABOUTME: Encodes int32 samples to 16-bit or 24-bit little-endian PCM bytes
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/resonateaudio/resonate-core/internal/audio"
)

// PCMEncoder is a pass-through bit-depth-aware PCM encoder.
type PCMEncoder struct {
	bitDepth int
}

// NewPCM creates a new PCM encoder for format.BitDepth (16 or 24).
func NewPCM(format audio.Format) (Encoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM encoder: %s", format.Codec)
	}
	if format.BitDepth != 16 && format.BitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth)
	}
	return &PCMEncoder{bitDepth: format.BitDepth}, nil
}

func (e *PCMEncoder) Encode(samples []int32) ([]byte, error) {
	if e.bitDepth == 24 {
		out := make([]byte, len(samples)*3)
		for i, sample := range samples {
			b := audio.SampleTo24Bit(sample)
			out[i*3] = b[0]
			out[i*3+1] = b[1]
			out[i*3+2] = b[2]
		}
		return out, nil
	}

	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(audio.SampleToInt16(sample)))
	}
	return out, nil
}

func (e *PCMEncoder) Close() error { return nil }
