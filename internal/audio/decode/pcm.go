// ABOUTME: PCM audio decoder
// ABOUTME: Decodes 16-bit and 24-bit little-endian PCM to int32 samples
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/resonateaudio/resonate-core/internal/audio"
)

// PCMDecoder is a pass-through bit-depth-aware PCM decoder.
type PCMDecoder struct {
	bitDepth int
}

// NewPCM constructs a PCM decoder for format.BitDepth (16 or 24).
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}
	bitDepth := format.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	if bitDepth != 16 && bitDepth != 24 {
		return nil, fmt.Errorf("unsupported PCM bit depth: %d", bitDepth)
	}
	return &PCMDecoder{bitDepth: bitDepth}, nil
}

func (d *PCMDecoder) Decode(data []byte) ([]int32, error) {
	if d.bitDepth == 24 {
		n := len(data) / 3
		out := make([]int32, n)
		for i := 0; i < n; i++ {
			out[i] = audio.SampleFrom24Bit([3]byte{data[i*3], data[i*3+1], data[i*3+2]})
		}
		return out, nil
	}
	n := len(data) / 2
	out := make([]int32, n)
	for i := 0; i < n; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = audio.SampleFromInt16(sample16)
	}
	return out, nil
}

func (d *PCMDecoder) Close() error { return nil }
