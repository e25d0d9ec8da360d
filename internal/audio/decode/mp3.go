// ABOUTME: MP3 audio decoder
// ABOUTME: Lazily builds a go-mp3 decoder from the first Decode call's bytes
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/resonateaudio/resonate-core/internal/audio"
)

// MP3Decoder wraps go-mp3. MP3 has no fixed frame boundary the wire protocol
// can chunk on cleanly. The go-mp3 decoder reads only from the bytes passed
// to the first Decode call; each later call decodes up to 8192 more bytes of
// PCM from that first buffer and ignores its own data argument.
type MP3Decoder struct {
	decoder *mp3.Decoder
}

// NewMP3 creates a new MP3 decoder.
func NewMP3(format audio.Format) (Decoder, error) {
	if format.Codec != "mp3" {
		return nil, fmt.Errorf("invalid codec for MP3 decoder: %s", format.Codec)
	}
	return &MP3Decoder{}, nil
}

func (d *MP3Decoder) Decode(data []byte) ([]int32, error) {
	if d.decoder == nil {
		dec, err := mp3.NewDecoder(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("create mp3 decoder: %w", err)
		}
		d.decoder = dec
	}

	buf := make([]byte, 8192)
	n, err := d.decoder.Read(buf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}

	numSamples := n / 2
	samples := make([]int32, numSamples)
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(buf[i*2:]))
		samples[i] = audio.SampleFromInt16(sample16)
	}
	return samples, nil
}

func (d *MP3Decoder) Close() error { return nil }
