// ABOUTME: FLAC audio decoder
// ABOUTME: Streaming frame-by-frame FLAC decode is not yet implemented
package decode

import (
	"fmt"

	"github.com/resonateaudio/resonate-core/internal/audio"
)

// FLACDecoder is a placeholder for chunk-based FLAC decode. Whole-file FLAC
// playback goes through the FLAC audio source instead, which uses
// mewkiz/flac's own streaming reader rather than this per-frame interface.
type FLACDecoder struct {
	format audio.Format
}

// NewFLAC creates a new FLAC decoder.
func NewFLAC(format audio.Format) (Decoder, error) {
	if format.Codec != "flac" {
		return nil, fmt.Errorf("invalid codec for FLAC decoder: %s", format.Codec)
	}
	return &FLACDecoder{format: format}, nil
}

func (d *FLACDecoder) Decode(data []byte) ([]int32, error) {
	return nil, fmt.Errorf("FLAC frame-by-frame streaming decode not implemented")
}

func (d *FLACDecoder) Close() error { return nil }
