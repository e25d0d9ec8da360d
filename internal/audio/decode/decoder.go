// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for all audio decoders used by the reference client player
package decode

import "github.com/resonateaudio/resonate-core/internal/audio"

// Decoder decodes encoded audio data to int32 PCM samples.
type Decoder interface {
	Decode(data []byte) ([]int32, error)
	Close() error
}

// New constructs the decoder for format.Codec.
func New(format audio.Format) (Decoder, error) {
	switch format.Codec {
	case "pcm":
		return NewPCM(format)
	case "opus":
		return NewOpus(format)
	case "flac":
		return NewFLAC(format)
	default:
		return nil, errUnsupportedCodec(format.Codec)
	}
}

type errUnsupportedCodec string

func (e errUnsupportedCodec) Error() string { return "unsupported codec: " + string(e) }
