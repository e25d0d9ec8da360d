// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for all audio encoders used by the Stream Scheduler
package encode

import "github.com/resonateaudio/resonate-core/internal/audio"

// Encoder encodes PCM int32 samples to a codec's wire representation.
type Encoder interface {
	Encode(samples []int32) ([]byte, error)
	Close() error
}

// New constructs the encoder for format.Codec.
func New(format audio.Format) (Encoder, error) {
	switch format.Codec {
	case "pcm":
		return NewPCM(format)
	case "opus":
		return NewOpus(format)
	default:
		return nil, errUnsupportedCodec(format.Codec)
	}
}

type errUnsupportedCodec string

func (e errUnsupportedCodec) Error() string { return "unsupported codec: " + string(e) }
