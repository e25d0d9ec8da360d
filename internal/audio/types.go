// ABOUTME: Shared audio types for the Stream Scheduler and its codec adapters
// ABOUTME: Samples travel as int32 internally so 24-bit sources never lose precision
package audio

import "time"

// Format describes a negotiated audio format, mirroring the wire fields of
// protocol.AudioFormat/PlayerFormat but kept codec-package-local so
// internal/audio/{encode,decode} don't need to import internal/protocol.
type Format struct {
	Codec       string // opus | flac | pcm
	SampleRate  int
	Channels    int
	BitDepth    int
	CodecHeader []byte // encoder init bytes, empty for raw Opus/PCM
}

// Equal reports whether two formats negotiate to the same wire representation.
func (f Format) Equal(o Format) bool {
	return f.Codec == o.Codec && f.SampleRate == o.SampleRate && f.Channels == o.Channels && f.BitDepth == o.BitDepth
}

// Buffer is one block of decoded PCM audio on the client side: samples plus
// the server-clock timestamp and, once resolved via clocksync, the local
// wall-clock deadline to present it.
type Buffer struct {
	Timestamp int64     // server-clock microseconds (stream.Frame.Timestamp)
	PlayAt    time.Time // local wall-clock deadline, filled in by the scheduler
	Samples   []int32   // PCM samples, left-justified in up to 24 bits
	Format    Format
}

// SampleToInt16 converts an int32 sample (left-justified in up to 24 bits) to
// int16 by discarding the low byte.
func SampleToInt16(sample int32) int16 {
	return int16(sample >> 8)
}

// SampleFromInt16 widens an int16 sample into the int32 range this package
// uses internally, left-justified so 24-bit encoders don't need special-casing.
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleTo24Bit packs an int32 sample's low 24 bits, little-endian.
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{byte(sample), byte(sample >> 8), byte(sample >> 16)}
}

// SampleFrom24Bit unpacks and sign-extends a little-endian 24-bit sample.
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}
