// ABOUTME: Audio output using oto, with software volume control
// ABOUTME: Plays decoded int32 PCM buffers as signed 16-bit LE through the OS mixer
package output

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log"

	"github.com/ebitengine/oto/v3"
	"github.com/resonateaudio/resonate-core/internal/audio"
)

// Output manages audio output for a single negotiated format at a time.
// Re-initializing on a format change keeps the device pipeline simple: it
// tears down and recreates the oto context rather than resampling in place.
type Output struct {
	ctx    context.Context
	cancel context.CancelFunc
	otoCtx *oto.Context
	format audio.Format
	volume int
	muted  bool
	ready  bool
}

// New creates an audio output with volume at 100 and unmuted.
func New() *Output {
	ctx, cancel := context.WithCancel(context.Background())
	return &Output{
		ctx:    ctx,
		cancel: cancel,
		volume: 100,
	}
}

// Initialize (re)creates the oto context for format. Safe to call again when
// the negotiated format changes mid-stream.
func (o *Output) Initialize(format audio.Format) error {
	if o.otoCtx != nil {
		o.otoCtx.Suspend()
		o.ready = false
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.format = format
	o.ready = true

	log.Printf("audio output initialized: %dHz, %d channels", format.SampleRate, format.Channels)
	return nil
}

// Play writes one decoded buffer to the output device, applying the current
// software volume/mute.
func (o *Output) Play(buf audio.Buffer) error {
	if !o.ready {
		return fmt.Errorf("output not initialized")
	}

	multiplier := o.volumeMultiplier()
	out := make([]byte, len(buf.Samples)*2)
	for i, sample := range buf.Samples {
		s16 := audio.SampleToInt16(sample)
		scaled := int16(float64(s16) * multiplier)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(scaled))
	}

	player := o.otoCtx.NewPlayer(bytes.NewReader(out))
	player.Play()
	return nil
}

// SetVolume sets the volume 0-100, clamped.
func (o *Output) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	o.volume = volume
}

// SetMuted sets mute state.
func (o *Output) SetMuted(muted bool) {
	o.muted = muted
}

// GetVolume returns the current volume.
func (o *Output) GetVolume() int {
	return o.volume
}

// IsMuted reports the current mute state.
func (o *Output) IsMuted() bool {
	return o.muted
}

// Close tears down the oto context and cancels the output's context.
func (o *Output) Close() {
	if o.otoCtx != nil {
		o.otoCtx.Suspend()
		o.ready = false
	}
	o.cancel()
}

func (o *Output) volumeMultiplier() float64 {
	if o.muted {
		return 0.0
	}
	return float64(o.volume) / 100.0
}
