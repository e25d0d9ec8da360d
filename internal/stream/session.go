// ABOUTME: StreamSession: per-client format state, encoder, and frame-production cursor
// ABOUTME: Implements the mid-stream format switch and lead-time capping
package stream

import (
	"encoding/base64"
	"log"
	"sync"

	"github.com/resonateaudio/resonate-core/internal/audio"
	"github.com/resonateaudio/resonate-core/internal/audio/encode"
	"github.com/resonateaudio/resonate-core/internal/audio/source"
	"github.com/resonateaudio/resonate-core/internal/protocol"
)

// ArtworkChannelConfig is one negotiated artwork channel (from
// artwork_support.channels), carried by Configure so Session knows which
// channels are active versus inert ("none" source).
type ArtworkChannelConfig struct {
	Source string // album | artist | none
	Format string // jpeg | png | bmp
}

// Session is one StreamSession: everything the scheduler tracks for a
// single player/artwork/visualizer client.
type Session struct {
	mu sync.Mutex

	groupID, clientID string
	sender            Sender
	clock             ClockFunc
	logger            *log.Logger

	fNow     audio.Format
	fNext    *audio.Format
	switchAt int64

	encoder      encode.Encoder
	resampler    *source.Resampler
	resampleFrom int // source sample rate the resampler was last built for

	bufferCapacity  int // bytes, from player_support.buffer_capacity
	basis           int64
	samplesProduced int64 // interleaved samples emitted at fNow's rate since basis

	artwork []*artworkChannel
}

type artworkChannel struct {
	channel int
	source  string
	cleared bool
}

func newSession(groupID, clientID string, format audio.Format, bufferCapacity int, artworkCfg []ArtworkChannelConfig, sender Sender, clock ClockFunc, logger *log.Logger) *Session {
	enc, err := encode.New(format)
	if err != nil {
		logger.Printf("stream %s/%s: encoder init failed for %s, falling back to pcm: %v", groupID, clientID, format.Codec, err)
		format.Codec = "pcm"
		if format.BitDepth != 16 && format.BitDepth != 24 {
			format.BitDepth = 16
		}
		enc, _ = encode.New(format)
	}

	channels := make([]*artworkChannel, len(artworkCfg))
	for i, c := range artworkCfg {
		channels[i] = &artworkChannel{channel: i, source: c.Source, cleared: true}
	}

	// basis starts ahead of the wall clock by this session's lead-time cap:
	// the first chunk's present time must already clear the min-jitter late
	// check (handleChunk), and since samples are produced at the same pace
	// ticks arrive, an initial lead holds steady rather than decaying.
	return &Session{
		groupID:        groupID,
		clientID:       clientID,
		sender:         sender,
		clock:          clock,
		logger:         logger,
		fNow:           format,
		encoder:        enc,
		bufferCapacity: bufferCapacity,
		basis:          clock() + leadTimeMicros(bufferCapacity, format),
		artwork:        channels,
	}
}

// sendStart emits stream/start announcing fNow (and any active artwork
// channels) to this session's client.
func (s *Session) sendStart() {
	s.mu.Lock()
	player := playerFormat(s.fNow)
	s.mu.Unlock()

	start := protocol.StreamStart{Player: &player}
	if err := s.sender.SendText(s.clientID, protocol.TypeStreamStart, start); err != nil {
		s.logger.Printf("stream %s/%s: stream/start failed: %v", s.groupID, s.clientID, err)
	}
}

// sendEnd emits stream/end and is always safe to call even if the session
// never produced a frame.
func (s *Session) sendEnd() {
	if err := s.sender.SendText(s.clientID, protocol.TypeStreamEnd, nil); err != nil {
		s.logger.Printf("stream %s/%s: stream/end failed: %v", s.groupID, s.clientID, err)
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.encoder != nil {
		s.encoder.Close()
	}
}

// requestFormat handles a client's stream/request-format ask: records
// F_next, schedules a switch time, and emits the stream/update delta. If the
// merged F_next equals F_now, the update is suppressed entirely.
func (s *Session) requestFormat(next audio.Format) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.fNow
	if next.Codec != "" {
		merged.Codec = next.Codec
	}
	if next.SampleRate != 0 {
		merged.SampleRate = next.SampleRate
	}
	if next.Channels != 0 {
		merged.Channels = next.Channels
	}
	if next.BitDepth != 0 {
		merged.BitDepth = next.BitDepth
	}

	if merged.Equal(s.fNow) {
		return
	}

	delta := protocol.PlayerFormatDelta{}
	if merged.Codec != s.fNow.Codec {
		delta.Codec = protocol.Present(merged.Codec)
	}
	if merged.SampleRate != s.fNow.SampleRate {
		delta.SampleRate = protocol.Present(merged.SampleRate)
	}
	if merged.Channels != s.fNow.Channels {
		delta.Channels = protocol.Present(merged.Channels)
	}
	if merged.BitDepth != s.fNow.BitDepth {
		delta.BitDepth = protocol.Present(merged.BitDepth)
	}

	s.fNext = &merged
	// Switch at the next chunk boundary at least minLead ahead; chunkDuration
	// is the frame boundary granularity this scheduler produces at.
	minLeadMicros := int64(chunkDuration / 1000)
	now := s.clock()
	boundary := now + minLeadMicros
	chunkMicros := int64(chunkDuration.Microseconds())
	if rem := boundary % chunkMicros; rem != 0 {
		boundary += chunkMicros - rem
	}
	s.switchAt = boundary

	update := protocol.StreamUpdate{Player: &delta}
	if err := s.sender.SendText(s.clientID, protocol.TypeStreamUpdate, update); err != nil {
		s.logger.Printf("stream %s/%s: stream/update failed: %v", s.groupID, s.clientID, err)
	}
}

// handleChunk resamples, encodes, and (subject to lead-time capping and
// late-frame dropping) sends one chunk of raw PCM pulled at the group's
// source rate.
func (s *Session) handleChunk(samples []int32, sourceRate, sourceChannels int, now int64) {
	s.mu.Lock()

	if s.fNext != nil {
		presentTime := s.basis + frameMicros(s.samplesProduced, s.fNow.Channels, s.fNow.SampleRate)
		if presentTime >= s.switchAt {
			s.commitSwitchLocked()
		}
	}

	working := samples
	if sourceRate != s.fNow.SampleRate {
		if s.resampler == nil || s.resampleFrom != sourceRate {
			s.resampler = source.NewResampler(sourceRate, s.fNow.SampleRate, sourceChannels)
			s.resampleFrom = sourceRate
		}
		out := make([]int32, len(samples)*s.fNow.SampleRate/sourceRate+s.fNow.Channels)
		n := s.resampler.Resample(samples, out)
		working = out[:n]
	}

	presentTime := s.basis + frameMicros(s.samplesProduced, s.fNow.Channels, s.fNow.SampleRate)
	leadTime := leadTimeMicros(s.bufferCapacity, s.fNow)

	if presentTime < now+minJitterMicro {
		// Late: drop this chunk's audio, but still advance the cursor past
		// it. Otherwise the next chunk recomputes the same stale present
		// time while now keeps advancing, so the session would never
		// recover and would drop every subsequent frame forever.
		s.samplesProduced += int64(len(working))
		s.mu.Unlock()
		return
	}
	if presentTime-now > leadTime {
		s.mu.Unlock()
		return
	}

	encoder := s.encoder
	s.samplesProduced += int64(len(working))
	s.mu.Unlock()

	encoded, err := encoder.Encode(working)
	if err != nil {
		s.logger.Printf("stream %s/%s: encode error: %v", s.groupID, s.clientID, err)
		return
	}

	frame := protocol.EncodeFrame(protocol.BinaryRolePlayer, 0, presentTime, encoded)
	if err := s.sender.SendBinary(s.clientID, frame); err != nil {
		s.logger.Printf("stream %s/%s: send binary failed: %v", s.groupID, s.clientID, err)
	}
}

// commitSwitchLocked performs F_now <- F_next. Caller must hold s.mu. The new
// format's basis is seeded from the outgoing format's next-unproduced-sample
// presentation time so the switch leaves no gap or overlap in
// presentation-time coverage: a fresh clock() read here would let the new
// cursor jump ahead of (or behind) audio already scheduled under the old
// format.
func (s *Session) commitSwitchLocked() {
	if s.encoder != nil {
		s.encoder.Close()
	}
	// lastPresent is the presentation time of the next sample the outgoing
	// format hasn't produced yet — exactly where the new format must pick up.
	lastPresent := s.basis + frameMicros(s.samplesProduced, s.fNow.Channels, s.fNow.SampleRate)

	s.fNow = *s.fNext
	s.fNext = nil
	s.resampler = nil
	s.samplesProduced = 0
	s.basis = lastPresent

	enc, err := encode.New(s.fNow)
	if err != nil {
		s.logger.Printf("stream %s/%s: encoder rebuild failed after switch: %v", s.groupID, s.clientID, err)
		return
	}
	s.encoder = enc
}

// publishArtwork sets or clears one artwork channel. A channel negotiated
// with source "none" is inert and ignores this call.
func (s *Session) publishArtwork(channel int, payload []byte) {
	s.mu.Lock()
	if channel < 0 || channel >= len(s.artwork) {
		s.mu.Unlock()
		return
	}
	ch := s.artwork[channel]
	if ch.source == "none" {
		s.mu.Unlock()
		return
	}
	ch.cleared = len(payload) == 0
	now := s.clock()
	s.mu.Unlock()

	ts := now + artworkLeadUs
	frame := protocol.EncodeFrame(protocol.BinaryRoleArtwork, channel, ts, payload)
	if err := s.sender.SendBinary(s.clientID, frame); err != nil {
		s.logger.Printf("stream %s/%s: artwork send failed: %v", s.groupID, s.clientID, err)
	}
}

func playerFormat(f audio.Format) protocol.PlayerFormat {
	var header string
	if len(f.CodecHeader) > 0 {
		header = base64.StdEncoding.EncodeToString(f.CodecHeader)
	}
	return protocol.PlayerFormat{
		Codec:       f.Codec,
		SampleRate:  f.SampleRate,
		Channels:    f.Channels,
		BitDepth:    f.BitDepth,
		CodecHeader: header,
	}
}

func frameMicros(samples int64, channels, sampleRate int) int64 {
	if channels == 0 || sampleRate == 0 {
		return 0
	}
	frames := samples / int64(channels)
	return frames * 1_000_000 / int64(sampleRate)
}

// leadTimeMicros caps the scheduler's lookahead so bytes_in_flight stays
// within bufferCapacity bytes.
func leadTimeMicros(bufferCapacity int, f audio.Format) int64 {
	bps := bytesPerSecond(f)
	if bps <= 0 {
		return int64(defaultLeadMs * 1000)
	}
	capped := int64(bufferCapacity) * 1_000_000 / int64(bps)
	maxLead := int64(defaultLeadMs * 1000)
	if capped < maxLead {
		return capped
	}
	return maxLead
}

func bytesPerSecond(f audio.Format) int {
	if f.Codec == "opus" {
		const opusBitrate = 64000 // nominal bits/sec per channel; the encoder sets no bitrate of its own
		return opusBitrate * f.Channels / 8
	}
	bytesPerSample := f.BitDepth / 8
	if bytesPerSample == 0 {
		bytesPerSample = 2
	}
	return f.SampleRate * f.Channels * bytesPerSample
}
