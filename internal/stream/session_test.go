// ABOUTME: Unit tests for StreamSession: format switching, artwork channels, lead-time capping
package stream

import (
	"log"
	"sync"
	"testing"

	"github.com/resonateaudio/resonate-core/internal/audio"
	"github.com/resonateaudio/resonate-core/internal/protocol"
)

type fakeSender struct {
	mu     sync.Mutex
	texts  []sentText
	binary [][]byte
}

type sentText struct {
	clientID string
	msgType  string
	payload  interface{}
}

func (f *fakeSender) SendText(clientID, msgType string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sentText{clientID, msgType, payload})
	return nil
}

func (f *fakeSender) SendBinary(clientID string, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binary = append(f.binary, frame)
	return nil
}

func (f *fakeSender) countType(msgType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.texts {
		if t.msgType == msgType {
			n++
		}
	}
	return n
}

func testLogger() *log.Logger { return log.New(discardWriter{}, "", 0) }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func pcmFormat() audio.Format {
	return audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16}
}

func newTestSession(clock ClockFunc) (*Session, *fakeSender) {
	sender := &fakeSender{}
	sess := newSession("g1", "c1", pcmFormat(), 262144, nil, sender, clock, testLogger())
	return sess, sender
}

func TestSession_SendStartAndEnd(t *testing.T) {
	now := int64(0)
	sess, sender := newTestSession(func() int64 { return now })

	sess.sendStart()
	if sender.countType(protocol.TypeStreamStart) != 1 {
		t.Fatalf("expected one stream/start, got %d", sender.countType(protocol.TypeStreamStart))
	}

	sess.sendEnd()
	if sender.countType(protocol.TypeStreamEnd) != 1 {
		t.Fatalf("expected one stream/end, got %d", sender.countType(protocol.TypeStreamEnd))
	}
	sess.close()
}

func TestSession_RequestFormat_SuppressesNoOpUpdate(t *testing.T) {
	now := int64(0)
	sess, sender := newTestSession(func() int64 { return now })

	sess.requestFormat(pcmFormat()) // identical format
	if n := sender.countType(protocol.TypeStreamUpdate); n != 0 {
		t.Fatalf("expected no stream/update for a no-op format request, got %d", n)
	}
}

func TestSession_RequestFormat_EmitsDeltaAndSchedulesSwitch(t *testing.T) {
	now := int64(0)
	sess, sender := newTestSession(func() int64 { return now })

	sess.requestFormat(audio.Format{Codec: "opus", SampleRate: 48000})
	if n := sender.countType(protocol.TypeStreamUpdate); n != 1 {
		t.Fatalf("expected one stream/update, got %d", n)
	}

	sess.mu.Lock()
	fNext := sess.fNext
	switchAt := sess.switchAt
	sess.mu.Unlock()

	if fNext == nil {
		t.Fatal("expected fNext to be recorded after a format request")
	}
	if fNext.Codec != "opus" {
		t.Errorf("fNext.Codec = %q, want opus", fNext.Codec)
	}
	if fNext.Channels != pcmFormat().Channels {
		t.Errorf("fNext.Channels = %d, want merge to retain prior value %d", fNext.Channels, pcmFormat().Channels)
	}
	if switchAt <= now {
		t.Errorf("switchAt = %d, want > now (%d)", switchAt, now)
	}
}

func TestSession_HandleChunk_DropsLateFrames(t *testing.T) {
	// basis is captured at construction time (clock() == 0) plus this
	// session's lead-time cap; calling handleChunk with "now" far past that
	// puts the chunk's present time well behind now, so it is late.
	now := int64(10_000_000)
	sess, sender := newTestSession(func() int64 { return 0 })
	samples := make([]int32, 960) // 10ms stereo @ 48kHz
	sess.handleChunk(samples, 48000, 2, now)

	if len(sender.binary) != 0 {
		t.Fatalf("expected the first (far-past) frame to be dropped, got %d binary sends", len(sender.binary))
	}
}

func TestSession_HandleChunk_SendsInWindowFrame(t *testing.T) {
	var now int64
	sess, sender := newTestSession(func() int64 { return now })
	samples := make([]int32, 1920) // 20ms stereo @ 48kHz

	sess.handleChunk(samples, 48000, 2, now)

	if len(sender.binary) != 1 {
		t.Fatalf("expected exactly one binary frame, got %d", len(sender.binary))
	}
	frame, err := protocol.DecodeFrame(sender.binary[0])
	if err != nil {
		t.Fatalf("DecodeFrame failed on sent frame: %v", err)
	}
	if frame.Role != protocol.BinaryRolePlayer || frame.Slot != 0 {
		t.Errorf("role/slot = %v/%d, want Player/0", frame.Role, frame.Slot)
	}
}

func TestSession_HandleChunk_TinyBufferNeverSends(t *testing.T) {
	var now int64
	// A buffer_capacity of 1 byte forces a lead time far below min_jitter, so
	// no presentation time can ever satisfy both the late check and the
	// lead-time cap at once; the chunk is held back rather than sent.
	sender := &fakeSender{}
	sess := newSession("g1", "c1", pcmFormat(), 1, nil, sender, func() int64 { return now }, testLogger())

	samples := make([]int32, 1920)
	sess.handleChunk(samples, 48000, 2, now)

	if len(sender.binary) != 0 {
		t.Fatalf("expected frame to be held back with buffer_capacity=1, got %d sends", len(sender.binary))
	}
}

func TestSession_PublishArtwork_InertWhenSourceNone(t *testing.T) {
	var now int64
	sender := &fakeSender{}
	sess := newSession("g1", "c1", pcmFormat(), 262144, []ArtworkChannelConfig{
		{Source: "none", Format: "jpeg"},
	}, sender, func() int64 { return now }, testLogger())

	sess.publishArtwork(0, []byte{0xAA, 0xBB})
	if len(sender.binary) != 0 {
		t.Fatalf("expected no frame for a 'none' source artwork channel, got %d", len(sender.binary))
	}
}

func TestSession_PublishArtwork_SetAndClear(t *testing.T) {
	var now int64
	sender := &fakeSender{}
	sess := newSession("g1", "c1", pcmFormat(), 262144, []ArtworkChannelConfig{
		{Source: "album", Format: "jpeg"},
	}, sender, func() int64 { return now }, testLogger())

	sess.publishArtwork(0, []byte{0xAA, 0xBB})
	if len(sender.binary) != 1 {
		t.Fatalf("expected one frame after setting artwork, got %d", len(sender.binary))
	}

	sess.publishArtwork(0, nil)
	if len(sender.binary) != 2 {
		t.Fatalf("expected a second frame after clearing artwork, got %d", len(sender.binary))
	}
	frame, err := protocol.DecodeFrame(sender.binary[1])
	if err != nil {
		t.Fatalf("failed to decode clear frame: %v", err)
	}
	if len(frame.Payload) != 0 {
		t.Errorf("expected empty payload on clear, got %d bytes", len(frame.Payload))
	}
}

func TestSession_PublishArtwork_OutOfRangeChannelIgnored(t *testing.T) {
	var now int64
	sender := &fakeSender{}
	sess := newSession("g1", "c1", pcmFormat(), 262144, nil, sender, func() int64 { return now }, testLogger())

	sess.publishArtwork(5, []byte{1})
	if len(sender.binary) != 0 {
		t.Fatalf("expected no frame for an out-of-range artwork channel, got %d", len(sender.binary))
	}
}

// TestSession_CommitSwitch_ContinuesPresentationTime checks the no
// gap/overlap invariant: the format switch must hand off at exactly the
// outgoing format's next unproduced sample, not restart from the wall clock.
func TestSession_CommitSwitch_ContinuesPresentationTime(t *testing.T) {
	var now int64
	sess, _ := newTestSession(func() int64 { return now })

	sess.mu.Lock()
	sess.samplesProduced = 9600 // 100ms of stereo @ 48kHz already produced
	lastPresent := sess.basis + frameMicros(sess.samplesProduced, sess.fNow.Channels, sess.fNow.SampleRate)
	sess.fNext = &audio.Format{Codec: "opus", SampleRate: 48000, Channels: 2, BitDepth: 16}
	sess.commitSwitchLocked()
	gotBasis := sess.basis
	gotSamplesProduced := sess.samplesProduced
	sess.mu.Unlock()

	if gotBasis != lastPresent {
		t.Errorf("post-switch basis = %d, want %d (outgoing format's next unproduced sample time)", gotBasis, lastPresent)
	}
	if gotSamplesProduced != 0 {
		t.Errorf("post-switch samplesProduced = %d, want 0", gotSamplesProduced)
	}
}

func TestBytesPerSecond_OpusVsPCM(t *testing.T) {
	pcm := bytesPerSecond(audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16})
	if pcm != 48000*2*2 {
		t.Errorf("pcm bytesPerSecond = %d, want %d", pcm, 48000*2*2)
	}
	opus := bytesPerSecond(audio.Format{Codec: "opus", Channels: 2})
	if opus <= 0 {
		t.Errorf("opus bytesPerSecond = %d, want > 0", opus)
	}
}

func TestFrameMicros_ZeroGuards(t *testing.T) {
	if got := frameMicros(100, 0, 48000); got != 0 {
		t.Errorf("frameMicros with 0 channels = %d, want 0", got)
	}
	if got := frameMicros(100, 2, 0); got != 0 {
		t.Errorf("frameMicros with 0 sampleRate = %d, want 0", got)
	}
}
