// ABOUTME: Tests for handshake helpers: format negotiation and codec preference
package server

import (
	"testing"

	"github.com/resonateaudio/resonate-core/internal/protocol"
)

func TestNegotiateFormat_PrefersOpusOverFlacOverPCM(t *testing.T) {
	formats := []protocol.AudioFormat{
		{Codec: "pcm", Channels: 2, SampleRate: 48000, BitDepth: 16},
		{Codec: "flac", Channels: 2, SampleRate: 48000, BitDepth: 24},
		{Codec: "opus", Channels: 2, SampleRate: 48000, BitDepth: 16},
	}
	got := negotiateFormat(formats)
	if got.Codec != "opus" {
		t.Errorf("expected opus to win, got %s", got.Codec)
	}
}

func TestNegotiateFormat_EmptyFallsBackToPCM(t *testing.T) {
	got := negotiateFormat(nil)
	if got.Codec != "pcm" || got.SampleRate != 48000 || got.Channels != 2 {
		t.Errorf("expected pcm/48000/2 fallback, got %+v", got)
	}
}

func TestNegotiateFormat_SingleFormatKept(t *testing.T) {
	formats := []protocol.AudioFormat{{Codec: "flac", Channels: 2, SampleRate: 44100, BitDepth: 24}}
	got := negotiateFormat(formats)
	if got.Codec != "flac" || got.SampleRate != 44100 {
		t.Errorf("expected flac/44100 kept, got %+v", got)
	}
}

func TestArtworkChannelConfigs_NilSupport(t *testing.T) {
	if got := artworkChannelConfigs(nil); got != nil {
		t.Errorf("expected nil for nil support, got %v", got)
	}
}

func TestArtworkChannelConfigs_CopiesChannels(t *testing.T) {
	support := &protocol.ArtworkSupport{Channels: []protocol.ArtworkChannel{
		{Source: "album", Format: "jpeg"},
		{Source: "none", Format: "jpeg"},
	}}
	got := artworkChannelConfigs(support)
	if len(got) != 2 || got[0].Source != "album" || got[1].Source != "none" {
		t.Errorf("unexpected artwork config copy: %+v", got)
	}
}

func TestAddrPort_ParsesColonPort(t *testing.T) {
	if got := addrPort(":8927"); got != 8927 {
		t.Errorf("expected 8927, got %d", got)
	}
}

func TestAddrPort_InvalidReturnsZero(t *testing.T) {
	if got := addrPort("not-an-addr"); got != 0 {
		t.Errorf("expected 0 for unparseable addr, got %d", got)
	}
}
