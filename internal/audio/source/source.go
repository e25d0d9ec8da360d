// ABOUTME: Audio source abstraction feeding the Stream Scheduler
// ABOUTME: Supports a generated test tone and local MP3/FLAC files
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Source provides interleaved int32 PCM samples for the Stream Scheduler to
// encode and fan out to a group's members.
type Source interface {
	// Read fills samples with interleaved PCM and returns the count filled.
	Read(samples []int32) (int, error)
	SampleRate() int
	Channels() int
	// Metadata returns title, artist, album for server/state.metadata.
	Metadata() (title, artist, album string)
	Close() error
}

// New opens an audio source for path. An empty path returns the test tone
// generator, matching the reference server's default when no file is given.
func New(path string) (Source, error) {
	if path == "" {
		return NewTestTone(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return NewMP3(path)
	case ".flac":
		return NewFLAC(path)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac)", path)
	}
}
