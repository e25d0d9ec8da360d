// ABOUTME: MP3 file audio source
// ABOUTME: Decodes a local MP3 file with go-mp3, looping at end of file
package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// MP3 reads interleaved int16 samples from an MP3 file via go-mp3 and widens
// them to this package's int32 sample range.
type MP3 struct {
	file       *os.File
	decoder    *mp3.Decoder
	sampleRate int
	title      string
}

// NewMP3 opens path as an MP3 source.
func NewMP3(path string) (*MP3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mp3 file: %w", err)
	}

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode mp3: %w", err)
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	log.Printf("loaded mp3: %s (%d Hz)", title, dec.SampleRate())

	return &MP3{file: f, decoder: dec, sampleRate: dec.SampleRate(), title: title}, nil
}

func (s *MP3) Read(samples []int32) (int, error) {
	buf := make([]byte, len(samples)*2)
	n, err := s.decoder.Read(buf)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("mp3 read: %w", err)
	}

	numSamples := n / 2
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(buf[i*2:]))
		samples[i] = int32(sample16) << 8
	}

	if err == io.EOF {
		if _, seekErr := s.file.Seek(0, 0); seekErr != nil {
			return numSamples, fmt.Errorf("seek to start: %w", seekErr)
		}
		newDecoder, decErr := mp3.NewDecoder(s.file)
		if decErr != nil {
			return numSamples, fmt.Errorf("recreate mp3 decoder: %w", decErr)
		}
		s.decoder = newDecoder
	}

	return numSamples, nil
}

func (s *MP3) SampleRate() int { return s.sampleRate }
func (s *MP3) Channels() int   { return 2 }
func (s *MP3) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *MP3) Close() error { return s.file.Close() }
