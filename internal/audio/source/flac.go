// ABOUTME: FLAC file audio source
// ABOUTME: Decodes a local FLAC file with mewkiz/flac, looping at end of file
package source

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/mewkiz/flac"
)

// FLAC reads samples from a FLAC file via mewkiz/flac's streaming frame
// parser and scales them into this package's 24-bit-range int32 samples.
type FLAC struct {
	file       *os.File
	stream     *flac.Stream
	sampleRate int
	channels   int
	bitDepth   int
	title      string
}

// NewFLAC opens path as a FLAC source.
func NewFLAC(path string) (*FLAC, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open flac file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode flac: %w", err)
	}

	info := stream.Info
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	log.Printf("loaded flac: %s (%d Hz, %d ch, %d bit)", title, info.SampleRate, info.NChannels, info.BitsPerSample)

	return &FLAC{
		file:       f,
		stream:     stream,
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		bitDepth:   int(info.BitsPerSample),
		title:      title,
	}, nil
}

func (s *FLAC) Read(samples []int32) (int, error) {
	samplesRead := 0

	for samplesRead < len(samples) {
		frame, err := s.stream.ParseNext()
		if err != nil {
			if err == io.EOF {
				if _, seekErr := s.file.Seek(0, 0); seekErr != nil {
					return samplesRead, fmt.Errorf("seek to start: %w", seekErr)
				}
				newStream, decErr := flac.New(s.file)
				if decErr != nil {
					return samplesRead, fmt.Errorf("recreate flac stream: %w", decErr)
				}
				s.stream = newStream
				continue
			}
			return samplesRead, err
		}

		for i := 0; i < int(frame.BlockSize) && samplesRead < len(samples); i++ {
			for ch := 0; ch < s.channels && samplesRead < len(samples); ch++ {
				sample := frame.Subframes[ch].Samples[i]

				switch {
				case s.bitDepth == 16:
					samples[samplesRead] = sample << 8
				case s.bitDepth == 24:
					samples[samplesRead] = sample
				case s.bitDepth > 24:
					samples[samplesRead] = sample >> uint(s.bitDepth-24)
				default:
					samples[samplesRead] = sample << uint(24-s.bitDepth)
				}
				samplesRead++
			}
		}
	}

	return samplesRead, nil
}

func (s *FLAC) SampleRate() int { return s.sampleRate }
func (s *FLAC) Channels() int   { return s.channels }
func (s *FLAC) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *FLAC) Close() error { return s.file.Close() }
