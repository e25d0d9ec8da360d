// ABOUTME: Linear-interpolation resampler and a Source wrapper that applies it
// ABOUTME: Used when a stream format negotiates a different sample rate than the source file
package source

import "io"

// Resampler converts interleaved int32 PCM between sample rates by linear
// interpolation between adjacent input frames.
type Resampler struct {
	channels int
	ratio    float64
	position float64
}

// NewResampler creates a resampler converting inputRate to outputRate.
func NewResampler(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		channels: channels,
		ratio:    float64(inputRate) / float64(outputRate),
	}
}

// Resample fills output from input, returning the number of samples written.
// It retains fractional input position across calls so successive chunks
// interpolate smoothly.
func (r *Resampler) Resample(input, output []int32) int {
	if len(input) == 0 {
		return 0
	}

	inputFrames := len(input) / r.channels
	outputFrames := len(output) / r.channels
	outIdx := 0

	for outIdx < outputFrames {
		inputIdx := int(r.position)
		if inputIdx >= inputFrames-1 {
			break
		}
		frac := r.position - float64(inputIdx)

		for ch := 0; ch < r.channels; ch++ {
			s1 := input[inputIdx*r.channels+ch]
			s2 := input[(inputIdx+1)*r.channels+ch]
			output[outIdx*r.channels+ch] = int32(float64(s1)*(1.0-frac) + float64(s2)*frac)
		}

		outIdx++
		r.position += r.ratio
	}

	r.position -= float64(int(r.position))
	return outIdx * r.channels
}

// InputSamplesNeeded returns how many input samples are needed to produce
// outputSamples.
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	return int(float64(outputFrames)*r.ratio) * r.channels
}

// Reset clears accumulated fractional position.
func (r *Resampler) Reset() {
	r.position = 0
}

// Resampled wraps a Source, presenting its samples at a different rate.
type Resampled struct {
	source     Source
	resampler  *Resampler
	targetRate int
	inputBuf   []int32
}

// NewResampled wraps src, resampling its output to targetRate.
func NewResampled(src Source, targetRate int) *Resampled {
	channels := src.Channels()
	inputSamples := (src.SampleRate() * channels * 100) / 1000 // 100ms scratch buffer
	return &Resampled{
		source:     src,
		resampler:  NewResampler(src.SampleRate(), targetRate, channels),
		targetRate: targetRate,
		inputBuf:   make([]int32, inputSamples),
	}
}

func (r *Resampled) Read(samples []int32) (int, error) {
	needed := r.resampler.InputSamplesNeeded(len(samples))
	if needed > len(r.inputBuf) {
		needed = len(r.inputBuf)
	}

	n, err := r.source.Read(r.inputBuf[:needed])
	if err != nil && err != io.EOF {
		return 0, err
	}

	return r.resampler.Resample(r.inputBuf[:n], samples), nil
}

func (r *Resampled) SampleRate() int { return r.targetRate }
func (r *Resampled) Channels() int   { return r.source.Channels() }
func (r *Resampled) Metadata() (string, string, string) {
	return r.source.Metadata()
}
func (r *Resampled) Close() error { return r.source.Close() }
