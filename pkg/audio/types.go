// Package audio turns uploaded recordings into analysable sample buffers.
//
// The central type is [Clip]: a mono, normalised utterance together with its
// sample rate. Clips are produced by a [Decoder], which sniffs the container
// (RIFF/WAVE, Ogg/Opus, or anything ffmpeg understands when a binary is
// configured) and applies an explicit [ChannelPolicy] to multichannel input.
//
// A Clip is immutable once decoded and may be shared freely between
// goroutines.
package audio

import (
	"math"
	"time"
)

// Container names reported in [Clip.Format] and [DecodeError.Format].
const (
	FormatWAV     = "wav"
	FormatOggOpus = "ogg/opus"
	FormatRaw     = "pcm_s16le"
	FormatFFmpeg  = "ffmpeg"
	FormatUnknown = "unknown"
)

// Clip is a decoded utterance: mono samples in [-1, 1] at SampleRate Hz.
type Clip struct {
	// Samples holds the mono signal. Multichannel sources have already been
	// reduced according to the decoder's ChannelPolicy.
	Samples []float64

	// SampleRate in Hz. Always positive for a successfully decoded clip.
	SampleRate int

	// SourceChannels is the channel count of the container before the
	// channel policy was applied. Zero when the decoder could not tell
	// (ffmpeg input).
	SourceChannels int

	// Format names the container the clip was decoded from.
	Format string
}

// Duration returns the total clip length, including any trailing samples
// that do not fill a complete analysis frame.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// DurationMs returns the clip length in (fractional) milliseconds.
func (c *Clip) DurationMs() float64 {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) * 1000 / float64(c.SampleRate)
}

// PCM16 returns the clip as 16-bit signed little-endian PCM, clamping samples
// outside [-1, 1].
func (c *Clip) PCM16() []byte {
	out := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		v := int16(math.Round(clampUnit(s) * math.MaxInt16))
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// Float32 returns the samples as float32, the representation whisper.cpp
// consumes.
func (c *Clip) Float32() []float32 {
	out := make([]float32, len(c.Samples))
	for i, s := range c.Samples {
		out[i] = float32(s)
	}
	return out
}

// WAV returns the clip wrapped in a 16-bit mono RIFF/WAVE container.
func (c *Clip) WAV() []byte {
	return EncodeWAV(c.PCM16(), c.SampleRate, 1)
}

// Resampled returns a copy of the clip at rate Hz. The receiver is returned
// unchanged when it already has that rate.
func (c *Clip) Resampled(rate int) *Clip {
	if rate <= 0 || rate == c.SampleRate {
		return c
	}
	return &Clip{
		Samples:        Resample(c.Samples, c.SampleRate, rate),
		SampleRate:     rate,
		SourceChannels: c.SourceChannels,
		Format:         c.Format,
	}
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
