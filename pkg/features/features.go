// Package features computes utterance-level acoustic features from a decoded
// [audio.Clip]: duration, pitch statistics, loudness, and a word-count prior.
//
// The clip is cut into non-overlapping analysis frames (25 ms by default).
// Each complete frame yields an RMS energy value and, when voiced, one pitch
// estimate. A trailing partial frame counts toward the duration but not
// toward pitch or volume.
//
// Extraction never fails: silent or very short input produces the documented
// fallback values, and [Features.PitchMeasured] tells callers whether the
// average pitch was measured or is the fallback.
package features

import (
	"math"
	"time"

	"github.com/MrWong99/elocute/pkg/audio"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Params holds the extractor's heuristic constants. [DefaultParams] returns
// the values the scoring model was calibrated against.
type Params struct {
	// FrameDuration is the analysis window length.
	FrameDuration time.Duration

	// MinPitchHz and MaxPitchHz bound the fundamental-frequency search.
	MinPitchHz float64
	MaxPitchHz float64

	// FallbackPitchHz is reported as the average pitch when no frame is voiced.
	FallbackPitchHz float64

	// PeakTolerance is the fraction below the strongest correlation peak that
	// an earlier (shorter-period) peak may fall and still be chosen. It keeps
	// the estimator from locking onto period multiples.
	PeakTolerance float64

	// MsPerWord is the speaking-rate prior used for the word-count estimate.
	MsPerWord float64

	// ClampVolume replaces a -Inf volume (digital silence) with VolumeFloorDB.
	ClampVolume   bool
	VolumeFloorDB float64
}

// DefaultParams returns 25 ms frames, an 80–800 Hz search range, a 150 Hz
// fallback, a 600 ms/word prior and an unclamped volume.
func DefaultParams() Params {
	return Params{
		FrameDuration:   25 * time.Millisecond,
		MinPitchHz:      80,
		MaxPitchHz:      800,
		FallbackPitchHz: 150,
		PeakTolerance:   0.1,
		MsPerWord:       600,
		VolumeFloorDB:   -100,
	}
}

// Features are the utterance-level measurements of one clip.
type Features struct {
	// DurationMs is the full clip length including any partial last frame.
	DurationMs float64

	// FrameLength is the number of samples per analysis frame.
	FrameLength int
	// FrameCount is the number of complete frames analysed.
	FrameCount int
	// VoicedFrames is the number of frames that yielded a pitch estimate.
	VoicedFrames int

	// AveragePitch is the mean voiced pitch in Hz, or the fallback when
	// PitchMeasured is false.
	AveragePitch  float64
	PitchMeasured bool
	// PitchRange is max-min voiced pitch in Hz; 0 with fewer than two voiced
	// frames.
	PitchRange float64

	// Volume is 20*log10 of the mean frame RMS, in dBFS. Digital silence
	// yields -Inf unless clamping is enabled.
	Volume float64

	// EstimatedWordCount is max(1, round(DurationMs/MsPerWord)).
	EstimatedWordCount int
}

// Extractor computes [Features]. It holds no mutable state and is safe for
// concurrent use.
type Extractor struct {
	params Params
}

// NewExtractor creates an Extractor. Zero-valued fields in p are replaced by
// their [DefaultParams] counterparts.
func NewExtractor(p Params) *Extractor {
	def := DefaultParams()
	if p.FrameDuration <= 0 {
		p.FrameDuration = def.FrameDuration
	}
	if p.MinPitchHz <= 0 {
		p.MinPitchHz = def.MinPitchHz
	}
	if p.MaxPitchHz <= 0 {
		p.MaxPitchHz = def.MaxPitchHz
	}
	if p.FallbackPitchHz <= 0 {
		p.FallbackPitchHz = def.FallbackPitchHz
	}
	if p.PeakTolerance <= 0 {
		p.PeakTolerance = def.PeakTolerance
	}
	if p.MsPerWord <= 0 {
		p.MsPerWord = def.MsPerWord
	}
	if p.VolumeFloorDB == 0 {
		p.VolumeFloorDB = def.VolumeFloorDB
	}
	return &Extractor{params: p}
}

// Params returns the effective parameters.
func (e *Extractor) Params() Params { return e.params }

// FrameLength returns round(sampleRate * FrameDuration).
func (e *Extractor) FrameLength(sampleRate int) int {
	return int(math.Round(float64(sampleRate) * e.params.FrameDuration.Seconds()))
}

// Extract measures clip. A nil or empty clip yields zero duration and the
// fallback values.
func (e *Extractor) Extract(clip *audio.Clip) Features {
	f := Features{
		DurationMs:   clip.DurationMs(),
		AveragePitch: e.params.FallbackPitchHz,
		Volume:       math.Inf(-1),
	}
	f.EstimatedWordCount = EstimateWordCount(f.DurationMs, e.params.MsPerWord)

	if clip == nil || clip.SampleRate <= 0 {
		f.Volume = e.volume(f.Volume)
		return f
	}

	frameLen := e.FrameLength(clip.SampleRate)
	f.FrameLength = frameLen
	if frameLen <= 0 {
		f.Volume = e.volume(f.Volume)
		return f
	}

	minLag, maxLag := LagBounds(clip.SampleRate, frameLen, e.params.MinPitchHz, e.params.MaxPitchHz)

	var (
		sumRMS  float64
		pitches []float64
	)
	for start := 0; start+frameLen <= len(clip.Samples); start += frameLen {
		frame := clip.Samples[start : start+frameLen]
		f.FrameCount++
		sumRMS += RMS(frame)
		if p, ok := FramePitch(frame, clip.SampleRate, minLag, maxLag, e.params.PeakTolerance); ok {
			pitches = append(pitches, p)
		}
	}

	if f.FrameCount > 0 {
		f.Volume = 20 * math.Log10(sumRMS/float64(f.FrameCount))
	}
	f.Volume = e.volume(f.Volume)

	f.VoicedFrames = len(pitches)
	if len(pitches) > 0 {
		f.AveragePitch = stat.Mean(pitches, nil)
		f.PitchMeasured = true
	}
	if len(pitches) >= 2 {
		f.PitchRange = floats.Max(pitches) - floats.Min(pitches)
	}
	return f
}

func (e *Extractor) volume(v float64) float64 {
	if e.params.ClampVolume && (math.IsInf(v, -1) || v < e.params.VolumeFloorDB) {
		return e.params.VolumeFloorDB
	}
	return v
}

// RMS returns sqrt(mean(x²)) of frame, or 0 for an empty frame.
func RMS(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(frame, frame) / float64(len(frame)))
}

// EstimateWordCount returns max(1, round(durationMs/msPerWord)).
func EstimateWordCount(durationMs, msPerWord float64) int {
	if msPerWord <= 0 {
		return 1
	}
	return max(1, int(math.Round(durationMs/msPerWord)))
}
