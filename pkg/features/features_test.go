package features_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/elocute/pkg/audio"
	"github.com/MrWong99/elocute/pkg/features"
)

// sineClip returns a mono clip of a sine at freq Hz with amplitude amp.
func sineClip(freq, amp float64, rate int, dur time.Duration) *audio.Clip {
	n := int(float64(rate) * dur.Seconds())
	s := make([]float64, n)
	for i := range s {
		s[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return &audio.Clip{Samples: s, SampleRate: rate, Format: audio.FormatRaw}
}

func newExtractor() *features.Extractor {
	return features.NewExtractor(features.DefaultParams())
}

func TestExtract_SinePitchAccuracy(t *testing.T) {
	rates := []int{16000, 44100, 48000}
	freqs := []float64{80, 100, 150, 220, 330, 440, 600, 800}
	for _, rate := range rates {
		for _, f := range freqs {
			t.Run(fmt.Sprintf("%dHz@%d", int(f), rate), func(t *testing.T) {
				got := newExtractor().Extract(sineClip(f, 0.5, rate, time.Second))
				if !got.PitchMeasured {
					t.Fatal("PitchMeasured = false for a pure tone")
				}
				if rel := math.Abs(got.AveragePitch-f) / f; rel > 0.05 {
					t.Errorf("AveragePitch = %.2f, want %.0f ±5%% (off by %.1f%%)", got.AveragePitch, f, rel*100)
				}
			})
		}
	}
}

func TestExtract_DurationWithinOneFrame(t *testing.T) {
	e := newExtractor()
	clip := sineClip(200, 0.5, 16000, 1037*time.Millisecond)
	got := e.Extract(clip)

	frameMs := 25.0
	if math.Abs(got.DurationMs-1037) > frameMs {
		t.Errorf("DurationMs = %v, want 1037 ±%v", got.DurationMs, frameMs)
	}
	// 1037 ms holds 41 complete 25 ms frames; the partial frame is not analysed.
	if got.FrameCount != 41 {
		t.Errorf("FrameCount = %d, want 41", got.FrameCount)
	}
	if got.FrameLength != 400 {
		t.Errorf("FrameLength = %d, want 400", got.FrameLength)
	}
}

func TestExtract_PartialFrameExcludedFromVolume(t *testing.T) {
	// One full frame of silence followed by half a frame of loud signal.
	s := make([]float64, 600)
	for i := 400; i < 600; i++ {
		s[i] = 0.9
	}
	got := newExtractor().Extract(&audio.Clip{Samples: s, SampleRate: 16000})
	if got.FrameCount != 1 {
		t.Fatalf("FrameCount = %d, want 1", got.FrameCount)
	}
	if !math.IsInf(got.Volume, -1) {
		t.Errorf("Volume = %v, want -Inf (partial frame must not count)", got.Volume)
	}
	if got.DurationMs != 37.5 {
		t.Errorf("DurationMs = %v, want 37.5", got.DurationMs)
	}
}

func TestExtract_Silence(t *testing.T) {
	clip := &audio.Clip{Samples: make([]float64, 16000), SampleRate: 16000}
	got := newExtractor().Extract(clip)

	if got.PitchMeasured {
		t.Error("PitchMeasured = true for silence")
	}
	if got.AveragePitch != 150 {
		t.Errorf("AveragePitch = %v, want fallback 150", got.AveragePitch)
	}
	if got.PitchRange != 0 {
		t.Errorf("PitchRange = %v, want 0", got.PitchRange)
	}
	if !math.IsInf(got.Volume, -1) {
		t.Errorf("Volume = %v, want -Inf", got.Volume)
	}
	if got.VoicedFrames != 0 {
		t.Errorf("VoicedFrames = %d, want 0", got.VoicedFrames)
	}
}

func TestExtract_SilenceClampedVolume(t *testing.T) {
	p := features.DefaultParams()
	p.ClampVolume = true
	p.VolumeFloorDB = -90
	got := features.NewExtractor(p).Extract(&audio.Clip{Samples: make([]float64, 800), SampleRate: 16000})
	if got.Volume != -90 {
		t.Errorf("Volume = %v, want -90", got.Volume)
	}
}

func TestExtract_ShorterThanOneFrame(t *testing.T) {
	clip := sineClip(200, 0.5, 16000, 10*time.Millisecond)
	got := newExtractor().Extract(clip)
	if got.FrameCount != 0 {
		t.Errorf("FrameCount = %d, want 0", got.FrameCount)
	}
	if got.AveragePitch != 150 || got.PitchMeasured {
		t.Errorf("AveragePitch = %v (measured=%v), want fallback", got.AveragePitch, got.PitchMeasured)
	}
	if got.EstimatedWordCount != 1 {
		t.Errorf("EstimatedWordCount = %d, want 1", got.EstimatedWordCount)
	}
}

func TestExtract_NilClip(t *testing.T) {
	got := newExtractor().Extract(nil)
	if got.DurationMs != 0 || got.AveragePitch != 150 {
		t.Errorf("got %+v, want zero duration and fallback pitch", got)
	}
}

func TestExtract_Volume(t *testing.T) {
	got := newExtractor().Extract(sineClip(200, 0.5, 16000, time.Second))
	// RMS of a sine is amp/sqrt(2).
	want := 20 * math.Log10(0.5/math.Sqrt2)
	if math.Abs(got.Volume-want) > 0.1 {
		t.Errorf("Volume = %.3f dB, want %.3f dB", got.Volume, want)
	}
}

func TestExtract_PitchRange(t *testing.T) {
	low := sineClip(200, 0.5, 16000, 500*time.Millisecond)
	high := sineClip(400, 0.5, 16000, 500*time.Millisecond)
	clip := &audio.Clip{
		Samples:    append(append([]float64{}, low.Samples...), high.Samples...),
		SampleRate: 16000,
	}
	got := newExtractor().Extract(clip)
	if math.Abs(got.PitchRange-200) > 10 {
		t.Errorf("PitchRange = %v, want ~200", got.PitchRange)
	}
	if math.Abs(got.AveragePitch-300) > 15 {
		t.Errorf("AveragePitch = %v, want ~300", got.AveragePitch)
	}
}

func TestEstimateWordCount(t *testing.T) {
	tests := []struct {
		ms   float64
		want int
	}{
		{0, 1},
		{200, 1},
		{899, 1},
		{900, 2},
		{1800, 3},
		{6000, 10},
	}
	for _, tt := range tests {
		if got := features.EstimateWordCount(tt.ms, 600); got != tt.want {
			t.Errorf("EstimateWordCount(%v) = %d, want %d", tt.ms, got, tt.want)
		}
	}
}

func TestLagBounds(t *testing.T) {
	tests := []struct {
		rate, frameLen   int
		wantMin, wantMax int
	}{
		{16000, 400, 20, 200},
		{44100, 1103, 55, 551},
		{8000, 200, 10, 100},
	}
	for _, tt := range tests {
		gotMin, gotMax := features.LagBounds(tt.rate, tt.frameLen, 80, 800)
		if gotMin != tt.wantMin || gotMax != tt.wantMax {
			t.Errorf("LagBounds(%d, %d) = %d..%d, want %d..%d", tt.rate, tt.frameLen, gotMin, gotMax, tt.wantMin, tt.wantMax)
		}
	}
}

func TestFramePitch_Unvoiced(t *testing.T) {
	if _, ok := features.FramePitch(make([]float64, 400), 16000, 20, 200, 0.1); ok {
		t.Error("silent frame reported as voiced")
	}
}

func TestRMS(t *testing.T) {
	if got := features.RMS([]float64{3, -3, 3, -3}); got != 3 {
		t.Errorf("RMS = %v, want 3", got)
	}
	if got := features.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
}
