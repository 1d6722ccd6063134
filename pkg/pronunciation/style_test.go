package pronunciation_test

import (
	"testing"

	"github.com/MrWong99/elocute/pkg/pronunciation"
)

func TestWordsPerMinute(t *testing.T) {
	tests := []struct {
		words int
		ms    float64
		want  float64
	}{
		{1, 1000, 60},
		{5, 2000, 150},
		{3, 0, 0},
		{3, -5, 0},
	}
	for _, tt := range tests {
		if got := pronunciation.WordsPerMinute(tt.words, tt.ms); got != tt.want {
			t.Errorf("WordsPerMinute(%d, %v) = %v, want %v", tt.words, tt.ms, got, tt.want)
		}
	}
}

func TestClassifyRate(t *testing.T) {
	tun := pronunciation.DefaultTunables()
	tests := []struct {
		wpm  float64
		want pronunciation.SpeakingRate
	}{
		{0, pronunciation.RateSlow},
		{119.9, pronunciation.RateSlow},
		{120, pronunciation.RateNormal},
		{180, pronunciation.RateNormal},
		{180.1, pronunciation.RateFast},
	}
	for _, tt := range tests {
		if got := tun.ClassifyRate(tt.wpm); got != tt.want {
			t.Errorf("ClassifyRate(%v) = %q, want %q", tt.wpm, got, tt.want)
		}
	}
}

func TestStyleScores(t *testing.T) {
	tun := pronunciation.DefaultTunables()

	t.Run("clarity", func(t *testing.T) {
		tests := []struct {
			text  string
			words int
			want  float64
		}{
			{"", 1, 0.5},
			{"   ", 3, 0.5},
			{"cat", 0, 0.5},
			{"cat", 1, 0.6},
			{"elephant", 1, 1},
			{"the cat", 2, 0.7},
		}
		for _, tt := range tests {
			if got := tun.Clarity(tt.text, tt.words); !almostEqual(got, tt.want) {
				t.Errorf("Clarity(%q, %d) = %v, want %v", tt.text, tt.words, got, tt.want)
			}
		}
	})

	t.Run("fluency", func(t *testing.T) {
		tests := []struct{ wpm, want float64 }{
			{150, 1},
			{60, 0.5},
			{240, 0.5},
			{330, 0},
			{1000, 0},
		}
		for _, tt := range tests {
			if got := tun.Fluency(tt.wpm); !almostEqual(got, tt.want) {
				t.Errorf("Fluency(%v) = %v, want %v", tt.wpm, got, tt.want)
			}
		}
	})

	t.Run("intonation", func(t *testing.T) {
		tests := []struct{ hz, want float64 }{
			{0, 0},
			{25, 0.25},
			{100, 1},
			{400, 1},
		}
		for _, tt := range tests {
			if got := tun.Intonation(tt.hz); !almostEqual(got, tt.want) {
				t.Errorf("Intonation(%v) = %v, want %v", tt.hz, got, tt.want)
			}
		}
	})
}

func TestAnalyzeStyle(t *testing.T) {
	s := pronunciation.DefaultTunables().AnalyzeStyle("hello world", 2, 800, 50)
	if !almostEqual(s.WordsPerMinute, 150) || s.SpeakingRate != pronunciation.RateNormal {
		t.Errorf("rate = %v %q", s.WordsPerMinute, s.SpeakingRate)
	}
	if !almostEqual(s.Clarity, 1) || !almostEqual(s.Fluency, 1) || !almostEqual(s.Intonation, 0.5) {
		t.Errorf("style = %+v", s)
	}
}
