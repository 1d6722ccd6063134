package pronunciation_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/elocute/pkg/assess"
	"github.com/MrWong99/elocute/pkg/pronunciation"
)

func TestOverallScore_CatScenario(t *testing.T) {
	tun := pronunciation.DefaultTunables()
	score := tun.OverallScore(pronunciation.ScoreInputs{
		Confidence:      0.95,
		PhonemeAccuracy: assess.Assessment{PhonemeAccuracy: map[string]float64{"overall": 0.9}}.MeanAccuracy(),
		Clarity:         0.8,
		Fluency:         0.85,
	})
	if !almostEqual(score, 0.8925) {
		t.Errorf("OverallScore = %v, want 0.8925", score)
	}
	if got := tun.ClassifyMastery(score); got != pronunciation.MasteryPracticing {
		t.Errorf("mastery = %q, want practicing", got)
	}
	if got := tun.ClassifyDifficulty("cat"); got != pronunciation.DifficultyEasy {
		t.Errorf("difficulty = %q, want easy", got)
	}
}

func TestOverallScore_DeterministicAndClamped(t *testing.T) {
	tun := pronunciation.DefaultTunables()
	in := pronunciation.ScoreInputs{Confidence: 0.123, PhonemeAccuracy: 0.456, Clarity: 0.789, Fluency: 0.321}
	first := tun.OverallScore(in)
	for range 100 {
		if got := tun.OverallScore(in); got != first {
			t.Fatalf("OverallScore not deterministic: %v != %v", got, first)
		}
	}
	if got := tun.OverallScore(pronunciation.ScoreInputs{Confidence: 5, PhonemeAccuracy: 5, Clarity: 5, Fluency: 5}); got != 1 {
		t.Errorf("over-range inputs = %v, want 1", got)
	}
	if got := tun.OverallScore(pronunciation.ScoreInputs{Confidence: -1}); got != 0 {
		t.Errorf("negative inputs = %v, want 0", got)
	}
}

func TestClassifyDifficulty(t *testing.T) {
	tun := pronunciation.DefaultTunables()
	tests := []struct {
		word string
		want pronunciation.Difficulty
	}{
		{"a", pronunciation.DifficultyEasy},
		{"bird", pronunciation.DifficultyEasy},
		{" bird ", pronunciation.DifficultyEasy},
		{"apple", pronunciation.DifficultyMedium},
		{"elephant", pronunciation.DifficultyMedium},
		{"squirrels", pronunciation.DifficultyHard},
		{"über", pronunciation.DifficultyEasy},
	}
	for _, tt := range tests {
		if got := tun.ClassifyDifficulty(tt.word); got != tt.want {
			t.Errorf("ClassifyDifficulty(%q) = %q, want %q", tt.word, got, tt.want)
		}
	}
}

func TestClassifyMastery(t *testing.T) {
	tun := pronunciation.DefaultTunables()
	tests := []struct {
		score float64
		want  pronunciation.Mastery
	}{
		{0, pronunciation.MasteryLearning},
		{0.59, pronunciation.MasteryLearning},
		{0.6, pronunciation.MasteryPracticing},
		{0.8925, pronunciation.MasteryPracticing},
		{0.9, pronunciation.MasteryMastered},
		{1, pronunciation.MasteryMastered},
	}
	for _, tt := range tests {
		if got := tun.ClassifyMastery(tt.score); got != tt.want {
			t.Errorf("ClassifyMastery(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestSuggestions(t *testing.T) {
	tun := pronunciation.DefaultTunables()
	ok := assess.Ok(assess.Assessment{PhonemeAccuracy: map[string]float64{"k": 1}, Errors: []string{"minor"}})

	tests := []struct {
		name       string
		confidence float64
		rate       pronunciation.SpeakingRate
		intonation float64
		result     assess.Result
		want       []string
	}{
		{"all good", 0.9, pronunciation.RateNormal, 0.5, ok, []string{}},
		{"low confidence", 0.5, pronunciation.RateNormal, 0.5, ok, []string{pronunciation.SuggestSpeakClearly}},
		{"fast", 0.9, pronunciation.RateFast, 0.5, ok, []string{pronunciation.SuggestSlowDown}},
		{"slow", 0.9, pronunciation.RateSlow, 0.5, ok, []string{pronunciation.SuggestSpeedUp}},
		{"flat", 0.9, pronunciation.RateNormal, 0.1, ok, []string{pronunciation.SuggestVaryPitch}},
		{
			"everything", 0, pronunciation.RateFast, 0, assess.Failure("down"),
			[]string{pronunciation.SuggestSpeakClearly, pronunciation.SuggestSlowDown, pronunciation.SuggestVaryPitch, assess.UnavailableNote},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tun.Suggestions(tt.confidence, tt.rate, tt.intonation, tt.result)
			if got == nil {
				t.Fatal("Suggestions returned nil")
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Suggestions = %v, want %v", got, tt.want)
			}
		})
	}
}
