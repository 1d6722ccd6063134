package assess_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/elocute/pkg/assess"
)

func TestHeuristic_ExactMatch(t *testing.T) {
	got, err := assess.Heuristic{}.Assess(context.Background(), "Cat.", "cat")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	for k, v := range got.PhonemeAccuracy {
		if v != 1 {
			t.Errorf("PhonemeAccuracy[%s] = %v, want 1", k, v)
		}
	}
	if len(got.Errors) != 0 {
		t.Errorf("Errors = %v, want none", got.Errors)
	}
	if _, ok := got.PhonemeAccuracy["k"]; !ok {
		t.Errorf("missing k entry: %v", got.PhonemeAccuracy)
	}
}

func TestHeuristic_Substitution(t *testing.T) {
	got, err := assess.Heuristic{}.Assess(context.Background(), "bat", "cat")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if got.PhonemeAccuracy["k"] != 0.3 {
		t.Errorf("k = %v, want 0.3", got.PhonemeAccuracy["k"])
	}
	if got.PhonemeAccuracy["t"] != 1 {
		t.Errorf("t = %v, want 1", got.PhonemeAccuracy["t"])
	}
	if len(got.Errors) != 1 || !strings.Contains(got.Errors[0], `"k"`) {
		t.Errorf("Errors = %v", got.Errors)
	}
	if o := got.PhonemeAccuracy["overall"]; o <= 0 || o >= 1 {
		t.Errorf("overall = %v, want within (0,1)", o)
	}
}

func TestHeuristic_MissingSound(t *testing.T) {
	got, err := assess.Heuristic{}.Assess(context.Background(), "ca", "cat")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if got.PhonemeAccuracy["t"] != 0 {
		t.Errorf("t = %v, want 0", got.PhonemeAccuracy["t"])
	}
	if len(got.Errors) != 1 || !strings.Contains(got.Errors[0], "missing") {
		t.Errorf("Errors = %v", got.Errors)
	}
}

func TestHeuristic_EmptyTranscript(t *testing.T) {
	_, err := assess.Heuristic{}.Assess(context.Background(), "", "cat")
	if !errors.Is(err, assess.ErrNoTranscript) {
		t.Fatalf("err = %v, want ErrNoTranscript", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Hello, World!", "hello world"},
		{"  don't   stop ", "don't stop"},
		{"[BLANK_AUDIO]", "blank audio"},
		{"", ""},
		{"Straße", "straße"},
	}
	for _, tt := range tests {
		if got := assess.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if got := assess.Similarity("Cat!", "cat"); got != 1 {
		t.Errorf("identical = %v, want 1", got)
	}
	if got := assess.Similarity("sent", "cent"); got != 1 {
		t.Errorf("homophones = %v, want 1", got)
	}
	if got := assess.Similarity("", "cat"); got != 0 {
		t.Errorf("empty = %v, want 0", got)
	}
	near, far := assess.Similarity("cap", "cat"), assess.Similarity("elephant", "cat")
	if near <= far {
		t.Errorf("Similarity(cap) = %v should exceed Similarity(elephant) = %v", near, far)
	}
}
