package assess

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Scores for aligned phonetic codes in the heuristic assessor.
const (
	matchScore      = 1.0
	substituteScore = 0.3
	missingScore    = 0.0
)

// editOptions weigh substitutions like a single edit so that a changed
// sound aligns as one substitution rather than a delete and insert.
var editOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: func(a, b rune) bool { return a == b },
}

// Heuristic assesses locally by aligning the Double Metaphone codes of the
// target and the transcript. Each code symbol of the target becomes one
// "phoneme" entry: 1 when the transcript has the same sound in the same
// place, 0.3 when a different sound replaced it and 0 when it is missing.
// An "overall" entry carries the Jaro-Winkler similarity of the spellings.
//
// Metaphone codes are a coarse consonant skeleton, so the scores are an
// estimate of audible closeness, not a phonetic transcription.
type Heuristic struct{}

var _ Assessor = Heuristic{}

// Assess implements Assessor.
func (Heuristic) Assess(ctx context.Context, transcript, target string) (Assessment, error) {
	if err := ctx.Err(); err != nil {
		return Assessment{}, err
	}
	heard, want := Normalize(transcript), Normalize(target)
	if heard == "" {
		return Assessment{}, ErrNoTranscript
	}
	if want == "" {
		return Assessment{}, fmt.Errorf("%w: empty target", ErrMalformed)
	}

	wantCode := []rune(phoneticCode(want))
	heardCode := []rune(phoneticCode(heard))

	out := Assessment{
		PhonemeAccuracy: map[string]float64{FallbackKey: Similarity(heard, want)},
	}
	if len(wantCode) == 0 {
		// Vowel-only words have no consonant skeleton to align.
		return out, nil
	}

	seen := map[rune]int{}
	key := func(r rune) string {
		seen[r]++
		k := strings.ToLower(string(r))
		if n := seen[r]; n > 1 {
			k = fmt.Sprintf("%s#%d", k, n)
		}
		return k
	}

	i, j := 0, 0
	for _, op := range levenshtein.EditScriptForStrings(wantCode, heardCode, editOptions) {
		switch op {
		case levenshtein.Match:
			out.PhonemeAccuracy[key(wantCode[i])] = matchScore
			i++
			j++
		case levenshtein.Sub:
			out.PhonemeAccuracy[key(wantCode[i])] = substituteScore
			out.Errors = append(out.Errors, fmt.Sprintf("Expected the %q sound but heard %q", soundName(wantCode[i]), soundName(heardCode[j])))
			i++
			j++
		case levenshtein.Del:
			out.PhonemeAccuracy[key(wantCode[i])] = missingScore
			out.Errors = append(out.Errors, fmt.Sprintf("The %q sound is missing", soundName(wantCode[i])))
			i++
		case levenshtein.Ins:
			out.Errors = append(out.Errors, fmt.Sprintf("An extra %q sound was heard", soundName(heardCode[j])))
			j++
		}
	}
	return out, nil
}

// phoneticCode concatenates the primary Double Metaphone code of each word.
func phoneticCode(s string) string {
	var b strings.Builder
	for _, w := range strings.Fields(s) {
		primary, _ := matchr.DoubleMetaphone(w)
		b.WriteString(primary)
	}
	return b.String()
}

// soundName renders a metaphone symbol. "0" is metaphone's code for "th".
func soundName(r rune) string {
	if r == '0' {
		return "th"
	}
	return strings.ToLower(string(r))
}

// Normalize lower-cases s, drops punctuation and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

// Similarity scores how close heard is to want in [0, 1]: the larger of the
// Jaro-Winkler similarity of the normalised spellings and that of their
// Double Metaphone codes, so that homophones ("sent"/"cent") score high.
func Similarity(heard, want string) float64 {
	heard, want = Normalize(heard), Normalize(want)
	if heard == "" || want == "" {
		return 0
	}
	if heard == want {
		return 1
	}
	score := matchr.JaroWinkler(heard, want, false)
	hc, wc := phoneticCode(heard), phoneticCode(want)
	if hc != "" && wc != "" {
		score = max(score, matchr.JaroWinkler(hc, wc, false))
	}
	return min(1, max(0, score))
}
