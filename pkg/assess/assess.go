// Package assess estimates per-phoneme pronunciation accuracy for a
// recognised utterance against its target word.
//
// An [Assessor] is the collaborator contract. Two implementations ship with
// the package: [LLMAssessor], which asks a language model to grade the
// attempt, and [Heuristic], a local phonetic comparison that needs no
// network. [WithFallback] chains assessors, and [Run] turns any assessor's
// outcome into a tagged [Result] so that callers never handle a nil map or a
// half-filled payload.
package assess

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Degraded-result constants. The fallback is a single synthetic phoneme
// entry so that downstream means stay well defined.
const (
	FallbackKey      = "overall"
	FallbackAccuracy = 0.7
	UnavailableNote  = "Analysis unavailable"
)

// Sentinel errors.
var (
	// ErrNoTranscript is returned when there is nothing to assess.
	ErrNoTranscript = errors.New("assess: empty transcript")

	// ErrMalformed is returned when a collaborator answer cannot be turned
	// into a usable Assessment.
	ErrMalformed = errors.New("assess: malformed assessment")
)

// Assessment is the collaborator payload: a phoneme→accuracy map with values
// in [0, 1] and free-form error descriptions.
type Assessment struct {
	PhonemeAccuracy map[string]float64 `json:"phoneme_accuracy"`
	Errors          []string           `json:"errors"`
}

// MeanAccuracy returns the arithmetic mean of the map values, or
// FallbackAccuracy for an empty map.
func (a Assessment) MeanAccuracy() float64 {
	if len(a.PhonemeAccuracy) == 0 {
		return FallbackAccuracy
	}
	var sum float64
	for _, v := range a.PhonemeAccuracy {
		sum += v
	}
	return sum / float64(len(a.PhonemeAccuracy))
}

// validate clamps values into [0, 1] and rejects empty or non-finite maps.
func (a Assessment) validate() (Assessment, error) {
	if len(a.PhonemeAccuracy) == 0 {
		return Assessment{}, fmt.Errorf("%w: no phoneme scores", ErrMalformed)
	}
	out := Assessment{
		PhonemeAccuracy: make(map[string]float64, len(a.PhonemeAccuracy)),
		Errors:          append([]string(nil), a.Errors...),
	}
	for k, v := range a.PhonemeAccuracy {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Assessment{}, fmt.Errorf("%w: score for %q is not finite", ErrMalformed, k)
		}
		out.PhonemeAccuracy[k] = min(1, max(0, v))
	}
	return out, nil
}

// Fallback returns the degraded assessment: {"overall": 0.7} and the
// "Analysis unavailable" note.
func Fallback() Assessment {
	return Assessment{
		PhonemeAccuracy: map[string]float64{FallbackKey: FallbackAccuracy},
		Errors:          []string{UnavailableNote},
	}
}

// Assessor grades transcript against target.
type Assessor interface {
	// Assess returns a validated assessment or an error. Implementations must
	// honour ctx cancellation.
	Assess(ctx context.Context, transcript, target string) (Assessment, error)
}

// Outcome tags a [Result].
type Outcome int

const (
	// OutcomeOK means the assessment came from a collaborator.
	OutcomeOK Outcome = iota
	// OutcomeFailure means the collaborator failed and the result carries
	// the fallback assessment.
	OutcomeFailure
)

// String returns "ok" or "failure".
func (o Outcome) String() string {
	if o == OutcomeOK {
		return "ok"
	}
	return "failure"
}

// Result is the tagged outcome of one assessment attempt. Assessment is
// always populated: with collaborator data on OutcomeOK and with
// [Fallback] on OutcomeFailure.
type Result struct {
	Outcome    Outcome
	Assessment Assessment
	// Reason describes the failure. Empty on OutcomeOK.
	Reason string
}

// Ok wraps a successful assessment.
func Ok(a Assessment) Result {
	return Result{Outcome: OutcomeOK, Assessment: a}
}

// Failure returns a failed result carrying the fallback assessment.
func Failure(reason string) Result {
	return Result{Outcome: OutcomeFailure, Assessment: Fallback(), Reason: reason}
}

// Degraded reports whether r carries the fallback assessment.
func (r Result) Degraded() bool { return r.Outcome == OutcomeFailure }

// Run calls a and maps any error, or a payload that fails validation, to a
// [Failure]. A nil assessor yields a Failure as well.
func Run(ctx context.Context, a Assessor, transcript, target string) Result {
	if a == nil {
		return Failure("no assessor configured")
	}
	got, err := a.Assess(ctx, transcript, target)
	if err != nil {
		return Failure(err.Error())
	}
	valid, err := got.validate()
	if err != nil {
		return Failure(err.Error())
	}
	return Ok(valid)
}

// chain tries assessors in order.
type chain []Assessor

// WithFallback returns an Assessor that tries primary first and each
// fallback in turn until one succeeds. Errors are joined when all fail.
func WithFallback(primary Assessor, fallbacks ...Assessor) Assessor {
	return append(chain{primary}, fallbacks...)
}

func (c chain) Assess(ctx context.Context, transcript, target string) (Assessment, error) {
	var errs []error
	for _, a := range c {
		if err := ctx.Err(); err != nil {
			return Assessment{}, errors.Join(append(errs, err)...)
		}
		got, err := a.Assess(ctx, transcript, target)
		if err == nil {
			if got, err = got.validate(); err == nil {
				return got, nil
			}
		}
		errs = append(errs, err)
	}
	return Assessment{}, errors.Join(errs...)
}
