package assess_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/elocute/pkg/assess"
	"github.com/MrWong99/elocute/pkg/assess/mock"
)

func TestFallback(t *testing.T) {
	fb := assess.Fallback()
	if len(fb.PhonemeAccuracy) != 1 || fb.PhonemeAccuracy["overall"] != 0.7 {
		t.Errorf("PhonemeAccuracy = %v, want {overall: 0.7}", fb.PhonemeAccuracy)
	}
	if len(fb.Errors) != 1 || fb.Errors[0] != "Analysis unavailable" {
		t.Errorf("Errors = %v", fb.Errors)
	}
	// Each call returns an independent map.
	fb.PhonemeAccuracy["overall"] = 0
	if assess.Fallback().PhonemeAccuracy["overall"] != 0.7 {
		t.Error("Fallback shares state between calls")
	}
}

func TestMeanAccuracy(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]float64
		want float64
	}{
		{"empty uses fallback", nil, 0.7},
		{"single", map[string]float64{"overall": 0.9}, 0.9},
		{"mean", map[string]float64{"k": 1, "t": 0.5}, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := assess.Assessment{PhonemeAccuracy: tt.in}.MeanAccuracy()
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("MeanAccuracy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		a := &mock.Assessor{Result: assess.Assessment{PhonemeAccuracy: map[string]float64{"k": 1.2, "t": -0.1}}}
		r := assess.Run(ctx, a, "cat", "cat")
		if r.Outcome != assess.OutcomeOK || r.Degraded() {
			t.Fatalf("Outcome = %v, want ok", r.Outcome)
		}
		if r.Assessment.PhonemeAccuracy["k"] != 1 || r.Assessment.PhonemeAccuracy["t"] != 0 {
			t.Errorf("scores not clamped: %v", r.Assessment.PhonemeAccuracy)
		}
		if a.Calls[0].Target != "cat" {
			t.Errorf("target not forwarded: %+v", a.Calls)
		}
	})

	t.Run("error becomes fallback", func(t *testing.T) {
		r := assess.Run(ctx, &mock.Assessor{Err: errors.New("timeout")}, "cat", "cat")
		if !r.Degraded() || r.Reason != "timeout" {
			t.Fatalf("result = %+v", r)
		}
		if r.Assessment.PhonemeAccuracy["overall"] != 0.7 {
			t.Errorf("fallback not applied: %v", r.Assessment.PhonemeAccuracy)
		}
	})

	t.Run("empty payload becomes fallback", func(t *testing.T) {
		r := assess.Run(ctx, &mock.Assessor{}, "cat", "cat")
		if !r.Degraded() {
			t.Fatal("expected failure for empty phoneme map")
		}
	})

	t.Run("non-finite payload becomes fallback", func(t *testing.T) {
		a := &mock.Assessor{Result: assess.Assessment{PhonemeAccuracy: map[string]float64{"k": math.NaN()}}}
		if r := assess.Run(ctx, a, "cat", "cat"); !r.Degraded() {
			t.Fatal("expected failure for NaN score")
		}
	})

	t.Run("nil assessor", func(t *testing.T) {
		if r := assess.Run(ctx, nil, "cat", "cat"); !r.Degraded() {
			t.Fatal("expected failure for nil assessor")
		}
	})
}

func TestOutcome_String(t *testing.T) {
	if assess.OutcomeOK.String() != "ok" || assess.OutcomeFailure.String() != "failure" {
		t.Error("unexpected Outcome strings")
	}
}

func TestWithFallback(t *testing.T) {
	ctx := context.Background()
	good := &mock.Assessor{Result: assess.Assessment{PhonemeAccuracy: map[string]float64{"overall": 0.8}}}

	t.Run("primary wins", func(t *testing.T) {
		second := &mock.Assessor{Result: assess.Assessment{PhonemeAccuracy: map[string]float64{"overall": 0.1}}}
		got, err := assess.WithFallback(good, second).Assess(ctx, "cat", "cat")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.PhonemeAccuracy["overall"] != 0.8 || second.CallCount() != 0 {
			t.Errorf("got %v, second calls %d", got.PhonemeAccuracy, second.CallCount())
		}
	})

	t.Run("malformed primary falls through", func(t *testing.T) {
		got, err := assess.WithFallback(&mock.Assessor{}, good).Assess(ctx, "cat", "cat")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.PhonemeAccuracy["overall"] != 0.8 {
			t.Errorf("got %v", got.PhonemeAccuracy)
		}
	})

	t.Run("all fail", func(t *testing.T) {
		errA, errB := errors.New("a"), errors.New("b")
		_, err := assess.WithFallback(&mock.Assessor{Err: errA}, &mock.Assessor{Err: errB}).Assess(ctx, "cat", "cat")
		if !errors.Is(err, errA) || !errors.Is(err, errB) {
			t.Errorf("err = %v, want both errors joined", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := assess.WithFallback(good).Assess(cctx, "cat", "cat")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}
