// Package mock provides a test double for the assess.Assessor interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/elocute/pkg/assess"
)

// AssessCall records a single invocation of Assessor.Assess.
type AssessCall struct {
	Transcript string
	Target     string
}

// Assessor is a mock implementation of assess.Assessor.
type Assessor struct {
	mu sync.Mutex

	// Result is returned by Assess when Err is nil.
	Result assess.Assessment

	// Err, if non-nil, is returned as the error from Assess.
	Err error

	// Calls records every call to Assess.
	Calls []AssessCall
}

// Assess records the call and returns Result, Err.
func (a *Assessor) Assess(ctx context.Context, transcript, target string) (assess.Assessment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls = append(a.Calls, AssessCall{Transcript: transcript, Target: target})
	if err := ctx.Err(); err != nil {
		return assess.Assessment{}, err
	}
	if a.Err != nil {
		return assess.Assessment{}, a.Err
	}
	return a.Result, nil
}

// CallCount returns the number of Assess calls. Thread-safe.
func (a *Assessor) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Calls)
}

var _ assess.Assessor = (*Assessor)(nil)
