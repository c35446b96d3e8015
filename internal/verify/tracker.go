package verify

import (
	"context"
	"sync"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
)

// State is the verification status of one answer as shown to a user.
type State string

const (
	StateNotVerified State = "not_verified"
	StateVerifying   State = "verifying"
	StateVerified    State = "verified"
	StateIssuesFound State = "issues_found"
)

// Tracker holds the verification state of one answer. A failed run returns
// to StateNotVerified and keeps the error; it never reports an empty result.
type Tracker struct {
	mu     sync.Mutex
	state  State
	result *Result
	err    error
}

// NewTracker returns a tracker in StateNotVerified.
func NewTracker() *Tracker {
	return &Tracker{state: StateNotVerified}
}

// Run verifies in with eng and records the outcome.
func (t *Tracker) Run(ctx context.Context, eng *Engine, in Input) (*Result, error) {
	t.mu.Lock()
	t.state = StateVerifying
	t.result = nil
	t.err = nil
	t.mu.Unlock()

	res, err := eng.Verify(ctx, in)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.state = StateNotVerified
		t.err = err
		return nil, err
	}
	t.result = res.Clone()
	t.state = res.State()
	return res, nil
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Result returns a copy of the last successful result, or nil. Overrides
// made after the call do not show through it.
func (t *Tracker) Result() *Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result.Clone()
}

// Err returns the error of the last failed run.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Override acknowledges one issue of the current result. The state does not
// change: an overridden issue is still an issue.
func (t *Tracker) Override(issueID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.result == nil {
		return trialerrors.New(trialerrors.ErrCodeIssueNotFound, "nothing has been verified yet", nil)
	}
	return t.result.Override(issueID)
}
