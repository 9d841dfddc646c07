package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of an export run.
type ErrorKind string

const (
	KindTransientFetch  ErrorKind = "transient_fetch"
	KindSyncUnsupported ErrorKind = "sync_unsupported"
	KindCursorPersist   ErrorKind = "cursor_persist"
	KindSinkWrite       ErrorKind = "sink_write"
	KindNormalization   ErrorKind = "normalization"
)

// Risk tells an operator what a failure puts at stake.
type Risk string

const (
	// RiskNone: the condition is handled inside the run.
	RiskNone Risk = "none"
	// RiskWastedWork: a rerun will re-fetch data that was already processed.
	RiskWastedWork Risk = "wasted_work"
	// RiskDataLoss: records of this run were not exported; the cursor was
	// left untouched so a rerun picks them up again, but nothing else will.
	RiskDataLoss Risk = "data_loss"
)

var (
	// ErrSyncUnsupported is reported by a provider when the item has no
	// incremental sync state (or the cursor it was given is unusable).
	ErrSyncUnsupported = errors.New("incremental sync unsupported for item")

	// ErrMutationDuringPagination is reported by a provider when the change
	// stream moved while a drain was paging through it.
	ErrMutationDuringPagination = errors.New("change stream mutated during pagination")
)

// RunError is the typed failure surfaced by the export core.
type RunError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Risk reports which invariant is at risk for this kind of failure.
func (e *RunError) Risk() Risk {
	return e.Kind.Risk()
}

// Risk maps a failure kind to its operator-facing risk.
func (k ErrorKind) Risk() Risk {
	switch k {
	case KindSinkWrite, KindNormalization:
		return RiskDataLoss
	case KindTransientFetch, KindCursorPersist:
		return RiskWastedWork
	}
	return RiskNone
}

// Retryable reports whether simply running again is the right response.
func (k ErrorKind) Retryable() bool {
	return k == KindTransientFetch || k == KindCursorPersist
}

// NewRunError wraps err as a RunError of the given kind. An err that already
// is a RunError is returned unchanged so the innermost classification wins.
func NewRunError(kind ErrorKind, op string, err error) error {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return err
	}
	return &RunError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the RunError in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Kind
	}
	return ""
}
