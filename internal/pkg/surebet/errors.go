package surebet

import (
	"errors"
	"fmt"
)

// Validation failures. They are always returned wrapped in *ValidationError.
var (
	ErrInvalidOddsCount = errors.New("at least 2 odds are required")
	ErrInvalidOdd       = errors.New("odd must be a finite number greater than 0")
	ErrInvalidStake     = errors.New("total stake must be a finite number greater than 0")
)

// ValidationError describes rejected input. Index is the offending outcome
// for ErrInvalidOdd and -1 otherwise.
type ValidationError struct {
	Err   error
	Index int
	Value float64
}

func (e *ValidationError) Error() string {
	switch e.Err {
	case ErrInvalidOddsCount:
		return fmt.Sprintf("%v: got %d", e.Err, int(e.Value))
	case ErrInvalidOdd:
		return fmt.Sprintf("outcome %d: %v: got %v", e.Index, e.Err, e.Value)
	default:
		return fmt.Sprintf("%v: got %v", e.Err, e.Value)
	}
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Kind returns a stable machine-readable name for the failure.
func (e *ValidationError) Kind() string {
	switch e.Err {
	case ErrInvalidOddsCount:
		return "invalid_odds_count"
	case ErrInvalidOdd:
		return "invalid_odd"
	case ErrInvalidStake:
		return "invalid_stake"
	default:
		return "invalid_input"
	}
}
