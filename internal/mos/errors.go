package mos

import (
	"errors"
	"fmt"
)

// ErrTrainingDataEmpty means no usable paired rows were available. The
// training run aborts and the previously published bundle stays active.
var ErrTrainingDataEmpty = errors.New("no usable training rows")

// ErrSchemaMismatch means a bundle was trained against a different
// feature schema version than this binary produces.
var ErrSchemaMismatch = errors.New("feature schema version mismatch")

// FitError reports that a single estimator failed to fit. Any FitError
// aborts the whole training run: a bundle with some targets missing is
// never published.
type FitError struct {
	Target string
	Err    error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("fit %s: %v", e.Target, e.Err)
}

func (e *FitError) Unwrap() error { return e.Err }
