package evaluation

import (
	"errors"
	"fmt"
)

var ErrUnknownEvaluator = errors.New("unknown evaluator")

// EvaluatorFailure is returned by an evaluator whose gateway or tool loop
// failed. The orchestrator converts it into an error analysis.
type EvaluatorFailure struct {
	Agent string
	Err   error
}

func (e *EvaluatorFailure) Error() string {
	return fmt.Sprintf("evaluator %s: %v", e.Agent, e.Err)
}

func (e *EvaluatorFailure) Unwrap() error { return e.Err }

// SynthesisFailure fails the whole evaluation.
type SynthesisFailure struct {
	Err error
}

func (e *SynthesisFailure) Error() string {
	return fmt.Sprintf("synthesis: %v", e.Err)
}

func (e *SynthesisFailure) Unwrap() error { return e.Err }
