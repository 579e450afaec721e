package agent

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the run loop.
var (
	// ErrNoModel indicates the configured model could not be resolved.
	ErrNoModel = errors.New("no model available")

	// ErrMaxIterations indicates the loop hit its iteration ceiling before
	// the model produced a final answer.
	ErrMaxIterations = errors.New("maximum iterations reached")

	// ErrRunFinished indicates an operation on a run that already completed.
	ErrRunFinished = errors.New("run already finished")

	// ErrCompactionFailed wraps summary-stream failures during compaction.
	ErrCompactionFailed = errors.New("compaction failed")
)

// RunPhase names the loop phase an error occurred in.
type RunPhase string

const (
	PhaseCompose    RunPhase = "compose"
	PhaseStream     RunPhase = "stream"
	PhaseTools      RunPhase = "tools"
	PhaseCompaction RunPhase = "compaction"
)

// RunError wraps a failure with the phase and iteration it occurred in.
type RunError struct {
	Phase     RunPhase
	Iteration int
	Cause     error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed in %s phase (iteration %d): %v", e.Phase, e.Iteration, e.Cause)
}

func (e *RunError) Unwrap() error { return e.Cause }

func newRunError(phase RunPhase, iteration int, cause error) *RunError {
	return &RunError{Phase: phase, Iteration: iteration, Cause: cause}
}
