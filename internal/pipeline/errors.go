package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Stage identifies which part of the pipeline an error came from. The
// stage decides how a failure is reported and whether storage problems
// may degrade gracefully instead of failing the job.
type Stage string

const (
	StageAcquisition Stage = "acquisition"
	StageSynthesis   Stage = "synthesis"
	StageComposition Stage = "composition"
	StageStorage     Stage = "storage"
)

// StageError wraps an upstream failure with its pipeline stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func acquisitionError(format string, args ...interface{}) error {
	return &StageError{Stage: StageAcquisition, Err: fmt.Errorf(format, args...)}
}

func synthesisError(format string, args ...interface{}) error {
	return &StageError{Stage: StageSynthesis, Err: fmt.Errorf(format, args...)}
}

func compositionError(format string, args ...interface{}) error {
	return &StageError{Stage: StageComposition, Err: fmt.Errorf(format, args...)}
}

// Translate maps raw upstream error text onto a stable, user-facing
// message. Raw messages from HTTP clients and subprocesses leak hosts
// and internal paths, so only recognized categories pass through with
// detail.
func Translate(err error) string {
	if err == nil {
		return ""
	}

	var stageErr *StageError
	stage := "generation"
	if errors.As(err, &stageErr) {
		switch stageErr.Stage {
		case StageAcquisition:
			stage = "asset acquisition"
		case StageSynthesis:
			stage = "narration synthesis"
		case StageComposition:
			stage = "video composition"
		case StageStorage:
			stage = "storage"
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context canceled"):
		return "Job was cancelled"
	case strings.Contains(msg, "status 429") || strings.Contains(msg, "rate limit"):
		return fmt.Sprintf("A service used during %s is rate limiting requests; try again shortly", stage)
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout"):
		return fmt.Sprintf("A service used during %s timed out", stage)
	case strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "connection reset"):
		return fmt.Sprintf("Could not reach a service needed for %s", stage)
	}

	return fmt.Sprintf("%s failed: %v", stage, err)
}
