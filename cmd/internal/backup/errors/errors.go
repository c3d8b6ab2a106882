package errors

import (
	"fmt"

	"github.com/metal-stack/backup-rotator/cmd/internal/retention"
)

// ArtifactOperationError indicates that a rotation action could not be applied to the artifact store
type ArtifactOperationError struct {
	Action retention.Action
	Err    error
}

func (e ArtifactOperationError) Error() string {
	return fmt.Sprintf("unable to %s: %v", e.Action, e.Err)
}

func (e ArtifactOperationError) Unwrap() error {
	return e.Err
}

// StepError indicates that a step of a backup run failed
type StepError struct {
	Step string
	Err  error
}

func (e StepError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e StepError) Unwrap() error {
	return e.Err
}
