// internal/vision/errors.go
package vision

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/voicepilot/api/schemas"
)

// ErrPlannerUnavailable matches every *PlannerError via errors.Is.
var ErrPlannerUnavailable = errors.New("vision planner unavailable")

// PlannerError reports that the vision collaborator could not be reached or
// refused the request. It is never retried by the planner.
type PlannerError struct {
	Op  string
	Err error
}

func (e *PlannerError) Error() string {
	return fmt.Sprintf("vision %s failed: %v", e.Op, e.Err)
}

func (e *PlannerError) Unwrap() error { return e.Err }

// Is lets callers test against ErrPlannerUnavailable.
func (e *PlannerError) Is(target error) bool { return target == ErrPlannerUnavailable }

// Kind returns the pipeline error kind.
func (e *PlannerError) Kind() schemas.ErrorKind { return schemas.ErrPlannerUnavailable }
