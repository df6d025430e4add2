// internal/orchestrator/errors.go
package orchestrator

import (
	"fmt"

	"github.com/xkilldash9x/voicepilot/api/schemas"
)

// CommandError explains why a command did not complete. Every kind is
// recoverable; the orchestrator is ready for the next command.
type CommandError struct {
	Kind    schemas.ErrorKind
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CommandError) Unwrap() error { return e.Err }

func commandError(kind schemas.ErrorKind, msg string, err error) *CommandError {
	return &CommandError{Kind: kind, Message: msg, Err: err}
}
