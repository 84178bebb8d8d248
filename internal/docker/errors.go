package docker

import (
	"errors"
	"fmt"
)

var (
	// ErrContainerNotFound reports that a container reference no longer
	// resolves. Distinct from a transport failure.
	ErrContainerNotFound = errors.New("container not found")

	// ErrStartupFailure reports that a container started but never became
	// ready. The container has already been stopped and removed when this
	// is returned.
	ErrStartupFailure = errors.New("container failed to become ready")
)

// ExecError is a transport failure while running a command inside a
// container. A non-zero exit code of the command itself is not an ExecError;
// it is reported alongside the output.
type ExecError struct {
	Op  string
	Err error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("exec %s: %v", e.Op, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}
