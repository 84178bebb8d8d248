package docker

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/sirupsen/logrus"
)

// Exec runs a command inside a running container and returns its stdout and
// exit code. A non-zero exit code is logged as a warning but not treated as
// an error; callers that need strictness use ExecStrict. Transport failures
// surface as *ExecError, a vanished container as ErrContainerNotFound.
func (m *Manager) Exec(ctx context.Context, containerID string, argv []string) (string, int, error) {
	execResp, err := m.api.ContainerExecCreate(ctx, containerID, types.ExecConfig{
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", 0, fmt.Errorf("%w: %s", ErrContainerNotFound, shortID(containerID))
		}
		return "", 0, &ExecError{Op: "create", Err: err}
	}

	attach, err := m.api.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return "", 0, &ExecError{Op: "attach", Err: err}
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return "", 0, &ExecError{Op: "read", Err: err}
	}

	exitCode, err := m.waitExec(ctx, execResp.ID)
	if err != nil {
		return stdout.String(), 0, err
	}

	if exitCode != 0 {
		m.logger.WithFields(logrus.Fields{
			"container_id": shortID(containerID),
			"command":      argv,
			"exit_code":    exitCode,
		}).Warn("Command returned non-zero exit code")
	}
	return stdout.String(), exitCode, nil
}

// ExecStrict is Exec with a non-zero exit code promoted to an error.
func (m *Manager) ExecStrict(ctx context.Context, containerID string, argv []string) (string, error) {
	stdout, exitCode, err := m.Exec(ctx, containerID, argv)
	if err != nil {
		return stdout, err
	}
	if exitCode != 0 {
		return stdout, fmt.Errorf("command %v exited with code %d", argv, exitCode)
	}
	return stdout, nil
}

// waitExec polls the exec instance until the command has finished.
func (m *Manager) waitExec(ctx context.Context, execID string) (int, error) {
	for {
		inspect, err := m.api.ContainerExecInspect(ctx, execID)
		if err != nil {
			return 0, &ExecError{Op: "inspect", Err: err}
		}
		if !inspect.Running {
			return inspect.ExitCode, nil
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}
