package docker

import (
	"bytes"
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// Logs returns the last tail lines of a container's combined output.
func (m *Manager) Logs(ctx context.Context, containerID string, tail int) (string, error) {
	reader, err := m.api.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       fmt.Sprintf("%d", tail),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get container logs: %w", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	// non-TTY logs are stream-multiplexed
	if _, err := stdcopy.StdCopy(&buf, &buf, reader); err != nil {
		return buf.String(), fmt.Errorf("failed to read container logs: %w", err)
	}
	return buf.String(), nil
}

func (m *Manager) logContainerTail(ctx context.Context, containerID string, tail int) {
	logs, err := m.Logs(ctx, containerID, tail)
	if err != nil || logs == "" {
		return
	}
	m.logger.WithField("container_id", shortID(containerID)).Infof("Recent container logs:\n%s", logs)
}
