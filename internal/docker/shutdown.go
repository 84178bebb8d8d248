package docker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rg-bench/internal/retry"

	"github.com/docker/docker/errdefs"
	"github.com/sirupsen/logrus"
)

// Shutdown asks the measured server to terminate itself via its /shutdown
// endpoint, then polls container status once per second up to the grace
// timeout. The in-band signal is what makes the in-container tracker flush
// buffered measurement data, so this must run before any forced stop. On
// timeout the container is forcibly stopped and removed and false is
// returned; true means the shutdown was graceful.
func (m *Manager) Shutdown(ctx context.Context, containerID string, port int, grace time.Duration, stopTimeout int) bool {
	logger := m.logger.WithField("container_id", shortID(containerID))
	logger.Info("Sending shutdown signal to server")

	curl := []string{"sh", "-c", fmt.Sprintf(
		"curl -s --connect-timeout 1 --max-time 2 http://127.0.0.1:%d/shutdown", port)}

	// The server may already be winding down and refuse the connection;
	// give the signal a few tries before falling back to status polling.
	out, err := retry.Do(ctx, retry.DefaultPolicy, func() (string, error) {
		stdout, _, execErr := m.Exec(ctx, containerID, curl)
		return stdout, execErr
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to deliver shutdown signal")
	} else if strings.TrimSpace(out) != "" {
		logger.WithField("response", strings.TrimSpace(out)).Debug("Shutdown acknowledged")
	}

	iterations := int(grace / m.pollInterval)
	if iterations < 1 {
		iterations = 1
	}
	for i := 0; i < iterations; i++ {
		info, inspectErr := m.api.ContainerInspect(ctx, containerID)
		if inspectErr != nil {
			if errdefs.IsNotFound(inspectErr) {
				logger.Info("Container no longer exists, shutdown graceful")
				return true
			}
			logger.WithError(inspectErr).Warn("Failed to inspect container during shutdown")
		} else if !info.State.Running {
			logger.Info("Server shutdown gracefully")
			return true
		}

		logger.WithFields(logrus.Fields{
			"attempt": i + 1,
			"total":   iterations,
		}).Debug("Waiting for graceful shutdown")

		select {
		case <-time.After(m.pollInterval):
		case <-ctx.Done():
			m.forceStop(ctx, containerID, stopTimeout)
			return false
		}
	}

	logger.Warn("Server did not shut down gracefully, forcing stop")
	m.forceStop(ctx, containerID, stopTimeout)
	return false
}

func (m *Manager) forceStop(ctx context.Context, containerID string, stopTimeout int) {
	if err := m.Stop(ctx, containerID, stopTimeout); err != nil {
		m.logger.WithField("container_id", shortID(containerID)).WithError(err).Warn("Forced stop failed")
	}
}
