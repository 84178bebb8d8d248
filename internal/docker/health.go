package docker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/errdefs"
	"github.com/sirupsen/logrus"
)

// HealthProbe describes how to decide a container's server is ready. The
// probe requests Path from inside the container; any non-empty response
// body counts as healthy, bodies are not otherwise parsed.
type HealthProbe struct {
	Port     int
	Path     string
	Timeout  time.Duration
	Interval time.Duration
	Warmup   time.Duration
}

// WaitReady polls the probe until the server answers or the timeout
// elapses. A container that is no longer running is a definitive failure.
// Returns false on timeout; the caller decides whether that is fatal.
func (m *Manager) WaitReady(ctx context.Context, containerID string, probe HealthProbe) bool {
	logger := m.logger.WithFields(logrus.Fields{
		"container_id": shortID(containerID),
		"path":         probe.Path,
	})
	logger.WithFields(logrus.Fields{
		"timeout":  probe.Timeout,
		"interval": probe.Interval,
	}).Info("Waiting for server to become ready")

	if probe.Warmup > 0 {
		select {
		case <-time.After(probe.Warmup):
		case <-ctx.Done():
			return false
		}
	}

	curl := []string{"sh", "-c", fmt.Sprintf(
		"curl -s --connect-timeout 1 --max-time 2 http://127.0.0.1:%d%s", probe.Port, probe.Path)}

	start := time.Now()
	for time.Since(start) < probe.Timeout {
		if ctx.Err() != nil {
			return false
		}

		info, err := m.api.ContainerInspect(ctx, containerID)
		if err != nil {
			if errdefs.IsNotFound(err) {
				logger.Error("Container no longer exists")
				return false
			}
			logger.WithError(err).Warn("Failed to inspect container")
		} else if !info.State.Running {
			// no point polling a dead container
			logger.WithField("status", info.State.Status).Error("Container stopped while waiting for readiness")
			m.logContainerTail(ctx, containerID, 20)
			return false
		} else {
			out, _, execErr := m.Exec(ctx, containerID, curl)
			if execErr == nil && strings.TrimSpace(out) != "" {
				logger.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("Server is ready")
				return true
			}
			logger.WithField("elapsed", time.Since(start).Round(time.Second)).Debug("Server not ready yet")
		}

		select {
		case <-time.After(probe.Interval):
		case <-ctx.Done():
			return false
		}
	}

	logger.WithField("timeout", probe.Timeout).Error("Timeout waiting for server readiness")
	m.logContainerTail(ctx, containerID, 20)
	return false
}
