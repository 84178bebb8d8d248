// Package loadgen drives the external wrk load generator as a one-shot
// container against one endpoint of the measured server.
package loadgen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"rg-bench/internal/config"
	"rg-bench/internal/docker"
	"rg-bench/internal/logging"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/sirupsen/logrus"
)

const defaultScript = "basic.lua"

type Runner struct {
	api    docker.API
	cfg    config.WrkConfig
	net    string
	logger *logrus.Logger
}

func NewRunner(api docker.API, cfg config.WrkConfig, network string) *Runner {
	return &Runner{
		api:    api,
		cfg:    cfg,
		net:    network,
		logger: logging.GetLogger(),
	}
}

// ResolveScript locates a wrk script for a mode. Fallback chain: exact name
// in the mode's directory, then name with .lua appended, then the mode's
// default script, then the profile mode's default script (logged as a
// warning). Returns the path relative to the script root.
func ResolveScript(scriptRoot, name string, mode config.Mode) (string, error) {
	logger := logging.GetLogger()
	dir := mode.ScriptDir()

	candidates := []string{
		filepath.Join(dir, name),
		filepath.Join(dir, name+".lua"),
		filepath.Join(dir, defaultScript),
	}
	if dir != config.ModeProfile.ScriptDir() {
		candidates = append(candidates, filepath.Join(config.ModeProfile.ScriptDir(), defaultScript))
	}

	for i, rel := range candidates {
		if _, err := os.Stat(filepath.Join(scriptRoot, rel)); err == nil {
			if i >= 2 {
				logger.WithFields(logrus.Fields{
					"script":   name,
					"mode":     mode,
					"fallback": rel,
				}).Warn("Script not found, using default")
			}
			return rel, nil
		}
	}
	return "", fmt.Errorf("no wrk script found for %q in %s", name, filepath.Join(scriptRoot, dir))
}

// Run executes one bounded load test. A non-zero wrk exit code or a runtime
// failure yields false; the caller decides whether that aborts the session.
func (r *Runner) Run(ctx context.Context, targetURL, scriptName string, durationSec, concurrency int, mode config.Mode) bool {
	rel, err := ResolveScript(r.cfg.ScriptRoot, scriptName, mode)
	if err != nil {
		r.logger.WithError(err).Error("Cannot run load test")
		return false
	}

	r.logger.WithFields(logrus.Fields{
		"url":         targetURL,
		"script":      rel,
		"duration":    durationSec,
		"concurrency": concurrency,
	}).Info("Running load test")

	scriptRoot, err := filepath.Abs(r.cfg.ScriptRoot)
	if err != nil {
		r.logger.WithError(err).Error("Cannot resolve script root")
		return false
	}

	cmd := []string{
		fmt.Sprintf("-t%d", r.cfg.Threads),
		fmt.Sprintf("-c%d", concurrency),
		fmt.Sprintf("-d%ds", durationSec),
		"--latency",
		"-s", "/scripts/" + filepath.ToSlash(rel),
		targetURL,
	}

	resp, err := r.api.ContainerCreate(ctx, &container.Config{
		Image: r.cfg.Image,
		Cmd:   cmd,
	}, &container.HostConfig{
		Binds:       []string{scriptRoot + ":/scripts:ro"},
		NetworkMode: container.NetworkMode(r.net),
	}, nil, nil, "")
	if err != nil {
		r.logger.WithError(err).Error("Failed to create load generator container")
		return false
	}
	defer func() {
		if err := r.api.ContainerRemove(context.WithoutCancel(ctx), resp.ID, types.ContainerRemoveOptions{Force: true}); err != nil {
			r.logger.WithError(err).Warn("Failed to remove load generator container")
		}
	}()

	if err := r.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		r.logger.WithError(err).Error("Failed to start load generator container")
		return false
	}

	exitCode, err := r.waitDone(ctx, resp.ID)
	if err != nil {
		r.logger.WithError(err).Error("Load generator wait failed")
		return false
	}

	r.printOutput(ctx, resp.ID)

	if exitCode != 0 {
		r.logger.WithFields(logrus.Fields{
			"url":       targetURL,
			"exit_code": exitCode,
		}).Warn("Load test exited non-zero")
		return false
	}
	return true
}

func (r *Runner) waitDone(ctx context.Context, containerID string) (int64, error) {
	statusCh, errCh := r.api.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return status.StatusCode, fmt.Errorf("load generator wait: %s", status.Error.Message)
		}
		return status.StatusCode, nil
	case err := <-errCh:
		return 0, err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (r *Runner) printOutput(ctx context.Context, containerID string) {
	reader, err := r.api.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "all",
	})
	if err != nil {
		r.logger.WithError(err).Debug("Could not fetch load generator output")
		return
	}
	defer reader.Close()

	out := demuxLogs(reader)
	if out != "" {
		r.logger.Infof("wrk output:\n%s", out)
	}
}
