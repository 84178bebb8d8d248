package docker

import (
	"context"
	"fmt"
	"time"

	"rg-bench/internal/logging"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	"github.com/sirupsen/logrus"
)

// Status of a managed container.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusRemoved  Status = "removed"
)

// Handle identifies a container owned by the orchestrator. At most one
// container with a given name runs at a time; Create enforces this by
// stopping any pre-existing container of that name first.
type Handle struct {
	ID      string
	Name    string
	Network string
	Status  Status
}

// Manager drives container and network lifecycle against the runtime API.
type Manager struct {
	api    API
	logger *logrus.Logger

	// shutdown status poll cadence, overridable in tests
	pollInterval time.Duration
}

func NewManager(api API) *Manager {
	return &Manager{
		api:          api,
		logger:       logging.GetLogger(),
		pollInterval: time.Second,
	}
}

// CreateOptions describe the measured container.
type CreateOptions struct {
	Image   string
	Name    string
	Network string
	Volumes []string // bind specs, host:container[:mode]
	Env     []string
	// Port optionally publishes a port to the host, format "host:container".
	Port  string
	Probe HealthProbe
	// StopTimeout bounds the runtime-level stop used during cleanup.
	StopTimeout int
}

// EnsureNetwork returns the ID of the named bridge network, creating it if
// absent. Idempotent.
func (m *Manager) EnsureNetwork(ctx context.Context, name string) (string, error) {
	networks, err := m.api.NetworkList(ctx, types.NetworkListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to list networks: %w", err)
	}
	for _, nw := range networks {
		// the name filter matches substrings
		if nw.Name == name {
			m.logger.WithField("network", name).Debug("Using existing network")
			return nw.ID, nil
		}
	}

	resp, err := m.api.NetworkCreate(ctx, name, types.NetworkCreate{
		Driver:         "bridge",
		CheckDuplicate: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create network %s: %w", name, err)
	}
	m.logger.WithFields(logrus.Fields{
		"network":    name,
		"network_id": shortID(resp.ID),
	}).Info("Network created")
	return resp.ID, nil
}

// Create starts a detached container and waits for it to become ready. Any
// pre-existing container with the same name is stopped and removed first.
// If the readiness probe fails the container is stopped and removed before
// ErrStartupFailure is returned; a partially started container is never
// left running.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Handle, error) {
	if _, err := m.StopIfExists(ctx, opts.Name, opts.StopTimeout); err != nil {
		return nil, err
	}

	cfg := &container.Config{
		Image: opts.Image,
		Env:   opts.Env,
	}
	hostCfg := &container.HostConfig{
		Binds:       opts.Volumes,
		NetworkMode: container.NetworkMode(opts.Network),
	}

	if opts.Port != "" {
		if err := bindPort(cfg, hostCfg, opts.Port); err != nil {
			return nil, err
		}
	}

	resp, err := m.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, opts.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container %s: %w", opts.Name, err)
	}

	handle := &Handle{
		ID:      resp.ID,
		Name:    opts.Name,
		Network: opts.Network,
		Status:  StatusStarting,
	}

	if err := m.api.ContainerStart(ctx, handle.ID, container.StartOptions{}); err != nil {
		m.removeQuietly(ctx, handle.ID)
		return nil, fmt.Errorf("failed to start container %s: %w", opts.Name, err)
	}

	m.logger.WithFields(logrus.Fields{
		"container":    opts.Name,
		"container_id": shortID(handle.ID),
		"image":        opts.Image,
	}).Info("Container started")

	if !m.WaitReady(ctx, handle.ID, opts.Probe) {
		m.logContainerTail(ctx, handle.ID, 50)
		m.Stop(ctx, handle.ID, opts.StopTimeout)
		handle.Status = StatusRemoved
		return nil, fmt.Errorf("%w: %s", ErrStartupFailure, opts.Name)
	}

	handle.Status = StatusRunning
	return handle, nil
}

// StopIfExists stops and removes a container by name. Returns false without
// further runtime calls when no such container exists; any failure other
// than absence is an error.
func (m *Manager) StopIfExists(ctx context.Context, name string, stopTimeout int) (bool, error) {
	containers, err := m.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list containers: %w", err)
	}

	found := false
	for _, c := range containers {
		if !hasName(c, name) {
			continue
		}
		found = true
		m.logger.WithFields(logrus.Fields{
			"container":    name,
			"container_id": shortID(c.ID),
		}).Info("Stopping existing container")
		if err := m.Stop(ctx, c.ID, stopTimeout); err != nil {
			return true, err
		}
	}
	return found, nil
}

// Stop stops and removes a container, treating "already gone" as success.
func (m *Manager) Stop(ctx context.Context, ref string, stopTimeout int) error {
	timeout := stopTimeout
	err := m.api.ContainerStop(ctx, ref, container.StopOptions{Timeout: &timeout})
	if err != nil && !errdefs.IsNotFound(err) {
		m.logger.WithField("container_id", shortID(ref)).WithError(err).Warn("Failed to stop container, removing by force")
	}

	err = m.api.ContainerRemove(ctx, ref, types.ContainerRemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", shortID(ref), err)
	}
	m.logger.WithField("container_id", shortID(ref)).Debug("Container stopped and removed")
	return nil
}

func (m *Manager) removeQuietly(ctx context.Context, id string) {
	err := m.api.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !errdefs.IsNotFound(err) {
		m.logger.WithField("container_id", shortID(id)).WithError(err).Warn("Failed to remove container")
	}
}

func bindPort(cfg *container.Config, hostCfg *container.HostConfig, spec string) error {
	hostPort, containerPort, ok := splitPortSpec(spec)
	if !ok {
		return fmt.Errorf("invalid port format %s, expected host:container", spec)
	}

	port, err := nat.NewPort("tcp", containerPort)
	if err != nil {
		return fmt.Errorf("invalid container port %s: %w", containerPort, err)
	}

	hostCfg.PortBindings = nat.PortMap{
		port: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: hostPort}},
	}
	if cfg.ExposedPorts == nil {
		cfg.ExposedPorts = make(nat.PortSet)
	}
	cfg.ExposedPorts[port] = struct{}{}
	return nil
}

func splitPortSpec(spec string) (host, cont string, ok bool) {
	for i := 0; i < len(spec); i++ {
		if spec[i] == ':' {
			return spec[:i], spec[i+1:], i > 0 && i < len(spec)-1
		}
	}
	return "", "", false
}

func hasName(c types.Container, name string) bool {
	for _, n := range c.Names {
		if n == "/"+name || n == name {
			return true
		}
	}
	return false
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
