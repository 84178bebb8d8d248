package docker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// notFoundErr satisfies errdefs.IsNotFound.
type notFoundErr struct{ msg string }

func (e notFoundErr) Error() string { return e.msg }
func (e notFoundErr) NotFound()     {}

// fakeAPI implements API through overridable function fields. Unset fields
// return zero values.
type fakeAPI struct {
	mu sync.Mutex

	createFn  func(name string) (container.CreateResponse, error)
	startFn   func(id string) error
	stopFn    func(id string) error
	removeFn  func(id string) error
	inspectFn func(id string) (types.ContainerJSON, error)
	listFn    func(options container.ListOptions) ([]types.Container, error)
	logsFn    func(id string) (io.ReadCloser, error)
	waitFn    func(id string) (<-chan container.WaitResponse, <-chan error)
	execFn    func(id string, config types.ExecConfig) (string, int, error)

	networkListFn   func() ([]types.NetworkResource, error)
	networkCreateFn func(name string) (types.NetworkCreateResponse, error)

	stopCalls   []string
	removeCalls []string
	execCalls   int

	execResults map[string]struct {
		out  string
		code int
	}
}

func (f *fakeAPI) recordStop(id string) {
	f.mu.Lock()
	f.stopCalls = append(f.stopCalls, id)
	f.mu.Unlock()
}

func (f *fakeAPI) recordRemove(id string) {
	f.mu.Lock()
	f.removeCalls = append(f.removeCalls, id)
	f.mu.Unlock()
}

func (f *fakeAPI) ContainerCreate(_ context.Context, _ *container.Config, _ *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	if f.createFn != nil {
		return f.createFn(name)
	}
	return container.CreateResponse{ID: "created-" + name}, nil
}

func (f *fakeAPI) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	if f.startFn != nil {
		return f.startFn(id)
	}
	return nil
}

func (f *fakeAPI) ContainerStop(_ context.Context, id string, _ container.StopOptions) error {
	f.recordStop(id)
	if f.stopFn != nil {
		return f.stopFn(id)
	}
	return nil
}

func (f *fakeAPI) ContainerRemove(_ context.Context, id string, _ types.ContainerRemoveOptions) error {
	f.recordRemove(id)
	if f.removeFn != nil {
		return f.removeFn(id)
	}
	return nil
}

func (f *fakeAPI) ContainerInspect(_ context.Context, id string) (types.ContainerJSON, error) {
	if f.inspectFn != nil {
		return f.inspectFn(id)
	}
	return runningContainer(), nil
}

func (f *fakeAPI) ContainerList(_ context.Context, options container.ListOptions) ([]types.Container, error) {
	if f.listFn != nil {
		return f.listFn(options)
	}
	return nil, nil
}

func (f *fakeAPI) ContainerLogs(_ context.Context, id string, _ container.LogsOptions) (io.ReadCloser, error) {
	if f.logsFn != nil {
		return f.logsFn(id)
	}
	var buf bytes.Buffer
	return io.NopCloser(&buf), nil
}

func (f *fakeAPI) ContainerWait(_ context.Context, id string, _ container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	if f.waitFn != nil {
		return f.waitFn(id)
	}
	done := make(chan container.WaitResponse, 1)
	done <- container.WaitResponse{StatusCode: 0}
	return done, make(chan error, 1)
}

func (f *fakeAPI) ContainerExecCreate(_ context.Context, id string, config types.ExecConfig) (types.IDResponse, error) {
	f.mu.Lock()
	f.execCalls++
	f.mu.Unlock()

	out, code := "", 0
	if f.execFn != nil {
		var err error
		out, code, err = f.execFn(id, config)
		if err != nil {
			return types.IDResponse{}, err
		}
	}
	execID := "exec-" + id
	f.mu.Lock()
	if f.execResults == nil {
		f.execResults = make(map[string]struct {
			out  string
			code int
		})
	}
	f.execResults[execID] = struct {
		out  string
		code int
	}{out, code}
	f.mu.Unlock()
	return types.IDResponse{ID: execID}, nil
}

func (f *fakeAPI) ContainerExecAttach(_ context.Context, execID string, _ types.ExecStartCheck) (types.HijackedResponse, error) {
	f.mu.Lock()
	res := f.execResults[execID]
	f.mu.Unlock()
	return hijackedOutput(res.out), nil
}

func (f *fakeAPI) ContainerExecInspect(_ context.Context, execID string) (types.ContainerExecInspect, error) {
	f.mu.Lock()
	res := f.execResults[execID]
	f.mu.Unlock()
	return types.ContainerExecInspect{Running: false, ExitCode: res.code}, nil
}

func (f *fakeAPI) NetworkCreate(_ context.Context, name string, _ types.NetworkCreate) (types.NetworkCreateResponse, error) {
	if f.networkCreateFn != nil {
		return f.networkCreateFn(name)
	}
	return types.NetworkCreateResponse{ID: "net-" + name}, nil
}

func (f *fakeAPI) NetworkList(_ context.Context, _ types.NetworkListOptions) ([]types.NetworkResource, error) {
	if f.networkListFn != nil {
		return f.networkListFn()
	}
	return nil, nil
}

type nopConn struct{}

func (nopConn) Read(b []byte) (int, error)         { return 0, io.EOF }
func (nopConn) Write(b []byte) (int, error)        { return len(b), nil }
func (nopConn) Close() error                       { return nil }
func (nopConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (nopConn) RemoteAddr() net.Addr               { return &net.TCPAddr{} }
func (nopConn) SetDeadline(t time.Time) error      { return nil }
func (nopConn) SetReadDeadline(t time.Time) error  { return nil }
func (nopConn) SetWriteDeadline(t time.Time) error { return nil }

// hijackedOutput frames stdout the way the daemon multiplexes streams.
func hijackedOutput(stdout string) types.HijackedResponse {
	var buf bytes.Buffer
	w := stdcopy.NewStdWriter(&buf, stdcopy.Stdout)
	w.Write([]byte(stdout))
	return types.HijackedResponse{
		Conn:   nopConn{},
		Reader: bufio.NewReader(&buf),
	}
}

func runningContainer() types.ContainerJSON {
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			State: &types.ContainerState{Running: true, Status: "running"},
		},
	}
}

func stoppedContainer() types.ContainerJSON {
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			State: &types.ContainerState{Running: false, Status: "exited"},
		},
	}
}

func newTestManager(api API) *Manager {
	m := NewManager(api)
	m.pollInterval = 5 * time.Millisecond
	return m
}

func TestStopIfExistsAbsent(t *testing.T) {
	api := &fakeAPI{}
	m := newTestManager(api)

	found, err := m.StopIfExists(context.Background(), "rg-python-flask", 10)
	if err != nil {
		t.Fatalf("StopIfExists returned error: %v", err)
	}
	if found {
		t.Fatalf("expected found=false for absent container")
	}
	if len(api.stopCalls) != 0 || len(api.removeCalls) != 0 {
		t.Fatalf("expected no stop/remove calls, got stop=%v remove=%v", api.stopCalls, api.removeCalls)
	}
}

func TestStopIfExistsStopsMatch(t *testing.T) {
	api := &fakeAPI{
		listFn: func(_ container.ListOptions) ([]types.Container, error) {
			return []types.Container{
				{ID: "aaa", Names: []string{"/rg-python-flask-old"}},
				{ID: "bbb", Names: []string{"/rg-python-flask"}},
			}, nil
		},
	}
	m := newTestManager(api)

	found, err := m.StopIfExists(context.Background(), "rg-python-flask", 10)
	if err != nil {
		t.Fatalf("StopIfExists returned error: %v", err)
	}
	if !found {
		t.Fatalf("expected found=true")
	}
	if len(api.stopCalls) != 1 || api.stopCalls[0] != "bbb" {
		t.Fatalf("expected exactly container bbb stopped, got %v", api.stopCalls)
	}
	if len(api.removeCalls) != 1 || api.removeCalls[0] != "bbb" {
		t.Fatalf("expected exactly container bbb removed, got %v", api.removeCalls)
	}
}

func TestStopToleratesAlreadyGone(t *testing.T) {
	api := &fakeAPI{
		stopFn:   func(string) error { return notFoundErr{"no such container"} },
		removeFn: func(string) error { return notFoundErr{"no such container"} },
	}
	m := newTestManager(api)

	if err := m.Stop(context.Background(), "gone", 10); err != nil {
		t.Fatalf("Stop of vanished container should succeed, got %v", err)
	}
}

func TestCreateProbeFailureCleansUp(t *testing.T) {
	api := &fakeAPI{
		execFn: func(_ string, _ types.ExecConfig) (string, int, error) {
			// server never answers
			return "", 7, nil
		},
	}
	m := newTestManager(api)

	_, err := m.Create(context.Background(), CreateOptions{
		Image:   "rg-profiler-python-flask",
		Name:    "rg-python-flask",
		Network: "rg-bench",
		Probe: HealthProbe{
			Port:     8080,
			Path:     "/json",
			Timeout:  60 * time.Millisecond,
			Interval: 10 * time.Millisecond,
		},
		StopTimeout: 10,
	})
	if !errors.Is(err, ErrStartupFailure) {
		t.Fatalf("expected ErrStartupFailure, got %v", err)
	}
	if len(api.stopCalls) == 0 {
		t.Fatalf("expected failed container to be stopped")
	}
	if len(api.removeCalls) == 0 {
		t.Fatalf("expected failed container to be removed")
	}
}

func TestCreateStartsAndWaitsReady(t *testing.T) {
	api := &fakeAPI{
		execFn: func(_ string, _ types.ExecConfig) (string, int, error) {
			return `{"message":"Hello, World!"}`, 0, nil
		},
	}
	m := newTestManager(api)

	handle, err := m.Create(context.Background(), CreateOptions{
		Image:   "rg-profiler-python-flask",
		Name:    "rg-python-flask",
		Network: "rg-bench",
		Probe: HealthProbe{
			Port:     8080,
			Path:     "/json",
			Timeout:  time.Second,
			Interval: 10 * time.Millisecond,
		},
		StopTimeout: 10,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if handle.Status != StatusRunning {
		t.Fatalf("expected running status, got %s", handle.Status)
	}
	if handle.Name != "rg-python-flask" {
		t.Fatalf("unexpected handle name %s", handle.Name)
	}
}

func TestEnsureNetworkReusesExisting(t *testing.T) {
	created := false
	api := &fakeAPI{
		networkListFn: func() ([]types.NetworkResource, error) {
			return []types.NetworkResource{
				{ID: "netid-other", Name: "rg-bench-other"},
				{ID: "netid-1", Name: "rg-bench"},
			}, nil
		},
		networkCreateFn: func(name string) (types.NetworkCreateResponse, error) {
			created = true
			return types.NetworkCreateResponse{ID: "netid-new"}, nil
		},
	}
	m := newTestManager(api)

	id, err := m.EnsureNetwork(context.Background(), "rg-bench")
	if err != nil {
		t.Fatalf("EnsureNetwork failed: %v", err)
	}
	if id != "netid-1" {
		t.Fatalf("expected existing network id, got %s", id)
	}
	if created {
		t.Fatalf("network should not have been created")
	}
}

func TestEnsureNetworkCreatesWhenMissing(t *testing.T) {
	api := &fakeAPI{}
	m := newTestManager(api)

	id, err := m.EnsureNetwork(context.Background(), "rg-bench")
	if err != nil {
		t.Fatalf("EnsureNetwork failed: %v", err)
	}
	if id != "net-rg-bench" {
		t.Fatalf("expected created network id, got %s", id)
	}
}
