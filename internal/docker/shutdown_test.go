package docker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
)

func TestShutdownGraceful(t *testing.T) {
	var inspections atomic.Int32
	api := &fakeAPI{
		execFn: func(_ string, _ types.ExecConfig) (string, int, error) {
			return "shutting down", 0, nil
		},
		inspectFn: func(string) (types.ContainerJSON, error) {
			if inspections.Add(1) <= 3 {
				return runningContainer(), nil
			}
			return stoppedContainer(), nil
		},
	}
	m := newTestManager(api)

	graceful := m.Shutdown(context.Background(), "cid", 8080, 100*time.Millisecond, 10)
	if !graceful {
		t.Fatalf("expected graceful shutdown")
	}
	if len(api.stopCalls) != 0 {
		t.Fatalf("graceful shutdown must not force-stop, got %v", api.stopCalls)
	}
}

func TestShutdownForcedAfterGrace(t *testing.T) {
	api := &fakeAPI{
		execFn: func(_ string, _ types.ExecConfig) (string, int, error) {
			return "", 0, nil
		},
	}
	m := newTestManager(api)

	graceful := m.Shutdown(context.Background(), "cid", 8080, 30*time.Millisecond, 10)
	if graceful {
		t.Fatalf("expected forced shutdown")
	}
	if len(api.stopCalls) == 0 {
		t.Fatalf("expected container to be force-stopped")
	}
	if len(api.removeCalls) == 0 {
		t.Fatalf("expected container to be removed")
	}
}

func TestShutdownContainerAlreadyGone(t *testing.T) {
	api := &fakeAPI{
		execFn: func(_ string, _ types.ExecConfig) (string, int, error) {
			return "", 0, notFoundErr{"no such container"}
		},
		inspectFn: func(string) (types.ContainerJSON, error) {
			return types.ContainerJSON{}, notFoundErr{"no such container"}
		},
	}
	m := newTestManager(api)

	if !m.Shutdown(context.Background(), "cid", 8080, 100*time.Millisecond, 10) {
		t.Fatalf("a container that is already gone counts as graceful")
	}
}
