package energy

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"rg-bench/internal/config"
	"rg-bench/internal/logging"
	"rg-bench/internal/output"
)

func newArtifactCoordinator(t *testing.T, timeoutSec int, minBytes int64) (*Coordinator, *output.Session) {
	t.Helper()
	session, err := output.NewSession(t.TempDir(), "python", "flask", config.ModeEnergy)
	if err != nil {
		t.Fatalf("failed to create output session: %v", err)
	}
	cfg := config.DefaultConfig(config.ModeEnergy)
	cfg.Energy.ArtifactTimeout = timeoutSec
	cfg.Energy.ArtifactMinBytes = minBytes
	return &Coordinator{
		cfg:          cfg,
		session:      session,
		logger:       logging.GetLogger(),
		pollInterval: 10 * time.Millisecond,
	}, session
}

func TestAwaitArtifactMaterializes(t *testing.T) {
	c, session := newArtifactCoordinator(t, 2, 128)

	go func() {
		time.Sleep(50 * time.Millisecond)
		data := append([]byte("timestamp,energy_consumed\n"), bytes.Repeat([]byte("x"), 200)...)
		os.WriteFile(session.LiveArtifact(), data, 0o644)
	}()

	path, err := c.awaitArtifact(context.Background())
	if err != nil {
		t.Fatalf("awaitArtifact failed: %v", err)
	}
	if path != session.LiveArtifact() {
		t.Fatalf("unexpected artifact path %s", path)
	}
}

func TestAwaitArtifactUndersized(t *testing.T) {
	c, session := newArtifactCoordinator(t, 1, 128)

	// header without data rows, well under the minimum
	if err := os.WriteFile(session.LiveArtifact(), []byte("timestamp,energy_consumed\n"), 0o644); err != nil {
		t.Fatalf("failed to write artifact: %v", err)
	}

	_, err := c.awaitArtifact(context.Background())
	if err == nil {
		t.Fatalf("undersized artifact must be an error")
	}
	if !strings.Contains(err.Error(), "bytes") {
		t.Fatalf("error should report the artifact size, got %v", err)
	}
}

func TestAwaitArtifactNeverAppears(t *testing.T) {
	c, _ := newArtifactCoordinator(t, 1, 128)

	if _, err := c.awaitArtifact(context.Background()); err == nil {
		t.Fatalf("missing artifact must be an error")
	}
}

func TestAwaitArtifactCancelled(t *testing.T) {
	c, _ := newArtifactCoordinator(t, 30, 128)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	if _, err := c.awaitArtifact(ctx); err == nil {
		t.Fatalf("cancellation must abort the wait")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("cancellation should abort promptly")
	}
}
