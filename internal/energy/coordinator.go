package energy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rg-bench/internal/config"
	"rg-bench/internal/docker"
	"rg-bench/internal/loadgen"
	"rg-bench/internal/logging"
	"rg-bench/internal/output"

	"github.com/sirupsen/logrus"
)

// RunRecord tracks one completed measurement cycle. Append-only; never
// mutated after the cycle finishes.
type RunRecord struct {
	Run          int                      `json:"run"`
	TestTimings  map[string]time.Duration `json:"test_timings"`
	ArtifactPath string                   `json:"artifact_path"`
}

// Sink receives results as they are produced. Optional; a nil Sink is
// valid.
type Sink interface {
	WriteRun(run int, report *MeasurementReport) error
	WriteAggregate(stats *AggregateStatistics) error
}

// Coordinator sequences N measurement cycles. Each cycle drives every
// configured test against a dedicated container, shuts the server down via
// its handshake so the tracker flushes its artifact, waits for the artifact
// to materialize, and parses it into a per-run report. Tracking spans the
// container lifetime; there are no per-test tracker calls.
type Coordinator struct {
	manager   *docker.Manager
	loadgen   *loadgen.Runner
	cfg       *config.Config
	session   *output.Session
	sink      Sink
	framework string
	language  string
	logger    *logrus.Logger

	// Fresh container per cycle; the driver's initial handle covers the
	// first cycle.
	create func(ctx context.Context) (*docker.Handle, error)

	// artifact poll cadence, overridable in tests
	pollInterval time.Duration

	records []RunRecord
}

func NewCoordinator(manager *docker.Manager, runner *loadgen.Runner, cfg *config.Config, session *output.Session, sink Sink, framework, language string, create func(ctx context.Context) (*docker.Handle, error)) *Coordinator {
	return &Coordinator{
		manager:      manager,
		loadgen:      runner,
		cfg:          cfg,
		session:      session,
		sink:         sink,
		framework:    framework,
		language:     language,
		logger:       logging.GetLogger(),
		create:       create,
		pollInterval: time.Second,
	}
}

// Records returns the completed run records in run order.
func (c *Coordinator) Records() []RunRecord {
	return c.records
}

// Run executes all measurement cycles and aggregates their reports. The
// handle passed in is consumed by the first cycle; later cycles create
// fresh containers. Whatever happens, no container of ours is left running
// when Run returns.
func (c *Coordinator) Run(ctx context.Context, handle *docker.Handle) (*AggregateStatistics, error) {
	runs := c.cfg.Energy.Runs
	c.logger.WithField("runs", runs).Info("Starting energy measurement")

	reports := make([]*MeasurementReport, 0, runs)
	for run := 1; run <= runs; run++ {
		if run > 1 {
			var err error
			handle, err = c.create(ctx)
			if err != nil {
				return nil, fmt.Errorf("run %d: %w", run, err)
			}
		}

		report, err := c.runCycle(ctx, handle, run)
		if err != nil {
			// the cycle already forced the container down
			return nil, fmt.Errorf("run %d: %w", run, err)
		}
		reports = append(reports, report)

		if c.sink != nil {
			if sinkErr := c.sink.WriteRun(run, report); sinkErr != nil {
				c.logger.WithError(sinkErr).Warn("Failed to export run to sink")
			}
		}

		// thermal settling between cycles
		if run < runs {
			c.logger.WithField("interval", c.cfg.Energy.RunInterval).Info("Waiting before next run")
			if !sleepCtx(ctx, c.cfg.Energy.RunIntervalDuration()) {
				return nil, ctx.Err()
			}
		}
	}

	stats, err := Combine(reports, c.cfg.Energy.Units)
	if err != nil {
		return nil, err
	}
	if err := c.session.WriteAggregate(stats); err != nil {
		return nil, err
	}
	if c.sink != nil {
		if sinkErr := c.sink.WriteAggregate(stats); sinkErr != nil {
			c.logger.WithError(sinkErr).Warn("Failed to export aggregate to sink")
		}
	}

	c.logger.WithFields(logrus.Fields{
		"runs":   stats.Runs,
		"metric": "energy_" + c.cfg.Energy.Units.Energy,
		"mean":   stats.Statistics["energy_"+c.cfg.Energy.Units.Energy].Mean,
	}).Info("Energy measurement complete")
	return stats, nil
}

func (c *Coordinator) runCycle(ctx context.Context, handle *docker.Handle, run int) (report *MeasurementReport, err error) {
	logger := c.logger.WithField("run", run)
	logger.Info("Starting energy measurement run")

	// The container must never outlive the cycle, whatever the outcome.
	// Shutdown is attempted gracefully below; this is the backstop.
	defer func() {
		if stopErr := c.manager.Stop(context.WithoutCancel(ctx), handle.ID, c.cfg.Docker.StopTimeout); stopErr != nil {
			logger.WithError(stopErr).Warn("Final container stop failed")
		}
		handle.Status = docker.StatusRemoved
	}()

	runDir, err := c.session.RunDir(run)
	if err != nil {
		return nil, err
	}

	record := RunRecord{Run: run, TestTimings: make(map[string]time.Duration)}

	tests := c.cfg.GetTests()
	for _, test := range tests {
		url := c.testURL(handle, test)
		logger.WithFields(logrus.Fields{
			"test": test.Name,
			"url":  url,
		}).Info("Running test")

		started := time.Now()
		ok := c.loadgen.Run(ctx, url, test.ScriptName(), c.cfg.Wrk.Duration, c.cfg.Wrk.Concurrency, config.ModeEnergy)
		record.TestTimings[test.Name] = time.Since(started)
		if !ok {
			logger.WithField("test", test.Name).Warn("Test failed, continuing with remaining tests")
		}

		if !sleepCtx(ctx, c.cfg.Server.RecoveryDuration()) {
			return nil, ctx.Err()
		}
	}

	// Capture logs before the container goes away.
	if logs, logErr := c.manager.Logs(ctx, handle.ID, 500); logErr == nil {
		if writeErr := c.session.WriteContainerLog(logs); writeErr != nil {
			logger.WithError(writeErr).Warn("Failed to save container log")
		}
	}

	// The shutdown handshake is what flushes the tracker's artifact.
	graceful := c.manager.Shutdown(ctx, handle.ID, c.cfg.Server.Port, c.cfg.Server.ShutdownTimeoutDuration(), c.cfg.Docker.StopTimeout)
	if !graceful {
		logger.Warn("Shutdown was not graceful, artifact may be incomplete")
	}
	handle.Status = docker.StatusStopped

	artifact, err := c.awaitArtifact(ctx)
	if err != nil {
		return nil, err
	}

	runArtifact := c.session.RunArtifact(runDir)
	if err := moveFile(artifact, runArtifact); err != nil {
		return nil, fmt.Errorf("failed to collect artifact: %w", err)
	}
	record.ArtifactPath = runArtifact

	raw, err := ParseEmissionsCSV(runArtifact)
	if err != nil {
		return nil, err
	}
	report = BuildReport(raw, c.framework, c.language)
	if err := c.session.WriteRunReport(runDir, report); err != nil {
		return nil, err
	}

	c.records = append(c.records, record)
	logger.WithFields(logrus.Fields{
		"energy_wh":    report.Energy.TotalWattHours,
		"emissions_mg": report.Emissions.MgCarbon,
		"duration_s":   report.DurationSeconds,
	}).Info("Energy run complete")
	return report, nil
}

// awaitArtifact polls for the tracker's file to exist and exceed the
// configured minimum size. A file below the minimum at timeout is treated
// as no data: trackers write their header eagerly, so a tiny file proves
// nothing was measured.
func (c *Coordinator) awaitArtifact(ctx context.Context) (string, error) {
	path := c.session.LiveArtifact()
	minBytes := c.cfg.Energy.ArtifactMinBytes
	timeout := c.cfg.Energy.ArtifactTimeoutDuration()

	c.logger.WithFields(logrus.Fields{
		"path":      path,
		"timeout":   timeout,
		"min_bytes": minBytes,
	}).Info("Waiting for measurement artifact")

	start := time.Now()
	attempt := 0
	for time.Since(start) < timeout {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if info, err := os.Stat(path); err == nil && info.Size() >= minBytes {
			c.logger.WithFields(logrus.Fields{
				"size":    info.Size(),
				"elapsed": time.Since(start).Round(time.Millisecond),
			}).Info("Measurement artifact materialized")
			return path, nil
		}

		attempt++
		if attempt%5 == 0 {
			c.logDirContents(filepath.Dir(path))
		}

		if !sleepCtx(ctx, c.pollInterval) {
			return "", ctx.Err()
		}
	}

	if info, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("measurement artifact %s has only %d bytes after %s, no data was flushed", path, info.Size(), timeout)
	}
	return "", fmt.Errorf("measurement artifact %s never materialized within %s", path, timeout)
}

func (c *Coordinator) logDirContents(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		c.logger.WithField("dir", dir).WithError(err).Debug("Cannot list artifact directory")
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	c.logger.WithFields(logrus.Fields{
		"dir":      dir,
		"contents": strings.Join(names, ", "),
	}).Info("Still waiting for artifact")
}

func (c *Coordinator) testURL(handle *docker.Handle, test config.TestDefinition) string {
	endpoint := test.Endpoint
	if (test.Name == "queries" || test.Name == "query") && !strings.Contains(endpoint, "?") {
		endpoint = fmt.Sprintf("%s?queries=%d", endpoint, c.cfg.Queries.Count)
	}
	// container names resolve over the shared bridge network
	return fmt.Sprintf("http://%s:%d%s", handle.Name, c.cfg.Server.Port, endpoint)
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
