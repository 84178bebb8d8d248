package session

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"rg-bench/internal/config"
	"rg-bench/internal/docker"
	"rg-bench/internal/energy"
	"rg-bench/internal/loadgen"
	"rg-bench/internal/logging"
	"rg-bench/internal/output"

	"github.com/sirupsen/logrus"
)

// Options identify the framework under test and where results land.
type Options struct {
	Framework string
	Language  string
	OutputDir string
	// Image overrides the derived image name when set.
	Image string
}

// Session drives one full benchmark: network setup, container startup,
// test execution per mode, graceful teardown, result collection.
type Session struct {
	manager *docker.Manager
	api     docker.API
	cfg     *config.Config
	sink    energy.Sink
	opts    Options
	logger  *logrus.Logger
}

func New(api docker.API, cfg *config.Config, sink energy.Sink, opts Options) *Session {
	return &Session{
		manager: docker.NewManager(api),
		api:     api,
		cfg:     cfg,
		sink:    sink,
		opts:    opts,
		logger:  logging.GetLogger(),
	}
}

func (s *Session) containerName() string {
	return fmt.Sprintf("%s-%s-%s", s.cfg.Docker.ContainerPrefix, s.opts.Language, s.opts.Framework)
}

func (s *Session) imageName() string {
	if s.opts.Image != "" {
		return s.opts.Image
	}
	return fmt.Sprintf("rg-profiler-%s-%s", s.opts.Language, s.opts.Framework)
}

// Run executes the benchmark for the configured mode. It always tears the
// measured container down before returning, even on failure.
func (s *Session) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"framework": s.opts.Framework,
		"language":  s.opts.Language,
		"mode":      s.cfg.Mode,
	}).Info("Starting benchmark session")

	if _, err := s.manager.EnsureNetwork(ctx, s.cfg.Docker.Network); err != nil {
		return err
	}

	out, err := output.NewSession(s.opts.OutputDir, s.opts.Language, s.opts.Framework, s.cfg.Mode)
	if err != nil {
		return err
	}

	handle, err := s.createContainer(ctx, out)
	if err != nil {
		return err
	}

	// Tolerant of the container already being gone: the mode handlers
	// shut it down themselves on the happy path.
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		if stopErr := s.manager.Stop(cleanupCtx, handle.Name, s.cfg.Docker.StopTimeout); stopErr != nil {
			s.logger.WithError(stopErr).Warn("Container cleanup failed")
		}
	}()

	runner := loadgen.NewRunner(s.api, s.cfg.Wrk, s.cfg.Docker.Network)

	switch s.cfg.Mode {
	case config.ModeEnergy:
		coordinator := energy.NewCoordinator(s.manager, runner, s.cfg, out, s.sink, s.opts.Framework, s.opts.Language, func(ctx context.Context) (*docker.Handle, error) {
			return s.createContainer(ctx, out)
		})
		_, err = coordinator.Run(ctx, handle)
		for _, rec := range coordinator.Records() {
			s.logger.WithFields(logrus.Fields{
				"run":      rec.Run,
				"timings":  rec.TestTimings,
				"artifact": rec.ArtifactPath,
			}).Debug("Run record")
		}
		return err
	case config.ModeQuick:
		return s.runQuick(ctx, runner, out, handle)
	case config.ModeProfile, config.ModeStandard:
		return s.runTestSequence(ctx, runner, out, handle)
	default:
		return fmt.Errorf("unknown mode %q", s.cfg.Mode)
	}
}

func (s *Session) createContainer(ctx context.Context, out *output.Session) (*docker.Handle, error) {
	return s.manager.Create(ctx, docker.CreateOptions{
		Image:   s.imageName(),
		Name:    s.containerName(),
		Network: s.cfg.Docker.Network,
		Volumes: []string{out.MountDir() + ":/output"},
		Env:     docker.BuildEnvironment(s.cfg),
		Port:    s.cfg.Docker.Port,
		Probe: docker.HealthProbe{
			Port:     s.cfg.Server.Port,
			Path:     s.cfg.Server.HealthPath,
			Timeout:  s.cfg.Server.StartupTimeoutDuration(),
			Interval: s.cfg.Server.HealthIntervalDuration(),
			Warmup:   s.cfg.Server.WarmupDuration(),
		},
		StopTimeout: s.cfg.Docker.StopTimeout,
	})
}

// runQuick exercises only the first test as a smoke check. Any test
// failure fails the session.
func (s *Session) runQuick(ctx context.Context, runner *loadgen.Runner, out *output.Session, handle *docker.Handle) error {
	tests := s.cfg.GetTests()
	if len(tests) == 0 {
		return fmt.Errorf("no tests configured")
	}
	test := tests[0]

	if !runner.Run(ctx, s.testURL(handle, test), test.ScriptName(), s.cfg.Wrk.Duration, s.cfg.Wrk.Concurrency, s.cfg.Mode) {
		s.saveContainerLog(ctx, out, handle)
		return fmt.Errorf("quick verification failed on test %s", test.Name)
	}

	s.finishContainer(ctx, out, handle)
	s.logger.Info("Quick verification passed")
	return nil
}

// runTestSequence runs every configured test with recovery pauses in
// between. Individual test failures are reported but do not abort the
// sequence.
func (s *Session) runTestSequence(ctx context.Context, runner *loadgen.Runner, out *output.Session, handle *docker.Handle) error {
	tests := s.cfg.GetTests()
	failed := 0
	for i, test := range tests {
		s.logger.WithFields(logrus.Fields{
			"test":     test.Name,
			"progress": fmt.Sprintf("%d/%d", i+1, len(tests)),
		}).Info("Running test")

		if !runner.Run(ctx, s.testURL(handle, test), test.ScriptName(), s.cfg.Wrk.Duration, s.cfg.Wrk.Concurrency, s.cfg.Mode) {
			failed++
			s.logger.WithField("test", test.Name).Warn("Test failed")
		}

		if i < len(tests)-1 {
			if !sleepCtx(ctx, s.cfg.Server.RecoveryDuration()) {
				return ctx.Err()
			}
		}
	}

	s.finishContainer(ctx, out, handle)

	if s.cfg.Mode == config.ModeStandard {
		s.collectEnergyReport(out)
	}

	if failed > 0 {
		s.logger.WithFields(logrus.Fields{
			"failed": failed,
			"total":  len(tests),
		}).Warn("Session finished with test failures")
	} else {
		s.logger.WithField("tests", len(tests)).Info("All tests passed")
	}
	return nil
}

// finishContainer captures logs and shuts the server down so in-container
// tooling flushes its artifacts.
func (s *Session) finishContainer(ctx context.Context, out *output.Session, handle *docker.Handle) {
	s.saveContainerLog(ctx, out, handle)
	if !s.manager.Shutdown(ctx, handle.ID, s.cfg.Server.Port, s.cfg.Server.ShutdownTimeoutDuration(), s.cfg.Docker.StopTimeout) {
		s.logger.Warn("Container did not shut down gracefully")
	}
}

func (s *Session) saveContainerLog(ctx context.Context, out *output.Session, handle *docker.Handle) {
	logs, err := s.manager.Logs(ctx, handle.ID, 500)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to capture container logs")
		return
	}
	if err := out.WriteContainerLog(logs); err != nil {
		s.logger.WithError(err).Warn("Failed to save container log")
	}
}

// collectEnergyReport parses the tracker artifact when present. Standard
// mode treats energy data as best effort.
func (s *Session) collectEnergyReport(out *output.Session) {
	path := out.LiveArtifact()
	deadline := time.Now().Add(10 * time.Second)
	for {
		if info, err := os.Stat(path); err == nil && info.Size() >= s.cfg.Energy.ArtifactMinBytes {
			break
		}
		if time.Now().After(deadline) {
			s.logger.WithField("path", path).Warn("No energy data produced")
			return
		}
		time.Sleep(time.Second)
	}

	raw, err := energy.ParseEmissionsCSV(path)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to parse energy data")
		return
	}
	report := energy.BuildReport(raw, s.opts.Framework, s.opts.Language)
	if err := out.WriteSessionReport(report); err != nil {
		s.logger.WithError(err).Warn("Failed to write energy report")
		return
	}
	s.logger.WithField("energy_wh", report.Energy.TotalWattHours).Info("Energy report written")
}

func (s *Session) testURL(handle *docker.Handle, test config.TestDefinition) string {
	endpoint := test.Endpoint
	if (test.Name == "queries" || test.Name == "query") && !strings.Contains(endpoint, "?") {
		endpoint = fmt.Sprintf("%s?queries=%d", endpoint, s.cfg.Queries.Count)
	}
	return fmt.Sprintf("http://%s:%d%s", handle.Name, s.cfg.Server.Port, endpoint)
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
