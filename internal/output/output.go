// Package output owns the on-disk layout of a measurement session.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"rg-bench/internal/config"
	"rg-bench/internal/logging"
)

const (
	energyReportFile    = "energy.json"
	aggregateFile       = "energy_runs.json"
	containerLogFile    = "container.log"
	emissionsFile       = "emissions.csv"
	energySubdir        = "energy"
	scaleneSubdir       = "scalene"
	runsSubdir          = "runs"
)

// Session is one output directory: results/<language>/<framework>/<mode>.
// The energy/ subdirectory is mounted into the container as the tracker's
// output target; runs/ holds per-run artifacts and reports.
type Session struct {
	Root string
}

func NewSession(baseDir, language, framework string, mode config.Mode) (*Session, error) {
	root := filepath.Join(baseDir, language, framework, mode.String())
	for _, dir := range []string{root, filepath.Join(root, energySubdir), filepath.Join(root, scaleneSubdir), filepath.Join(root, runsSubdir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	return &Session{Root: root}, nil
}

// MountDir is the directory bound to /output inside the container.
func (s *Session) MountDir() string {
	return s.Root
}

// LiveArtifact is where the in-container tracker materializes its file.
func (s *Session) LiveArtifact() string {
	return filepath.Join(s.Root, energySubdir, emissionsFile)
}

func (s *Session) EnergyDir() string {
	return filepath.Join(s.Root, energySubdir)
}

// RunDir creates and returns the directory for one numbered run.
func (s *Session) RunDir(run int) (string, error) {
	dir := filepath.Join(s.Root, runsSubdir, fmt.Sprintf("run_%d", run))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}
	return dir, nil
}

func (s *Session) RunArtifact(runDir string) string {
	return filepath.Join(runDir, emissionsFile)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	logging.GetLogger().WithField("path", path).Debug("Report written")
	return nil
}

// WriteRunReport saves one run's energy.json next to its artifact.
func (s *Session) WriteRunReport(runDir string, report any) error {
	return writeJSON(filepath.Join(runDir, energyReportFile), report)
}

// WriteSessionReport saves the session-level energy.json (standard mode
// parses the artifact once rather than per run).
func (s *Session) WriteSessionReport(report any) error {
	return writeJSON(filepath.Join(s.Root, energyReportFile), report)
}

// WriteAggregate saves the combined per-run statistics.
func (s *Session) WriteAggregate(stats any) error {
	return writeJSON(filepath.Join(s.Root, aggregateFile), stats)
}

// WriteContainerLog captures the measured container's output.
func (s *Session) WriteContainerLog(logs string) error {
	path := filepath.Join(s.Root, containerLogFile)
	if err := os.WriteFile(path, []byte(logs), 0o644); err != nil {
		return fmt.Errorf("failed to write container log: %w", err)
	}
	return nil
}
