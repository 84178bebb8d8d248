package database

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rg-bench/internal/energy"
	"rg-bench/internal/logging"
)

// SpoolArtifact holds results whose export to the database failed. Spooled
// files can be re-ingested once the database is reachable again.
type SpoolArtifact struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`

	Framework string `json:"framework"`
	Language  string `json:"language"`

	Runs      map[int]*energy.MeasurementReport `json:"runs,omitempty"`
	Aggregate *energy.AggregateStatistics       `json:"aggregate,omitempty"`
}

func DefaultSpoolDir() string {
	if v := strings.TrimSpace(os.Getenv("RG_BENCH_SPOOL_DIR")); v != "" {
		return v
	}
	return "spool"
}

// WriteSpoolArtifact writes a gzip-compressed JSON artifact to disk atomically.
// It returns the final file path.
func WriteSpoolArtifact(dir string, artifact *SpoolArtifact) (string, error) {
	if artifact == nil {
		return "", fmt.Errorf("spool artifact is nil")
	}
	if dir == "" {
		dir = DefaultSpoolDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := fmt.Sprintf(
		"%s_%s_%s.json.gz",
		artifact.Language,
		artifact.Framework,
		artifact.CreatedAt.UTC().Format("20060102T150405Z"),
	)
	finalPath := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, name+".tmp.*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			_ = os.Remove(tmpPath)
		}
	}()

	gz := gzip.NewWriter(tmp)
	enc := json.NewEncoder(gz)
	enc.SetIndent("", "  ")
	if err := enc.Encode(artifact); err != nil {
		_ = gz.Close()
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", err
	}
	ok = true
	return finalPath, nil
}

// SpooledSink wraps another sink and spools payloads whose export fails so
// the measurement session never loses results to a database outage.
type SpooledSink struct {
	inner     energy.Sink
	dir       string
	framework string
	language  string

	pending *SpoolArtifact
}

func NewSpooledSink(inner energy.Sink, dir, framework, language string) *SpooledSink {
	return &SpooledSink{
		inner:     inner,
		dir:       dir,
		framework: framework,
		language:  language,
	}
}

func (s *SpooledSink) artifact() *SpoolArtifact {
	if s.pending == nil {
		s.pending = &SpoolArtifact{
			Version:   1,
			CreatedAt: time.Now(),
			Framework: s.framework,
			Language:  s.language,
			Runs:      make(map[int]*energy.MeasurementReport),
		}
	}
	return s.pending
}

func (s *SpooledSink) WriteRun(run int, report *energy.MeasurementReport) error {
	if err := s.inner.WriteRun(run, report); err != nil {
		s.artifact().Runs[run] = report
		return err
	}
	return nil
}

func (s *SpooledSink) WriteAggregate(stats *energy.AggregateStatistics) error {
	err := s.inner.WriteAggregate(stats)
	if err != nil {
		s.artifact().Aggregate = stats
	}
	if s.pending != nil {
		s.flush()
	}
	return err
}

func (s *SpooledSink) flush() {
	logger := logging.GetLogger()
	path, err := WriteSpoolArtifact(s.dir, s.pending)
	if err != nil {
		logger.WithError(err).Error("Failed to spool unexported results")
		return
	}
	logger.WithField("path", path).Warn("Export failed, results spooled for later ingest")
	s.pending = nil
}
