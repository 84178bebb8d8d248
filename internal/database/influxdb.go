package database

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"rg-bench/internal/config"
	"rg-bench/internal/energy"
	"rg-bench/internal/logging"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"
)

// SystemInfo describes the host the measurements were taken on.
type SystemInfo struct {
	Hostname      string
	OSInfo        string
	KernelVersion string
	CPUVendor     string
	CPUModel      string
	CPUCores      int
}

func collectSystemInfo() *SystemInfo {
	info := &SystemInfo{}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	info.Hostname = hostname
	info.OSInfo = runtime.GOOS + "/" + runtime.GOARCH

	if data, err := os.ReadFile("/proc/version"); err == nil {
		parts := strings.Fields(string(data))
		if len(parts) >= 3 {
			info.KernelVersion = parts[2]
		}
	}
	if info.KernelVersion == "" {
		info.KernelVersion = "unknown"
	}

	if data, err := os.ReadFile("/proc/cpuinfo"); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "vendor_id") {
				if parts := strings.Split(line, ":"); len(parts) >= 2 {
					info.CPUVendor = strings.TrimSpace(parts[1])
				}
			} else if strings.HasPrefix(line, "model name") {
				if parts := strings.Split(line, ":"); len(parts) >= 2 {
					info.CPUModel = strings.TrimSpace(parts[1])
				}
			}
		}
	}
	if info.CPUVendor == "" {
		info.CPUVendor = "unknown"
	}
	if info.CPUModel == "" {
		info.CPUModel = "unknown"
	}

	info.CPUCores = runtime.NumCPU()
	return info
}

// InfluxDBSink exports measurement reports to InfluxDB. It implements
// energy.Sink.
type InfluxDBSink struct {
	client    influxdb2.Client
	writeAPI  api.WriteAPIBlocking
	bucket    string
	org       string
	framework string
	language  string
	sysInfo   *SystemInfo
}

// NewInfluxDBSink connects to InfluxDB using the configured host and the
// INFLUXDB_TOKEN environment variable. The connection is health-checked
// before any writes.
func NewInfluxDBSink(cfg config.InfluxConfig, framework, language string) (*InfluxDBSink, error) {
	logger := logging.GetLogger()

	token := os.Getenv("INFLUXDB_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("INFLUXDB_TOKEN is not set")
	}

	client := influxdb2.NewClient(cfg.Host, token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		logger.WithField("host", cfg.Host).WithError(err).Error("Failed to connect to InfluxDB")
		return nil, err
	}
	if health.Status != "pass" {
		logger.WithFields(logrus.Fields{
			"host":    cfg.Host,
			"status":  health.Status,
			"message": health.Message,
		}).Error("InfluxDB health check failed")
		return nil, fmt.Errorf("influxdb health check failed: %s", health.Status)
	}

	logger.WithFields(logrus.Fields{
		"host":   cfg.Host,
		"bucket": cfg.Bucket,
		"org":    cfg.Org,
	}).Info("Connected to InfluxDB")

	return &InfluxDBSink{
		client:    client,
		writeAPI:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		bucket:    cfg.Bucket,
		org:       cfg.Org,
		framework: framework,
		language:  language,
		sysInfo:   collectSystemInfo(),
	}, nil
}

func (s *InfluxDBSink) tags(extra map[string]string) map[string]string {
	t := map[string]string{
		"framework": s.framework,
		"language":  s.language,
		"hostname":  s.sysInfo.Hostname,
	}
	for k, v := range extra {
		t[k] = v
	}
	return t
}

// WriteRun exports one measurement cycle.
func (s *InfluxDBSink) WriteRun(run int, report *energy.MeasurementReport) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	point := influxdb2.NewPoint("energy_run",
		s.tags(map[string]string{
			"run": fmt.Sprintf("%d", run),
		}),
		map[string]interface{}{
			"energy_wh":        report.Energy.TotalWattHours,
			"cpu_energy_wh":    report.Energy.CPUWattHours,
			"ram_energy_wh":    report.Energy.RAMWattHours,
			"gpu_energy_wh":    report.Energy.GPUWattHours,
			"cpu_power_w":      report.Power.CPUWatts,
			"ram_power_w":      report.Power.RAMWatts,
			"emissions_mg":     report.Emissions.MgCarbon,
			"duration_seconds": report.DurationSeconds,
		},
		time.Now())

	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("failed to write run point: %w", err)
	}
	return nil
}

// WriteAggregate exports the cross-run statistics plus host metadata.
func (s *InfluxDBSink) WriteAggregate(stats *energy.AggregateStatistics) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fields := map[string]interface{}{
		"runs":            stats.Runs,
		"os_info":         s.sysInfo.OSInfo,
		"kernel_version":  s.sysInfo.KernelVersion,
		"cpu_vendor":      s.sysInfo.CPUVendor,
		"cpu_model":       s.sysInfo.CPUModel,
		"total_cpu_cores": s.sysInfo.CPUCores,
	}
	for metric, ms := range stats.Statistics {
		fields[metric+"_mean"] = ms.Mean
		fields[metric+"_median"] = ms.Median
		fields[metric+"_stddev"] = ms.Stddev
		fields[metric+"_min"] = ms.Min
		fields[metric+"_max"] = ms.Max
		fields[metric+"_cv"] = ms.CoefficientOfVariation
	}

	point := influxdb2.NewPoint("energy_aggregate", s.tags(nil), fields, time.Now())
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("failed to write aggregate point: %w", err)
	}
	return nil
}

func (s *InfluxDBSink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
