package config

import (
	"fmt"
	"time"
)

type Config struct {
	Benchmark BenchmarkInfo    `yaml:"benchmark"`
	Wrk       WrkConfig        `yaml:"wrk"`
	Server    ServerConfig     `yaml:"server"`
	Docker    DockerConfig     `yaml:"docker"`
	Database  DatabaseConfig   `yaml:"database"`
	Energy    EnergyConfig     `yaml:"energy"`
	Queries   QueriesConfig    `yaml:"queries"`
	Data      DataConfig       `yaml:"data"`
	Tests     []TestDefinition `yaml:"tests"`

	// Mode is set by the loader, not by YAML.
	Mode Mode `yaml:"-"`
}

type BenchmarkInfo struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	LogLevel    string `yaml:"log_level"`
}

type WrkConfig struct {
	Image       string `yaml:"image"`
	Duration    int    `yaml:"duration"`
	Concurrency int    `yaml:"max_concurrency"`
	Threads     int    `yaml:"threads"`
	ScriptRoot  string `yaml:"script_root"`
}

type ServerConfig struct {
	Port            int    `yaml:"port"`
	HealthPath      string `yaml:"health_path"`
	StartupTimeout  int    `yaml:"startup_timeout"`
	HealthInterval  int    `yaml:"health_interval"`
	WarmupTime      int    `yaml:"warmup_time"`
	RecoveryTime    int    `yaml:"recovery_time"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"`
}

type DockerConfig struct {
	Network         string `yaml:"network"`
	ContainerPrefix string `yaml:"container_prefix"`
	StopTimeout     int    `yaml:"stop_timeout"`
	// Port optionally publishes the server port to the host, format
	// "host:container". Load tests run inside the network and do not
	// need it.
	Port string `yaml:"port,omitempty"`
}

// DatabaseConfig describes the out-of-band database the framework talks to.
// The orchestrator only injects connection details; it never manages the
// database container.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	Host string `yaml:"host,omitempty"`
}

type EnergyConfig struct {
	Runs             int         `yaml:"runs"`
	RunInterval      int         `yaml:"run_interval"`
	SamplingInterval float64     `yaml:"sampling_interval"`
	ArtifactTimeout  int         `yaml:"artifact_timeout"`
	ArtifactMinBytes int64       `yaml:"artifact_min_bytes"`
	Units            UnitsConfig `yaml:"units"`
}

// UnitsConfig selects the units the aggregate statistics are reported in.
// Conversions are pure arithmetic on the already parsed values.
type UnitsConfig struct {
	Energy    string `yaml:"energy"`    // Wh, kWh, J, kJ
	Emissions string `yaml:"emissions"` // mg, g, kg
	Duration  string `yaml:"duration"`  // s, ms, min
}

type QueriesConfig struct {
	Count int `yaml:"count"`
}

type DataConfig struct {
	DB InfluxConfig `yaml:"db"`
}

type InfluxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// TestDefinition is one load-test target. Immutable after loading.
type TestDefinition struct {
	Name        string `yaml:"name"`
	Endpoint    string `yaml:"endpoint"`
	Script      string `yaml:"script,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// ScriptName falls back to <name>.lua when the config names no script.
func (t TestDefinition) ScriptName() string {
	if t.Script != "" {
		return t.Script
	}
	return t.Name + ".lua"
}

var databasePorts = map[string]int{
	"postgres": 5432,
	"mysql":    3306,
	"mongodb":  27017,
}

func (d DatabaseConfig) PortNumber() int {
	if p, ok := databasePorts[d.Type]; ok {
		return p
	}
	return databasePorts["postgres"]
}

func (d DatabaseConfig) Hostname(prefix string) string {
	if d.Host != "" {
		return d.Host
	}
	return fmt.Sprintf("%s-%s", prefix, d.Type)
}

func (s ServerConfig) StartupTimeoutDuration() time.Duration {
	return time.Duration(s.StartupTimeout) * time.Second
}

func (s ServerConfig) HealthIntervalDuration() time.Duration {
	return time.Duration(s.HealthInterval) * time.Second
}

func (s ServerConfig) WarmupDuration() time.Duration {
	return time.Duration(s.WarmupTime) * time.Second
}

func (s ServerConfig) RecoveryDuration() time.Duration {
	return time.Duration(s.RecoveryTime) * time.Second
}

func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

func (e EnergyConfig) RunIntervalDuration() time.Duration {
	return time.Duration(e.RunInterval) * time.Second
}

func (e EnergyConfig) ArtifactTimeoutDuration() time.Duration {
	return time.Duration(e.ArtifactTimeout) * time.Second
}

// GetTests returns the configured tests, or the default set for the mode
// when the config lists none.
func (c *Config) GetTests() []TestDefinition {
	if len(c.Tests) > 0 {
		return c.Tests
	}
	return DefaultTests(c.Mode)
}
