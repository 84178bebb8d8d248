package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"rg-bench/internal/logging"

	"gopkg.in/yaml.v3"
)

// Canonical defaults. The shipped mode config files override these; CLI
// flags override both.
func DefaultConfig(mode Mode) *Config {
	cfg := &Config{
		Benchmark: BenchmarkInfo{
			LogLevel: "info",
		},
		Wrk: WrkConfig{
			Image:       "rg-profiler-wrk",
			Duration:    15,
			Concurrency: 8,
			Threads:     1,
			ScriptRoot:  "wrk",
		},
		Server: ServerConfig{
			Port:            8080,
			HealthPath:      "/json",
			StartupTimeout:  45,
			HealthInterval:  2,
			WarmupTime:      3,
			RecoveryTime:    5,
			ShutdownTimeout: 10,
		},
		Docker: DockerConfig{
			Network:         "rg-profiler-network",
			ContainerPrefix: "rg-profiler",
			StopTimeout:     10,
		},
		Database: DatabaseConfig{
			Type: "postgres",
		},
		Energy: EnergyConfig{
			Runs:             3,
			RunInterval:      10,
			SamplingInterval: 0.5,
			ArtifactTimeout:  30,
			ArtifactMinBytes: 128,
			Units: UnitsConfig{
				Energy:    "Wh",
				Emissions: "mg",
				Duration:  "s",
			},
		},
		Queries: QueriesConfig{
			Count: 20,
		},
		Mode: mode,
	}
	if mode == ModeStandard {
		cfg.Energy.Runs = 1
		cfg.Energy.SamplingInterval = 1.0
	}
	return cfg
}

// LoadConfig reads a YAML config file over the defaults for the given mode.
// An empty path yields the defaults unchanged.
func LoadConfig(filepath string, mode Mode) (*Config, error) {
	logger := logging.GetLogger()

	cfg := DefaultConfig(mode)
	if filepath != "" {
		data, err := os.ReadFile(filepath)
		if err != nil {
			logger.WithField("filepath", filepath).WithError(err).Error("Failed to read config file")
			return nil, err
		}

		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			logger.WithField("filepath", filepath).WithError(err).Error("Failed to parse config file")
			return nil, err
		}
		cfg.Mode = mode
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		envVar := strings.Trim(match, "${}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

var validEnergyUnits = map[string]bool{"Wh": true, "kWh": true, "J": true, "kJ": true}
var validEmissionUnits = map[string]bool{"mg": true, "g": true, "kg": true}
var validDurationUnits = map[string]bool{"s": true, "ms": true, "min": true}

func validateConfig(cfg *Config) error {
	var problems []string

	if cfg.Wrk.Duration <= 0 {
		problems = append(problems, "wrk.duration must be positive")
	}
	if cfg.Wrk.Concurrency <= 0 {
		problems = append(problems, "wrk.max_concurrency must be positive")
	}
	if cfg.Wrk.Threads <= 0 {
		problems = append(problems, "wrk.threads must be positive")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", cfg.Server.Port))
	}
	if cfg.Server.StartupTimeout <= 0 {
		problems = append(problems, "server.startup_timeout must be positive")
	}
	if cfg.Server.HealthInterval <= 0 {
		problems = append(problems, "server.health_interval must be positive")
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		problems = append(problems, "server.shutdown_timeout must be positive")
	}
	if cfg.Energy.Runs < 1 {
		problems = append(problems, "energy.runs must be at least 1")
	}
	if cfg.Energy.ArtifactTimeout <= 0 {
		problems = append(problems, "energy.artifact_timeout must be positive")
	}
	if cfg.Energy.ArtifactMinBytes <= 0 {
		problems = append(problems, "energy.artifact_min_bytes must be positive")
	}
	if _, ok := databasePorts[cfg.Database.Type]; !ok {
		problems = append(problems, fmt.Sprintf("database.type %q not supported", cfg.Database.Type))
	}
	if !validEnergyUnits[cfg.Energy.Units.Energy] {
		problems = append(problems, fmt.Sprintf("energy.units.energy %q not supported", cfg.Energy.Units.Energy))
	}
	if !validEmissionUnits[cfg.Energy.Units.Emissions] {
		problems = append(problems, fmt.Sprintf("energy.units.emissions %q not supported", cfg.Energy.Units.Emissions))
	}
	if !validDurationUnits[cfg.Energy.Units.Duration] {
		problems = append(problems, fmt.Sprintf("energy.units.duration %q not supported", cfg.Energy.Units.Duration))
	}
	for i, test := range cfg.Tests {
		if test.Name == "" {
			problems = append(problems, fmt.Sprintf("tests[%d]: name is required", i))
		}
		if test.Endpoint == "" || !strings.HasPrefix(test.Endpoint, "/") {
			problems = append(problems, fmt.Sprintf("tests[%d] (%s): endpoint must start with /", i, test.Name))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
