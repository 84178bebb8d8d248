package docker

import (
	"fmt"
	"strconv"

	"rg-bench/internal/config"
)

// BuildEnvironment assembles the environment for the measured container.
// Pure function of (mode, config): the same inputs always yield the same
// variables in the same order.
func BuildEnvironment(cfg *config.Config) []string {
	env := []string{
		"PROFILING_MODE=" + cfg.Mode.String(),
		"DB_TYPE=" + cfg.Database.Type,
		"DB_HOST=" + cfg.Database.Hostname(cfg.Docker.ContainerPrefix),
		fmt.Sprintf("DB_PORT=%d", cfg.Database.PortNumber()),
		fmt.Sprintf("SERVER_PORT=%d", cfg.Server.Port),
		"PYTHONUNBUFFERED=1",
	}

	switch cfg.Mode {
	case config.ModeEnergy:
		env = append(env, trackerEnv(cfg)...)
		env = append(env, "USE_SCALENE=false")
	case config.ModeQuick:
		// quick mode exercises both tool paths
		env = append(env, trackerEnv(cfg)...)
		env = append(env, profilerEnv()...)
	case config.ModeProfile:
		env = append(env, profilerEnv()...)
	case config.ModeStandard:
		env = append(env, profilerEnv()...)
		env = append(env, trackerEnv(cfg)...)
	}
	return env
}

func trackerEnv(cfg *config.Config) []string {
	return []string{
		"CODECARBON_TRACKING_MODE=process",
		"CODECARBON_OUTPUT_DIR=/output/energy",
		"CODECARBON_OUTPUT_FILE=emissions.csv",
		"CODECARBON_MEASURE_POWER_SECS=" + strconv.FormatFloat(cfg.Energy.SamplingInterval, 'f', -1, 64),
		"CODECARBON_SAVE_TO_FILE=True",
		"ENERGY_MODE=true",
	}
}

func profilerEnv() []string {
	return []string{
		"SCALENE_OUTPUT=/output/scalene/scalene.json",
		"USE_SCALENE=true",
	}
}
