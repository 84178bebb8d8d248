package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"rg-bench/internal/config"
	"rg-bench/internal/database"
	"rg-bench/internal/docker"
	"rg-bench/internal/energy"
	"rg-bench/internal/logging"
	"rg-bench/internal/session"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const Version = "1.0.0"

func loadEnvironment() {
	logger := logging.GetLogger()

	envFile := ".env"
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
		} else {
			logger.WithField("file", envFile).Debug("Loaded environment variables")
		}
	} else if execPath, err := os.Executable(); err == nil {
		envFile = filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
			} else {
				logger.WithField("file", envFile).Debug("Loaded environment variables")
			}
		}
	}
}

// Execute parses arguments and runs the selected command.
func Execute() error {
	loadEnvironment()

	var (
		configFile string
		framework  string
		language   string
		modeName   string
		image      string
		outputDir  string
		runs       int
		logLevel   string
	)

	rootCmd := &cobra.Command{
		Use:     "rg-bench",
		Short:   "Web framework benchmarking orchestrator",
		Long:    "Drives containerized web frameworks through load tests and collects energy measurements",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel != "" {
				if err := logging.SetLogLevel(logLevel); err != nil {
					return fmt.Errorf("invalid log level: %w", err)
				}
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (trace, debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a benchmark session",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := config.ParseMode(modeName)
			if err != nil {
				return err
			}
			cfg, err := loadConfiguration(configFile, mode)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("runs") {
				cfg.Energy.Runs = runs
			}
			return runSession(cfg, session.Options{
				Framework: framework,
				Language:  language,
				OutputDir: outputDir,
				Image:     image,
			})
		},
	}

	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to benchmark configuration file")
	runCmd.Flags().StringVarP(&framework, "framework", "f", "", "Framework under test")
	runCmd.Flags().StringVarP(&language, "language", "l", "python", "Implementation language of the framework")
	runCmd.Flags().StringVarP(&modeName, "mode", "m", "profile", "Benchmark mode (profile, energy, standard, quick)")
	runCmd.Flags().StringVar(&image, "image", "", "Container image override")
	runCmd.Flags().StringVarP(&outputDir, "output", "o", "results", "Directory results are written to")
	runCmd.Flags().IntVar(&runs, "runs", 0, "Override the number of energy measurement runs")
	runCmd.MarkFlagRequired("framework")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a benchmark configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := config.ParseMode(modeName)
			if err != nil {
				return err
			}
			return validateConfiguration(configFile, mode)
		},
	}

	validateCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to benchmark configuration file")
	validateCmd.Flags().StringVarP(&modeName, "mode", "m", "profile", "Benchmark mode to validate against")
	validateCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)

	return rootCmd.Execute()
}

func loadConfiguration(configFile string, mode config.Mode) (*config.Config, error) {
	logger := logging.GetLogger()

	if configFile == "" {
		logger.WithField("mode", mode).Debug("No configuration file given, using defaults")
		return config.DefaultConfig(mode), nil
	}

	cfg, err := config.LoadConfig(configFile, mode)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Failed to load configuration")
		return nil, err
	}

	if cfg.Benchmark.LogLevel != "" {
		if err := logging.SetLogLevel(cfg.Benchmark.LogLevel); err != nil {
			logger.WithField("log_level", cfg.Benchmark.LogLevel).WithError(err).Warn("Invalid log level in config, using INFO")
		}
	}
	return cfg, nil
}

func validateConfiguration(configFile string, mode config.Mode) error {
	logger := logging.GetLogger()

	if _, err := config.LoadConfig(configFile, mode); err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Configuration validation failed")
		return err
	}
	logger.WithField("config_file", configFile).Info("Configuration is valid")
	return nil
}

func runSession(cfg *config.Config, opts session.Options) error {
	logger := logging.GetLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received interrupt signal, shutting down")
		cancel()
	}()

	api, err := docker.NewClient()
	if err != nil {
		logger.WithError(err).Error("Failed to create Docker client")
		return fmt.Errorf("failed to create Docker client: %w", err)
	}
	defer api.Close()

	var sink energy.Sink
	if cfg.Data.DB.Enabled {
		influx, err := database.NewInfluxDBSink(cfg.Data.DB, opts.Framework, opts.Language)
		if err != nil {
			logger.WithError(err).Warn("Results database unavailable, continuing without export")
		} else {
			sink = database.NewSpooledSink(influx, database.DefaultSpoolDir(), opts.Framework, opts.Language)
			defer influx.Close()
		}
	}

	s := session.New(api, cfg, sink, opts)
	if err := s.Run(ctx); err != nil {
		logger.WithError(err).Error("Benchmark session failed")
		return err
	}

	logger.WithFields(logrus.Fields{
		"framework": opts.Framework,
		"mode":      cfg.Mode,
	}).Info("Benchmark session completed")
	return nil
}
