package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/internal/bootstrap"
	"github.com/alphaintel/modelgov/internal/config"
)

type workerFlags struct {
	WorkerID   string
	ConfigFile string
	LogLevel   string
	LogFormat  string
}

func main() {
	flags := parseFlags()

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if flags.LogLevel != "" {
		cfg.LogLevel = flags.LogLevel
	}
	if flags.LogFormat != "" {
		cfg.LogFormat = flags.LogFormat
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	logger.WithFields(logrus.Fields{
		"workerID":      flags.WorkerID,
		"cycleInterval": cfg.Lifecycle.CycleInterval,
		"storage":       cfg.Storage.Backend,
	}).Info("Starting model lifecycle worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	components, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize components")
	}
	defer components.Close()

	if err := components.Metrics.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start metrics server")
	}

	done := make(chan struct{})
	go func() {
		components.Orchestrator.Run(ctx)
		close(done)
	}()

	<-sigChan
	logger.Info("Shutdown signal received")

	components.Orchestrator.Stop()
	cancel()

	select {
	case <-done:
		logger.Info("All lifecycle loops stopped")
	case <-time.After(30 * time.Second):
		logger.Warn("Shutdown timeout exceeded, exiting")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := components.Metrics.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Metrics shutdown failed")
	}

	logger.Info("Worker stopped")
}

func parseFlags() *workerFlags {
	flags := &workerFlags{}

	flag.StringVar(&flags.WorkerID, "worker-id", generateWorkerID(), "Unique worker ID")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to configuration file")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level")
	flag.StringVar(&flags.LogFormat, "log-format", "", "Log format")

	flag.Parse()

	return flags
}

func setupLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func generateWorkerID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}
