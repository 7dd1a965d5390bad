// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Command jsdispatch starts the HTTP dispatch servers described by a YAML or
// TOML configuration file and stops them on SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

var (
	Version   = "dev"
	BuildDate = "unknown"
	Commit    = "unknown"
	help      bool
	version   bool
	// logging
	logLevel string
	logFile  string
	// server config
	configPath      string
	host            string
	queueSize       uint
	shutdownTimeout time.Duration
)

func init() {
	flag.BoolVar(&help, "help", false, "Display help information and exit")
	flag.BoolVar(&help, "h", false, "Display help information and exit")
	flag.BoolVar(&version, "version", false, "Display version information and exit")
	flag.BoolVar(&version, "v", false, "Display version information and exit")
	flag.StringVar(&configPath, "config", "", "Server configuration file (.yaml, .yml or .toml)")
	flag.StringVar(&host, "host", "0.0.0.0", "Interface the servers listen on")
	flag.UintVar(&queueSize, "queue-size", 256, "Pending request capacity per server")
	flag.DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "Upper bound for draining each server on exit")
	// log config
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&logFile, "log-file", "", "Log file path (if not set, logs to stderr)")
}

func main() {
	flag.Parse()

	// Creates a new Logger that uses a JSONHandler
	loggerOptions := &slog.HandlerOptions{
		AddSource: false,
		Level:     logLevelFromString(logLevel),
	}
	logWriter := configureLogWriter()
	defaultLogger := slog.New(slog.NewJSONHandler(logWriter, loggerOptions))
	// Also routes console.* output of scripts, which uses the log package
	slog.SetDefault(defaultLogger)

	if version {
		printVersion()
		return
	}
	if help || configPath == "" {
		printHelp()
		if !help {
			os.Exit(2)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, configPath, defaultLogger); err != nil {
		defaultLogger.Error("jsdispatch failed", "error", err)
		os.Exit(1)
	}
}

// run loads the configuration, starts every server and blocks until ctx is
// done, then shuts everything down.
func run(ctx context.Context, path string, logger *slog.Logger) error {
	if uint64(queueSize) > math.MaxUint32 {
		return fmt.Errorf("queue-size %d exceeds %d", queueSize, uint64(math.MaxUint32))
	}
	a, err := newApp(path, logger, appOptions{
		host:            host,
		queueSize:       uint32(queueSize),
		shutdownTimeout: shutdownTimeout,
	})
	if err != nil {
		return err
	}
	if err := a.start(); err != nil {
		_ = a.close(context.Background())
		return err
	}

	<-ctx.Done()
	logger.Info("Signal received, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.close(shutdownCtx)
}

func configureLogWriter() *os.File {
	var logWriter *os.File
	var err error
	if logFile != "" {
		// Create parent directories if they don't exist
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log directory for '%s': %v; falling back to stderr\n", logFile, err)
			return os.Stderr
		}
		logWriter, err = os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file '%s': %v; falling back to stderr\n", logFile, err)
			logWriter = os.Stderr
		}
	} else {
		logWriter = os.Stderr
	}
	return logWriter
}

func printVersion() {
	fmt.Printf("jsdispatch version '%s' %s %s\n", Version, BuildDate, Commit)
}

func printHelp() {
	fmt.Printf(`Usage: jsdispatch -config <file> [options]

Options:
  -config <path>            Server configuration file (.yaml, .yml or .toml). Required.
  -host <addr>              Interface the servers listen on. Default is '0.0.0.0'.
  -queue-size <n>           Pending request capacity per server. Default is 256.
  -shutdown-timeout <dur>   Upper bound for draining each server on exit. Default is 30s.
  -log-level <level>        Set the log level: debug, info, warn, error. Default is 'info'.
  -log-file <path>          Specify a log file to write logs. Default is stderr.
  -help                     Display this help information and exit.
  -version                  Display version information and exit.

Engines available in this build: %s

Version Information:
  Version:    %s
  Build Date: %s
  Commit:     %s
`, strings.Join(availableEngines(), ", "), Version, BuildDate, Commit)
}

func logLevelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
