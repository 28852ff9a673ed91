package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cam3ron2/commit-ingest/internal/app"
	"github.com/cam3ron2/commit-ingest/internal/config"
	"github.com/cam3ron2/commit-ingest/internal/secret"
	"github.com/cam3ron2/commit-ingest/internal/telemetry"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "commit-ingest: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath   string
	envFile      string
	encryptToken string
}

func parseFlags(args []string) (options, error) {
	var opts options
	flags := flag.NewFlagSet("commit-ingest", flag.ContinueOnError)
	flags.StringVar(&opts.configPath, "config", "config/local.yaml", "path to YAML config file")
	flags.StringVar(&opts.envFile, "env-file", "", "optional .env file loaded before reading the environment")
	flags.StringVar(&opts.encryptToken, "encrypt-token", "", "print the encrypted form of a repository token and exit")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	if opts.encryptToken != "" {
		return encryptToken(cfg, opts.encryptToken, stdout)
	}
	return serve(cfg)
}

func loadConfig(path string) (*config.Config, error) {
	configFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = configFile.Close()
	}()

	cfg, err := config.LoadWithEnv(configFile, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func encryptToken(cfg *config.Config, token string, stdout io.Writer) error {
	key := ""
	if cfg != nil && cfg.WebHook.GitHub != nil {
		key = cfg.WebHook.GitHub.EncryptionKey
	}
	box, err := secret.NewBox(key)
	if err != nil {
		return fmt.Errorf("encrypt token: %w", err)
	}
	sealed, err := box.Encrypt(strings.TrimSpace(token))
	if err != nil {
		return fmt.Errorf("encrypt token: %w", err)
	}
	_, err = fmt.Fprintln(stdout, sealed)
	return err
}

func serve(cfg *config.Config) error {
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(cfg.Server.LogLevel))
	logger, err := loggerConfig.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil && !shouldIgnoreLoggerSyncError(syncErr) {
			_, _ = fmt.Fprintf(os.Stderr, "commit-ingest: sync logger: %v\n", syncErr)
		}
	}()

	telemetryRuntime, err := telemetry.Setup(context.Background(), telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      telemetry.ServiceName,
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
		ExporterEndpoint: cfg.Telemetry.OTELExporterEndpoint,
		ExporterHeaders:  cfg.Telemetry.OTELExporterHeaders,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetryRuntime.Shutdown(shutdownCtx)
	}()

	rootCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runtime, err := app.NewRuntime(rootCtx, cfg, app.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if closeErr := runtime.Close(closeCtx); closeErr != nil {
			logger.Warn("failed to close runtime backends", zap.Error(closeErr))
		}
	}()
	runtime.Start(rootCtx)

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           runtime.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting",
			zap.String("addr", cfg.Server.ListenAddr),
			zap.String("webhook_path", cfg.Server.WebhookPath),
		)
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serverErrCh <- serveErr
		}
		close(serverErrCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-serverErrCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// shouldIgnoreLoggerSyncError reports Sync errors raised for stdout/stderr
// handles that do not support fsync.
func shouldIgnoreLoggerSyncError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
