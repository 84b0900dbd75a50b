package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/INLOpen/nexuslog/archive"
	"github.com/INLOpen/nexuslog/compressors"
	"github.com/INLOpen/nexuslog/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const serviceName = "nexuslog-archive"

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// newLogger builds the process logger from configuration. The returned
// cleanup closes the log file when output goes to one.
func newLogger(cfg config.LoggingConfig) (*slog.Logger, func() error, error) {
	level, ok := logLevels[strings.ToLower(cfg.Level)]
	if !ok {
		return nil, nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}
	opts := &slog.HandlerOptions{Level: level}
	noCleanup := func() error { return nil }

	switch strings.ToLower(cfg.Output) {
	case "stdout":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), noCleanup, nil
	case "none":
		return slog.New(slog.NewJSONHandler(io.Discard, opts)), noCleanup, nil
	case "file":
		if cfg.File == "" {
			return nil, nil, errors.New("log output is \"file\" but no file path is set")
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		return slog.New(slog.NewJSONHandler(f, opts)), f.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown log output %q", cfg.Output)
}

// setupTracing installs an OTLP-exporting tracer provider when tracing is
// enabled and returns a shutdown function. Disabled tracing installs
// nothing and the WAL types fall back to their noop tracers.
func setupTracing(ctx context.Context, cfg config.TracingConfig, logger *slog.Logger) (func(), error) {
	if !cfg.Enabled {
		return func() {}, nil
	}

	var client otlptrace.Client
	switch strings.ToLower(cfg.Protocol) {
	case "grpc":
		client = otlptracegrpc.NewClient(otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
	case "http":
		client = otlptracehttp.NewClient(otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
	default:
		return nil, fmt.Errorf("unsupported tracing protocol %q", cfg.Protocol)
	}
	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	logger.Info("Tracing enabled.", "protocol", cfg.Protocol, "endpoint", cfg.Endpoint)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("Tracer provider shutdown failed.", "error", err)
		}
	}, nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	restore := flag.Bool("restore", false, "Decompress archived segments instead of archiving new ones")
	outDir := flag.String("out", "", "Directory restored segments are written to (default <wal dir>/restored)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration.", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger, logCleanup, err := newLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to create logger.", "error", err)
		os.Exit(1)
	}
	defer logCleanup()

	if cfg.WAL.Dir == "" {
		logger.Error("wal dir must be specified in the configuration file.")
		os.Exit(1)
	}

	compressor, err := compressors.ForName(cfg.Archive.Compression)
	if err != nil {
		logger.Error("Invalid compression value in config.", "value", cfg.Archive.Compression, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	tracerCleanup, err := setupTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Error("Failed to initialize tracing.", "error", err)
		os.Exit(1)
	}
	defer tracerCleanup()

	manager, err := archive.NewManager(archive.Options{
		WALDir:      cfg.WAL.Dir,
		ArchiveDir:  cfg.Archive.Dir,
		Compressor:  compressor,
		Concurrency: cfg.Archive.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("Failed to create archive manager.", "error", err)
		os.Exit(1)
	}

	if *restore {
		result, err := manager.Restore(ctx, *outDir)
		if err != nil {
			logger.Error("Restore pass failed.", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Restored %d segment(s), skipped %d already restored, %d corruption(s) detected.\n",
			result.Restored, result.SkippedExisting, result.CorruptionDetections)
		return
	}

	result, err := manager.Run(ctx)
	if err != nil {
		logger.Error("Archive pass failed.", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Archived %d segment(s), skipped %d already archived, %d corruption(s) detected.\n",
		result.Archived, result.SkippedExisting, result.CorruptionDetections)
	if result.Archived > 0 {
		ratio := float64(result.BytesOut) / float64(result.BytesIn)
		fmt.Printf("Compressed %d bytes to %d bytes (ratio %.2f).\n", result.BytesIn, result.BytesOut, ratio)
	}
}
