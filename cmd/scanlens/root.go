package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/exploopio/scanlens/pkg/config"
	"github.com/exploopio/scanlens/pkg/core"
	"github.com/exploopio/scanlens/pkg/detect"
	"github.com/exploopio/scanlens/pkg/factory"
	"github.com/exploopio/scanlens/pkg/logging"
	"github.com/exploopio/scanlens/pkg/metrics"
	"github.com/exploopio/scanlens/pkg/options"
	"github.com/exploopio/scanlens/pkg/parsers"
	"github.com/exploopio/scanlens/pkg/registry"
)

// app carries the global flags and the components built from them.
type app struct {
	configPath  string
	logLevel    string
	logFormat   string
	logFile     string
	metricsAddr string

	cfg       *config.Config
	logger    core.Logger
	closer    io.Closer
	registry  *registry.Registry
	collector metrics.Collector
	factory   *factory.Factory
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Normalize security scan reports into findings",
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	flags.StringVar(&a.logFile, "log-file", "", "write logs to this file, rotated")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while parsing")

	root.AddCommand(newParseCmd(a), newDetectCmd(a), newParsersCmd(a))
	return root
}

// setup loads the configuration, applies flag overrides and builds the
// logger, collector, registry and factory.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if flags.Changed("log-file") {
		cfg.Log.Output = "file"
		cfg.Log.FilePath = a.logFile
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = a.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	a.closer = closer
	a.logger = logging.Adapt(logger)
	core.SetDefaultLogger(a.logger)

	if cfg.Metrics.Addr != "" {
		prom, err := metrics.NewPrometheusCollector(&metrics.PrometheusConfig{Namespace: cfg.Metrics.Namespace})
		if err != nil {
			return err
		}
		a.collector = prom
	} else {
		a.collector = metrics.NewInMemoryCollector()
	}
	metrics.SetDefaultCollector(a.collector)

	a.registry = registry.New(registry.WithLogger(a.logger))
	if err := parsers.RegisterBuiltins(a.registry, a.logger); err != nil {
		return err
	}

	detector := detect.New()
	detector.PreviewSize = cfg.Parsing.PreviewSize

	a.factory = factory.New(
		options.WithRegistry(a.registry),
		options.WithDetector(detector),
		options.WithLogger(a.logger),
		options.WithCollector(a.collector),
		options.WithPreviewSize(cfg.Parsing.PreviewSize),
		options.WithChunkSize(cfg.Parsing.ChunkSize),
		options.WithSlowThreshold(cfg.Parsing.SlowThreshold),
		options.WithMaxDecompressedSize(cfg.Parsing.MaxDecompressedSize),
	)
	return nil
}

// serveMetrics exposes the collector on the configured address until the
// returned function is called.
func (a *app) serveMetrics() func() {
	if a.cfg.Metrics.Addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.collector.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server: %v", err)
		}
	}()
	a.logger.Info("serving metrics on %s/metrics", a.cfg.Metrics.Addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func (a *app) close() {
	if a.closer != nil {
		a.closer.Close()
	}
}
