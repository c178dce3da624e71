package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hazz-dev/linkmon/internal/alert"
	"github.com/hazz-dev/linkmon/internal/bandwidth"
	"github.com/hazz-dev/linkmon/internal/config"
	"github.com/hazz-dev/linkmon/internal/metrics"
	"github.com/hazz-dev/linkmon/internal/monitor"
	"github.com/hazz-dev/linkmon/internal/probe"
	"github.com/hazz-dev/linkmon/internal/report"
	"github.com/hazz-dev/linkmon/internal/scheduler"
	"github.com/hazz-dev/linkmon/internal/server"
	"github.com/hazz-dev/linkmon/internal/storage"
	"github.com/hazz-dev/linkmon/internal/version"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "linkmon",
		Short:        "Network reachability and latency monitor",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "config.yml", "config file path")

	root.AddCommand(versionCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(probeCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(summaryCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "linkmon %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

// newLogger builds the process logger from the log section of the config.
func newLogger(w io.Writer, lc config.LogConfig) (*slog.Logger, error) {
	level, err := lc.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// loadConfig loads the config file. With allowMissing, a missing file yields
// the defaults instead of an error.
func loadConfig(allowMissing bool) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		if allowMissing && errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// endpointHost labels bandwidth records with the download server's host name.
func endpointHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}

func serveCmd() *cobra.Command {
	var noAPI bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the link monitor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(noAPI)
		},
	}
	cmd.Flags().BoolVar(&noAPI, "no-api", false, "do not start the HTTP API")
	return cmd
}

func runServe(noAPI bool) error {
	// 1. Load config and build the logger
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	logger, err := newLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	logger.Info("config loaded", "targets", len(cfg.Targets), "bandwidth", cfg.Bandwidth.Enabled)

	// 2. Open SQLite
	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	// 3. Metrics registry
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// 4. Sinks, in the order records should reach them
	sinks := []report.Sink{
		report.NewLogSink(logger),
		report.NewStoreSink(db, logger),
		m,
	}
	if cfg.CSV.Path != "" {
		csvSink, err := report.OpenCSV(cfg.CSV.Path, logger)
		if err != nil {
			return err
		}
		defer csvSink.Close()
		sinks = append(sinks, csvSink)
	}
	var alerter *alert.Alerter
	if cfg.Alerts.Webhook.URL != "" {
		alerter = alert.New(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Cooldown.Duration, logger)
		sinks = append(sinks, alerter)
	}
	sink := report.Multi(sinks...)

	// 5. Scheduler and jobs
	sched := scheduler.New(logger,
		scheduler.WithTick(cfg.Scheduler.Tick.Duration),
		scheduler.WithCooldown(cfg.Scheduler.Cooldown.Duration),
		scheduler.WithObserver(m),
	)

	latency := monitor.NewLatencyJob(probe.New(), monitor.LatencySettings{
		Targets:        cfg.Targets,
		Samples:        cfg.Probe.Samples,
		Timeout:        cfg.Probe.Timeout.Duration,
		MaxConcurrency: cfg.Probe.MaxConcurrency,
	}, sink, runID, logger)
	if _, err := sched.Add("latency", cfg.Probe.Interval.Duration, latency.Run); err != nil {
		return err
	}

	if cfg.Bandwidth.Enabled {
		bw := cfg.Bandwidth
		meter := bandwidth.NewHTTPMeter(bw.DownloadURL, bw.UploadURL, bw.UploadBytes, bw.Timeout.Duration, logger)
		job := monitor.NewBandwidthJob(meter, endpointHost(bw.DownloadURL), sink, runID, logger)
		if _, err := sched.Add("bandwidth", bw.Interval.Duration, job.Run); err != nil {
			return err
		}
	}

	// 6. Signal context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})

	// 7. API server, unless disabled
	if cfg.Server.Address != "" && !noAPI {
		apiServer := server.New(db, cfg.Targets, cfg.Probe.Interval.Duration,
			promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger)
		httpServer := &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           apiServer.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("listening", "address", cfg.Server.Address)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown", "error", err)
			}
			return nil
		})
	}

	err = g.Wait()
	if alerter != nil {
		alerter.Wait()
	}
	if err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe [hosts...]",
		Short: "Probe the configured (or given) hosts once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(len(args) > 0)
			if err != nil {
				return err
			}
			hosts := cfg.Targets
			if len(args) > 0 {
				hosts = args
			}
			return executeProbe(cmd.Context(), cmd.OutOrStdout(), probe.New(), hosts, cfg.Probe)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the latest measurement per host from the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}

			db, err := storage.Open(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			return executeStatus(cmd, db)
		},
	}
}

func summaryCmd() *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print dropout statistics for recent measurements",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}

			db, err := storage.Open(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			return executeSummary(cmd, db, time.Now().Add(-since))
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "how far back to summarize")
	return cmd
}
