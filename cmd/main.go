package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"tidbyt.dev/bustime"
	"tidbyt.dev/bustime/config"
	"tidbyt.dev/bustime/downloader"
	"tidbyt.dev/bustime/feed"
	"tidbyt.dev/bustime/mbta"
	"tidbyt.dev/bustime/metrics"
	"tidbyt.dev/bustime/storage"
)

var rootCmd = &cobra.Command{
	Use:               "bustime",
	Short:             "Bus arrival times by voice",
	Long:              "Runs and exercises the bustime voice skill",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	configPath string
	logLevel   string
	cachePath  string

	cfg    *config.Config
	logger *slog.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default bustime.toml)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "", "Log level, overriding the config file")
	rootCmd.PersistentFlags().StringVarP(&cachePath, "cache", "", "", "Cache upstream responses in this file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	// config init must work without a valid config.
	if cmd == configInitCmd {
		return nil
	}

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger = newLogger(cfg.Log)
	slog.SetDefault(logger)
	return nil
}

func newLogger(c config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch c.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openStorage(c config.StorageConfig) (storage.Storage, error) {
	switch c.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "postgres":
		return storage.NewPSQLStorage(c.DSN, false)
	default:
		return storage.NewSQLiteStorage(storage.SQLiteConfig{
			OnDisk:    c.Directory != "",
			Directory: c.Directory,
		})
	}
}

// Upstream downloads are rate limited, or cached on disk with
// --cache.
func newDownloader() (downloader.Downloader, error) {
	d := downloader.NewRateLimitedDownloader(cfg.Upstream.RequestsPerSecond, cfg.Upstream.Burst)
	if cachePath == "" {
		return d, nil
	}

	fs, err := downloader.NewFilesystem(cachePath)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	fs.Upstream = d
	fs.Logger = logger
	return fs, nil
}

// Builds the configured provider, wrapped with timeouts and
// metrics. The returned func keeps GTFS feeds fresh until ctx is
// done, and is a no-op for the MBTA API.
func newProvider(m *metrics.Metrics) (bustime.Provider, func(ctx context.Context) error, error) {
	d, err := newDownloader()
	if err != nil {
		return nil, nil, err
	}

	var p bustime.Provider
	run := func(ctx context.Context) error { return nil }
	timeout := cfg.Upstream.Timeout

	switch cfg.Provider.Kind {
	case "gtfs":
		fp := feed.NewProvider(cfg.Provider.StaticURL, cfg.Provider.RealtimeURL)
		fp.StaticRefreshInterval = cfg.Provider.RefreshInterval
		fp.RealtimeTimeout = cfg.Upstream.Timeout
		fp.Downloader = d
		fp.Logger = logger
		if cfg.Provider.APIKey != "" {
			fp.Headers["x-api-key"] = cfg.Provider.APIKey
		}
		p = fp
		run = fp.Run

		// The first call may have to load the static feed.
		timeout = max(timeout, fp.StaticTimeout)

	default:
		c := mbta.NewClient(cfg.Provider.APIKey, cfg.Location())
		if cfg.Provider.BaseURL != "" {
			c.BaseURL = cfg.Provider.BaseURL
		}
		c.Timeout = cfg.Upstream.Timeout
		c.Downloader = d
		c.Logger = logger
		p = c
	}

	logger.Debug("using provider", "kind", cfg.Provider.Kind)

	return &bustime.InstrumentedProvider{
		Provider: p,
		Metrics:  m,
		Timeout:  timeout,
	}, run, nil
}

func newSkill(s storage.Storage, p bustime.Provider, m *metrics.Metrics) *bustime.Skill {
	skill := bustime.NewSkill(s, p, cfg.Location())
	skill.Logger = logger
	skill.Metrics = m
	return skill
}
