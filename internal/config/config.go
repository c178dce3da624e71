package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDownloadURL = "http://ipv4.download.thinkbroadband.com/2MB.zip"
	DefaultUploadBytes = 1 << 20
)

// Duration is a time.Duration read from a string like "30s". Load parses
// it per key so errors name the offending setting.
type Duration struct {
	time.Duration
}

// ProbeConfig controls latency probing.
type ProbeConfig struct {
	Samples        int      `yaml:"samples"`
	Interval       Duration `yaml:"interval"`
	Timeout        Duration `yaml:"timeout"`
	MaxConcurrency int      `yaml:"max_concurrency"`
}

// BandwidthConfig controls the throughput measurement task.
type BandwidthConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Interval    Duration `yaml:"interval"`
	DownloadURL string   `yaml:"download_url"`
	UploadURL   string   `yaml:"upload_url"`
	UploadBytes int64    `yaml:"upload_bytes"`
	Timeout     Duration `yaml:"timeout"`
}

// SchedulerConfig controls the task loop.
type SchedulerConfig struct {
	Tick     Duration `yaml:"tick"`
	Cooldown Duration `yaml:"cooldown"`
}

// WebhookConfig holds alert webhook settings.
type WebhookConfig struct {
	URL      string   `yaml:"url"`
	Cooldown Duration `yaml:"cooldown"`
}

// AlertsConfig holds all alert configuration.
type AlertsConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// CSVConfig holds CSV report settings. An empty path disables CSV output.
type CSVConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root application configuration.
type Config struct {
	Targets   []string        `yaml:"targets"`
	Probe     ProbeConfig     `yaml:"probe"`
	Bandwidth BandwidthConfig `yaml:"bandwidth"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	CSV       CSVConfig       `yaml:"csv"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns a configuration with every default applied and no targets.
func Default() *Config {
	return &Config{
		Probe: ProbeConfig{
			Samples:        2,
			Interval:       Duration{10 * time.Second},
			Timeout:        Duration{2 * time.Second},
			MaxConcurrency: 5,
		},
		Bandwidth: BandwidthConfig{
			Interval:    Duration{10 * time.Minute},
			DownloadURL: DefaultDownloadURL,
			UploadBytes: DefaultUploadBytes,
			Timeout:     Duration{60 * time.Second},
		},
		Scheduler: SchedulerConfig{
			Tick:     Duration{time.Second},
			Cooldown: Duration{10 * time.Second},
		},
		Alerts:  AlertsConfig{Webhook: WebhookConfig{Cooldown: Duration{5 * time.Minute}}},
		Server:  ServerConfig{Address: ":8080"},
		Storage: StorageConfig{Path: "linkmon.db"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads, parses, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Durations stay strings here so a bad value is reported with its key.
	type rawProbe struct {
		Samples        *int   `yaml:"samples"`
		Interval       string `yaml:"interval"`
		Timeout        string `yaml:"timeout"`
		MaxConcurrency *int   `yaml:"max_concurrency"`
	}
	type rawBandwidth struct {
		Enabled     bool   `yaml:"enabled"`
		Interval    string `yaml:"interval"`
		DownloadURL string `yaml:"download_url"`
		UploadURL   string `yaml:"upload_url"`
		UploadBytes int64  `yaml:"upload_bytes"`
		Timeout     string `yaml:"timeout"`
	}
	type rawScheduler struct {
		Tick     string `yaml:"tick"`
		Cooldown string `yaml:"cooldown"`
	}
	type rawWebhook struct {
		URL      string `yaml:"url"`
		Cooldown string `yaml:"cooldown"`
	}
	type rawConfig struct {
		Targets   []string     `yaml:"targets"`
		Probe     rawProbe     `yaml:"probe"`
		Bandwidth rawBandwidth `yaml:"bandwidth"`
		Scheduler rawScheduler `yaml:"scheduler"`
		Alerts    struct {
			Webhook rawWebhook `yaml:"webhook"`
		} `yaml:"alerts"`
		Server struct {
			Address *string `yaml:"address"`
		} `yaml:"server"`
		Storage StorageConfig `yaml:"storage"`
		CSV     CSVConfig     `yaml:"csv"`
		Log     LogConfig     `yaml:"log"`
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg := Default()

	if len(raw.Targets) == 0 {
		return nil, fmt.Errorf("at least one target must be configured")
	}
	seen := make(map[string]bool, len(raw.Targets))
	for i, host := range raw.Targets {
		host = strings.TrimSpace(host)
		if host == "" {
			return nil, fmt.Errorf("targets[%d]: host is required", i)
		}
		if seen[host] {
			return nil, fmt.Errorf("duplicate target %q", host)
		}
		seen[host] = true
		cfg.Targets = append(cfg.Targets, host)
	}

	if raw.Probe.Samples != nil {
		if *raw.Probe.Samples < 1 {
			return nil, fmt.Errorf("probe: samples must be at least 1, got %d", *raw.Probe.Samples)
		}
		cfg.Probe.Samples = *raw.Probe.Samples
	}
	if raw.Probe.MaxConcurrency != nil {
		if *raw.Probe.MaxConcurrency < 1 {
			return nil, fmt.Errorf("probe: max_concurrency must be at least 1, got %d", *raw.Probe.MaxConcurrency)
		}
		cfg.Probe.MaxConcurrency = *raw.Probe.MaxConcurrency
	}

	durations := []struct {
		key string
		in  string
		out *Duration
	}{
		{"probe.interval", raw.Probe.Interval, &cfg.Probe.Interval},
		{"probe.timeout", raw.Probe.Timeout, &cfg.Probe.Timeout},
		{"bandwidth.interval", raw.Bandwidth.Interval, &cfg.Bandwidth.Interval},
		{"bandwidth.timeout", raw.Bandwidth.Timeout, &cfg.Bandwidth.Timeout},
		{"scheduler.tick", raw.Scheduler.Tick, &cfg.Scheduler.Tick},
		{"scheduler.cooldown", raw.Scheduler.Cooldown, &cfg.Scheduler.Cooldown},
		{"alerts.webhook.cooldown", raw.Alerts.Webhook.Cooldown, &cfg.Alerts.Webhook.Cooldown},
	}
	for _, d := range durations {
		if d.in == "" {
			continue
		}
		v, err := time.ParseDuration(d.in)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid duration %q: %w", d.key, d.in, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("%s: must be positive, got %q", d.key, d.in)
		}
		d.out.Duration = v
	}

	cfg.Bandwidth.Enabled = raw.Bandwidth.Enabled
	cfg.Bandwidth.UploadURL = raw.Bandwidth.UploadURL
	if raw.Bandwidth.DownloadURL != "" {
		cfg.Bandwidth.DownloadURL = raw.Bandwidth.DownloadURL
	}
	if raw.Bandwidth.UploadBytes < 0 {
		return nil, fmt.Errorf("bandwidth: upload_bytes must not be negative")
	}
	if raw.Bandwidth.UploadBytes > 0 {
		cfg.Bandwidth.UploadBytes = raw.Bandwidth.UploadBytes
	}

	cfg.Alerts.Webhook.URL = raw.Alerts.Webhook.URL

	// An explicit empty address disables the API.
	if raw.Server.Address != nil {
		cfg.Server.Address = *raw.Server.Address
	}
	if raw.Storage.Path != "" {
		cfg.Storage.Path = raw.Storage.Path
	}
	cfg.CSV = raw.CSV

	if raw.Log.Level != "" {
		cfg.Log.Level = raw.Log.Level
	}
	if raw.Log.Format != "" {
		cfg.Log.Format = raw.Log.Format
	}
	if _, err := cfg.Log.SlogLevel(); err != nil {
		return nil, err
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return nil, fmt.Errorf("log: invalid format %q (must be text or json)", cfg.Log.Format)
	}

	return cfg, nil
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log: invalid level %q: %w", l.Level, err)
	}
	return level, nil
}
