// Package config loads wallwatch's YAML configuration file and the
// process environment, and resolves the TLS root certificate bundle used
// to dial the upstream market-data service.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the complete YAML-driven configuration.
type Config struct {
	Symbols  []string        `yaml:"symbols" mapstructure:"symbols"`
	Detector DetectorYAML    `yaml:"detector" mapstructure:"detector"`
	Notify   NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Debug    DebugConfig     `yaml:"debug" mapstructure:"debug"`
	Metrics  MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Logging  LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Telegram TelegramConfig  `yaml:"telegram" mapstructure:"telegram"`
}

// DetectorYAML mirrors wall.DetectorConfig's fields for YAML/env binding;
// zero fields fall back to wall.DefaultDetectorConfig.
type DetectorYAML struct {
	MaxSymbols              int     `yaml:"max_symbols" mapstructure:"max_symbols"`
	Depth                   int     `yaml:"depth" mapstructure:"depth"`
	DistanceTicks           int     `yaml:"distance_ticks" mapstructure:"distance_ticks"`
	KRatio                  float64 `yaml:"k_ratio" mapstructure:"k_ratio"`
	AbsQtyThreshold         float64 `yaml:"abs_qty_threshold" mapstructure:"abs_qty_threshold"`
	DwellSeconds            float64 `yaml:"dwell_seconds" mapstructure:"dwell_seconds"`
	RepositionWindowSeconds float64 `yaml:"reposition_window_seconds" mapstructure:"reposition_window_seconds"`
	RepositionTicks         int     `yaml:"reposition_ticks" mapstructure:"reposition_ticks"`
	RepositionSimilarPct    float64 `yaml:"reposition_similar_pct" mapstructure:"reposition_similar_pct"`
	RepositionMax           int     `yaml:"reposition_max" mapstructure:"reposition_max"`
	TeleportReset           bool    `yaml:"teleport_reset" mapstructure:"teleport_reset"`
	TradesWindowSeconds     float64 `yaml:"trades_window_seconds" mapstructure:"trades_window_seconds"`
	Emin                    float64 `yaml:"emin" mapstructure:"emin"`
	Amin                    float64 `yaml:"amin" mapstructure:"amin"`
	CancelShareMax          float64 `yaml:"cancel_share_max" mapstructure:"cancel_share_max"`
	ConsumingDropPct        float64 `yaml:"consuming_drop_pct" mapstructure:"consuming_drop_pct"`
	ConsumingWindowSeconds  float64 `yaml:"consuming_window_seconds" mapstructure:"consuming_window_seconds"`
	MinExecConfirm          float64 `yaml:"min_exec_confirm" mapstructure:"min_exec_confirm"`
	CooldownConfirmedSeconds float64 `yaml:"cooldown_confirmed_seconds" mapstructure:"cooldown_confirmed_seconds"`
	CooldownConsumingSeconds float64 `yaml:"cooldown_consuming_seconds" mapstructure:"cooldown_consuming_seconds"`
	VRefLevels              int     `yaml:"vref_levels" mapstructure:"vref_levels"`
}

// NotifyConfig governs the outbound notifier's queue and cooldowns.
type NotifyConfig struct {
	QueueMaxSize          int            `yaml:"queue_max_size" mapstructure:"queue_max_size"`
	CooldownSeconds       map[string]int `yaml:"cooldown_seconds" mapstructure:"cooldown_seconds"`
	SendEvents            []string       `yaml:"send_events" mapstructure:"send_events"`
	ParseMode             string         `yaml:"parse_mode" mapstructure:"parse_mode"`
	DisableWebPagePreview bool           `yaml:"disable_web_page_preview" mapstructure:"disable_web_page_preview"`
}

// DebugConfig holds the debug: section of the config file. No code reads
// it; the program has no periodic order-book dump.
type DebugConfig struct {
	WallsEnabled bool `yaml:"walls_enabled" mapstructure:"walls_enabled"`
	IntervalSeconds int `yaml:"interval_seconds" mapstructure:"interval_seconds"`
}

// MetricsConfig controls the /metrics HTTP exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// TelegramConfig controls the inbound command bot.
type TelegramConfig struct {
	AllowedUserIDs []int64 `yaml:"allowed_user_ids" mapstructure:"allowed_user_ids"`
	ChatIDs        []int64 `yaml:"chat_ids" mapstructure:"chat_ids"`
	PollTimeoutSeconds int `yaml:"poll_timeout_seconds" mapstructure:"poll_timeout_seconds"`
}

// EnvSettings holds secrets and tuning knobs read directly from the
// process environment rather than the YAML file.
type EnvSettings struct {
	Token                     string
	CABundlePath              string
	CABundleB64               string
	RetryBackoffInitialSeconds float64
	RetryBackoffMaxSeconds     float64
	StreamIdleSleepSeconds     float64
}

const (
	envToken          = "WALLWATCH_TOKEN"
	envTokenLegacy    = "INVEST_TOKEN"
	envCABundlePath   = "WALLWATCH_CA_BUNDLE_PATH"
	envCABundleB64    = "WALLWATCH_CA_BUNDLE_B64"
	envBackoffInitial = "WALLWATCH_RETRY_BACKOFF_INITIAL"
	envBackoffMax     = "WALLWATCH_RETRY_BACKOFF_MAX_SECONDS"
	envIdleSleep      = "WALLWATCH_STREAM_IDLE_SLEEP_SECONDS"
)

// LoadEnvSettings reads environment variables into an EnvSettings,
// applying defaults for anything absent or malformed.
func LoadEnvSettings() EnvSettings {
	token := os.Getenv(envToken)
	if token == "" {
		token = os.Getenv(envTokenLegacy)
	}
	return EnvSettings{
		Token:                      strings.TrimSpace(token),
		CABundlePath:               os.Getenv(envCABundlePath),
		CABundleB64:                os.Getenv(envCABundleB64),
		RetryBackoffInitialSeconds: parseFloatEnv(envBackoffInitial, 1.0),
		RetryBackoffMaxSeconds:     parseFloatEnv(envBackoffMax, 60.0),
		StreamIdleSleepSeconds:     parseFloatEnv(envIdleSleep, 1.0),
	}
}

func parseFloatEnv(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

// MissingRequiredEnv reports which required settings are absent.
func MissingRequiredEnv(s EnvSettings) []string {
	var missing []string
	if s.Token == "" {
		missing = append(missing, envToken)
	}
	return missing
}

// Load reads the YAML file at path (if non-empty), applies the two
// environment overrides read via viper (WALLWATCH_METRICS_ADDR and
// WALLWATCH_LOGGING_LEVEL), then fills defaults for the metrics address,
// log level, notifier queue size and parse mode, and poll timeout. An
// empty path skips the file and yields those defaults.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("WALLWATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if v.IsSet("metrics_addr") {
		cfg.Metrics.Addr = v.GetString("metrics_addr")
	}
	if v.IsSet("logging_level") {
		cfg.Logging.Level = v.GetString("logging_level")
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Notify.QueueMaxSize == 0 {
		cfg.Notify.QueueMaxSize = 1000
	}
	if cfg.Notify.ParseMode == "" {
		cfg.Notify.ParseMode = "HTML"
	}
	if cfg.Telegram.PollTimeoutSeconds == 0 {
		cfg.Telegram.PollTimeoutSeconds = 30
	}

	return cfg, nil
}

// ResolveCABundle resolves the root certificate PEM bytes to use for the
// upstream TLS connection: base64 env var first, then a file path, then
// nil (use the system trust store).
func ResolveCABundle(s EnvSettings) ([]byte, error) {
	if s.CABundleB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(s.CABundleB64)
		if err != nil {
			return nil, fmt.Errorf("decode ca bundle b64: %w", err)
		}
		if !looksLikePEM(decoded) {
			return nil, fmt.Errorf("ca bundle b64 does not look like PEM")
		}
		return decoded, nil
	}
	if s.CABundlePath != "" {
		raw, err := os.ReadFile(s.CABundlePath)
		if err != nil {
			return nil, fmt.Errorf("read ca bundle %s: %w", s.CABundlePath, err)
		}
		if len(raw) == 0 {
			return nil, fmt.Errorf("ca bundle %s is empty", s.CABundlePath)
		}
		if !looksLikePEM(raw) {
			return nil, fmt.Errorf("ca bundle %s does not look like PEM", s.CABundlePath)
		}
		return raw, nil
	}
	return nil, nil
}

func looksLikePEM(b []byte) bool {
	s := string(b)
	return strings.Contains(s, "-----BEGIN") && strings.Contains(s, "-----END")
}
