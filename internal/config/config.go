// Package config resolves the daemon configuration from defaults, an
// optional YAML file and CLEARLINE_* environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/multiformats/go-multiaddr"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

// Config is the fully resolved daemon configuration.
type Config struct {
	Listen            string
	JournalBackend    string
	JournalPath       string
	SupportedVersions []string
	Advertise         []string
	SubmitRate        float64
	SubmitBurst       int
	LogLevel          string
}

// FileConfig mirrors the YAML layout. Pointer fields distinguish an
// explicit zero from an absent key during Merge.
type FileConfig struct {
	Listen   string          `yaml:"listen"`
	Journal  JournalSection  `yaml:"journal"`
	Protocol ProtocolSection `yaml:"protocol"`
	Network  NetworkSection  `yaml:"network"`
	Submit   SubmitSection   `yaml:"submit"`
	Log      LogSection      `yaml:"log"`
}

type JournalSection struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type ProtocolSection struct {
	SupportedVersions []string `yaml:"supportedVersions"`
}

type NetworkSection struct {
	Advertise []string `yaml:"advertise"`
}

type SubmitSection struct {
	RatePerSecond *float64 `yaml:"ratePerSecond"`
	Burst         *int     `yaml:"burst"`
}

type LogSection struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing else is supplied.
// An empty SupportedVersions list means the engine's own defaults apply.
func Default() Config {
	return Config{
		Listen:         "127.0.0.1:8320",
		JournalBackend: "memory",
		SubmitRate:     10,
		SubmitBurst:    20,
		LogLevel:       "info",
	}
}

// LoadFromPath resolves the configuration. An explicitly named file must
// exist and parse; the default candidate is optional but a malformed one
// is still an error.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	candidates := make([]string, 0, 2)
	explicit := strings.TrimSpace(configPath) != ""
	if explicit {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates, "configs/config.yaml")
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if explicit {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			continue
		}

		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}

		Merge(&cfg, parsed)
		break
	}

	ApplyEnvOverrides(&cfg)
	return cfg, nil
}

// Merge overlays the file values onto dst. Absent keys leave dst alone.
func Merge(dst *Config, src FileConfig) {
	if src.Listen != "" {
		dst.Listen = src.Listen
	}
	if src.Journal.Backend != "" {
		dst.JournalBackend = src.Journal.Backend
	}
	if src.Journal.Path != "" {
		dst.JournalPath = src.Journal.Path
	}
	if src.Protocol.SupportedVersions != nil {
		dst.SupportedVersions = src.Protocol.SupportedVersions
	}
	if src.Network.Advertise != nil {
		dst.Advertise = src.Network.Advertise
	}
	if src.Submit.RatePerSecond != nil {
		dst.SubmitRate = *src.Submit.RatePerSecond
	}
	if src.Submit.Burst != nil {
		dst.SubmitBurst = *src.Submit.Burst
	}
	if src.Log.Level != "" {
		dst.LogLevel = src.Log.Level
	}
}

type envOverrides struct {
	Listen            string   `env:"CLEARLINE_LISTEN"`
	JournalBackend    string   `env:"CLEARLINE_JOURNAL_BACKEND"`
	JournalPath       string   `env:"CLEARLINE_JOURNAL_PATH"`
	SupportedVersions []string `env:"CLEARLINE_SUPPORTED_VERSIONS" envSeparator:","`
	Advertise         []string `env:"CLEARLINE_ADVERTISE"          envSeparator:","`
	SubmitRate        *float64 `env:"CLEARLINE_SUBMIT_RATE"`
	SubmitBurst       *int     `env:"CLEARLINE_SUBMIT_BURST"`
	LogLevel          string   `env:"CLEARLINE_LOG_LEVEL"`
}

// ApplyEnvOverrides overlays CLEARLINE_* variables onto cfg. Unparseable
// values leave cfg unchanged.
func ApplyEnvOverrides(cfg *Config) {
	var raw envOverrides
	if err := env.Parse(&raw); err != nil {
		return
	}
	if v := strings.TrimSpace(raw.Listen); v != "" {
		cfg.Listen = v
	}
	if v := strings.TrimSpace(raw.JournalBackend); v != "" {
		cfg.JournalBackend = v
	}
	if v := strings.TrimSpace(raw.JournalPath); v != "" {
		cfg.JournalPath = v
	}
	if vs := trimList(raw.SupportedVersions); vs != nil {
		cfg.SupportedVersions = vs
	}
	if vs := trimList(raw.Advertise); vs != nil {
		cfg.Advertise = vs
	}
	if raw.SubmitRate != nil {
		cfg.SubmitRate = *raw.SubmitRate
	}
	if raw.SubmitBurst != nil {
		cfg.SubmitBurst = *raw.SubmitBurst
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = v
	}
}

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Validate rejects configurations the daemon cannot safely run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("%w: listen address is empty", ErrInvalid)
	}
	switch c.JournalBackend {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.JournalPath) == "" {
			return fmt.Errorf("%w: sqlite journal requires a path", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown journal backend %q", ErrInvalid, c.JournalBackend)
	}
	for _, v := range c.SupportedVersions {
		if !versionPattern.MatchString(v) {
			return fmt.Errorf("%w: malformed protocol version %q", ErrInvalid, v)
		}
	}
	for _, addr := range c.Advertise {
		if _, err := multiaddr.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("%w: advertise address %q: %v", ErrInvalid, addr, err)
		}
	}
	if c.SubmitRate < 0 {
		return fmt.Errorf("%w: negative submit rate", ErrInvalid)
	}
	if c.SubmitBurst < 0 {
		return fmt.Errorf("%w: negative submit burst", ErrInvalid)
	}
	if c.SubmitRate > 0 && c.SubmitBurst == 0 {
		return fmt.Errorf("%w: submit rate set without burst", ErrInvalid)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid, c.LogLevel)
	}
	return nil
}

func trimList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
