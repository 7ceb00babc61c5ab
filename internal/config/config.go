// Package config loads the mediator's static launch-time configuration
// and owns the hot-swappable per-session RuntimeConfig.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Static holds launch-time configuration: credentials, listen addresses,
// and the RuntimeConfig defaults. Unlike RuntimeConfig, these fields are
// read once at startup; a file reload that changes them is logged and
// ignored.
type Static struct {
	Session   SessionConfig   `yaml:"session" json:"session"`
	STT       STTConfig       `yaml:"stt" json:"stt"`
	Translate TranslateConfig `yaml:"translate" json:"translate"`
	Transport TransportConfig `yaml:"transport" json:"transport"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Runtime   RuntimeDefaults `yaml:"runtime" json:"runtime"`
}

type SessionConfig struct {
	IDPrefix string `yaml:"id_prefix" json:"id_prefix"`
}

type STTConfig struct {
	Provider    string   `yaml:"provider" json:"provider"`
	Credentials string   `yaml:"credentials" json:"credentials"`
	AltLangs    []string `yaml:"alt_langs" json:"alt_langs"`
}

type TranslateConfig struct {
	Provider      string `yaml:"provider" json:"provider"`
	APIKey        string `yaml:"api_key" json:"api_key"`
	Model         string `yaml:"model" json:"model"`
	FallbackModel string `yaml:"fallback_model" json:"fallback_model"`
}

type TransportConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

// RuntimeDefaults seeds the per-session RuntimeConfig. See RuntimeConfig
// for field semantics.
type RuntimeDefaults struct {
	SourceLang             string `yaml:"source_lang" json:"source_lang"`
	TargetLang             string `yaml:"target_lang" json:"target_lang"`
	DebounceMS             int    `yaml:"debounce_ms" json:"debounce_ms"`
	BatchSize              int    `yaml:"batch_size" json:"batch_size"`
	BatchTimeoutMS         int    `yaml:"batch_timeout_ms" json:"batch_timeout_ms"`
	SyncDisplayMode        bool   `yaml:"sync_display_mode" json:"sync_display_mode"`
	InterimDebounceEnabled bool   `yaml:"interim_debounce_enabled" json:"interim_debounce_enabled"`
}

// Load reads and parses the static config file, applying defaults for any
// field YAML left zero-valued.
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Static{
		STT: STTConfig{
			Provider: "google",
			AltLangs: []string{"en-US"},
		},
		Translate: TranslateConfig{
			Provider:      "gemini",
			Model:         "gemini-2.0-flash",
			FallbackModel: "gemini-2.0-flash-lite",
		},
		Transport: TransportConfig{
			ListenAddr: ":8899",
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9090",
		},
		Runtime: RuntimeDefaults{
			SourceLang:             "en",
			TargetLang:             "zh",
			DebounceMS:             500,
			BatchSize:              3,
			BatchTimeoutMS:         500,
			SyncDisplayMode:        false,
			InterimDebounceEnabled: true,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Resolve credentials path relative to the config file's directory,
	// same convention as the teacher's loader.
	if cfg.STT.Credentials != "" && !filepath.IsAbs(cfg.STT.Credentials) {
		configDir := filepath.Dir(path)
		cfg.STT.Credentials = filepath.Join(configDir, cfg.STT.Credentials)
	}
	if cfg.STT.Credentials != "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", cfg.STT.Credentials)
	}

	validateLang(cfg.Runtime.SourceLang, "runtime.source_lang")
	validateLang(cfg.Runtime.TargetLang, "runtime.target_lang")

	return cfg, nil
}

// validateLang logs (but does not reject) a language tag that fails to
// parse as BCP-47 — the coordinator passes codes through regardless, per
// spec: "the coordinator does not validate them beyond length."
func validateLang(tag, field string) {
	if tag == "" {
		return
	}
	if _, err := language.Parse(tag); err != nil {
		slog.Warn("config language tag does not parse as BCP-47, passing through as-is", "field", field, "value", tag, "err", err)
	}
}
