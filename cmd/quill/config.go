package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/quill/internal/inference"
	"github.com/samcharles93/quill/internal/logits"
)

// Config is the optional quill configuration file. Pointer fields separate
// "not set" from zero values; a value applies only when the matching flag
// was not given on the command line.
type Config struct {
	// Vocabulary
	Vocab         string `yaml:"vocab"`
	Merges        string `yaml:"merges"`
	DataDir       string `yaml:"data_dir"`
	TokenizerJSON string `yaml:"tokenizer_json"`

	// Model
	Model          string `yaml:"model"`
	ModelsDir      string `yaml:"models_dir"`
	OnnxRuntimeLib string `yaml:"onnxruntime_lib"`
	Threads        *int64 `yaml:"threads"`
	Window         *int64 `yaml:"window"`
	PadID          *int64 `yaml:"pad_id"`

	// Sampling defaults
	MaxTokens *int64 `yaml:"max_tokens"`
	Strategy  string `yaml:"strategy"`
	TopK      *int64 `yaml:"top_k"`
	Seed      *int64 `yaml:"seed"`

	// Output
	StreamMode string `yaml:"stream_mode"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`

	// Server
	ServerAddress string   `yaml:"server_address"`
	RateLimit     *float64 `yaml:"rate_limit"`
	RateBurst     *int64   `yaml:"rate_burst"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "quill", "config.yaml")
}

// LoadConfig reads path, or the default location when path is empty. A
// missing default file yields a zero Config; a missing explicit file is an
// error.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = configPath()
		if path == "" {
			return Config{}, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

func applyVocabConfig(c *cli.Command, cfg Config, o *vocabOptions) {
	if cfg.Vocab != "" && !c.IsSet("vocab") {
		o.vocab = cfg.Vocab
	}
	if cfg.Merges != "" && !c.IsSet("merges") {
		o.merges = cfg.Merges
	}
	if cfg.DataDir != "" && !c.IsSet("data-dir") {
		o.dataDir = cfg.DataDir
	}
	if cfg.TokenizerJSON != "" && !c.IsSet("tokenizer-json") {
		o.tokenizerJSON = cfg.TokenizerJSON
	}
}

func applyModelConfig(c *cli.Command, cfg Config, o *modelOptions) {
	if cfg.Model != "" && !c.IsSet("model") {
		o.model = cfg.Model
	}
	if cfg.ModelsDir != "" && !c.IsSet("models-dir") {
		o.modelsDir = cfg.ModelsDir
	}
	if cfg.OnnxRuntimeLib != "" && !c.IsSet("onnxruntime-lib") {
		o.ortLibrary = cfg.OnnxRuntimeLib
	}
	if cfg.Threads != nil && !c.IsSet("threads") {
		o.threads = *cfg.Threads
	}
	if cfg.Window != nil && !c.IsSet("window") {
		o.window = *cfg.Window
	}
	if cfg.PadID != nil && !c.IsSet("pad-id") {
		o.padID = *cfg.PadID
	}
}

// applyDefaultsConfig layers the config file's sampling values over d. Flags
// are applied later through requestOptions.
func applyDefaultsConfig(cfg Config, d *inference.Defaults) error {
	if cfg.MaxTokens != nil {
		if *cfg.MaxTokens < 1 {
			return fmt.Errorf("config: max_tokens must be >= 1, got %d", *cfg.MaxTokens)
		}
		d.Budget = int(*cfg.MaxTokens)
	}
	switch {
	case cfg.Strategy != "":
		k := 0
		if cfg.TopK != nil {
			k = int(*cfg.TopK)
		}
		s, err := logits.ParseStrategy(cfg.Strategy, k)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		d.Strategy = s
	case cfg.TopK != nil:
		d.Strategy = logits.TopK(int(*cfg.TopK))
	}
	if cfg.Seed != nil {
		d.Seed = *cfg.Seed
	}
	return nil
}

func applyServeConfig(c *cli.Command, cfg Config, o *serveOptions) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		o.addr = cfg.ServerAddress
	}
	if cfg.RateLimit != nil && !c.IsSet("rate-limit") {
		o.rateLimit = *cfg.RateLimit
	}
	if cfg.RateBurst != nil && !c.IsSet("rate-burst") {
		o.burst = *cfg.RateBurst
	}
}

func applyStreamConfig(c *cli.Command, cfg Config, mode *string) {
	if cfg.StreamMode != "" && !c.IsSet("stream-mode") {
		*mode = cfg.StreamMode
	}
}
