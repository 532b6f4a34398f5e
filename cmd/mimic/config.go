package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/viper"

	"github.com/CTAG07/mimic/pkg/markov"
	"github.com/CTAG07/mimic/pkg/templating"
)

const defaultConfigPath = "./mimic.json"

// ServerConfig holds the settings for storage, logging and the HTTP API.
type ServerConfig struct {
	ApiAddr      string  `json:"api_addr" mapstructure:"api_addr"`
	LogLevel     string  `json:"log_level" mapstructure:"log_level"`
	DatabasePath string  `json:"database_path" mapstructure:"database_path"`
	ApiToken     string  `json:"api_token" mapstructure:"api_token"`
	RateLimit    float64 `json:"rate_limit" mapstructure:"rate_limit"`
	RateBurst    int     `json:"rate_burst" mapstructure:"rate_burst"`
}

// MarkovConfig holds the default generation settings.
type MarkovConfig struct {
	MaxWords    int     `json:"max_words" mapstructure:"max_words"`
	Sentences   int     `json:"sentences" mapstructure:"sentences"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	TopK        int     `json:"top_k" mapstructure:"top_k"`
}

// TemplatesConfig points at the template directory and bounds what a
// template may ask for.
type TemplatesConfig struct {
	TemplateDir   string `json:"template_dir" mapstructure:"template_dir"`
	MaxWords      int    `json:"max_words" mapstructure:"max_words"`
	MaxSentences  int    `json:"max_sentences" mapstructure:"max_sentences"`
	MaxParagraphs int    `json:"max_paragraphs" mapstructure:"max_paragraphs"`
	MaxRepeat     int    `json:"max_repeat" mapstructure:"max_repeat"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server    ServerConfig    `json:"server_config" mapstructure:"server_config"`
	Markov    MarkovConfig    `json:"markov_config" mapstructure:"markov_config"`
	Templates TemplatesConfig `json:"template_config" mapstructure:"template_config"`
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() *Config {
	limits := templating.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			ApiAddr:      ":7278",
			LogLevel:     "info",
			DatabasePath: "./mimic.db",
			ApiToken:     "",
			RateLimit:    20,
			RateBurst:    40,
		},
		Markov: MarkovConfig{
			MaxWords:    markov.DefaultMaxWords,
			Sentences:   1,
			Temperature: 1.0,
			TopK:        0,
		},
		Templates: TemplatesConfig{
			TemplateDir:   "./templates",
			MaxWords:      limits.MaxWords,
			MaxSentences:  limits.MaxSentences,
			MaxParagraphs: limits.MaxParagraphs,
			MaxRepeat:     limits.MaxRepeat,
		},
	}
}

// setDefaults registers every key with viper so that MIMIC_* environment
// variables can override keys missing from the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server_config.api_addr", d.Server.ApiAddr)
	v.SetDefault("server_config.log_level", d.Server.LogLevel)
	v.SetDefault("server_config.database_path", d.Server.DatabasePath)
	v.SetDefault("server_config.api_token", d.Server.ApiToken)
	v.SetDefault("server_config.rate_limit", d.Server.RateLimit)
	v.SetDefault("server_config.rate_burst", d.Server.RateBurst)
	v.SetDefault("markov_config.max_words", d.Markov.MaxWords)
	v.SetDefault("markov_config.sentences", d.Markov.Sentences)
	v.SetDefault("markov_config.temperature", d.Markov.Temperature)
	v.SetDefault("markov_config.top_k", d.Markov.TopK)
	v.SetDefault("template_config.template_dir", d.Templates.TemplateDir)
	v.SetDefault("template_config.max_words", d.Templates.MaxWords)
	v.SetDefault("template_config.max_sentences", d.Templates.MaxSentences)
	v.SetDefault("template_config.max_paragraphs", d.Templates.MaxParagraphs)
	v.SetDefault("template_config.max_repeat", d.Templates.MaxRepeat)
}

// LoadConfig reads the configuration from a JSON file at the given path,
// applying MIMIC_* environment overrides such as MIMIC_SERVER_CONFIG_API_TOKEN.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	defaults := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("MIMIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, defaults)

	_, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// If the file doesn't exist, create it with the default config.
		data, err := json.MarshalIndent(defaults, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal default config: %w", err)
		}
		if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
			// The defaults are still usable without the file.
			fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err = v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config := &Config{}
	if err = v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return config, nil
}

// parseLogLevel maps a config log level to a slog.Level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// generateOptions converts the generation settings into generator options.
func (c MarkovConfig) generateOptions() []markov.GenerateOption {
	return []markov.GenerateOption{
		markov.WithMaxWords(c.MaxWords),
		markov.WithTemperature(c.Temperature),
		markov.WithTopK(c.TopK),
	}
}

// limits converts the template settings into the renderer's safety limits.
func (c TemplatesConfig) limits() *templating.TemplateConfig {
	return &templating.TemplateConfig{
		MaxWords:      c.MaxWords,
		MaxSentences:  c.MaxSentences,
		MaxParagraphs: c.MaxParagraphs,
		MaxRepeat:     c.MaxRepeat,
	}
}
