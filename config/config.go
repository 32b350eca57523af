// Package config loads configuration from config.yaml, an optional .env file
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"hypersales/generator"
)

// LLMConfig 生成后端配置。
type LLMConfig struct {
	Provider              string  `yaml:"provider"` // "openrouter", "openai" or "mock"
	Model                 string  `yaml:"model"`
	APIKey                string  `yaml:"api_key"`
	BaseURL               string  `yaml:"base_url"`
	Temperature           float64 `yaml:"temperature"`
	RegenerateTemperature float64 `yaml:"regenerate_temperature"`
	MaxTokens             int     `yaml:"max_tokens"`
	Referer               string  `yaml:"referer"`
	Title                 string  `yaml:"title"`
}

// BatchConfig 批处理配置。
type BatchConfig struct {
	Concurrency    int              `yaml:"concurrency"`
	OnBackendError generator.Policy `yaml:"on_backend_error"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Config holds all configuration for the service and CLI.
type Config struct {
	LLM    LLMConfig    `yaml:"llm"`
	Batch  BatchConfig  `yaml:"batch"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// Default returns the configuration used when no file is present. Model and
// BaseURL stay empty here; Load fills them from the chosen provider.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider:              "openrouter",
			Temperature:           generator.DefaultTemperature,
			RegenerateTemperature: generator.DefaultRegenerateTemperature,
			MaxTokens:             generator.DefaultMaxTokens,
			Referer:               "https://localhost:5000",
			Title:                 "AI Email Generator",
		},
		Batch: BatchConfig{
			Concurrency:    1,
			OnBackendError: generator.PolicyContinue,
		},
		Server: ServerConfig{
			Addr:           ":5000",
			RequestTimeout: 120 * time.Second,
			MaxUploadBytes: 5 << 20,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load 读取配置：先加载 .env（可缺省），再读取 YAML（支持 ${VAR} 展开，文件可缺省），
// 最后用环境变量覆盖。API key 缺失不在这里报错，由生成阶段以配置错误的形式报告。
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		default:
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config YAML: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.applyProviderDefaults()
	return cfg, nil
}

// applyProviderDefaults 只填补未显式配置的 base_url 和 model。
func (c *Config) applyProviderDefaults() {
	baseURL, model := generator.ProviderDefaults(c.LLM.Provider)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = baseURL
	}
	if c.LLM.Model == "" {
		c.LLM.Model = model
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.LLM.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	c.LLM.Provider = envOrDefault("LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = envOrDefault("LLM_MODEL", c.LLM.Model)
	c.LLM.BaseURL = envOrDefault("LLM_BASE_URL", c.LLM.BaseURL)
	// REPLIT_DOMAINS 沿用旧部署环境中的站点地址。
	c.LLM.Referer = envOrDefault("REPLIT_DOMAINS", c.LLM.Referer)
	c.Server.Addr = envOrDefault("SERVER_ADDR", c.Server.Addr)
	if port := os.Getenv("PORT"); port != "" && os.Getenv("SERVER_ADDR") == "" {
		c.Server.Addr = ":" + port
	}
	c.Log.Level = envOrDefault("LOG_LEVEL", c.Log.Level)
	c.Batch.Concurrency = envOrDefaultInt("BATCH_CONCURRENCY", c.Batch.Concurrency)
	if v := os.Getenv("BATCH_ON_BACKEND_ERROR"); v != "" {
		c.Batch.OnBackendError = generator.Policy(strings.ToLower(v))
	}
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case "openrouter", "openai", "mock":
	default:
		return fmt.Errorf("llm provider %q not supported", c.LLM.Provider)
	}
	switch c.Batch.OnBackendError {
	case "", generator.PolicyContinue, generator.PolicyAbort:
	default:
		return fmt.Errorf("batch.on_backend_error must be %q or %q", generator.PolicyContinue, generator.PolicyAbort)
	}
	if c.Batch.Concurrency < 0 {
		return fmt.Errorf("batch.concurrency must not be negative")
	}
	if c.LLM.Temperature < 0 || c.LLM.RegenerateTemperature < 0 {
		return fmt.Errorf("llm temperatures must not be negative")
	}
	return nil
}

// BatchOptions converts the batch section for generator.Agent.GenerateAll.
func (c Config) BatchOptions() generator.BatchOptions {
	return generator.BatchOptions{
		Concurrency:    c.Batch.Concurrency,
		OnBackendError: c.Batch.OnBackendError,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
