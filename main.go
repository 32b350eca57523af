package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hypersales/config"
	"hypersales/generator"
	"hypersales/logging"
)

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:           "hypersales",
		Short:         "Generate personalized outreach emails for a list of leads",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "path to config.yaml")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")

	root.AddCommand(newServeCmd(), newGenerateCmd(), newSampleCSVCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads config and builds the logger and agent shared by all commands.
func setup() (config.Config, *zap.Logger, *generator.Agent, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	llm, err := buildLLM(cfg.LLM)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	agent, err := generator.NewAgent(llm,
		generator.WithParams(generator.Params{
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		}),
		generator.WithRegenerateTemperature(cfg.LLM.RegenerateTemperature),
		generator.WithLogger(logger.Named("generator")),
	)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, logger, agent, nil
}

func buildLLM(cfg config.LLMConfig) (generator.LLMClient, error) {
	switch cfg.Provider {
	case "mock":
		return generator.MockLLM{}, nil
	case "openrouter", "openai":
		// 两者都走 OpenAI 兼容接口，区别只在 base_url。
		return generator.NewOpenAILLMFromConfig(&generator.LLMSettings{
			Provider: cfg.Provider,
			Model:    cfg.Model,
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Referer:  cfg.Referer,
			Title:    cfg.Title,
		})
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.Provider)
	}
}
