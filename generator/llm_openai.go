package generator

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultBaseURL is the OpenRouter OpenAI-compatible endpoint.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// DefaultModel is used when no model is configured.
const DefaultModel = "qwen/qwen2.5-vl-32b-instruct:free"

// OpenAI 官方接口的默认地址与模型，provider 为 "openai" 时使用。
const (
	OpenAIBaseURL      = "https://api.openai.com/v1"
	DefaultOpenAIModel = "gpt-4o-mini"
)

// ProviderDefaults returns the base URL and model used when the
// configuration leaves them empty.
func ProviderDefaults(provider string) (baseURL, model string) {
	if provider == "openai" {
		return OpenAIBaseURL, DefaultOpenAIModel
	}
	return DefaultBaseURL, DefaultModel
}

// OpenAILLM implements LLMClient using the official openai-go SDK (chat completions)
// against any OpenAI-compatible endpoint.
type OpenAILLM struct {
	Model  string
	apiKey string
	Opts   []option.RequestOption
}

// NewOpenAILLMFromConfig 构造客户端。缺少 API key 不在此处报错，而是在
// Complete 时返回 KindConfig，使批处理能一次性向调用方报告。
func NewOpenAILLMFromConfig(cfg *LLMSettings) (*OpenAILLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	defaultURL, defaultModel := ProviderDefaults(cfg.Provider)
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if cfg.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}
	if cfg.Title != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.Title))
	}
	return &OpenAILLM{Model: model, apiKey: cfg.APIKey, Opts: opts}, nil
}

func (o *OpenAILLM) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	if strings.TrimSpace(o.apiKey) == "" {
		return "", configError("api key missing", nil)
	}
	model := params.Model
	if model == "" {
		model = o.Model
	}

	client := openai.NewClient(o.Opts...)
	req := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(params.Temperature),
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = openai.Int(int64(params.MaxTokens))
	}

	resp, err := client.Chat.Completions.New(ctx, req)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return "", configError("credential rejected", err)
			}
			return "", backendError("api returned an error", err)
		}
		return "", backendError("request failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", backendError("empty choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}
