package generator

import (
	"context"
	"errors"
	"fmt"
)

// LLMClient 抽象大模型客户端，便于替换/Mock。
type LLMClient interface {
	Complete(ctx context.Context, prompt string, params Params) (string, error)
}

// Params 单次补全请求的采样参数。
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// LLMSettings 提供给具体实现的基础配置。
type LLMSettings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	// Referer and Title are sent as HTTP-Referer / X-Title, which OpenRouter
	// uses for app attribution.
	Referer string
	Title   string
}

// ErrorKind 区分系统级配置错误与单条请求错误。
type ErrorKind string

const (
	// KindConfig aborts a whole batch.
	KindConfig ErrorKind = "config"
	// KindBackend is recorded per lead.
	KindBackend ErrorKind = "backend"
	// KindSkipped marks leads that were never attempted because the batch stopped.
	KindSkipped ErrorKind = "skipped"
)

// ConfigErrorMessage is shown to users instead of the raw error when the
// backend credential is missing or rejected.
const ConfigErrorMessage = "generation API key is not configured or was rejected; set OPENROUTER_API_KEY (or llm.api_key in config.yaml, or a .env file) and try again"

// GenerationError is the typed failure returned by LLMClient implementations.
type GenerationError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Detail)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func configError(detail string, err error) *GenerationError {
	return &GenerationError{Kind: KindConfig, Detail: detail, Err: err}
}

func backendError(detail string, err error) *GenerationError {
	return &GenerationError{Kind: KindBackend, Detail: detail, Err: err}
}

// KindOf classifies err. Errors that are not a *GenerationError count as
// backend errors.
func KindOf(err error) ErrorKind {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindBackend
}

// IsConfigError reports whether err should abort a batch.
func IsConfigError(err error) bool {
	return err != nil && KindOf(err) == KindConfig
}
