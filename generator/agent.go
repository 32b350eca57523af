package generator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"hypersales/metrics"
)

const (
	DefaultTemperature           = 0.7
	DefaultRegenerateTemperature = 0.8
	DefaultMaxTokens             = 1000
)

// Agent 负责为单个 Lead 生成或重新生成邮件，也是批处理的执行者。
type Agent struct {
	llm           LLMClient
	params        Params
	regenerateTmp float64
	logger        *zap.Logger
}

// AgentOption customizes an Agent.
type AgentOption func(*Agent)

// WithParams overrides the sampling parameters used for initial generation.
func WithParams(p Params) AgentOption {
	return func(a *Agent) { a.params = p }
}

// WithRegenerateTemperature sets the temperature used by Regenerate.
func WithRegenerateTemperature(t float64) AgentOption {
	return func(a *Agent) { a.regenerateTmp = t }
}

func WithLogger(l *zap.Logger) AgentOption {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewAgent(llm LLMClient, opts ...AgentOption) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	a := &Agent{
		llm: llm,
		params: Params{
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
		},
		regenerateTmp: DefaultRegenerateTemperature,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Generate 走一遍 构建提示词 -> 调用模型 -> 解析 的流程。
func (a *Agent) Generate(ctx context.Context, sender Sender, settings EmailSettings, lead Lead) (GeneratedEmail, error) {
	return a.run(ctx, "generate", a.params, sender, settings, lead)
}

// Regenerate 与 Generate 流程相同，但使用更高的 temperature，避免与上一次结果雷同。
// 调用方负责把结果放回原下标。
func (a *Agent) Regenerate(ctx context.Context, sender Sender, settings EmailSettings, lead Lead) (GeneratedEmail, error) {
	p := a.params
	p.Temperature = a.regenerateTmp
	return a.run(ctx, "regenerate", p, sender, settings, lead)
}

func (a *Agent) run(ctx context.Context, mode string, params Params, sender Sender, settings EmailSettings, lead Lead) (GeneratedEmail, error) {
	prompt := BuildPrompt(sender, settings, lead)

	a.logger.Debug("calling generation backend",
		zap.String("mode", mode),
		zap.String("lead", lead.Name),
		zap.String("company", lead.CompanyName),
		zap.Float64("temperature", params.Temperature),
	)
	start := time.Now()
	raw, err := a.llm.Complete(ctx, prompt, params)
	if err != nil {
		metrics.RecordGenerationLatency(mode, string(KindOf(err))+"_error", time.Since(start))
		a.logger.Warn("generation failed",
			zap.String("mode", mode),
			zap.String("lead", lead.Name),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err),
		)
		return GeneratedEmail{}, err
	}
	metrics.RecordGenerationLatency(mode, "ok", time.Since(start))

	parsed := ParseResponse(raw)
	if parsed.Miss() {
		a.logger.Warn("response missing SUBJECT/BODY section",
			zap.String("lead", lead.Name),
			zap.Bool("subject_found", parsed.Subject != ""),
			zap.Bool("body_found", parsed.Body != ""),
			zap.Int("raw_len", len(raw)),
		)
	}
	return GeneratedEmail{Lead: lead, Subject: parsed.Subject, Body: parsed.Body}, nil
}
