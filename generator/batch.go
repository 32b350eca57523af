package generator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hypersales/metrics"
)

// ErrNoLeads is returned when a batch is started without any leads.
var ErrNoLeads = errors.New("no valid leads to generate emails for")

// Status 批次整体结果。
type Status string

const (
	StatusFullSuccess    Status = "full_success"
	StatusPartialSuccess Status = "partial_success"
	StatusTotalFailure   Status = "total_failure"
)

// Policy 决定单条后端错误之后是否继续处理剩余 Lead。配置类错误总是中止。
type Policy string

const (
	PolicyContinue Policy = "continue"
	PolicyAbort    Policy = "abort"
)

// BatchOptions tunes GenerateAll. The zero value runs sequentially and
// continues past per-lead backend errors.
type BatchOptions struct {
	Concurrency    int
	OnBackendError Policy
}

// Failure 记录某个下标上的失败。
type Failure struct {
	Index  int       `json:"index"`
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail"`
}

// BatchResult holds one email slot per lead, in lead order. Failed or skipped
// leads keep an empty slot so indices always line up with the input.
type BatchResult struct {
	Emails   []GeneratedEmail `json:"emails"`
	Failures []Failure        `json:"failures"`
	Status   Status           `json:"status"`
	// Produced counts leads for which the backend returned a response.
	Produced int `json:"produced"`
}

// Incomplete counts produced emails whose subject or body came back empty.
func (r BatchResult) Incomplete() int {
	n := 0
	failed := make(map[int]bool, len(r.Failures))
	for _, f := range r.Failures {
		failed[f.Index] = true
	}
	for i, e := range r.Emails {
		if !failed[i] && e.Empty() {
			n++
		}
	}
	return n
}

// Summary 返回面向用户的一行结果描述。
func (r BatchResult) Summary() string {
	s := fmt.Sprintf("%d of %d emails generated", r.Produced, len(r.Emails))
	if len(r.Failures) > 0 {
		s += fmt.Sprintf(", %d failed", len(r.Failures))
	}
	if n := r.Incomplete(); n > 0 {
		s += fmt.Sprintf(", %d incomplete", n)
	}
	return s
}

// step is the outcome of one lead before it is folded into the result.
type step struct {
	email GeneratedEmail
	err   error
	// skipped is set when the lead was never attempted, or was cancelled
	// because a sibling stopped the batch.
	skipped bool
}

// accumulator folds steps in lead order. add returns false once the batch
// must stop; abortErr is set when the stop discards the whole batch.
type accumulator struct {
	policy   Policy
	result   BatchResult
	abortErr error
}

func newAccumulator(leads []Lead, policy Policy) *accumulator {
	emails := make([]GeneratedEmail, len(leads))
	for i, l := range leads {
		emails[i] = GeneratedEmail{Lead: l}
	}
	return &accumulator{policy: policy, result: BatchResult{Emails: emails}}
}

func (acc *accumulator) add(i int, s step) bool {
	switch {
	case s.skipped:
		acc.skip(i)
		return true
	case s.err == nil:
		acc.result.Emails[i] = s.email
		acc.result.Produced++
		return true
	case IsConfigError(s.err):
		acc.abortErr = s.err
		return false
	}

	acc.result.Failures = append(acc.result.Failures, Failure{
		Index:  i,
		Kind:   KindBackend,
		Detail: s.err.Error(),
	})
	if acc.policy == PolicyAbort {
		for j := i + 1; j < len(acc.result.Emails); j++ {
			acc.skip(j)
		}
		return false
	}
	return true
}

func (acc *accumulator) skip(i int) {
	acc.result.Failures = append(acc.result.Failures, Failure{
		Index:  i,
		Kind:   KindSkipped,
		Detail: "not attempted: batch stopped",
	})
}

func (acc *accumulator) finish() (BatchResult, error) {
	if acc.abortErr != nil {
		metrics.IncrementBatchOutcome(string(StatusTotalFailure))
		return BatchResult{Status: StatusTotalFailure}, acc.abortErr
	}
	r := acc.result
	r.Status = classify(r)

	for _, f := range r.Failures {
		if f.Kind == KindSkipped {
			metrics.IncrementEmailOutcome("skipped")
		} else {
			metrics.IncrementEmailOutcome("failed")
		}
	}
	incomplete := r.Incomplete()
	for i := 0; i < r.Produced-incomplete; i++ {
		metrics.IncrementEmailOutcome("ok")
	}
	for i := 0; i < incomplete; i++ {
		metrics.IncrementEmailOutcome("parse_miss")
	}
	metrics.IncrementBatchOutcome(string(r.Status))
	return r, nil
}

func classify(r BatchResult) Status {
	if r.Produced == 0 {
		return StatusTotalFailure
	}
	if len(r.Failures) > 0 || r.Incomplete() > 0 {
		return StatusPartialSuccess
	}
	return StatusFullSuccess
}

// GenerateAll 为每个 Lead 生成一封邮件。
//
// 配置类错误（缺少/无效凭证）会立即中止整批，结果中不含任何邮件，错误只返回一次；
// 单条后端错误按 opts.OnBackendError 记录后继续或停止。输出顺序始终与 leads 一致。
func (a *Agent) GenerateAll(ctx context.Context, sender Sender, settings EmailSettings, leads []Lead, opts BatchOptions) (BatchResult, error) {
	if len(leads) == 0 {
		return BatchResult{Status: StatusTotalFailure}, ErrNoLeads
	}
	policy := opts.OnBackendError
	if policy == "" {
		policy = PolicyContinue
	}

	a.logger.Info("batch started",
		zap.Int("leads", len(leads)),
		zap.Int("concurrency", opts.Concurrency),
		zap.String("policy", string(policy)),
	)

	acc := newAccumulator(leads, policy)
	if opts.Concurrency > 1 {
		a.runParallel(ctx, sender, settings, leads, opts.Concurrency, policy, acc)
	} else {
		a.runSequential(ctx, sender, settings, leads, acc)
	}

	res, err := acc.finish()
	if err != nil {
		a.logger.Error("batch aborted", zap.Error(err))
		return res, err
	}
	a.logger.Info("batch finished",
		zap.String("status", string(res.Status)),
		zap.String("summary", res.Summary()),
	)
	return res, nil
}

func (a *Agent) runSequential(ctx context.Context, sender Sender, settings EmailSettings, leads []Lead, acc *accumulator) {
	for i, lead := range leads {
		email, err := a.Generate(ctx, sender, settings, lead)
		if !acc.add(i, step{email: email, err: err}) {
			return
		}
	}
}

// runParallel 并发调用，但结果按下标写入后再顺序折叠，保证与顺序执行同一语义。
// 任一需要中止的错误会取消仍在进行的兄弟请求；按下标最先出现的中止者生效。
func (a *Agent) runParallel(ctx context.Context, sender Sender, settings EmailSettings, leads []Lead, limit int, policy Policy, acc *accumulator) {
	steps := make([]step, len(leads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, lead := range leads {
		g.Go(func() error {
			if gctx.Err() != nil && ctx.Err() == nil {
				steps[i] = step{skipped: true}
				return nil
			}
			email, err := a.Generate(gctx, sender, settings, lead)
			if err != nil && gctx.Err() != nil && ctx.Err() == nil && !IsConfigError(err) && errors.Is(err, context.Canceled) {
				// 被兄弟请求的中止取消，不算该 Lead 自身的失败。
				steps[i] = step{skipped: true}
				return nil
			}
			steps[i] = step{email: email, err: err}
			if IsConfigError(err) || (err != nil && policy == PolicyAbort) {
				return err
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range steps {
		if !acc.add(i, steps[i]) {
			return
		}
	}
}
