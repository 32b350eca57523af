package generator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrIndexOutOfRange is returned when an email index does not exist in the session.
var ErrIndexOutOfRange = errors.New("email index out of range")

// Session 持有一次批量生成的上下文：发件人、设置、Lead 列表与生成结果。
// Lead 列表创建后只读；邮件列表只按下标原地替换，不排序不删除。
type Session struct {
	ID       string
	Sender   Sender
	Settings EmailSettings
	Leads    []Lead
	Options  BatchOptions

	mu      sync.Mutex
	result  BatchResult
	history []Turn
	agent   *Agent
}

// NewSession 创建 session，尚未生成邮件。
func NewSession(id string, sender Sender, settings EmailSettings, leads []Lead, opts BatchOptions, agent *Agent) *Session {
	return &Session{
		ID:       id,
		Sender:   sender,
		Settings: settings,
		Leads:    leads,
		Options:  opts,
		agent:    agent,
	}
}

// Generate 对全部 Lead 运行一次批处理并保存结果。
func (s *Session) Generate(ctx context.Context) (BatchResult, error) {
	res, err := s.agent.GenerateAll(ctx, s.Sender, s.Settings, s.Leads, s.Options)
	if err != nil {
		return res, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = res
	s.appendTurn(-1, "generate")
	return res, nil
}

// Regenerate 重新生成第 index 封邮件；失败时不改动已有内容。
func (s *Session) Regenerate(ctx context.Context, index int) (GeneratedEmail, error) {
	lead, err := s.leadAt(index)
	if err != nil {
		return GeneratedEmail{}, err
	}
	email, err := s.agent.Regenerate(ctx, s.Sender, s.Settings, lead)
	if err != nil {
		return GeneratedEmail{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.result.Emails[index] = email
	s.clearFailure(index)
	s.appendTurn(index, "regenerate")
	return email, nil
}

// clearFailure 重新生成成功后，该下标不再计为失败或跳过，批次状态随之重算。
func (s *Session) clearFailure(index int) {
	var kept []Failure
	cleared := false
	for _, f := range s.result.Failures {
		if f.Index == index {
			cleared = true
			continue
		}
		kept = append(kept, f)
	}
	s.result.Failures = kept
	if cleared {
		s.result.Produced++
	}
	s.result.Status = classify(s.result)
}

// Edit 手动修改第 index 封邮件。
func (s *Session) Edit(index int, patch Patch) (GeneratedEmail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.result.Emails) {
		return GeneratedEmail{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	email, err := ApplyEdit(s.result.Emails[index], patch)
	if err != nil {
		return GeneratedEmail{}, err
	}
	s.result.Emails[index] = email
	s.appendTurn(index, "edit")
	return email, nil
}

// Email returns a copy of the email at index.
func (s *Session) Email(index int) (GeneratedEmail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.result.Emails) {
		return GeneratedEmail{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return s.result.Emails[index], nil
}

// Snapshot returns a copy of the current result and history.
func (s *Session) Snapshot() (BatchResult, []Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.result
	res.Emails = append([]GeneratedEmail(nil), s.result.Emails...)
	res.Failures = append([]Failure(nil), s.result.Failures...)
	return res, append([]Turn(nil), s.history...)
}

func (s *Session) leadAt(index int) (Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.result.Emails) {
		return Lead{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return s.result.Emails[index].Lead, nil
}

func (s *Session) appendTurn(index int, action string) {
	s.history = append(s.history, Turn{
		Index:     index,
		Action:    action,
		CreatedAt: time.Now(),
	})
}
