package generator

import (
	"context"
	"regexp"
	"sync"
	"time"
)

var leadNameRe = regexp.MustCompile(`exact name "([^"]*)"`)

// scriptedLLM answers per recipient name. Leads without a script get a
// canonical SUBJECT/BODY response.
type scriptedLLM struct {
	mu     sync.Mutex
	calls  []string
	params []Params

	errs      map[string]error
	responses map[string]string
	delays    map[string]time.Duration
	// stubborn leads sleep through their delay even after cancellation.
	stubborn map[string]bool
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	name := firstSubmatch(leadNameRe, prompt)
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.params = append(s.params, params)
	delay := s.delays[name]
	stubborn := s.stubborn[name]
	err := s.errs[name]
	resp, scripted := s.responses[name]
	s.mu.Unlock()

	if delay > 0 && stubborn {
		time.Sleep(delay)
	} else if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", backendError("request failed", ctx.Err())
		}
	}
	if err != nil {
		return "", err
	}
	if scripted {
		return resp, nil
	}
	return "SUBJECT: Hello " + name + "\n\nBODY:\nDear " + name + ",\nwe can help.", nil
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func leadsNamed(names ...string) []Lead {
	out := make([]Lead, len(names))
	for i, n := range names {
		out[i] = Lead{Name: n, CompanyName: n + " Inc"}
	}
	return out
}
