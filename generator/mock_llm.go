package generator

import (
	"context"
	"regexp"
	"strings"
)

var (
	mockNameRe    = regexp.MustCompile(`exact name "([^"]*)"`)
	mockCompanyRe = regexp.MustCompile(`exact company name "([^"]*)"`)
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt string, _ Params) (string, error) {
	// 从提示词中取回收件人姓名与公司，拼出符合 SUBJECT/BODY 约定的回复。
	name := firstSubmatch(mockNameRe, prompt)
	company := firstSubmatch(mockCompanyRe, prompt)

	var sb strings.Builder
	sb.WriteString("SUBJECT: A quick idea for ")
	sb.WriteString(company)
	sb.WriteString("\n\nBODY:\nHi ")
	sb.WriteString(name)
	sb.WriteString(",\n\nI noticed what ")
	sb.WriteString(company)
	sb.WriteString(" is working on and thought we could help.\n\nBest regards")
	return sb.String(), nil
}

func firstSubmatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) >= 2 {
		return m[1]
	}
	return ""
}
