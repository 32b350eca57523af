package generator

import (
	"regexp"
	"strings"
)

var (
	subjectRe = regexp.MustCompile(`(?i)SUBJECT:[ \t]*([^\r\n]*)`)
	bodyRe    = regexp.MustCompile(`(?is)BODY:\s*(.*)`)
)

// Parsed 是从模型回复中抽取出的主题与正文。
type Parsed struct {
	Subject string
	Body    string
}

// Miss reports whether either section marker was absent or empty.
func (p Parsed) Miss() bool {
	return p.Subject == "" || p.Body == ""
}

// ParseResponse 按 SUBJECT:/BODY: 约定抽取字段。缺少标记时对应字段为空串，
// 不返回错误，由调用方把空字段当作质量信号处理。
func ParseResponse(raw string) Parsed {
	return Parsed{
		Subject: extractSubject(raw),
		Body:    extractBody(raw),
	}
}

func extractSubject(raw string) string {
	m := subjectRe.FindStringSubmatch(raw)
	if len(m) < 2 {
		return ""
	}
	// 模型偶尔会输出 "**SUBJECT:** ..."，去掉残留的加粗标记。
	return strings.TrimSpace(strings.TrimLeft(m[1], "* \t"))
}

func extractBody(raw string) string {
	m := bodyRe.FindStringSubmatch(raw)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(strings.TrimLeft(m[1], "*"))
}
