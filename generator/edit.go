package generator

import "errors"

// ErrEmptyPatch is returned when an edit carries neither subject nor body.
var ErrEmptyPatch = errors.New("edit must include subject or body")

// Patch 手动编辑的内容；nil 字段保持原值。
type Patch struct {
	Subject *string `json:"subject,omitempty"`
	Body    *string `json:"body,omitempty"`
}

// ApplyEdit 只替换 patch 中给出的字段，不调用模型。
func ApplyEdit(email GeneratedEmail, patch Patch) (GeneratedEmail, error) {
	if patch.Subject == nil && patch.Body == nil {
		return email, ErrEmptyPatch
	}
	if patch.Subject != nil {
		email.Subject = *patch.Subject
	}
	if patch.Body != nil {
		email.Body = *patch.Body
	}
	return email, nil
}
