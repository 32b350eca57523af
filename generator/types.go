package generator

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Tone 控制邮件语气。
type Tone string

const (
	ToneProfessional Tone = "Professional"
	ToneFriendly     Tone = "Friendly"
	ToneCasual       Tone = "Casual"
	ToneFormal       Tone = "Formal"
)

// UnmarshalText matches the tone name case-insensitively.
func (t *Tone) UnmarshalText(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "" {
		*t = ""
		return nil
	}
	for _, v := range []Tone{ToneProfessional, ToneFriendly, ToneCasual, ToneFormal} {
		if strings.EqualFold(raw, string(v)) {
			*t = v
			return nil
		}
	}
	return fmt.Errorf("unknown tone %q", raw)
}

func (t Tone) valid() bool {
	switch t {
	case ToneProfessional, ToneFriendly, ToneCasual, ToneFormal:
		return true
	}
	return false
}

// Size 控制邮件长度。
type Size string

const (
	SizeShort  Size = "Short"
	SizeMedium Size = "Medium"
	SizeLong   Size = "Long"
	SizeCustom Size = "Custom"
)

// sizeLabels 兼容前端沿用的带字数区间的选项文案。
var sizeLabels = map[string]Size{
	"short (50-100 words)":   SizeShort,
	"medium (100-200 words)": SizeMedium,
	"long (200-300 words)":   SizeLong,
}

// UnmarshalText accepts both the bare size name and the labelled form
// ("Medium (100-200 words)").
func (s *Size) UnmarshalText(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if v, ok := sizeLabels[strings.ToLower(raw)]; ok {
		*s = v
		return nil
	}
	for _, v := range []Size{SizeShort, SizeMedium, SizeLong, SizeCustom} {
		if strings.EqualFold(raw, string(v)) {
			*s = v
			return nil
		}
	}
	if raw == "" {
		*s = ""
		return nil
	}
	return fmt.Errorf("unknown email size %q", raw)
}

func (s Size) valid() bool {
	switch s {
	case SizeShort, SizeMedium, SizeLong, SizeCustom:
		return true
	}
	return false
}

// Sender 发件人资料，一次批量生成内不变。
type Sender struct {
	Name               string `json:"name" yaml:"name"`
	Company            string `json:"company" yaml:"company"`
	ProductDescription string `json:"productDescription" yaml:"product_description"`
	Email              string `json:"email,omitempty" yaml:"email,omitempty"`
	Phone              string `json:"phone,omitempty" yaml:"phone,omitempty"`
	Position           string `json:"position,omitempty" yaml:"position,omitempty"`
}

func (s Sender) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, errors.New("sender name is required"))
	}
	if strings.TrimSpace(s.Company) == "" {
		errs = append(errs, errors.New("sender company is required"))
	}
	if strings.TrimSpace(s.ProductDescription) == "" {
		errs = append(errs, errors.New("sender product description is required"))
	}
	if e := strings.TrimSpace(s.Email); e != "" {
		if _, err := mail.ParseAddress(e); err != nil {
			errs = append(errs, fmt.Errorf("sender email %q is not valid", e))
		}
	}
	return errors.Join(errs...)
}

// EmailSettings 对整批邮件统一生效。CustomWordCount 为 0 表示未设置，
// 且仅在 Size 为 Custom 时有意义。
type EmailSettings struct {
	Tone            Tone   `json:"tone" yaml:"tone"`
	Size            Size   `json:"size" yaml:"size"`
	CustomWordCount int    `json:"customWordCount,omitempty" yaml:"custom_word_count,omitempty"`
	CustomPrompt    string `json:"customPrompt,omitempty" yaml:"custom_prompt,omitempty"`
}

// Normalize fills in the defaults for an unset tone or size.
func (s EmailSettings) Normalize() EmailSettings {
	if s.Tone == "" {
		s.Tone = ToneProfessional
	}
	if s.Size == "" {
		s.Size = SizeMedium
	}
	return s
}

func (s EmailSettings) Validate() error {
	n := s.Normalize()
	if !n.Tone.valid() {
		return fmt.Errorf("unknown tone %q", s.Tone)
	}
	if !n.Size.valid() {
		return fmt.Errorf("unknown email size %q", s.Size)
	}
	if s.CustomWordCount < 0 {
		return fmt.Errorf("custom word count must be positive, got %d", s.CustomWordCount)
	}
	return nil
}

// Lead 是一位潜在收件人。
type Lead struct {
	Name               string `json:"name"`
	CompanyName        string `json:"companyName"`
	ProductDescription string `json:"productDescription,omitempty"`
	Email              string `json:"email,omitempty"`
}

// Validate 要求姓名与公司名非空。
func (l Lead) Validate() error {
	switch {
	case strings.TrimSpace(l.Name) == "" && strings.TrimSpace(l.CompanyName) == "":
		return errors.New("missing NAME and COMPANY NAME")
	case strings.TrimSpace(l.Name) == "":
		return errors.New("missing NAME")
	case strings.TrimSpace(l.CompanyName) == "":
		return errors.New("missing COMPANY NAME")
	}
	return nil
}

// GeneratedEmail 为某个 Lead 生成的主题与正文。在列表中的下标即其身份。
type GeneratedEmail struct {
	Lead    Lead   `json:"lead"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Empty reports whether subject or body is missing.
func (e GeneratedEmail) Empty() bool {
	return e.Subject == "" || e.Body == ""
}

// Turn 记录一次针对单封邮件的操作。
type Turn struct {
	Index     int       `json:"index"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}
