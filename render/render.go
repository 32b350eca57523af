// Package render turns generated email bodies into HTML that renders
// consistently in mail clients.
package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

// 单个换行也要保留为 <br>，邮件正文里的签名块依赖它。
var md = goldmark.New(
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

var (
	olRe = regexp.MustCompile(`(?s)<ol[^>]*>(.*?)</ol>`)
	ulRe = regexp.MustCompile(`(?s)<ul[^>]*>(.*?)</ul>`)
	liRe = regexp.MustCompile(`(?s)<li[^>]*>(.*?)</li>`)
	hRe  = regexp.MustCompile(`(?s)<h([1-6])[^>]*>(.*?)</h[1-6]>`)
	pRe  = regexp.MustCompile(`<p>`)
)

const paragraphStyle = `<p style="margin:0 0 1em;line-height:1.5;">`

// EmailHTML converts a plain-text or Markdown body to an HTML fragment.
// Raw HTML in the body is not passed through.
func EmailHTML(body string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(body), &buf); err != nil {
		return "", err
	}
	return normalizeForEmail(buf.String()), nil
}

// Document wraps EmailHTML output in a minimal standalone page for previews.
func Document(subject, body string) (string, error) {
	fragment, err := EmailHTML(body)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	b.WriteString(escape(subject))
	b.WriteString("</title></head>\n<body style=\"font-family:Arial,Helvetica,sans-serif;font-size:14px;color:#222;\">\n")
	b.WriteString(fmt.Sprintf(`<p style="font-weight:700;margin:0 0 1em;">%s</p>`, escape(subject)))
	b.WriteString("\n")
	b.WriteString(fragment)
	b.WriteString("</body></html>\n")
	return b.String(), nil
}

// 不少邮件客户端会丢弃列表与标题的默认样式，这里把列表展开成段落、
// 把标题转成带字号的段落，并给段落加上行内样式。
func flattenLists(s string) string {
	s = olRe.ReplaceAllStringFunc(s, func(block string) string {
		items := liRe.FindAllStringSubmatch(block, -1)
		if len(items) == 0 {
			return block
		}
		var b strings.Builder
		for i, item := range items {
			b.WriteString(fmt.Sprintf("<p>%d. %s</p>", i+1, strings.TrimSpace(item[1])))
		}
		return b.String()
	})

	return ulRe.ReplaceAllStringFunc(s, func(block string) string {
		items := liRe.FindAllStringSubmatch(block, -1)
		if len(items) == 0 {
			return block
		}
		var b strings.Builder
		for _, item := range items {
			b.WriteString("<p>• ")
			b.WriteString(strings.TrimSpace(item[1]))
			b.WriteString("</p>")
		}
		return b.String()
	})
}

func convertHeadings(s string) string {
	sizes := map[string]string{
		"1": "20px",
		"2": "18px",
		"3": "16px",
	}
	return hRe.ReplaceAllStringFunc(s, func(block string) string {
		parts := hRe.FindStringSubmatch(block)
		if len(parts) != 3 {
			return block
		}
		size := sizes[parts[1]]
		if size == "" {
			size = "14px"
		}
		return fmt.Sprintf(`<p style="font-size:%s;font-weight:700;margin:1em 0 0.6em;">%s</p>`, size, strings.TrimSpace(parts[2]))
	})
}

func normalizeForEmail(s string) string {
	s = convertHeadings(s)
	s = flattenLists(s)
	return pRe.ReplaceAllString(s, paragraphStyle)
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;", "'", "&#39;")

func escape(s string) string { return escaper.Replace(s) }
