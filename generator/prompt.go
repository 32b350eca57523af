package generator

import (
	"fmt"
	"strings"
)

const (
	defaultPosition     = "Sales Representative"
	fallbackProductHint = "their business needs"
)

// wordCountInstruction 根据邮件长度返回字数要求；Custom 未给出字数时返回空串。
func wordCountInstruction(settings EmailSettings) string {
	switch settings.Size {
	case SizeShort:
		return "Keep the email between 50-100 words."
	case SizeMedium:
		return "Keep the email between 100-200 words."
	case SizeLong:
		return "Keep the email between 200-300 words."
	case SizeCustom:
		if settings.CustomWordCount > 0 {
			return fmt.Sprintf("Keep the email around %d words.", settings.CustomWordCount)
		}
	}
	return ""
}

// BuildPrompt 生成单个 Lead 的提示词。纯函数：相同输入得到相同输出，
// 缺省的可选字段直接省略而不是填占位符。
func BuildPrompt(sender Sender, settings EmailSettings, lead Lead) string {
	settings = settings.Normalize()

	var sb strings.Builder
	sb.WriteString("You are an expert email copywriter. Write a highly personalized sales email using the EXACT recipient data. ")
	sb.WriteString("NEVER use placeholders like [Recipient Name] or [Company]. ")
	sb.WriteString("The email MUST look like it was written specifically for this exact recipient.\n\n")

	position := strings.TrimSpace(sender.Position)
	if position == "" {
		position = defaultPosition
	}
	sb.WriteString("SENDER INFORMATION:\n")
	sb.WriteString(fmt.Sprintf("- Name: %s\n", sender.Name))
	sb.WriteString(fmt.Sprintf("- Position: %s\n", position))
	sb.WriteString(fmt.Sprintf("- Company: %s\n", sender.Company))
	sb.WriteString(fmt.Sprintf("- Product/Service: %s\n", sender.ProductDescription))
	if v := strings.TrimSpace(sender.Email); v != "" {
		sb.WriteString(fmt.Sprintf("- Email: %s\n", v))
	}
	if v := strings.TrimSpace(sender.Phone); v != "" {
		sb.WriteString(fmt.Sprintf("- Phone: %s\n", v))
	}

	sb.WriteString("\nRECIPIENT INFORMATION:\n")
	sb.WriteString(fmt.Sprintf("- Name: %s\n", lead.Name))
	sb.WriteString(fmt.Sprintf("- Company: %s\n", lead.CompanyName))
	product := strings.TrimSpace(lead.ProductDescription)
	if product != "" {
		sb.WriteString(fmt.Sprintf("- Product/Service: %s\n", product))
	}
	if v := strings.TrimSpace(lead.Email); v != "" {
		sb.WriteString(fmt.Sprintf("- Email: %s\n", v))
	}
	if product == "" {
		product = fallbackProductHint
	}

	sb.WriteString("\nINSTRUCTIONS:\n")
	sb.WriteString(fmt.Sprintf("- Use a %s tone\n", strings.ToLower(string(settings.Tone))))
	sb.WriteString("- Create both a subject line and email body\n")
	sb.WriteString("- Format your response exactly as:\nSUBJECT: <subject line>\n\nBODY:\n<email body>\n")
	if wc := wordCountInstruction(settings); wc != "" {
		sb.WriteString(fmt.Sprintf("- %s\n", wc))
	}
	sb.WriteString(fmt.Sprintf("- The subject line MUST explicitly mention the recipient's product: %q\n", product))
	sb.WriteString(fmt.Sprintf("- In the email, ALWAYS use the exact name %q directly - DO NOT use placeholders like [Recipient's Name]\n", lead.Name))
	sb.WriteString(fmt.Sprintf("- In the email, ALWAYS use the exact company name %q directly - DO NOT use placeholders like [Recipient's Company]\n", lead.CompanyName))
	sb.WriteString("- Do not use ANY placeholders or brackets like [Name] or [Company Name] - use the actual data\n")
	sb.WriteString("- Make the email highly personalized to the recipient's specific needs\n")
	sb.WriteString("- End with a professional signature using ONLY the sender information provided above\n")
	sb.WriteString("- If the sender email or phone is not listed, omit it from the signature instead of using placeholders\n")
	if custom := strings.TrimSpace(settings.CustomPrompt); custom != "" {
		sb.WriteString(fmt.Sprintf("- Additional instructions: %s\n", custom))
	}
	return sb.String()
}
