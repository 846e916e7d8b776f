package reply

import (
	"regexp"
	"strings"
)

// ParseMode selects how the transport should interpret outgoing text.
type ParseMode string

const (
	ParseModePlain      ParseMode = ""
	ParseModeMarkdownV2 ParseMode = "MarkdownV2"
)

// markdownV2Specials are the characters MarkdownV2 requires escaped in
// literal text.
const markdownV2Specials = "_*[]()~`>#+-=|{}.!"

// Formatter renders generated text for the transport. With Rich off
// everything is sent as plain text.
type Formatter struct {
	Rich bool
}

// Format decides how to deliver text. Text without markup-sensitive
// characters goes out plain untouched; with rich markup enabled, a
// constrained Markdown subset (fenced code, inline code, bold, italic,
// links) is converted to MarkdownV2 with all literal text escaped.
func (f Formatter) Format(text string) (string, ParseMode) {
	if !f.Rich || !strings.ContainsAny(text, "*`[_") {
		return text, ParseModePlain
	}
	return convertMarkdown(text), ParseModeMarkdownV2
}

// EscapeMarkdownV2 escapes every special character so the text renders
// literally under the MarkdownV2 parse mode.
func EscapeMarkdownV2(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(markdownV2Specials, s[i]) >= 0 || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func convertMarkdown(text string) string {
	var b strings.Builder
	for {
		start := strings.Index(text, "```")
		if start < 0 {
			b.WriteString(convertInline(text))
			break
		}
		end := strings.Index(text[start+3:], "```")
		if end < 0 {
			b.WriteString(convertInline(text))
			break
		}
		b.WriteString(convertInline(text[:start]))
		b.WriteString("```")
		b.WriteString(escapeCode(text[start+3 : start+3+end]))
		b.WriteString("```")
		text = text[start+3+end+3:]
	}
	return b.String()
}

var linkRe = regexp.MustCompile(`^\[([^\]]*)\]\(([^)\s]+)\)`)

// convertInline translates bold, italic, inline code, and links,
// escaping everything in between.
func convertInline(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], "**"):
			if end := strings.Index(s[i+2:], "**"); end >= 0 {
				b.WriteString("*")
				b.WriteString(EscapeMarkdownV2(s[i+2 : i+2+end]))
				b.WriteString("*")
				i += end + 4
				continue
			}
		case s[i] == '*' || s[i] == '_':
			if end := strings.IndexByte(s[i+1:], s[i]); end >= 0 {
				b.WriteString("_")
				b.WriteString(EscapeMarkdownV2(s[i+1 : i+1+end]))
				b.WriteString("_")
				i += end + 2
				continue
			}
		case s[i] == '`':
			if end := strings.IndexByte(s[i+1:], '`'); end >= 0 {
				b.WriteString("`")
				b.WriteString(escapeCode(s[i+1 : i+1+end]))
				b.WriteString("`")
				i += end + 2
				continue
			}
		case s[i] == '[':
			if m := linkRe.FindStringSubmatch(s[i:]); m != nil {
				b.WriteString("[")
				b.WriteString(EscapeMarkdownV2(m[1]))
				b.WriteString("](")
				b.WriteString(strings.ReplaceAll(m[2], `\`, `\\`))
				b.WriteString(")")
				i += len(m[0])
				continue
			}
		}
		if strings.IndexByte(markdownV2Specials, s[i]) >= 0 || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// escapeCode escapes only what MarkdownV2 requires inside code spans.
func escapeCode(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "`", "\\`")
}
