// Package telegram holds MarkdownV2 formatting shared by the alert notifier
// and the chat bot.
package telegram

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var markdownReplacer = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
	"~", "\\~",
	"`", "\\`",
	">", "\\>",
	"#", "\\#",
	"+", "\\+",
	"-", "\\-",
	"=", "\\=",
	"|", "\\|",
	"{", "\\{",
	"}", "\\}",
	".", "\\.",
	"!", "\\!",
)

// EscapeMarkdown escapes every MarkdownV2 special character in text.
func EscapeMarkdown(text string) string {
	return markdownReplacer.Replace(text)
}

// FormatLabel turns snake_case identifiers into "Title Case".
func FormatLabel(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
		}
	}
	return strings.Join(parts, " ")
}

func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

// FormatAmount prints whole amounts without decimals and the rest with two.
func FormatAmount(d decimal.Decimal) string {
	if d.IsInteger() {
		return d.String()
	}
	return d.StringFixed(2)
}
