package content

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	policy = bluemonday.UGCPolicy()
	md     = goldmark.New()
)

// Sanitize removes unsafe HTML from the input string using a strict policy.
// It is used for sanitizing user inputs like display names and messages.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// Escape escapes special characters like "<" to become "&lt;".
// It matches the behavior of html/template and is safe for use in HTML attributes.
func Escape(input string) string {
	return template.HTMLEscapeString(input)
}

// RenderMarkdown converts message content to HTML and sanitizes the result.
// If conversion fails the escaped plain text is returned instead.
func RenderMarkdown(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := md.Convert([]byte(input), &buf); err != nil {
		return Escape(input)
	}
	return strings.TrimSpace(policy.Sanitize(buf.String()))
}
