package guard

import (
	"context"
	"regexp"
)

type redactRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Order matters: longer numeric formats are redacted before phone numbers.
var defaultRules = []redactRule{
	{regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`), "<EMAIL_ADDRESS>"},
	{regexp.MustCompile(`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`), "<US_SSN>"},
	{regexp.MustCompile(`\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12})\b`), "<CREDIT_CARD>"},
	{regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`), "<IP_ADDRESS>"},
	{regexp.MustCompile(`(?:\+?1[-. ]?)?\(?\b[0-9]{3}\)?[-. ][0-9]{3}[-. ][0-9]{4}\b`), "<PHONE_NUMBER>"},
}

// LocalRedactor is an offline guard that masks common PII with placeholders.
type LocalRedactor struct {
	rules []redactRule
}

func NewLocalRedactor() *LocalRedactor {
	return &LocalRedactor{rules: defaultRules}
}

func (r *LocalRedactor) GuardText(_ context.Context, text string) (string, error) {
	for _, rule := range r.rules {
		text = rule.pattern.ReplaceAllString(text, rule.replacement)
	}
	return text, nil
}
