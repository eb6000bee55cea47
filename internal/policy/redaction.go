// Package policy masks customer PII before interaction content is persisted.
package policy

import "regexp"

type redactionRule struct {
	kind    string
	pattern *regexp.Regexp
	marker  string
}

// Cards run before Aadhaar and phone numbers so long digit runs are not
// misclassified; PAN runs before phone because it contains digits too.
var redactionRules = []redactionRule{
	{kind: "email", pattern: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), marker: "[REDACTED_EMAIL]"},
	{kind: "card", pattern: regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), marker: "[REDACTED_CARD]"},
	{kind: "aadhaar", pattern: regexp.MustCompile(`\b[2-9]\d{3}[ -]?\d{4}[ -]?\d{4}\b`), marker: "[REDACTED_AADHAAR]"},
	{kind: "pan", pattern: regexp.MustCompile(`\b[A-Z]{5}[0-9]{4}[A-Z]\b`), marker: "[REDACTED_PAN]"},
	{kind: "phone", pattern: regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), marker: "[REDACTED_PHONE]"},
}

// RedactPII masks common high-risk PII patterns and reports which kinds were found.
func RedactPII(input string) (redacted string, kinds []string) {
	out := input
	for _, rule := range redactionRules {
		next := rule.pattern.ReplaceAllString(out, rule.marker)
		if next != out {
			kinds = append(kinds, rule.kind)
		}
		out = next
	}
	return out, kinds
}
