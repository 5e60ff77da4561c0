package services

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// RedactorConfig configures the PromptRedactor.
type RedactorConfig struct {
	MaskingEnabled  bool `yaml:"masking_enabled"`
	MaxPromptLength int  `yaml:"max_prompt_length"` // 0 disables truncation
}

// DefaultRedactorConfig masks personal data and caps prompts at 10K bytes.
func DefaultRedactorConfig() RedactorConfig {
	return RedactorConfig{MaskingEnabled: true, MaxPromptLength: 10000}
}

// Redaction is the outcome of redacting one prompt.
type Redaction struct {
	Prompt    string
	Masked    []string // kinds of data that were masked, in rule order
	Truncated bool
}

type maskRule struct {
	kind    string
	pattern *regexp.Regexp
	replace func(match string) string
}

// secretPrefixes introduce a credential value. Longer prefixes come first so
// "Authorization: Bearer " wins over "Authorization: ".
var secretPrefixes = []string{
	"Authorization: Bearer ",
	"Authorization: ",
	"api_key=", "apikey=", "api-key=",
	"access_token=",
	"api_secret=",
	"password=", "passwd=",
	"secret=",
	"token=",
}

// PromptRedactor strips personal data and credentials from a user prompt
// before it is sent to external providers. The stored task keeps the
// original prompt.
type PromptRedactor struct {
	cfg   RedactorConfig
	rules []maskRule
}

// NewPromptRedactor compiles the masking rules.
func NewPromptRedactor(cfg RedactorConfig) *PromptRedactor {
	secrets := make([]string, len(secretPrefixes))
	for i, p := range secretPrefixes {
		secrets[i] = regexp.QuoteMeta(p)
	}

	return &PromptRedactor{
		cfg: cfg,
		rules: []maskRule{
			{
				kind:    "secret",
				pattern: regexp.MustCompile(`(?i)(` + strings.Join(secrets, "|") + `)\S+`),
			},
			{
				kind:    "email",
				pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
				replace: maskEmail,
			},
			{
				kind:    "credit_card",
				pattern: regexp.MustCompile(`\b(?:\d{4}[-\s]){3}\d{4}\b`),
				replace: func(cc string) string {
					return "[CARD-" + cc[len(cc)-4:] + "]"
				},
			},
			{
				kind:    "ssn",
				pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
				replace: func(string) string { return "[SSN]" },
			},
			{
				kind:    "phone",
				pattern: regexp.MustCompile(`(?:\+\d{1,3}[-.\s]?)?\(?\b\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`),
				replace: func(string) string { return "[PHONE]" },
			},
		},
	}
}

// Redact masks and truncates prompt according to the config.
func (r *PromptRedactor) Redact(prompt string) Redaction {
	out := Redaction{Prompt: prompt}

	if r.cfg.MaskingEnabled {
		for _, rule := range r.rules {
			if !rule.pattern.MatchString(out.Prompt) {
				continue
			}
			if rule.replace != nil {
				out.Prompt = rule.pattern.ReplaceAllStringFunc(out.Prompt, rule.replace)
			} else {
				out.Prompt = rule.pattern.ReplaceAllString(out.Prompt, "${1}[REDACTED]")
			}
			out.Masked = append(out.Masked, rule.kind)
		}
	}

	if r.cfg.MaxPromptLength > 0 && len(out.Prompt) > r.cfg.MaxPromptLength {
		out.Prompt = truncateAtWord(out.Prompt, r.cfg.MaxPromptLength)
		out.Truncated = true
	}
	return out
}

// maskEmail keeps the domain and the outer characters of the local part.
func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "[EMAIL]"
	}
	if len(local) > 2 {
		return local[:1] + "***" + local[len(local)-1:] + "@" + domain
	}
	return "***@" + domain
}

// truncateAtWord cuts s to at most n bytes, backing up to a space when one
// lies in the second half.
func truncateAtWord(s string, n int) string {
	cut := s[:n]
	for cut != "" && !utf8.RuneStart(s[len(cut)]) {
		cut = cut[:len(cut)-1]
	}
	if i := strings.LastIndex(cut, " "); i > n/2 {
		cut = cut[:i]
	}
	return cut + "... [TRUNCATED]"
}
