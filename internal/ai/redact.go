package ai

import (
	"regexp"
	"strings"
)

// Secret-shaped patterns masked before document context leaves the process.
var (
	reAWSAccessKey = regexp.MustCompile(`(?i)\b(AKIA|ASIA)[0-9A-Z]{16}\b`)
	reAWSSecretKey = regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key\s*[:=]\s*['"]?)([A-Za-z0-9/+=]{40})`)
	reBearer       = regexp.MustCompile(`(?i)\b(bearer)\s+[A-Za-z0-9_.]{16,}\b`)
	reKeyParam     = regexp.MustCompile(`(?i)(api[_-]?key|apikey|token|auth)_?id?\s*[:=]\s*['"]?([A-Za-z0-9_-]{16,})`)
	reQueryParam   = regexp.MustCompile(`[?&](key|api[_-]?key|token)=[^&\s]{4,}`)
	reHighEntropy  = regexp.MustCompile(`\b[A-Za-z0-9/_+=]{24,}\b`)
)

// Redact masks common secret shapes in s: AWS access and secret keys, bearer
// tokens, key/token parameters, credential-bearing query strings, and long
// mixed alphanumeric words that look like tokens. Plain prose passes through.
func Redact(s string) string {
	out := reAWSAccessKey.ReplaceAllString(s, "****")
	out = reAWSSecretKey.ReplaceAllString(out, "${1}****")
	out = reBearer.ReplaceAllString(out, "${1} ****")
	out = reKeyParam.ReplaceAllString(out, "${1}=****")
	out = reQueryParam.ReplaceAllStringFunc(out, func(m string) string {
		sep := m[:1]
		k := m[1:]
		if i := strings.Index(k, "="); i >= 0 {
			k = k[:i]
		}
		return sep + k + "=****"
	})
	out = reHighEntropy.ReplaceAllStringFunc(out, func(m string) string {
		// Long words only count as tokens when they mix letters and digits;
		// this keeps ordinary prose and identifiers intact.
		hasAlpha := strings.IndexFunc(m, func(r rune) bool {
			return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
		}) >= 0
		hasDigit := strings.IndexFunc(m, func(r rune) bool {
			return r >= '0' && r <= '9'
		}) >= 0
		if hasAlpha && hasDigit {
			return "****"
		}
		return m
	})
	return out
}
