package security

import (
	"regexp"
	"strings"
)

// sensitiveFields contains field names that should be masked in logs.
var sensitiveFields = map[string]bool{
	"password":      true,
	"token":         true,
	"access_token":  true,
	"auth_token":    true,
	"authorization": true,
	"bearer":        true,
	"secret":        true,
	"passphrase":    true,
}

// sensitivePatterns contains regex patterns for sensitive data.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(password|passphrase|access[_-]?token|auth[_-]?token|token|secret)(["']?\s*[=:]\s*["']?)([^\s"'&,}]+)`),
	regexp.MustCompile(`(?i)\b(bearer)(\s+)([A-Za-z0-9\-._~+/]+=*)`),
	regexp.MustCompile(`\b(eyJ[A-Za-z0-9_-]{5,})(\.)([A-Za-z0-9_-]+\.[A-Za-z0-9_-]+)`), // JWTs
}

// MaskToken keeps the first and last four characters of a token.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}

// MaskSecrets masks credential-looking substrings such as "password=..."
// or "Bearer ..." in free text.
func MaskSecrets(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			sub := pattern.FindStringSubmatch(match)
			if len(sub) != 4 {
				return MaskToken(match)
			}
			return sub[1] + sub[2] + MaskToken(sub[3])
		})
	}
	return result
}

// IsSensitiveField reports whether a field name carries a secret.
func IsSensitiveField(field string) bool {
	return sensitiveFields[strings.ToLower(field)]
}

// RedactFields returns a copy of data with sensitive values masked.
func RedactFields(data map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(data))
	for k, v := range data {
		strVal, isStr := v.(string)
		switch {
		case IsSensitiveField(k) && isStr:
			result[k] = MaskToken(strVal)
		case IsSensitiveField(k):
			result[k] = "***"
		case isStr:
			result[k] = MaskSecrets(strVal)
		default:
			result[k] = v
		}
	}
	return result
}
