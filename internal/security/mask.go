// Package security redacts credentials from text that leaves the process:
// error messages, audit entries and logged headers.
package security

import (
	"regexp"
	"strings"
)

// Redacted replaces a masked value.
const Redacted = "***REDACTED***"

// sensitiveHeaders are masked entirely by MaskSensitiveHeaders.
var sensitiveHeaders = map[string]bool{ // pragma: allowlist secret
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-vss-userdata":      true,
}

// MaskSensitiveHeaders masks sensitive values in HTTP headers
func MaskSensitiveHeaders(headers map[string][]string) map[string]string {
	masked := make(map[string]string, len(headers))
	for key, values := range headers {
		if sensitiveHeaders[strings.ToLower(key)] {
			masked[key] = Redacted
		} else if len(values) > 0 {
			masked[key] = values[0]
			if len(values) > 1 {
				masked[key] += "..."
			}
		}
	}
	return masked
}

// SensitivePatterns contains regex patterns for sensitive data. Group 1 is kept,
// the rest of the match is replaced.
var SensitivePatterns = []*regexp.Regexp{
	// Authorization header values
	regexp.MustCompile(`(?i)(basic\s+)([a-zA-Z0-9+/=]{12,})`),
	regexp.MustCompile(`(?i)(bearer\s+)([a-zA-Z0-9_.-]{20,})`),
	// JSON Web Tokens outside a header
	regexp.MustCompile(`()(eyJ[a-zA-Z0-9_-]{10,}\.[a-zA-Z0-9_-]{10,}\.[a-zA-Z0-9_-]*)`),
	// Azure DevOps personal access tokens (52 base32 characters, or the 84 character format)
	regexp.MustCompile(`()\b([a-z2-7]{52}|[a-zA-Z0-9]{84})\b`),
	// key=value secrets
	regexp.MustCompile(`(?i)((?:pat|password|secret|token)[=:]\s*["']?)([^"'\s&,]{6,})`),
}

// MaskSensitiveData masks sensitive data in a string using pattern matching
func MaskSensitiveData(data string) string {
	result := data
	for _, pattern := range SensitivePatterns {
		result = pattern.ReplaceAllString(result, "${1}"+Redacted)
	}
	return result
}

// MaskURL masks sensitive query parameters in URLs
func MaskURL(rawURL string) string {
	return urlSecretPattern.ReplaceAllString(rawURL, "${1}"+Redacted)
}

var urlSecretPattern = regexp.MustCompile(`(?i)((?:access_token|token|pat|password|secret)=)([^&\s]+)`)

// IsSensitiveField checks if a field name indicates sensitive data
func IsSensitiveField(fieldName string) bool {
	sensitiveNames := []string{
		"password", "secret", "token",
		"authorization", "credential", "private",
	}

	fieldLower := strings.ToLower(fieldName)
	if fieldLower == "pat" {
		return true
	}
	for _, name := range sensitiveNames {
		if strings.Contains(fieldLower, name) {
			return true
		}
	}
	return false
}

// SanitizeError removes sensitive data from error messages
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return MaskSensitiveData(err.Error())
}
