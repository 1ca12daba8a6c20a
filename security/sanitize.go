package security

import "regexp"

// Redacted replaces matched secret material in sanitized output.
const Redacted = "[REDACTED]"

// secretPatterns match known secret shapes in command output. Best effort:
// sanitation reduces exposure, it is not a guarantee.
var secretPatterns = []*regexp.Regexp{
	// KEY=VALUE assignments whose key looks credential-ish.
	regexp.MustCompile(`(?i)[A-Za-z0-9_]*(?:API[_-]?KEY|APIKEY|TOKEN|SECRET|PASSWORD|PASS|CREDENTIAL|AUTH)[A-Za-z0-9_]*=[^\s\n]+`),
	regexp.MustCompile(`(?i)sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`(?i)tvly-[A-Za-z0-9-]{20,}`),
	regexp.MustCompile(`(?i)ghp_[A-Za-z0-9]{36,}`),
	// Messaging bot tokens.
	regexp.MustCompile(`\d{8,12}:[A-Za-z0-9_-]{35}`),
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
}

// SanitizeOutput replaces known secret shapes with the redaction marker.
// Applied to all tool output before it reaches the model or the user.
func SanitizeOutput(output string) string {
	for _, re := range secretPatterns {
		output = re.ReplaceAllString(output, Redacted)
	}
	return output
}
