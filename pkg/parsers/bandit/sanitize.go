package bandit

import "regexp"

type redaction struct {
	pattern *regexp.Regexp
	replace string
}

// Secrets matched in code snippets, replaced in order.
var redactions = []redaction{
	{regexp.MustCompile(`(?i)(password|passwd|pwd)\s*=\s*["']([^"']+)["']`), `${1} = "[REDACTED]"`},
	{regexp.MustCompile(`(?i)(password|passwd|pwd)\s*:\s*["']([^"']+)["']`), `${1}: "[REDACTED]"`},
	{regexp.MustCompile(`(?i)(api_key|apikey|api_secret)\s*=\s*["']([^"']+)["']`), `${1} = "[REDACTED]"`},
	{regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9]{48})`), `[REDACTED_API_KEY]`},
	{regexp.MustCompile(`(?i)(AKIA[0-9A-Z]{16})`), `[REDACTED_AWS_KEY]`},
	{regexp.MustCompile(`(?i)(aws_secret_access_key|aws_access_key_id)\s*=\s*["']([^"']+)["']`), `${1} = "[REDACTED]"`},
	{regexp.MustCompile(`(?i)(secret|token)\s*=\s*["']([^"']{8,})["']`), `${1} = "[REDACTED]"`},
	{regexp.MustCompile(`(?i)-----BEGIN (RSA |DSA |EC |OPENSSH )?PRIVATE KEY-----[\s\S]+?-----END (RSA |DSA |EC |OPENSSH )?PRIVATE KEY-----`), `[REDACTED_PRIVATE_KEY]`},
}

// Sanitize replaces credentials, API keys and private keys in a code snippet.
func Sanitize(code string) string {
	for _, r := range redactions {
		code = r.pattern.ReplaceAllString(code, r.replace)
	}
	return code
}
