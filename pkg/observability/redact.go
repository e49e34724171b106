// Package observability emits the per-stage structured records and the
// Prometheus metrics the operators watch. Every record passes through the
// PII redactor before it reaches a sink; redaction is recursive over maps
// and lists and idempotent, so re-redacting is a no-op.
package observability

import "regexp"

type piiPattern struct {
	re          *regexp.Regexp
	replacement string
}

var piiPatterns = []piiPattern{
	// Card numbers
	{regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), "[CARD-REDACTED]"},

	// SSNs before phone numbers: both are digit triples, the SSN shape is
	// stricter
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN-REDACTED]"},
	{regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`), "[PHONE-REDACTED]"},

	// Email addresses
	{regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "[EMAIL-REDACTED]"},

	// Street addresses
	{regexp.MustCompile(`(?i)\b\d{1,5}\s+\w+\s+(Street|St|Avenue|Ave|Road|Rd|Lane|Ln|Drive|Dr|Court|Ct|Circle|Cir|Boulevard|Blvd)\b`), "[ADDRESS-REDACTED]"},

	// Credentials in key=value form
	{regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password)["']?\s*[:=]\s*["']?[a-zA-Z0-9]{8,}`), "[CREDENTIAL-REDACTED]"},

	// Database connection strings
	{regexp.MustCompile(`postgres(?:ql)?://[^"\s]+`), "[DB-CONN-REDACTED]"},

	// Inlined tenancy filters
	{regexp.MustCompile(`user_id\s*=\s*['"][a-f0-9-]{36}['"]`), "user_id=[USER-ID-REDACTED]"},
}

// Sensitive field names redacted wholesale regardless of value.
var sensitiveFields = map[string]bool{
	"password": true, "api_key": true, "token": true, "secret": true,
	"private_key": true, "ssn": true, "tax_id": true,
	"account_number": true, "routing_number": true,
	"email": true, "phone": true, "address": true, "zip_code": true,
}

// RedactText rewrites every configured PII pattern in the string.
func RedactText(s string) string {
	for _, p := range piiPatterns {
		s = p.re.ReplaceAllString(s, p.replacement)
	}
	return s
}

// RedactValue recursively redacts strings inside maps and lists. Sensitive
// field names lose their value entirely.
func RedactValue(v any) any {
	switch t := v.(type) {
	case string:
		return RedactText(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for key, val := range t {
			if sensitiveFields[lower(key)] {
				out[key] = "[REDACTED]"
				continue
			}
			out[key] = RedactValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = RedactValue(val)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, val := range t {
			out[i] = RedactText(val)
		}
		return out
	default:
		return v
	}
}

func lower(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'A' && c <= 'Z' {
			out[i] = c + 'a' - 'A'
		}
	}
	return string(out)
}
