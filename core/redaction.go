package core

import "strings"

const RedactedValue = "[REDACTED]"

// RedactHeaders masks credential-bearing headers before they reach a log.
func RedactHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		if shouldRedactKey(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = value
	}
	return out
}

// RedactSensitiveMap masks credential keys at any depth. Identifier keys such
// as token_id name a secret without revealing it and stay visible.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	target := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		switch nested := value.(type) {
		case map[string]any:
			target[key] = RedactSensitiveMap(nested)
		case map[string]string:
			target[key] = RedactHeaders(nested)
		default:
			target[key] = value
		}
	}
	return target
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	for _, token := range []string{
		"secret",
		"token",
		"authorization",
		"api_key",
		"apikey",
		"signature",
		"cookie",
	} {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func isTraceabilityKey(key string) bool {
	switch key {
	case "event_id",
		"task_id",
		"trigger_id",
		"claim_id",
		"token_id",
		"signing_secret_id",
		"request_id":
		return true
	default:
		return false
	}
}
