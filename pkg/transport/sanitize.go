package transport

import (
	"encoding/json"
	"regexp"
	"strings"
)

// sensitiveFields lists substrings of field names whose values never reach the logs.
var sensitiveFields = []string{"secret", "token", "ticket", "sign", "key", "password", "auth_code"}

var xmlFieldPattern = regexp.MustCompile(`<([A-Za-z0-9_]+)>(.*?)</[A-Za-z0-9_]+>`)

// sanitizeForLog masks sensitive fields in a JSON or XML body.
func sanitizeForLog(data []byte, contentType ContentType) string {
	if contentType == ContentTypeXML {
		return sanitizeXML(data)
	}
	return string(sanitizeJSON(data))
}

func sanitizeJSON(data []byte) []byte {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return []byte(`{"_error": "failed to parse for sanitization"}`)
	}

	sanitizeMap(obj)

	sanitized, err := json.Marshal(obj)
	if err != nil {
		return []byte(`{"_error": "failed to marshal sanitized data"}`)
	}
	return sanitized
}

// sanitizeMap recursively masks sensitive fields in a map
func sanitizeMap(obj map[string]any) {
	for key, value := range obj {
		if isSensitive(key) {
			obj[key] = "***MASKED***"
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			sanitizeMap(nested)
		}
	}
}

func sanitizeXML(data []byte) string {
	return xmlFieldPattern.ReplaceAllStringFunc(string(data), func(field string) string {
		m := xmlFieldPattern.FindStringSubmatch(field)
		if m == nil || !isSensitive(m[1]) {
			return field
		}
		return "<" + m[1] + ">***MASKED***</" + m[1] + ">"
	})
}

func isSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range sensitiveFields {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
