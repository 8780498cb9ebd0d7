package projectx

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ClientError is returned for every gateway failure. StatusCode is nil for
// network-level errors where no HTTP response was received.
type ClientError struct {
	Message    string
	StatusCode *int
}

func (e *ClientError) Error() string {
	return e.Message
}

func newClientError(format string, args ...interface{}) *ClientError {
	return &ClientError{Message: fmt.Sprintf(format, args...)}
}

func newStatusError(status int, format string, args ...interface{}) *ClientError {
	code := status
	return &ClientError{Message: fmt.Sprintf(format, args...), StatusCode: &code}
}

// extractErrorMessage pulls a human-readable message out of a gateway error
// body. The gateway is inconsistent about the field it uses.
func extractErrorMessage(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "Unknown error"
	}

	var parsed interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return text
	}
	return extractFromValue(parsed)
}

func extractFromValue(value interface{}) string {
	obj, ok := value.(map[string]interface{})
	if !ok {
		if s, ok := value.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
		return "Unknown error"
	}

	for _, key := range []string{"detail", "errorMessage", "message", "title", "error", "errors"} {
		v, present := obj[key]
		if !present || v == nil {
			continue
		}
		switch typed := v.(type) {
		case string:
			return typed
		case []interface{}:
			parts := make([]string, 0, len(typed))
			for _, item := range typed {
				parts = append(parts, fmt.Sprintf("%v", item))
			}
			return strings.Join(parts, "; ")
		default:
			return fmt.Sprintf("%v", typed)
		}
	}
	return "Unknown error"
}
