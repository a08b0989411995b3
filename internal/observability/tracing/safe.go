package tracing

import (
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var blockedAttributeKeys = map[attribute.Key]struct{}{
	"user_id":       {},
	"authorization": {},
	"x-user-id":     {},
	"amount":        {},
	"balance":       {},
}

// SafeAttributes drops attributes that may carry personal or financial data.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedAttributeKeys[attribute.Key(strings.ToLower(string(attr.Key)))]; blocked {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns an error carrying only the type of failure, never the
// underlying message, which may contain SQL or identifiers.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New("request failed")
}
