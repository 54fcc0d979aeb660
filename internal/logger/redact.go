package logger

import "log/slog"

const redactedValue = "[redacted]"

// secretKind marks attribute values that must never reach a log sink.
type secretKind struct{}

// Redacted returns an attribute whose value is replaced before it is written.
func Redacted(key string) slog.Attr {
	return slog.Any(key, secretKind{})
}

var sensitiveKeys = map[string]struct{}{
	"pin":        {},
	"passphrase": {},
	"seed":       {},
	"share":      {},
	"privkey":    {},
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := a.Value.Any().(secretKind); ok {
		return slog.String(a.Key, redactedValue)
	}
	if _, ok := sensitiveKeys[a.Key]; ok {
		return slog.String(a.Key, redactedValue)
	}
	return a
}
