package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// sensitiveKeys are attribute keys whose values are never logged.
var sensitiveKeys = map[string]bool{
	// Tor control port
	"cookie":                true,
	"control_cookie":        true,
	"authcookie":            true,
	"cookie_hex":            true,
	"control_password":      true,
	"hashedcontrolpassword": true,

	// HTTP
	"authorization":       true,
	"proxy-authorization": true,
	"set-cookie":          true,
	"x-api-key":           true,

	// Tool provider credentials (subfinder provider-config and friends)
	"api_key":     true,
	"apikey":      true,
	"api-key":     true,
	"credentials": true,
	"session":     true,
}

// sensitiveKeywords mark a key as sensitive when they appear anywhere in it.
// The bare word "key" is left out on purpose: it matches too many harmless
// names ("sort_key", "monkey").
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "auth",
	"credential", "private", "apikey", "api_key",
}

// sensitiveValues match whole values that must be masked whatever the key.
var sensitiveValues = []*regexp.Regexp{
	// 32-byte control auth cookie, hex encoded
	regexp.MustCompile(`^[0-9a-fA-F]{64}$`),

	// HashedControlPassword output of "tor --hash-password"
	regexp.MustCompile(`^16:[0-9A-F]{58}$`),

	// Bearer and Basic authorization values
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),

	// Long opaque tokens, such as provider API keys
	regexp.MustCompile(`^[a-zA-Z0-9]{32,}$`),

	// PEM private keys
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// inlineSecrets match secrets embedded in a longer string. Only the secret
// part (the second submatch) is replaced so the rest stays readable.
var inlineSecrets = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(AUTHENTICATE\s+)("?[0-9a-f]+"?)`),
	regexp.MustCompile(`(?i)(HashedControlPassword\s+)(\S+)`),
	regexp.MustCompile(`(?i)([?&](?:api_?key|token|key)=)([^&\s]+)`),
}

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// SecureHandler wraps an slog.Handler and masks sensitive attribute values
// before they reach it. Masking applies to attributes added with With as
// well as per-record attributes, recursively through groups.
type SecureHandler struct {
	handler slog.Handler
}

// NewSecureHandler creates a new SecureHandler wrapping the given handler.
// If handler is nil, slog.Default().Handler() is used.
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

// Enabled reports whether the handler handles records at the given level.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle masks the record's attributes and message and passes it on.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, redactInline(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a new handler with the given attributes added.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitizedAttrs := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitizedAttrs[i] = sanitizeAttr(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(sanitizedAttrs)}
}

// WithGroup returns a new handler with the given group name.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name)}
}

func sanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		sanitizedAttrs := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			sanitizedAttrs[i] = sanitizeAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitizedAttrs...)}
	}

	keyLower := strings.ToLower(a.Key)
	if sensitiveKeys[keyLower] || containsSensitiveKeyword(keyLower) {
		return slog.String(a.Key, MaskValue)
	}

	if a.Value.Kind() == slog.KindString {
		strVal := a.Value.String()
		if isSensitiveValue(strVal) {
			return slog.String(a.Key, MaskValue)
		}
		if masked := redactInline(strVal); masked != strVal {
			return slog.String(a.Key, masked)
		}
	}
	return a
}

func containsSensitiveKeyword(key string) bool {
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(key, keyword) {
			return true
		}
	}
	return false
}

func isSensitiveValue(value string) bool {
	for _, pattern := range sensitiveValues {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// redactInline replaces embedded secrets in s, keeping their prefixes.
func redactInline(s string) string {
	for _, pattern := range inlineSecrets {
		s = pattern.ReplaceAllString(s, "${1}"+MaskValue)
	}
	return s
}

// NewSecureLogger returns a text logger on w that masks sensitive values.
// The level is Debug when verbose is set and Warn otherwise.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, handlerOptions(verbose))))
}

// NewSecureJSONLogger is NewSecureLogger with JSON output, for log shipping.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, handlerOptions(verbose))))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}
