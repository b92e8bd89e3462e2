package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// sensitiveKeys are attribute keys whose values are always masked.
// Request headers reach the logs through --header, --cookie and the site
// config, so every header that carries credentials is listed.
var sensitiveKeys = keySet(
	// request and response headers
	"authorization", "proxy-authorization", "cookie", "set-cookie",
	"x-api-key", "x-auth-token", "x-csrf-token",
	// credentials and tokens
	"password", "passwd", "secret", "secret_key", "token",
	"access_token", "refresh_token", "api_key", "apikey", "api-key",
	"auth", "credential", "credentials",
	// session identifiers
	"session", "session_id", "sessionid", "sid", "jsessionid",
)

// sensitiveKeywords mark a key as sensitive when contained anywhere in it.
// A bare "key" would also match "primary_key" or "monkey", so it is absent.
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "auth",
	"credential", "private", "cookie",
}

// sensitivePatterns match values that are masked whatever their key.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`), // JWT
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`), // AWS access key ID
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// sensitiveQueryParams are query parameter names whose values are masked
// inside logged URLs. Matching is case-insensitive on the whole name.
var sensitiveQueryParams = keySet(
	"token", "access_token", "refresh_token", "id_token",
	"api_key", "apikey", "key", "client_secret", "secret",
	"password", "passwd", "auth", "code",
	"session", "sessionid", "sid",
	"sig", "signature", "x-amz-signature", "x-amz-credential",
)

func keySet(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// SecureHandler is an slog.Handler that masks credentials before records
// reach the wrapped handler. Keys and values are checked against the tables
// above. URLs keep their shape: only the userinfo password and the values
// of sensitive query parameters are masked, so a crawl log still shows which
// page was fetched.
type SecureHandler struct {
	next slog.Handler
}

// NewSecureHandler wraps next. A nil next wraps slog.Default().Handler().
func NewSecureHandler(next slog.Handler) *SecureHandler {
	if next == nil {
		next = slog.Default().Handler()
	}
	return &SecureHandler{next: next}
}

// Enabled delegates to the wrapped handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle masks the record's attributes and forwards it.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	attrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	out.AddAttrs(maskAttrs(attrs)...)
	return h.next.Handle(ctx, out)
}

// WithAttrs masks attrs once, when they are bound to the logger.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SecureHandler{next: h.next.WithAttrs(maskAttrs(attrs))}
}

// WithGroup delegates to the wrapped handler.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{next: h.next.WithGroup(name)}
}

func maskAttrs(attrs []slog.Attr) []slog.Attr {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = maskAttr(a)
	}
	return masked
}

// maskAttr masks one attribute, descending into groups.
func maskAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(maskAttrs(a.Value.Group())...)}
	}

	key := strings.ToLower(a.Key)
	if _, ok := sensitiveKeys[key]; ok || containsSensitiveKeyword(key) {
		return slog.String(a.Key, MaskValue)
	}

	text, ok := stringValue(a.Value)
	switch {
	case !ok:
		return a
	case isSensitiveValue(text):
		return slog.String(a.Key, MaskValue)
	}
	if masked, changed := SanitizeURL(text); changed {
		return slog.String(a.Key, masked)
	}
	return a
}

// stringValue returns the text of string attributes and of values that
// are strings underneath (named string types such as URL types, or
// fmt.Stringer implementations).
func stringValue(v slog.Value) (string, bool) {
	switch v.Kind() {
	case slog.KindString:
		return v.String(), true
	case slog.KindAny:
		switch x := v.Any().(type) {
		case fmt.Stringer:
			return x.String(), true
		case error:
			return x.Error(), true
		}
	}
	return "", false
}

func containsSensitiveKeyword(key string) bool {
	return slices.ContainsFunc(sensitiveKeywords, func(keyword string) bool {
		return strings.Contains(key, keyword)
	})
}

func isSensitiveValue(value string) bool {
	return slices.ContainsFunc(sensitivePatterns, func(re *regexp.Regexp) bool {
		return re.MatchString(value)
	})
}

// SanitizeURL masks the userinfo password and the values of sensitive
// query parameters in raw. It reports whether anything was masked.
// Values that are not absolute URLs are returned unchanged.
func SanitizeURL(raw string) (string, bool) {
	if !strings.Contains(raw, "://") || (!strings.Contains(raw, "?") && !strings.Contains(raw, "@")) {
		return raw, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, false
	}

	changed := false
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), MaskValue)
			changed = true
		}
	}

	if u.RawQuery != "" {
		query := u.Query()
		for name, values := range query {
			if _, ok := sensitiveQueryParams[strings.ToLower(name)]; !ok {
				continue
			}
			for i := range values {
				values[i] = MaskValue
			}
			changed = true
		}
		if changed {
			u.RawQuery = query.Encode()
		}
	}

	if !changed {
		return raw, false
	}
	return u.String(), true
}

// NewSecureLogger returns a text logger on w whose records pass through a
// SecureHandler. verbose lowers the level from Info to Debug.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	textHandler := slog.NewTextHandler(w, handlerOptions(verbose))
	return slog.New(NewSecureHandler(textHandler))
}

// NewSecureJSONLogger is NewSecureLogger with JSON output.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	jsonHandler := slog.NewJSONHandler(w, handlerOptions(verbose))
	return slog.New(NewSecureHandler(jsonHandler))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}
