package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// sensitiveKeys are log attribute keys whose values are replaced with
// "[REDACTED]". Keys are matched after lowercasing and stripping
// underscores, so "api_key", "APIKey" and "apikey" all hit.
var sensitiveKeys = map[string]bool{
	"password":      true,
	"passphrase":    true,
	"token":         true,
	"secret":        true,
	"secretkey":     true,
	"credential":    true,
	"apikey":        true,
	"cookie":        true,
	"authorization": true,
}

// ParseLevel maps a config log level string to a slog.Level. Unknown
// strings fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the daemon logger. Format "json" emits structured
// JSON lines for log shipping; anything else emits human-readable text.
// Sensitive attribute values are redacted in both formats.
func NewLogger(w io.Writer, level string, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: redactAttr,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// WithTraceContext returns a logger carrying the trace_id and span_id
// of the span in ctx, so log lines correlate with exported traces. The
// logger is returned unchanged when ctx carries no recording span.
func WithTraceContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return logger
	}
	spanCtx := span.SpanContext()
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

func redactAttr(groups []string, attr slog.Attr) slog.Attr {
	key := strings.ToLower(strings.ReplaceAll(attr.Key, "_", ""))
	if sensitiveKeys[key] {
		attr.Value = slog.StringValue("[REDACTED]")
	}
	return attr
}
