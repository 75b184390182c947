// Package audit records security-relevant session events as structured logs.
package audit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmcleod/hubuum-bff/correlation"
)

// Event identifies the type of security-relevant action being logged.
type Event string

const (
	LoginSuccess       Event = "login_success"
	LoginFailure       Event = "login_failure"
	LoginRateLimited   Event = "login_rate_limited"
	Logout             Event = "logout"
	SessionInvalidated Event = "session_invalidated"
	StoreUnavailable   Event = "session_store_unavailable"
)

// Logger wraps slog.Logger for structured security audit logging.
type Logger struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		logger: logger.With("component", "audit"),
	}
}

func (l *Logger) log(ctx context.Context, event Event, r *http.Request, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if r != nil {
		base = append(base, slog.String("remote_addr", r.RemoteAddr))
	}
	if id := correlation.FromContext(ctx); id != "" {
		base = append(base, slog.String("correlation_id", id))
	}
	base = append(base, attrs...)
	l.logger.LogAttrs(ctx, slog.LevelInfo, "audit", base...)
}

// Event logs an event attributed to username. The username may be empty
// when the session never carried one.
func (l *Logger) Event(event Event, r *http.Request, username string, extra ...slog.Attr) {
	attrs := []slog.Attr{slog.String("username", username)}
	attrs = append(attrs, extra...)
	l.log(r.Context(), event, r, attrs...)
}

// Failure logs a failed or refused action with a short machine-readable reason.
func (l *Logger) Failure(event Event, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{slog.String("reason", reason)}
	attrs = append(attrs, extra...)
	l.log(r.Context(), event, r, attrs...)
}
