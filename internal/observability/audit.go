package observability

import (
	"context"
	"log/slog"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Audit logs a state change that outlives the request, such as a room being
// created or a media session being deleted.
func Audit(ctx context.Context, event string, attrs ...any) {
	base := []any{"event", event}
	if reqID := chimiddleware.GetReqID(ctx); reqID != "" {
		base = append(base, "request_id", reqID)
	}
	base = append(base, attrs...)
	slog.InfoContext(ctx, "audit", base...)
}
