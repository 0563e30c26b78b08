package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/freightdesk/internal/platform/httpx"
	"github.com/odyssey-erp/freightdesk/internal/shared"
)

// Middleware requires a valid bearer token and stores the staff actor in the
// request context.
func Middleware(cfg Config, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				httpx.RespondError(w, fmt.Errorf("%w: missing credentials", shared.ErrUnauthorized))
				return
			}
			claims, err := Parse(cfg, raw)
			if err != nil {
				logger.Debug("rejected token", slog.String("path", r.URL.Path), slog.Any("error", err))
				httpx.RespondError(w, fmt.Errorf("%w: invalid token", shared.ErrUnauthorized))
				return
			}
			actor, err := claims.Actor()
			if err != nil {
				httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrUnauthorized, err))
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return ""
}
