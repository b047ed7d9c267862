package middleware

import (
	"context"
	"net/http"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
	"github.com/sandeepkv93/capture-session-service/internal/http/response"
	"github.com/sandeepkv93/capture-session-service/internal/observability"
	"github.com/sandeepkv93/capture-session-service/internal/security"
)

type contextKey string

const (
	CallerContextKey contextKey = "caller"
)

type AccessTokenParser interface {
	ParseAccessToken(raw string) (*security.Claims, error)
}

// AuthMiddleware requires a verified caller. The access_token cookie is
// preferred over the Authorization header.
func AuthMiddleware(parser AccessTokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := security.GetCookie(r, security.AccessTokenCookie)
			source := "cookie"
			if raw == "" {
				raw = security.BearerToken(r)
				source = "bearer"
			}
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
				response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "missing access token", nil)
				return
			}
			claims, err := parser.ParseAccessToken(raw)
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid", source)
				response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "invalid access token", nil)
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid", source)
				response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "invalid access token", nil)
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "valid", source)
			caller := domain.Caller{UserID: userID, DisplayName: claims.Name}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func WithCaller(ctx context.Context, caller domain.Caller) context.Context {
	return context.WithValue(ctx, CallerContextKey, caller)
}

func CallerFromContext(ctx context.Context) (domain.Caller, bool) {
	c, ok := ctx.Value(CallerContextKey).(domain.Caller)
	return c, ok && c.Authenticated()
}
