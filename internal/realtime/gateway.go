package realtime

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
	"github.com/sandeepkv93/capture-session-service/internal/observability"
	"github.com/sandeepkv93/capture-session-service/internal/security"
)

var ErrNoCredential = errors.New("no credential presented")

type TokenVerifier interface {
	ParseAccessToken(raw string) (*security.Claims, error)
}

// Gateway resolves the caller behind a connection handshake.
type Gateway struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

func NewGateway(verifier TokenVerifier, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{verifier: verifier, logger: logger.With("module", "gateway")}
}

// Authenticate verifies the handshake credential. The access_token cookie
// wins over a bearer header, which wins over the token query parameter.
func (g *Gateway) Authenticate(r *http.Request) (domain.Caller, error) {
	raw, source := credential(r)
	if raw == "" {
		observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
		return domain.Anonymous, ErrNoCredential
	}
	claims, err := g.verifier.ParseAccessToken(raw)
	if err != nil {
		observability.RecordAccessTokenValidation(r.Context(), "invalid", source)
		return domain.Anonymous, err
	}
	userID, err := claims.UserID()
	if err != nil {
		observability.RecordAccessTokenValidation(r.Context(), "invalid", source)
		return domain.Anonymous, err
	}
	observability.RecordAccessTokenValidation(r.Context(), "valid", source)
	return domain.Caller{UserID: userID, DisplayName: claims.Name}, nil
}

// Resolve never fails: an unverifiable credential yields the anonymous caller.
func (g *Gateway) Resolve(r *http.Request) domain.Caller {
	caller, err := g.Authenticate(r)
	if err != nil {
		if !errors.Is(err, ErrNoCredential) {
			g.logger.Debug("connection credential rejected, continuing anonymously", "error", err)
		}
		return domain.Anonymous
	}
	return caller
}

func credential(r *http.Request) (string, string) {
	if v := security.GetCookie(r, security.AccessTokenCookie); v != "" {
		return v, "cookie"
	}
	if v := security.BearerToken(r); v != "" {
		return v, "bearer"
	}
	if v := r.URL.Query().Get("token"); v != "" {
		return v, "query"
	}
	return "", ""
}
