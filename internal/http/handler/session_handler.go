package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/capture-session-service/internal/domain"
	"github.com/sandeepkv93/capture-session-service/internal/http/middleware"
	"github.com/sandeepkv93/capture-session-service/internal/http/response"
	"github.com/sandeepkv93/capture-session-service/internal/repository"
	"github.com/sandeepkv93/capture-session-service/internal/service"
)

type SessionHandler struct {
	sessions service.MediaSessionServiceInterface
	media    service.MediaResolverInterface
	rooms    service.RoomLookup
	logger   *slog.Logger
}

func NewSessionHandler(sessions service.MediaSessionServiceInterface, media service.MediaResolverInterface, rooms service.RoomLookup, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{sessions: sessions, media: media, rooms: rooms, logger: logger}
}

type mediaView struct {
	domain.Media
	Metadata map[string]any `json:"metadata,omitempty"`
}

type sessionWithMedia struct {
	Session *service.MediaSessionView `json:"session"`
	Media   mediaView                 `json:"media"`
}

type timerRequest struct {
	TimerSeconds json.RawMessage `json:"timerSeconds"`
}

type addLinesRequest struct {
	Lines []domain.Line `json:"lines"`
}

type removeLinesRequest struct {
	LineIDs []string `json:"lineIds"`
}

func (h *SessionHandler) RoomExists(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(chi.URLParam(r, "roomId"))
	if roomID == "" {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "roomId is required", nil)
		return
	}
	exists, err := h.rooms.RoomExists(r.Context(), roomID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"exists": exists})
}

func (h *SessionHandler) Recent(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}
	recent, err := h.sessions.Recent(r.Context(), caller.UserID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, recent)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, media, ok := h.resolve(w, r)
	if !ok {
		return
	}
	session, err := h.sessions.FindOrCreate(r.Context(), caller.UserID, media.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, sessionWithMedia{
		Session: session,
		Media:   mediaView{Media: *media, Metadata: h.media.Enrich(r.Context(), media)},
	})
}

func (h *SessionHandler) UpdateTimer(w http.ResponseWriter, r *http.Request) {
	caller, media, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req timerRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid payload", nil)
		return
	}
	seconds, err := service.DecodeTimerSeconds(req.TimerSeconds)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stored, err := h.sessions.UpdateTimer(r.Context(), caller.UserID, media.ID, seconds)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]int64{"timerSeconds": stored})
}

func (h *SessionHandler) AddLines(w http.ResponseWriter, r *http.Request) {
	caller, media, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req addLinesRequest
	if err := decodeJSON(r, &req); err != nil || req.Lines == nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "lines must be an array", nil)
		return
	}
	session, err := h.sessions.AddLines(r.Context(), caller.UserID, media.ID, req.Lines)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, session)
}

func (h *SessionHandler) RemoveLines(w http.ResponseWriter, r *http.Request) {
	caller, media, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req removeLinesRequest
	if err := decodeJSON(r, &req); err != nil || req.LineIDs == nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "lineIds must be an array", nil)
		return
	}
	session, err := h.sessions.RemoveLines(r.Context(), caller.UserID, media.ID, req.LineIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, session)
}

func (h *SessionHandler) ClearLines(w http.ResponseWriter, r *http.Request) {
	caller, media, ok := h.resolve(w, r)
	if !ok {
		return
	}
	session, err := h.sessions.ClearLines(r.Context(), caller.UserID, media.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, session)
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, media, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Delete(r.Context(), caller.UserID, media.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *SessionHandler) caller(w http.ResponseWriter, r *http.Request) (domain.Caller, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required", nil)
		return domain.Anonymous, false
	}
	return caller, true
}

// resolve authenticates the caller and maps the contentId path parameter to
// a catalog entry.
func (h *SessionHandler) resolve(w http.ResponseWriter, r *http.Request) (domain.Caller, *domain.Media, bool) {
	caller, ok := h.caller(w, r)
	if !ok {
		return caller, nil, false
	}
	contentID := strings.TrimSpace(chi.URLParam(r, "contentId"))
	if contentID == "" {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "contentId is required", nil)
		return caller, nil, false
	}
	media, err := h.media.Resolve(r.Context(), contentID)
	if err != nil {
		h.fail(w, r, err)
		return caller, nil, false
	}
	return caller, media, true
}

func (h *SessionHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrMediaNotFound):
		response.Error(w, r, http.StatusNotFound, response.CodeMediaNotFound, "media not found", nil)
	case errors.Is(err, repository.ErrSessionNotFound):
		response.Error(w, r, http.StatusNotFound, response.CodeNotFound, "session not found", nil)
	case errors.Is(err, service.ErrInvalidTimer), errors.Is(err, service.ErrInvalidLines):
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, err.Error(), nil)
	default:
		h.logger.ErrorContext(r.Context(), "session request failed", "path", r.URL.Path, "error", err)
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "internal error", nil)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
