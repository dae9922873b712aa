package chat

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"relo/internal/apperr"
	"relo/internal/httpx"
	myMiddleware "relo/internal/middleware"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, r, apperr.Unauthorized("unauthorized", nil))
		return
	}

	var req CreateConversationRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}

	conv, err := h.Service.CreateConversation(r.Context(), userID, &req)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, conv)
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, r, apperr.Unauthorized("unauthorized", nil))
		return
	}

	convs, err := h.Service.ListConversations(r.Context(), userID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, convs)
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, r, apperr.Unauthorized("unauthorized", nil))
		return
	}

	conv, err := h.Service.GetConversation(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, conv)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, r, apperr.Unauthorized("unauthorized", nil))
		return
	}
	offset, err := httpx.QueryInt(r, "offset", 0)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", DefaultMessageLimit)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	msgs, err := h.Service.ListMessages(r.Context(), userID, chi.URLParam(r, "id"), offset, limit)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, msgs)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, r, apperr.Unauthorized("unauthorized", nil))
		return
	}

	var req SendMessageRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}

	msg, err := h.Service.SendMessage(r.Context(), userID, chi.URLParam(r, "id"), &req)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, msg)
}

func (h *Handler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, r, apperr.Unauthorized("unauthorized", nil))
		return
	}

	if err := h.Service.MarkSeen(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		httpx.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
