package notification

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

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, r, apperr.Unauthorized("unauthorized", nil))
		return
	}

	var opts ListOptions
	var err error
	if opts.Limit, err = httpx.QueryInt(r, "limit", DefaultListLimit); err != nil {
		httpx.Error(w, r, err)
		return
	}
	if opts.Skip, err = httpx.QueryInt(r, "skip", 0); err != nil {
		httpx.Error(w, r, err)
		return
	}
	if opts.UnreadOnly, err = httpx.QueryBool(r, "unread_only"); err != nil {
		httpx.Error(w, r, err)
		return
	}

	views, err := h.Service.List(r.Context(), userID, opts)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, r, apperr.Unauthorized("unauthorized", nil))
		return
	}

	n, err := h.Service.UnreadCount(r.Context(), userID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, CountResponse{Count: n})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, r, apperr.Unauthorized("unauthorized", nil))
		return
	}

	if err := h.Service.MarkRead(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, messageResponse{Message: "Marked as read"})
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, r, apperr.Unauthorized("unauthorized", nil))
		return
	}

	if _, err := h.Service.MarkAllRead(r.Context(), userID); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, messageResponse{Message: "All marked as read"})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, r, apperr.Unauthorized("unauthorized", nil))
		return
	}

	if err := h.Service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, messageResponse{Message: "Notification deleted"})
}
