package realtime

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"relo/internal/auth"
	"relo/internal/observability"
)

// TokenValidator is the slice of auth.TokenService the gate needs.
type TokenValidator interface {
	ValidateAccess(token string) (string, error)
}

// Handler is the websocket endpoint. It authenticates the token query
// parameter before anything touches the Registry.
type Handler struct {
	registry  *Registry
	validator TokenValidator
	upgrader  websocket.Upgrader
	log       *slog.Logger
	metrics   *observability.Metrics
}

// NewHandler builds the endpoint. An empty allowedOrigins accepts any origin.
func NewHandler(registry *Registry, validator TokenValidator, allowedOrigins []string, log *slog.Logger, metrics *observability.Metrics) *Handler {
	return &Handler{
		registry:  registry,
		validator: validator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
		log:     log,
		metrics: metrics,
	}
}

func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	// The token travels as a query parameter because browsers cannot set
	// headers on the upgrade request.
	userID, authErr := h.validator.ValidateAccess(r.URL.Query().Get("token"))

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", "error", err)
		return
	}
	if authErr != nil {
		h.reject(ws, authErr)
		return
	}

	conn := NewConn(userID, ws, h.log)
	h.registry.Admit(userID, conn)
	h.log.Debug("websocket admitted", "user_id", userID)
	defer func() {
		h.registry.Remove(userID, conn)
		conn.Close(websocket.CloseNormalClosure, "")
		h.log.Debug("websocket removed", "user_id", userID)
	}()

	go conn.writePump()
	conn.readPump()
}

func (h *Handler) reject(ws *websocket.Conn, err error) {
	reason := "invalid"
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		reason = "missing"
	case errors.Is(err, auth.ErrWrongTokenType):
		reason = "wrong_type"
	}
	h.metrics.SocketRejections.WithLabelValues(reason).Inc()
	h.log.Info("websocket rejected", "reason", reason, "error", err)

	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = ws.Close()
}
