package realtime

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relo/internal/auth"
	"relo/internal/observability"
)

type gateFixture struct {
	server   *httptest.Server
	registry *Registry
	tokens   *auth.TokenService
	metrics  *observability.Metrics
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NopMetrics()
	registry := NewRegistry(log, metrics)
	tokens := auth.NewTokenService("secret", time.Hour, time.Hour)
	h := NewHandler(registry, tokens, nil, log, metrics)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWs))
	t.Cleanup(srv.Close)
	return &gateFixture{server: srv, registry: registry, tokens: tokens, metrics: metrics}
}

func (f *gateFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readCloseCode(t *testing.T, ws *websocket.Conn) int {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := ws.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "expected close error, got %v", err)
	return closeErr.Code
}

func TestGateRejectsRefreshToken(t *testing.T) {
	f := newGateFixture(t)
	userID := uuid.NewString()
	refresh, err := f.tokens.IssueRefresh(userID)
	require.NoError(t, err)

	ws := f.dial(t, refresh)

	assert.Equal(t, websocket.ClosePolicyViolation, readCloseCode(t, ws))
	assert.False(t, f.registry.IsConnected(userID))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SocketRejections.WithLabelValues("wrong_type")))
}

func TestGateRejectsMissingAndInvalidTokens(t *testing.T) {
	f := newGateFixture(t)

	for _, token := range []string{"", "not-a-jwt"} {
		ws := f.dial(t, token)
		assert.Equal(t, websocket.ClosePolicyViolation, readCloseCode(t, ws))
	}
	assert.Equal(t, 0, f.registry.Len())
}

func TestGateAdmitsDeliversAndRemoves(t *testing.T) {
	f := newGateFixture(t)
	userID := uuid.NewString()
	access, err := f.tokens.IssueAccess(userID)
	require.NoError(t, err)

	ws := f.dial(t, access)
	require.Eventually(t, func() bool { return f.registry.IsConnected(userID) }, 2*time.Second, 10*time.Millisecond)

	require.True(t, f.registry.SendTo(userID, Envelope{Type: TypeNewMessage, Payload: map[string]int{"n": 1}}))

	var env Envelope
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, ws.ReadJSON(&env))
	assert.Equal(t, TypeNewMessage, env.Type)

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return !f.registry.IsConnected(userID) }, 2*time.Second, 10*time.Millisecond)
}

func TestGateSupersedesPreviousSocket(t *testing.T) {
	f := newGateFixture(t)
	userID := uuid.NewString()
	access, err := f.tokens.IssueAccess(userID)
	require.NoError(t, err)

	first := f.dial(t, access)
	require.Eventually(t, func() bool { return f.registry.IsConnected(userID) }, 2*time.Second, 10*time.Millisecond)
	second := f.dial(t, access)

	assert.Equal(t, CloseSessionReplaced, readCloseCode(t, first))

	// The evicted socket's deferred Remove must not drop the new entry.
	require.Eventually(t, func() bool {
		return f.registry.SendTo(userID, Envelope{Type: TypePostComment, Payload: "x"})
	}, 2*time.Second, 10*time.Millisecond)

	var env Envelope
	require.NoError(t, second.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, second.ReadJSON(&env))
	assert.Equal(t, TypePostComment, env.Type)
	assert.True(t, f.registry.IsConnected(userID))
}
