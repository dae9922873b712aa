package realtime

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// serverSocket returns the server side of a fresh websocket pair.
func serverSocket(t *testing.T) *websocket.Conn {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- ws
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case ws := <-accepted:
		t.Cleanup(func() { ws.Close() })
		return ws
	case <-time.After(5 * time.Second):
		t.Fatal("upgrade timed out")
		return nil
	}
}

func TestWritePumpStopsOnFailedWrite(t *testing.T) {
	ws := serverSocket(t)
	c := NewConn("u1", ws, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, ws.UnderlyingConn().Close())

	// Larger than the write buffer, so the frame is flushed inside Write.
	require.True(t, c.Enqueue(bytes.Repeat([]byte("x"), 64<<10)))

	exited := make(chan struct{})
	go func() {
		c.writePump()
		close(exited)
	}()

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("write pump kept running after a failed write")
	}
}
