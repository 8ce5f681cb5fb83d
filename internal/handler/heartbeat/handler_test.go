package heartbeat

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendsPingsAndAcceptsPongs(t *testing.T) {
	r := chi.NewRouter()
	New(20 * time.Millisecond).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg map[string]string
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "ping", msg["type"])

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("garbage")))
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "pong", "timestamp": "2024-01-01T00:00:00.000Z"}))
	}
}
