package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"guardshift/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoListener struct {
	mu           sync.Mutex
	tokens       []string
	disconnected chan string
}

func (l *echoListener) OnConnect(c *Client) {
	l.mu.Lock()
	l.tokens = append(l.tokens, c.Token())
	l.mu.Unlock()
	_ = c.Send("welcome", map[string]string{"client_id": c.ID()})
}

func (l *echoListener) OnMessage(c *Client, msg *Message) {
	_ = c.Send("echo", msg.Data)
}

func (l *echoListener) OnDisconnect(c *Client) {
	l.disconnected <- c.ID()
}

func startServer(t *testing.T, listener Listener) (string, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(logger.NewNop())
	go hub.Run(ctx)

	handler := NewHandler(hub, listener, DefaultOptions(), logger.NewNop())
	router := gin.New()
	router.GET("/ws", handler.HandleWebSocket)

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws", hub
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestHandler_RoundTrip(t *testing.T) {
	listener := &echoListener{disconnected: make(chan string, 1)}
	url, hub := startServer(t, listener)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=abc", nil)
	require.NoError(t, err)

	welcome := readMessage(t, conn)
	assert.Equal(t, "welcome", welcome.Type)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "ping", "data": map[string]int{"n": 7}}))
	echo := readMessage(t, conn)
	assert.Equal(t, "echo", echo.Type)
	assert.JSONEq(t, `{"n":7}`, string(echo.Data))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	bad := readMessage(t, conn)
	assert.Equal(t, "error", bad.Type)

	listener.mu.Lock()
	assert.Equal(t, []string{"abc"}, listener.tokens)
	listener.mu.Unlock()

	conn.Close()
	select {
	case <-listener.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not reported")
	}
	require.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"})

	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(req), "native clients send no origin")

	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}
