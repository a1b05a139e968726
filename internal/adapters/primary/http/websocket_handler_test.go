package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wsAdapter "github.com/navbat/queue-backend/internal/adapters/primary/websocket"
	"github.com/navbat/queue-backend/internal/auth"
	"github.com/navbat/queue-backend/internal/core/domain"
)

type wireMessage struct {
	Type           string          `json:"type"`
	OrganizationID string          `json:"organizationId"`
	Payload        json.RawMessage `json:"payload"`
}

func newWebSocketServer(t *testing.T) (*httptest.Server, *wsAdapter.Hub, *auth.TokenManager) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := wsAdapter.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	tm := auth.NewTokenManager("test-secret", time.Hour)
	handler := NewWebSocketHandler(hub, tm, WebSocketConfig{
		AllowedOrigins:  []string{"display.example.com"},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		PollInterval:    5 * time.Second,
	}, logger)

	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		server.Close()
		cancel()
		<-hub.Done()
	})
	return server, hub, tm
}

func wsURL(server *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "?token=" + token
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wireMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketHandler_SubscribeAndReceive(t *testing.T) {
	server, hub, tm := newWebSocketServer(t)

	token, err := tm.GenerateToken(auth.Identity{ActorID: "screen-1", Role: auth.RoleCustomer})
	require.NoError(t, err)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server, token), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	hello := readMessage(t, conn)
	assert.Equal(t, string(wsAdapter.MessageHello), hello.Type)
	var helloPayload wsAdapter.HelloPayload
	require.NoError(t, json.Unmarshal(hello.Payload, &helloPayload))
	assert.Equal(t, "screen-1", helloPayload.ActorID)
	assert.Equal(t, int64(5000), helloPayload.PollIntervalMs)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":    wsAdapter.ClientSubscribe,
		"payload": map[string]string{"organizationId": "org1"},
	}))
	assert.Equal(t, string(wsAdapter.MessageSubscribed), readMessage(t, conn).Type)

	require.Eventually(t, func() bool { return hub.ClientsInRoom("org1") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Broadcast(domain.NewQueueChangedEvent("org2", time.Now())))
	require.NoError(t, hub.Broadcast(domain.NewQueueChangedEvent("org1", time.Now())))

	event := readMessage(t, conn)
	assert.Equal(t, string(domain.EventQueueChanged), event.Type)
	assert.Equal(t, "org1", event.OrganizationID)
}

func TestWebSocketHandler_RejectsBadTokens(t *testing.T) {
	server, _, _ := newWebSocketServer(t)

	for _, token := range []string{"", "garbage"} {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, token), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, stdhttp.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestWebSocketHandler_RejectsForeignOrigin(t *testing.T) {
	server, _, tm := newWebSocketServer(t)

	token, err := tm.GenerateToken(auth.Identity{ActorID: "screen-1", Role: auth.RoleCustomer})
	require.NoError(t, err)

	header := stdhttp.Header{}
	header.Set("Origin", "https://evil.example.org")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, token), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, stdhttp.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"app.example.com", "*.navbat.uz"}

	tests := []struct {
		host string
		want bool
	}{
		{"app.example.com", true},
		{"other.example.com", false},
		{"tv.navbat.uz", true},
		{"navbat.uz", true},
		{"navbat.uz.evil.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, originAllowed(tt.host, allowed))
		})
	}
}
