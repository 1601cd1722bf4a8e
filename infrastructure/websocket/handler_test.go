package websocket

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/infrastructure/storage"
	"chat-relay/notification"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type received struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type testServer struct {
	server   *httptest.Server
	registry *runtime.Registry
	service  *services.ChatService
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	messages, err := storage.NewMessageRepository(db, log)
	require.NoError(t, err)
	telemetryChan := make(chan event.Event, 100)
	registry := runtime.NewRegistry(log, telemetryChan, time.Second)
	relay := runtime.NewRelay(log,
		workers.NewSupervisor(log, telemetryChan, time.Second),
		registry, messages,
		runtime.NewTokenRegistry(log, storage.NewUserRepository(db, log)),
		notification.Disabled{}, telemetryChan,
		1, 10, 200, time.Second, 2)
	service := services.NewChatService(relay)

	server := httptest.NewServer(NewHandler(log, service, 16, []string{"*"}))
	t.Cleanup(server.Close)
	return testServer{server: server, registry: registry, service: service}
}

func (s testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frameType string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(inboundFrame{Type: frameType, Data: raw}))
}

func next(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame received
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func waitForSessions(t *testing.T, registry *runtime.Registry, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return registry.Len() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_Message_Reaches_Every_Session(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	alice, bob := ts.dial(t), ts.dial(t)
	waitForSessions(t, ts.registry, 2)

	// Given both users joined
	send(t, alice, frameJoin, "a@x.io")
	send(t, bob, frameJoin, "b@x.io")

	// When Alice sends a message
	send(t, alice, frameMessage, chat.PostMessageCommand{Sender: "a@x.io", Text: "hi"})

	// Then both sessions receive it, the sender included
	for _, conn := range []*websocket.Conn{alice, bob} {
		frame := next(t, conn)
		req.Equal(event.MessageEventName, frame.Event)
		var msg chat.Message
		req.NoError(json.Unmarshal(frame.Data, &msg))
		req.Equal("hi", msg.Text)
		req.Equal("a@x.io", msg.Sender)
		req.NotEmpty(msg.ID)
	}
}

func TestHandler_Delete_Broadcasts_Deletion(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	alice, bob := ts.dial(t), ts.dial(t)
	waitForSessions(t, ts.registry, 2)

	saved, err := ts.service.PostMessage(context.Background(), chat.PostMessageCommand{Sender: "a@x.io", Text: "oops"})
	req.NoError(err)
	next(t, alice)
	next(t, bob)

	send(t, bob, frameDelete, saved.ID)

	for _, conn := range []*websocket.Conn{alice, bob} {
		frame := next(t, conn)
		req.Equal(event.MessageDeletedEventName, frame.Event)
		req.JSONEq(`"`+saved.ID+`"`, string(frame.Data))
	}
}

func TestHandler_Empty_Message_Only_Errors_Sender(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	alice, bob := ts.dial(t), ts.dial(t)
	waitForSessions(t, ts.registry, 2)

	// When Alice sends neither text nor image
	send(t, alice, frameMessage, chat.PostMessageCommand{Sender: "a@x.io"})

	// Then only Alice gets an error
	frame := next(t, alice)
	req.Equal(frameError, frame.Event)

	// And Bob's next frame is the following valid message
	send(t, alice, frameMessage, chat.PostMessageCommand{Sender: "a@x.io", Text: "second try"})
	frame = next(t, bob)
	req.Equal(event.MessageEventName, frame.Event)
}

func TestHandler_Unknown_Frame(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	conn := ts.dial(t)

	send(t, conn, "typing", "a@x.io")

	frame := next(t, conn)
	req.Equal(frameError, frame.Event)
	req.JSONEq(`"unknown frame type"`, string(frame.Data))
}

func TestHandler_Disconnect_Unregisters_Session(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)
	waitForSessions(t, ts.registry, 1)

	require.NoError(t, conn.Close())

	waitForSessions(t, ts.registry, 0)
}

func TestOriginChecker(t *testing.T) {
	req := require.New(t)
	check := originChecker([]string{"https://chat.example.com"})

	allowed := httptest.NewRequest("GET", "/ws", nil)
	allowed.Header.Set("Origin", "https://chat.example.com")
	denied := httptest.NewRequest("GET", "/ws", nil)
	denied.Header.Set("Origin", "https://evil.example.com")

	req.True(check(allowed))
	req.False(check(denied))
}
