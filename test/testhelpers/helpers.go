// Package testhelpers provides common utilities and helper functions for
// testing the chatrelay server.
//
// It contains reusable helpers shared across unit and integration tests:
// standing up a fully wired relay server, dialing WebSocket connections, and
// exchanging protocol events, to reduce duplication in test files.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/chatrelay/internal/server"
)

// Relay bundles a running test server with the components behind it so
// tests can assert on registry and handler state directly.
type Relay struct {
	Server   *httptest.Server
	Registry *server.Registry
	Handler  *server.Handler
	Metrics  *server.Metrics
	WSURL    string
}

// StartRelay stands up a complete relay stack on an httptest server. The
// customize callback may adjust the config before the handler is built; by
// default every origin is allowed so dialers need no Origin header games.
func StartRelay(t *testing.T, customize func(cfg *server.Config)) *Relay {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	if customize != nil {
		customize(cfg)
	}

	metrics := server.NewMetrics()
	registry, err := server.NewRegistry(cfg.MaxHistorySize, metrics)
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	handler := server.NewHandler(cfg, registry, zap.NewNop(), metrics)
	mux := server.SetupRoutes(handler, metrics)
	testServer := httptest.NewServer(mux)
	t.Cleanup(func() {
		testServer.Close()
		_ = handler.Shutdown(2 * time.Second)
	})

	return &Relay{
		Server:   testServer,
		Registry: registry,
		Handler:  handler,
		Metrics:  metrics,
		WSURL:    "ws" + strings.TrimPrefix(testServer.URL, "http") + "/ws",
	}
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
func ConnectWebSocket(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "http://localhost:8001")

	conn, resp, err := dialer.Dial(wsURL, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket at %s: %v", wsURL, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendJSON writes v as a single JSON text frame.
func SendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("Failed to send JSON frame: %v", err)
	}
}

// ReadEvent reads one frame and decodes it as a generic JSON object.
func ReadEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var event map[string]any
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	return event
}

// CreateRoom performs the create handshake and returns the room key and the
// assigned userId.
func CreateRoom(t *testing.T, conn *websocket.Conn) (string, int) {
	t.Helper()

	SendJSON(t, conn, map[string]any{"type": "init"})
	ack := ReadEvent(t, conn)
	AssertEventType(t, ack, "init")

	key, ok := ack["joinKey"].(string)
	if !ok || key == "" {
		t.Fatalf("init ack carries no joinKey: %v", ack)
	}
	return key, EventUserID(t, ack)
}

// JoinRoom performs the join handshake and returns the assigned userId.
func JoinRoom(t *testing.T, conn *websocket.Conn, key string) int {
	t.Helper()

	SendJSON(t, conn, map[string]any{"type": "init", "joinKey": key})
	ack := ReadEvent(t, conn)
	AssertEventType(t, ack, "init")
	return EventUserID(t, ack)
}

// AssertEventType checks the "type" discriminator of a decoded event.
func AssertEventType(t *testing.T, event map[string]any, expected string) {
	t.Helper()
	if event["type"] != expected {
		t.Fatalf("Expected event type %q, got %v", expected, event)
	}
}

// EventUserID extracts the userId field from a decoded event.
func EventUserID(t *testing.T, event map[string]any) int {
	t.Helper()
	id, ok := event["userId"].(float64)
	if !ok {
		t.Fatalf("Event carries no numeric userId: %v", event)
	}
	return int(id)
}

// ExpectNoMessage asserts that nothing arrives on the connection within the
// timeout.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no message, but received %s", data)
	}
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of message: %v", err)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// WaitFor polls cond until it holds or the timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, desc string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", desc)
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	return resp
}

// DecodeJSONBody decodes a response body into a generic JSON object.
func DecodeJSONBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	return body
}
