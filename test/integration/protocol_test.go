package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatrelay/test/testhelpers"
)

// expectAbruptClose asserts that the server drops the connection without
// sending any data frame first.
func expectAbruptClose(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected the connection to be closed, received %s", data)
	}
}

// TestMalformedInitClosesConnection verifies that a first frame that is not
// valid JSON is a protocol violation: the connection ends without an error
// event.
func TestMalformedInitClosesConnection(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	conn := testhelpers.ConnectWebSocket(t, relay.WSURL)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("this is not json")); err != nil {
		t.Fatalf("Failed to send malformed frame: %v", err)
	}
	expectAbruptClose(t, conn)

	if got := relay.Registry.RoomCount(); got != 0 {
		t.Errorf("Protocol violation created %d rooms", got)
	}
}

// TestWrongTypedInitClosesConnection verifies that a structurally valid
// first frame of the wrong type is rejected the same way.
func TestWrongTypedInitClosesConnection(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	conn := testhelpers.ConnectWebSocket(t, relay.WSURL)
	testhelpers.SendJSON(t, conn, map[string]any{"type": "talk", "payload": "too early"})
	expectAbruptClose(t, conn)
}

// TestJoinUnknownKeyYieldsErrorEvent verifies the recoverable error path: a
// structured error event, then a clean connection end, with no room state
// touched.
func TestJoinUnknownKeyYieldsErrorEvent(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	before := relay.Registry.RoomCount()
	conn := testhelpers.ConnectWebSocket(t, relay.WSURL)
	testhelpers.SendJSON(t, conn, map[string]any{"type": "init", "joinKey": "definitely-not-a-room"})

	event := testhelpers.ReadEvent(t, conn)
	testhelpers.AssertEventType(t, event, "error")
	if event["message"] != "chat not found" {
		t.Errorf("message = %v, want %q", event["message"], "chat not found")
	}

	if got := relay.Registry.RoomCount(); got != before {
		t.Errorf("Failed join mutated the registry: %d -> %d rooms", before, got)
	}
}

// TestMalformedRelayFrameIsDiscarded verifies that garbage received after a
// successful init does not kill the connection.
func TestMalformedRelayFrameIsDiscarded(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	conn := testhelpers.ConnectWebSocket(t, relay.WSURL)
	testhelpers.CreateRoom(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("garbage{{{")); err != nil {
		t.Fatalf("Failed to send garbage frame: %v", err)
	}
	testhelpers.SendJSON(t, conn, map[string]any{"type": "talk", "payload": "survived", "userId": 1})

	event := testhelpers.ReadEvent(t, conn)
	testhelpers.AssertEventType(t, event, "talk")
	if event["payload"] != "survived" {
		t.Errorf("payload = %v, want survived", event["payload"])
	}
}

// TestWebSocketEndpointRejectsNonGet verifies the upgrade endpoint only
// accepts GET requests.
func TestWebSocketEndpointRejectsNonGet(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	resp := testhelpers.MakeRequest(t, http.MethodPost, relay.Server.URL+"/ws")
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected status %d, got %d", http.StatusMethodNotAllowed, resp.StatusCode)
	}
}
