package unit

import (
	"testing"
	"time"

	"github.com/Tyrowin/chatrelay/internal/server"
)

// TestClientTrySendQueues verifies that trySend-backed delivery lands on
// the send queue without blocking.
func TestClientTrySendQueues(t *testing.T) {
	room := createRoom(t, 0)
	client := server.NewClient(nil, nil)
	room.AddMember(client)

	room.Broadcast([]byte("queued"))

	select {
	case got := <-client.SendQueue():
		if string(got) != "queued" {
			t.Errorf("Queued %s, want %q", got, "queued")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Broadcast did not reach the client's send queue")
	}
}

// TestClientCloseIsIdempotent verifies that Close can be called repeatedly
// from cleanup paths without panicking.
func TestClientCloseIsIdempotent(t *testing.T) {
	client := server.NewClient(nil, nil)
	client.Close()
	client.Close()
}

// TestClientClosedStopsDelivery verifies that a closed client no longer
// accepts broadcasts: the room drops it on the next delivery attempt.
func TestClientClosedStopsDelivery(t *testing.T) {
	room := createRoom(t, 0)
	client := server.NewClient(nil, nil)
	room.AddMember(client)

	client.Close()
	room.Broadcast([]byte("after close"))

	if got := room.MemberCount(); got != 0 {
		t.Errorf("Expected the closed client to be dropped, members = %d", got)
	}
	select {
	case data := <-client.SendQueue():
		t.Errorf("Closed client still received %s", data)
	default:
	}
}

// TestClientIDsAreUnique verifies that connection identifiers used for log
// correlation do not repeat.
func TestClientIDsAreUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := server.NewClient(nil, nil).ID()
		if id == "" {
			t.Fatal("Client ID is empty")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("Duplicate client ID %q", id)
		}
		seen[id] = struct{}{}
	}
}
