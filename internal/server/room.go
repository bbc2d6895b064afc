// Package server implements the Room entity: the ordered message history and
// live membership set for one chat, with snapshot replay and fan-out
// broadcast over member send channels.
package server

import (
	"errors"
	"sync"
	"time"
)

// ErrHistoryFull is returned when a room has reached its configured history
// limit. The failure concerns only the sending connection; the room keeps
// serving its other members.
var ErrHistoryFull = errors.New("room history limit reached")

// Message is a single chat message owned by a room's history. It is
// immutable once stored; Time is assigned by the server at ingestion so
// clients cannot spoof ordering.
type Message struct {
	Payload  string
	SenderID int
	Time     time.Time
}

// Room holds the state of one chat: an append-only message history and the
// set of clients currently subscribed to broadcasts. All room state is
// guarded by a single mutex; handler goroutines for different connections
// mutate it concurrently.
//
// Post and Join each run under the lock, which makes the replay boundary
// exact: a message lands either in the snapshot a joiner replays or in its
// live broadcast stream, never both and never neither.
//
// User ids come from a per-room monotonic counter and are never reused, so
// two connections cannot share an id even when membership churns.
type Room struct {
	mu         sync.Mutex
	messages   []Message
	members    map[*Client]bool
	nextUserID int
	maxHistory int
}

func newRoom(maxHistory int) *Room {
	return &Room{
		members:    make(map[*Client]bool),
		nextUserID: 1,
		maxHistory: maxHistory,
	}
}

// AppendMessage stamps the payload with the server time, appends it to the
// room history, and returns the stored message. It fails only when the
// history limit is reached.
func (r *Room) AppendMessage(payload string, senderID int) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(payload, senderID)
}

func (r *Room) appendLocked(payload string, senderID int) (Message, error) {
	if r.maxHistory > 0 && len(r.messages) >= r.maxHistory {
		return Message{}, ErrHistoryFull
	}

	msg := Message{Payload: payload, SenderID: senderID, Time: time.Now()}
	r.messages = append(r.messages, msg)
	return msg, nil
}

// Post appends a message and broadcasts it to every current member,
// including the sender, as one atomic step. An append failure broadcasts
// nothing.
func (r *Room) Post(payload string, senderID int) (Message, error) {
	r.mu.Lock()
	msg, err := r.appendLocked(payload, senderID)
	if err != nil {
		r.mu.Unlock()
		return Message{}, err
	}
	failed := r.fanoutLocked(encodeTalk(msg))
	r.mu.Unlock()

	closeAll(failed)
	return msg, nil
}

// SnapshotHistory returns a copy of the history as of the call, in append
// order. Each call returns an independent copy, so one joiner's replay can
// never contaminate another's.
func (r *Room) SnapshotHistory() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() []Message {
	snapshot := make([]Message, len(r.messages))
	copy(snapshot, r.messages)
	return snapshot
}

// Join subscribes a client and returns its assigned userId together with
// the history snapshot it must be replayed. Taking both under one lock pins
// the snapshot boundary: everything in the snapshot predates membership,
// everything after arrives by broadcast.
func (r *Room) Join(c *Client) (int, []Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members[c] = true
	userID := r.nextUserID
	r.nextUserID++
	return userID, r.snapshotLocked()
}

// AddMember subscribes a client without a replay snapshot, returning its
// assigned userId. The create path uses it; the room is empty at that
// point.
func (r *Room) AddMember(c *Client) int {
	userID, _ := r.Join(c)
	return userID
}

// RemoveMember unsubscribes a client. It is safe to call for a client that
// was never added or was already removed, which the cleanup-on-error paths
// rely on.
func (r *Room) RemoveMember(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, c)
}

// MemberCount reports the number of clients currently subscribed.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Broadcast delivers an encoded event to every current member. Delivery is
// fire-and-forget per member: a member whose send buffer is full is dropped
// from the room and its connection closed, without blocking or failing
// delivery to anyone else.
func (r *Room) Broadcast(data []byte) {
	r.mu.Lock()
	failed := r.fanoutLocked(data)
	r.mu.Unlock()

	closeAll(failed)
}

// fanoutLocked queues data on every member and removes the members that
// could not accept it. The caller closes the returned clients after
// releasing the lock.
func (r *Room) fanoutLocked(data []byte) []*Client {
	var failed []*Client
	for c := range r.members {
		if !c.trySend(data) {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		delete(r.members, c)
	}
	return failed
}

func closeAll(clients []*Client) {
	for _, c := range clients {
		c.Close()
	}
}
