// Package server defines the JSON event shapes exchanged over each chat
// connection and helpers to encode and decode them.
package server

import (
	"encoding/json"
	"time"
)

// Event type discriminators used in the "type" field of every frame.
const (
	EventInit  = "init"
	EventTalk  = "talk"
	EventError = "error"
)

// Request is a single client-to-server frame. The first frame on every
// connection must be an init request; JoinKey distinguishes joining an
// existing room (key present) from creating a new one (key absent).
// Subsequent frames are talk requests. The UserID a client asserts on a
// talk request is ignored; the server binds the sender identity to the
// connection at join time.
type Request struct {
	Type    string  `json:"type"`
	JoinKey *string `json:"joinKey,omitempty"`
	Payload string  `json:"payload,omitempty"`
	UserID  int     `json:"userId,omitempty"`
}

// InitAck acknowledges a successful create or join. It carries the room key
// (for building join links) and the userId assigned to this connection.
type InitAck struct {
	Type    string `json:"type"`
	JoinKey string `json:"joinKey"`
	UserID  int    `json:"userId"`
}

// TalkEvent is a chat message delivered to room members, both as a live
// broadcast and during history replay. Time is the server ingestion
// timestamp in fractional seconds since the Unix epoch.
type TalkEvent struct {
	Type    string  `json:"type"`
	Payload string  `json:"payload"`
	UserID  int     `json:"userId"`
	Time    float64 `json:"time"`
}

// ErrorEvent reports a recoverable failure to a single connection.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func decodeRequest(data []byte) (Request, error) {
	var req Request
	err := json.Unmarshal(data, &req)
	return req, err
}

func encodeInitAck(joinKey string, userID int) []byte {
	data, _ := json.Marshal(InitAck{Type: EventInit, JoinKey: joinKey, UserID: userID})
	return data
}

func encodeTalk(msg Message) []byte {
	data, _ := json.Marshal(TalkEvent{
		Type:    EventTalk,
		Payload: msg.Payload,
		UserID:  msg.SenderID,
		Time:    wireTime(msg.Time),
	})
	return data
}

func encodeError(message string) []byte {
	data, _ := json.Marshal(ErrorEvent{Type: EventError, Message: message})
	return data
}

func wireTime(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
