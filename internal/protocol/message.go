package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Message defines the structure for all client-to-server and server-to-client
// websocket messages.
//
// SDP and Candidate are carried as raw JSON so the relay never needs to look
// inside them.
type Message struct {
	Type      string          `json:"type"`
	RoomKey   string          `json:"roomKey,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`

	// Chat and reaction fields.
	Text  string `json:"text,omitempty"`
	Emoji string `json:"emoji,omitempty"`
	TS    int64  `json:"ts,omitempty"`
	From  string `json:"from,omitempty"`
}

// Message type constants.
const (
	TypeJoin  = "join"
	TypeLeave = "leave"

	TypeRoomCreated = "room_created"
	TypeRoomJoined  = "room_joined"
	TypeFullRoom    = "full_room"
	TypePeerLeft    = "peer_left"
	TypeError       = "error"

	TypeStartCall = "start_call"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"

	TypeChatMessage = "chat_message"
	TypeReaction    = "reaction"
)

var knownTypes = map[string]bool{
	TypeJoin:        true,
	TypeLeave:       true,
	TypeRoomCreated: true,
	TypeRoomJoined:  true,
	TypeFullRoom:    true,
	TypePeerLeft:    true,
	TypeError:       true,
	TypeStartCall:   true,
	TypeOffer:       true,
	TypeAnswer:      true,
	TypeCandidate:   true,
	TypeChatMessage: true,
	TypeReaction:    true,
}

// IsRelayed reports whether messages of type t are forwarded to the other
// member of a room rather than handled by the server itself.
func IsRelayed(t string) bool {
	switch t {
	case TypeStartCall, TypeOffer, TypeAnswer, TypeCandidate, TypeChatMessage, TypeReaction:
		return true
	}
	return false
}

// Decode parses a single JSON message. Trailing data and unknown types are
// rejected.
func Decode(data []byte) (*Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected trailing data", ErrMalformed)
	}
	if !knownTypes[msg.Type] {
		return nil, fmt.Errorf("%w: unsupported message type %q", ErrMalformed, msg.Type)
	}
	return &msg, nil
}

// Encode marshals msg as JSON.
func Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Join builds a join request for roomKey.
func Join(roomKey string) *Message {
	return &Message{Type: TypeJoin, RoomKey: roomKey}
}

// Leave builds a leave request for roomKey.
func Leave(roomKey string) *Message {
	return &Message{Type: TypeLeave, RoomKey: roomKey}
}

// StartCall builds the trigger the responder sends once it is ready.
func StartCall(roomKey string) *Message {
	return &Message{Type: TypeStartCall, RoomKey: roomKey}
}

// Chat builds a chat message stamped with the local clock.
func Chat(roomKey, text string) *Message {
	return &Message{Type: TypeChatMessage, RoomKey: roomKey, Text: text, TS: time.Now().UnixMilli()}
}

// Reaction builds an emoji reaction.
func Reaction(roomKey, emoji string) *Message {
	return &Message{Type: TypeReaction, RoomKey: roomKey, Emoji: emoji, TS: time.Now().UnixMilli()}
}

// Notice builds a server notification carrying no payload.
func Notice(t, roomKey string) *Message {
	return &Message{Type: t, RoomKey: roomKey}
}
