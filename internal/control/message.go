package control

import "github.com/vmihailenco/msgpack/v5"

// Control channel message types
const (
	TypePeerInfo   = "peer_info"
	TypeMediaState = "media_state"
)

// Message represents all control data channel messages
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// PeerInfo is sent by each side once the channel opens
type PeerInfo struct {
	Name    string `msgpack:"name"`
	Version string `msgpack:"version"`
}

// MediaState tells the other side what it is currently receiving
type MediaState struct {
	Audio  bool `msgpack:"audio"`
	Video  bool `msgpack:"video"`
	Screen bool `msgpack:"screen"`
}

// DecodePayload decodes the message payload into the provided struct
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewMessage creates a new Message with the given type and payload
func NewMessage(t string, payload any) (Message, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Type:    t,
		Payload: b,
	}, nil
}

// Encode packs a typed payload into a wire frame.
func Encode(t string, payload any) ([]byte, error) {
	msg, err := NewMessage(t, payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(msg)
}

// Decode unpacks a wire frame.
func Decode(data []byte) (Message, error) {
	var msg Message
	err := msgpack.Unmarshal(data, &msg)
	return msg, err
}
