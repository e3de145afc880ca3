package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrMissingRoom = errors.New("missing room key")
)

// Limits bound the size of relayed payloads. The zero value is replaced by
// DefaultLimits.
type Limits struct {
	MaxRoomKeyBytes   int
	MaxSDPBytes       int
	MaxCandidateBytes int
	MaxChatRunes      int
	MaxEmojiRunes     int
}

// DefaultLimits are sized for browser and pion SDP blobs with trickle ICE.
var DefaultLimits = Limits{
	MaxRoomKeyBytes:   128,
	MaxSDPBytes:       48 * 1024,
	MaxCandidateBytes: 2 * 1024,
	MaxChatRunes:      2000,
	MaxEmojiRunes:     4,
}

func (l Limits) withDefaults() Limits {
	if l.MaxRoomKeyBytes <= 0 {
		l.MaxRoomKeyBytes = DefaultLimits.MaxRoomKeyBytes
	}
	if l.MaxSDPBytes <= 0 {
		l.MaxSDPBytes = DefaultLimits.MaxSDPBytes
	}
	if l.MaxCandidateBytes <= 0 {
		l.MaxCandidateBytes = DefaultLimits.MaxCandidateBytes
	}
	if l.MaxChatRunes <= 0 {
		l.MaxChatRunes = DefaultLimits.MaxChatRunes
	}
	if l.MaxEmojiRunes <= 0 {
		l.MaxEmojiRunes = DefaultLimits.MaxEmojiRunes
	}
	return l
}

// Validate performs the minimal type and length checks needed before a message
// is acted on or relayed. It does not interpret SDP or candidate contents.
func (m *Message) Validate(limits Limits) error {
	limits = limits.withDefaults()

	switch m.Type {
	case TypeJoin, TypeLeave, TypeStartCall, TypeOffer, TypeAnswer, TypeCandidate, TypeChatMessage, TypeReaction:
		if m.RoomKey == "" {
			return fmt.Errorf("%w: %s", ErrMissingRoom, m.Type)
		}
		if len(m.RoomKey) > limits.MaxRoomKeyBytes {
			return fmt.Errorf("%w: room key exceeds %d bytes", ErrMalformed, limits.MaxRoomKeyBytes)
		}
	}

	switch m.Type {
	case TypeOffer, TypeAnswer:
		if err := checkObject("sdp", m.SDP, limits.MaxSDPBytes); err != nil {
			return err
		}
	case TypeCandidate:
		if err := checkObject("candidate", m.Candidate, limits.MaxCandidateBytes); err != nil {
			return err
		}
	case TypeChatMessage:
		if strings.TrimSpace(m.Text) == "" {
			return fmt.Errorf("%w: empty chat message", ErrMalformed)
		}
	case TypeReaction:
		emoji := strings.TrimSpace(m.Emoji)
		if emoji == "" {
			return fmt.Errorf("%w: empty reaction", ErrMalformed)
		}
		if utf8.RuneCountInString(emoji) > limits.MaxEmojiRunes {
			return fmt.Errorf("%w: reaction exceeds %d runes", ErrMalformed, limits.MaxEmojiRunes)
		}
	}
	return nil
}

func checkObject(field string, raw []byte, max int) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing %s", ErrMalformed, field)
	}
	if len(raw) > max {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrMalformed, field, max)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) < 2 || trimmed[0] != '{' || trimmed[len(trimmed)-1] != '}' {
		return fmt.Errorf("%w: %s must be an object", ErrMalformed, field)
	}
	return nil
}

// Sanitize normalizes chat and reaction fields in place: chat text is cut to
// MaxChatRunes, emoji are trimmed, and a missing timestamp is set to now.
func (m *Message) Sanitize(limits Limits) {
	limits = limits.withDefaults()

	switch m.Type {
	case TypeChatMessage:
		if utf8.RuneCountInString(m.Text) > limits.MaxChatRunes {
			m.Text = string([]rune(m.Text)[:limits.MaxChatRunes])
		}
	case TypeReaction:
		m.Emoji = strings.TrimSpace(m.Emoji)
	default:
		return
	}
	if m.TS == 0 {
		m.TS = time.Now().UnixMilli()
	}
}
