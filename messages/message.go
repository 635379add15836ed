package messages

import (
	"encoding/base64"
	"fmt"

	"github.com/bytedance/sonic"
)

// MIME types carried in the envelope
const (
	MimeText = "text/plain"
	MimePCM  = "audio/pcm"
)

// Kind classifies an inbound event for dispatch
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindAudio
	KindTurnComplete
	KindInterrupted
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindAudio:
		return "audio"
	case KindTurnComplete:
		return "turn_complete"
	case KindInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Message is the two-field envelope exchanged in both directions
type Message struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // Literal text or base64-encoded PCM
}

// Event is one inbound push-channel payload: either a Message or a turn signal
type Event struct {
	MimeType     string `json:"mime_type,omitempty"`
	Data         string `json:"data,omitempty"`
	TurnComplete bool   `json:"turn_complete,omitempty"`
	Interrupted  bool   `json:"interrupted,omitempty"`
}

// NewTextMessage creates a text/plain envelope
func NewTextMessage(text string) *Message {
	return &Message{MimeType: MimeText, Data: text}
}

// NewAudioMessage creates an audio/pcm envelope from raw PCM bytes
func NewAudioMessage(pcm []byte) *Message {
	return &Message{MimeType: MimePCM, Data: base64.StdEncoding.EncodeToString(pcm)}
}

// NewTextEvent creates an inbound text event
func NewTextEvent(text string) *Event {
	return &Event{MimeType: MimeText, Data: text}
}

// NewAudioEvent creates an inbound audio event from raw PCM bytes
func NewAudioEvent(pcm []byte) *Event {
	return &Event{MimeType: MimePCM, Data: base64.StdEncoding.EncodeToString(pcm)}
}

// NewTurnSignal creates a turn_complete / interrupted signal event
func NewTurnSignal(turnComplete, interrupted bool) *Event {
	return &Event{TurnComplete: turnComplete, Interrupted: interrupted}
}

// Kind reports how the event should be dispatched.
// Turn signals win over content; they are mutually exclusive in practice.
func (e *Event) Kind() Kind {
	switch {
	case e.TurnComplete:
		return KindTurnComplete
	case e.Interrupted:
		return KindInterrupted
	case e.MimeType == MimeText:
		return KindText
	case e.MimeType == MimePCM:
		return KindAudio
	default:
		return KindUnknown
	}
}

// PCM decodes the base64 payload of an audio event or message
func (e *Event) PCM() ([]byte, error) {
	return decodePCM(e.Data)
}

// PCM decodes the base64 payload of an audio message
func (m *Message) PCM() ([]byte, error) {
	return decodePCM(m.Data)
}

func decodePCM(data string) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio: %w", err)
	}
	return pcm, nil
}

// Validate checks that an outbound message has a supported MIME type
func (m *Message) Validate() error {
	switch m.MimeType {
	case MimeText:
		return nil
	case MimePCM:
		if _, err := m.PCM(); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("mime type not supported: %s", m.MimeType)
	}
}

// Marshal encodes any envelope or reply
func Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// DecodeEvent parses one inbound event payload
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := sonic.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &ev, nil
}

// DecodeMessage parses one outbound envelope (relay side)
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}
