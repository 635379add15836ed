package session

import "strings"

// TurnState is the phase of the agent reply in progress
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnReceivingText
	TurnReceivingAudio
)

func (s TurnState) String() string {
	switch s {
	case TurnReceivingText:
		return "receiving_text"
	case TurnReceivingAudio:
		return "receiving_audio"
	default:
		return "idle"
	}
}

// turn is the active agent reply; nil means idle
type turn struct {
	state     TurnState
	displayed bool // a display message is open
	text      strings.Builder
}
