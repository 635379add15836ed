// Package ui renders a chat session in the terminal and turns user input
// into session actions.
package ui

// Controller is the set of session actions a front end can trigger
type Controller interface {
	SendText(text string) error
	SetAudioMode(on bool) error
	StartAudio() error
	StopAudio() error
	Reconnect() error
}
