package session

// Display renders session output. Calls come from the session loop,
// one at a time, and should return quickly.
type Display interface {
	// Status replaces the connection status line
	Status(text string)
	// SendEnabled toggles the send control
	SendEnabled(enabled bool)
	// BeginTurn opens a new agent message
	BeginTurn()
	// AppendText adds a chunk to the open agent message
	AppendText(text string)
	// EndTurn closes the open agent message
	EndTurn()
	// Echo shows the user's own outgoing text
	Echo(text string)
	// AudioSaved reports an exported audio reply
	AudioSaved(path string)
}

type nopDisplay struct{}

func (nopDisplay) Status(string)     {}
func (nopDisplay) SendEnabled(bool)  {}
func (nopDisplay) BeginTurn()        {}
func (nopDisplay) AppendText(string) {}
func (nopDisplay) EndTurn()          {}
func (nopDisplay) Echo(string)       {}
func (nopDisplay) AudioSaved(string) {}
