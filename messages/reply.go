package messages

import "github.com/bytedance/sonic"

// Reply statuses and errors returned by the send endpoint
const (
	StatusSent = "sent"

	ErrSessionNotFound = "Session not found"
	ErrInvalidMessage  = "Invalid message format"
)

// SendReply is the JSON body answering POST /send/{id}
type SendReply struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewSentReply acknowledges a delivered message
func NewSentReply() *SendReply {
	return &SendReply{Status: StatusSent}
}

// NewErrorReply reports a rejected message
func NewErrorReply(msg string) *SendReply {
	return &SendReply{Error: msg}
}

// DecodeReply parses a send reply; an empty body is a plain success
func DecodeReply(data []byte) (*SendReply, error) {
	var r SendReply
	if len(data) == 0 {
		return &r, nil
	}
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// HealthReply is the JSON body of GET /health
type HealthReply struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}
