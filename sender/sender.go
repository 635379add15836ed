// Package sender posts outbound envelopes to the session-scoped send endpoint.
// Delivery is at-most-once: failures are returned to the caller, never retried.
package sender

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/room4-2/streamchat/messages"
)

const (
	defaultTimeout = 10 * time.Second
	maxReplySize   = 64 * 1024
)

// StatusError reports a non-success HTTP status from the send endpoint
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("send failed: %s", e.Status)
}

// RejectedError reports a success status whose body carries an error
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("send rejected: %s", e.Reason)
}

// HTTPSender delivers messages with POST {base}/send/{id}
type HTTPSender struct {
	base   *url.URL
	client *http.Client
}

// New creates a sender for the given server base URL
func New(baseURL string, client *http.Client) (*HTTPSender, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPSender{base: u, client: client}, nil
}

// Send posts one envelope
func (s *HTTPSender) Send(ctx context.Context, sessionID string, msg *messages.Message) error {
	body, err := messages.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(sessionID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	// A reply that isn't JSON still counts as delivered
	if reply, err := messages.DecodeReply(data); err == nil && reply.Error != "" {
		return &RejectedError{Reason: reply.Error}
	}
	return nil
}

func (s *HTTPSender) endpoint(sessionID string) string {
	return s.base.JoinPath("send", sessionID).String()
}
