package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/room4-2/streamchat/messages"
)

// SSESource subscribes to GET {base}/events/{id}?is_audio=bool
type SSESource struct {
	base   *url.URL
	client *http.Client
}

// NewSSESource creates a source for the given server base URL.
// The client must not carry a total request timeout; streams are long-lived.
func NewSSESource(baseURL string, client *http.Client) (*SSESource, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if client == nil {
		client = &http.Client{}
	}
	return &SSESource{base: u, client: client}, nil
}

// Subscribe opens the event stream for a session
func (s *SSESource) Subscribe(ctx context.Context, sessionID string, audio bool) (Subscription, error) {
	endpoint := eventsURL(s.base, "events", sessionID, audio)

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build subscribe request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		return nil, &StatusError{URL: endpoint, StatusCode: resp.StatusCode}
	}

	return &sseSubscription{
		body:   resp.Body,
		parser: newSSEParser(resp.Body),
		cancel: cancel,
	}, nil
}

type sseSubscription struct {
	body      io.ReadCloser
	parser    *sseParser
	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
}

func (s *sseSubscription) Next() (*messages.Event, error) {
	for {
		frame, err := s.parser.Next()
		if err != nil {
			if s.closed.Load() {
				return nil, ErrClosed
			}
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read event stream: %w", err)
		}

		// Named events other than the default "message" are not part of the contract
		if frame.Event != "" && frame.Event != "message" {
			continue
		}
		if len(frame.Data) == 0 {
			continue
		}

		return decodePayload(frame.Data)
	}
}

func (s *sseSubscription) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		closeErr = s.body.Close()
	})
	return closeErr
}
