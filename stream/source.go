// Package stream implements the inbound push channel: a session-scoped
// subscription that yields decoded agent events.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/room4-2/streamchat/messages"
)

// ErrClosed is returned by Next after Close
var ErrClosed = errors.New("subscription closed")

// Source opens push-channel subscriptions
type Source interface {
	Subscribe(ctx context.Context, sessionID string, audio bool) (Subscription, error)
}

// Subscription is one open push channel
type Subscription interface {
	// Next blocks until the next event. A *DecodeError is not fatal;
	// any other error ends the subscription.
	Next() (*messages.Event, error)
	Close() error
}

// DecodeError reports an inbound payload that could not be decoded
type DecodeError struct {
	Payload []byte
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed event (%d bytes): %v", len(e.Payload), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err only affects a single event
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// StatusError reports a non-success HTTP status when subscribing
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("subscribe %s: unexpected status %d", e.URL, e.StatusCode)
}

// eventsURL builds {base}/{route}/{id}?is_audio=bool
func eventsURL(base *url.URL, route, sessionID string, audio bool) string {
	u := *base
	u.Path = joinPath(u.Path, route, url.PathEscape(sessionID))
	q := u.Query()
	q.Set("is_audio", strconv.FormatBool(audio))
	u.RawQuery = q.Encode()
	return u.String()
}

func joinPath(base string, parts ...string) string {
	p := base
	for _, part := range parts {
		if len(p) == 0 || p[len(p)-1] != '/' {
			p += "/"
		}
		p += part
	}
	return p
}

func decodePayload(data []byte) (*messages.Event, error) {
	ev, err := messages.DecodeEvent(data)
	if err != nil {
		return nil, &DecodeError{Payload: data, Err: err}
	}
	return ev, nil
}
