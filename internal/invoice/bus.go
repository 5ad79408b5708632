package invoice

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// busEvent is one named event from the server-push stream.
type busEvent struct {
	name string
	data string
}

// busSubscription owns the event-stream connection for one invoice. Close is
// idempotent and safe to call from the event handler itself.
type busSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// openBus connects to the payment bus and feeds named events to handler.
// Stream-level failures go to errHandler; they never tear down the caller's
// expiration timer.
func openBus(ctx context.Context, client *http.Client, busURL, busToken string, handler func(busEvent), errHandler func(error)) *busSubscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &busSubscription{cancel: cancel, done: make(chan struct{})}

	target := busURL + "?token=" + url.QueryEscape(busToken) + "&action=subscribe&events%5B%5D=payment"

	go func() {
		defer close(sub.done)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			errHandler(err)
			return
		}
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				errHandler(err)
			}
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			errHandler(fmt.Errorf("bus returned status %d", resp.StatusCode))
			return
		}

		readEventStream(bufio.NewScanner(resp.Body), handler)
		if ctx.Err() == nil {
			errHandler(errors.New("bus stream ended"))
		}
	}()

	return sub
}

// Close cancels the stream. Closing an already-closed subscription is a
// no-op, never an error.
func (s *busSubscription) Close() {
	s.once.Do(s.cancel)
}

// readEventStream parses text/event-stream framing: "event:" and "data:"
// field lines accumulate until a blank line dispatches the event. Comment
// and unknown fields are skipped.
func readEventStream(scanner *bufio.Scanner, handler func(busEvent)) {
	var name string
	var data []string

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if name != "" || len(data) > 0 {
				handler(busEvent{name: name, data: strings.Join(data, "\n")})
			}
			name = ""
			data = nil
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if name != "" || len(data) > 0 {
		handler(busEvent{name: name, data: strings.Join(data, "\n")})
	}
}
