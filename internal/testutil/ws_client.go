package testutil

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dom/accounts/internal/domain"
	gorillaWS "github.com/gorilla/websocket"
)

// WSClient is a test client for the session events stream
type WSClient struct {
	t         *testing.T
	conn      *gorillaWS.Conn
	events    chan domain.SessionEvent
	done      chan struct{}
	closeOnce sync.Once
}

// NewWSClient dials the session events endpoint with the access token as a bearer header
func NewWSClient(t *testing.T, url, accessToken string) *WSClient {
	t.Helper()

	dialer := *gorillaWS.DefaultDialer
	dialer.HandshakeTimeout = 5 * time.Second

	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)

	conn, resp, err := dialer.Dial(url, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("failed to connect to websocket (status %d): %v", status, err)
	}

	client := &WSClient{
		t:      t,
		conn:   conn,
		events: make(chan domain.SessionEvent, 100),
		done:   make(chan struct{}),
	}

	go client.readPump()

	t.Cleanup(client.Close)

	return client
}

func (c *WSClient) readPump() {
	defer close(c.events)
	for {
		var ev domain.SessionEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			return
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

// Expect waits for the next event and fails the test on timeout
func (c *WSClient) Expect(timeout time.Duration) domain.SessionEvent {
	c.t.Helper()

	select {
	case ev, ok := <-c.events:
		if !ok {
			c.t.Fatalf("websocket closed while waiting for event")
		}
		return ev
	case <-time.After(timeout):
		c.t.Fatalf("timed out waiting for event")
	}
	return domain.SessionEvent{}
}

// ExpectType skips events until one of type typ arrives
func (c *WSClient) ExpectType(typ domain.SessionEventType, timeout time.Duration) domain.SessionEvent {
	c.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timed out waiting for %s", typ)
		}
		if ev := c.Expect(remaining); ev.Type == typ {
			return ev
		}
	}
}

func (c *WSClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
