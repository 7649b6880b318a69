package events

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dom/accounts/internal/domain"
	"github.com/dom/accounts/internal/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events []domain.SessionEvent
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e domain.SessionEvent) error {
	r.events = append(r.events, e)
	return r.err
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{}
	boom := errors.New("boom")
	failing := &recordingPublisher{err: boom}

	ev := domain.NewSessionEvent(domain.SessionEventRevoked, uuid.New(), domain.RevokeReasonLogout)
	err := Multi{ok, nil, failing, Noop{}}.Publish(context.Background(), ev)

	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.events, 1)
	assert.Len(t, failing.events, 1)
	assert.Equal(t, ev, ok.events[0])
}

func TestMulti_Empty(t *testing.T) {
	ev := domain.NewSessionEvent(domain.SessionEventStarted, uuid.New(), "")
	assert.NoError(t, Multi{}.Publish(context.Background(), ev))
}

func TestSubject(t *testing.T) {
	ev := domain.NewSessionEvent(domain.SessionEventRevoked, uuid.New(), domain.RevokeReasonSuperseded)
	assert.Equal(t, "accounts.session.revoked", Subject(ev))
}

func TestBus_NilPublishFails(t *testing.T) {
	var b *Bus
	ev := domain.NewSessionEvent(domain.SessionEventStarted, uuid.New(), "")
	assert.Error(t, b.Publish(context.Background(), ev))
	b.Close()
}

func newHubServer(t *testing.T, hub *Hub, userID uuid.UUID) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(hub, conn, userID)
		hub.Register(c)
		go c.WritePump()
		go c.ReadPump()
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHub_DeliversOnlyToOwner(t *testing.T) {
	hub := NewHub(logger.Discard())
	go hub.Run()
	t.Cleanup(hub.Stop)

	owner := uuid.New()
	other := uuid.New()

	conn, _, err := websocket.DefaultDialer.Dial(newHubServer(t, hub, owner), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount(owner) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(),
		domain.NewSessionEvent(domain.SessionEventRevoked, other, domain.RevokeReasonLogout)))
	require.NoError(t, hub.Publish(context.Background(),
		domain.NewSessionEvent(domain.SessionEventRevoked, owner, domain.RevokeReasonSuperseded)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got domain.SessionEvent
	require.NoError(t, conn.ReadJSON(&got))

	assert.Equal(t, owner, got.UserID)
	assert.Equal(t, domain.SessionEventRevoked, got.Type)
	assert.Equal(t, domain.RevokeReasonSuperseded, got.Reason)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(logger.Discard())
	go hub.Run()
	t.Cleanup(hub.Stop)

	userID := uuid.New()
	conn, _, err := websocket.DefaultDialer.Dial(newHubServer(t, hub, userID), nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.ClientCount(userID) == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount(userID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub := NewHub(logger.Discard())
	go hub.Run()
	defer hub.Stop()

	ev := domain.NewSessionEvent(domain.SessionEventStarted, uuid.New(), "")
	assert.NoError(t, hub.Publish(context.Background(), ev))
}
