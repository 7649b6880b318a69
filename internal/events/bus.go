package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dom/accounts/internal/domain"
	"github.com/nats-io/nats.go"
)

const (
	StreamName    = "ACCOUNTS"
	SubjectPrefix = "accounts."
)

// Bus publishes events to NATS JetStream under accounts.<event type>.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewBus connects to url and makes sure the ACCOUNTS stream exists.
func NewBus(url string, opts ...nats.Option) (*Bus, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	if _, err := js.StreamInfo(StreamName); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			nc.Close()
			return nil, fmt.Errorf("stream info: %w", err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     StreamName,
			Subjects: []string{SubjectPrefix + ">"},
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("add stream: %w", err)
		}
	}

	return &Bus{conn: nc, js: js}, nil
}

func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

func Subject(event domain.SessionEvent) string {
	return SubjectPrefix + string(event.Type)
}

func (b *Bus) Publish(ctx context.Context, event domain.SessionEvent) error {
	if b == nil {
		return errors.New("nil bus")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = b.js.Publish(Subject(event), data, nats.Context(ctx))
	return err
}
