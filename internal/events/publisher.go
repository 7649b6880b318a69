// Package events fans session and account events out to interested parties:
// a NATS subject for other services and websocket connections of the user.
package events

import (
	"context"
	"errors"

	"github.com/dom/accounts/internal/domain"
)

type Publisher interface {
	Publish(ctx context.Context, event domain.SessionEvent) error
}

// Multi publishes to every non-nil publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event domain.SessionEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Noop struct{}

func (Noop) Publish(context.Context, domain.SessionEvent) error { return nil }
