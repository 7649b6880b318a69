package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionEventType string

const (
	SessionEventStarted SessionEventType = "session.started"
	SessionEventRotated SessionEventType = "session.rotated"
	SessionEventRevoked SessionEventType = "session.revoked"
	UserEventRegistered SessionEventType = "user.registered"
)

// Reasons attached to SessionEventRevoked.
const (
	RevokeReasonLogout          = "logout"
	RevokeReasonSuperseded      = "superseded"
	RevokeReasonPasswordChanged = "password_changed"
)

// SessionEvent describes a change to a user's session state.
type SessionEvent struct {
	Type       SessionEventType `json:"type"`
	UserID     uuid.UUID        `json:"userId"`
	Reason     string           `json:"reason,omitempty"`
	OccurredAt time.Time        `json:"occurredAt"`
}

func NewSessionEvent(t SessionEventType, userID uuid.UUID, reason string) SessionEvent {
	return SessionEvent{
		Type:       t,
		UserID:     userID,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
