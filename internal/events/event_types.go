package events

import (
	"time"

	"github.com/spec-kit/auth-core/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionIssued  EventType = "session_issued"
	EventSessionRotated EventType = "session_rotated"
	EventSessionRevoked EventType = "session_revoked"
	EventGuestMigrated  EventType = "guest_migrated"
)

// Event represents a session lifecycle event emitted by services.
type Event struct {
	ID          string             `json:"id"`
	Type        EventType          `json:"type"`
	SubjectID   string             `json:"subject_id"`
	SubjectType domain.SubjectType `json:"subject_type,omitempty"`
	SessionID   string             `json:"session_id,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
	Payload     interface{}        `json:"payload,omitempty"`
}

// SessionRevokedPayload payload.
type SessionRevokedPayload struct {
	Removed    int64 `json:"removed"`
	AllDevices bool  `json:"all_devices"`
}

// GuestMigratedPayload payload.
type GuestMigratedPayload struct {
	CustomerSubjectID string `json:"customer_subject_id"`
	SessionsRemoved   int64  `json:"sessions_removed"`
}
