package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-core/internal/events"
)

// SessionEventRecorder counts session lifecycle events.
type SessionEventRecorder interface {
	RecordSessionEvent(event, subjectType string)
}

// SessionEventService audits session lifecycle events.
type SessionEventService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	recorder   SessionEventRecorder
}

// NewSessionEventService creates the service.
func NewSessionEventService(dispatcher events.Dispatcher, logger *zap.Logger, recorder SessionEventRecorder) *SessionEventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionEventService{
		dispatcher: dispatcher,
		logger:     logger,
		recorder:   recorder,
	}
}

// RegisterHandlers subscribes to events.
func (s *SessionEventService) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(events.EventSessionIssued, s.handleSessionChange)
	s.dispatcher.Subscribe(events.EventSessionRotated, s.handleSessionChange)
	s.dispatcher.Subscribe(events.EventSessionRevoked, s.handleSessionRevoked)
	s.dispatcher.Subscribe(events.EventGuestMigrated, s.handleGuestMigrated)
}

func (s *SessionEventService) handleSessionChange(_ context.Context, event events.Event) error {
	s.logger.Info(string(event.Type),
		zap.String("subject_id", event.SubjectID),
		zap.String("subject_type", string(event.SubjectType)),
		zap.String("session_id", event.SessionID))
	s.record(event)
	return nil
}

func (s *SessionEventService) handleSessionRevoked(_ context.Context, event events.Event) error {
	fields := []zap.Field{zap.String("subject_id", event.SubjectID)}
	if payload, ok := event.Payload.(events.SessionRevokedPayload); ok {
		fields = append(fields, zap.Int64("removed", payload.Removed), zap.Bool("all_devices", payload.AllDevices))
	}
	s.logger.Info(string(event.Type), fields...)
	s.record(event)
	return nil
}

func (s *SessionEventService) handleGuestMigrated(_ context.Context, event events.Event) error {
	fields := []zap.Field{zap.String("subject_id", event.SubjectID)}
	if payload, ok := event.Payload.(events.GuestMigratedPayload); ok {
		fields = append(fields,
			zap.String("customer_subject_id", payload.CustomerSubjectID),
			zap.Int64("sessions_removed", payload.SessionsRemoved))
	}
	s.logger.Info(string(event.Type), fields...)
	s.record(event)
	return nil
}

func (s *SessionEventService) record(event events.Event) {
	if s.recorder == nil {
		return
	}
	subjectType := string(event.SubjectType)
	if subjectType == "" {
		subjectType = "UNKNOWN"
	}
	s.recorder.RecordSessionEvent(string(event.Type), subjectType)
}
