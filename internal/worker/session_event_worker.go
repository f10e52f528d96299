package worker

import (
	"github.com/spec-kit/auth-core/internal/service"
)

// StartSessionEventWorker registers session audit handlers.
func StartSessionEventWorker(eventService *service.SessionEventService) {
	if eventService == nil {
		return
	}
	eventService.RegisterHandlers()
}
