package notification

import (
	"log"

	"aifit/coach-app/internal/domain"
)

// Scheduler dispatches completion notifications to the user. Delivery is
// fire-and-forget: failures are logged, never propagated, and the engine
// records dispatch regardless so a flaky provider cannot wedge recovery.
type Scheduler interface {
	ScheduleCompletionNotification(kind domain.PlanKind, title string)
}

// logScheduler is the default Scheduler; it only logs. The mobile clients
// poll plan state, so a push provider is an optional add-on behind this
// interface.
type logScheduler struct {
	enabled bool
}

// NewLogScheduler creates a log-backed scheduler.
func NewLogScheduler(enabled bool) Scheduler {
	return &logScheduler{enabled: enabled}
}

func (s *logScheduler) ScheduleCompletionNotification(kind domain.PlanKind, title string) {
	if !s.enabled {
		return
	}
	log.Printf("Notification scheduled: plan kind=%s title=%q", kind, title)
}
