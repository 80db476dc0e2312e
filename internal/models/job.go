package models

import (
	"time"
)

// Job lifecycle states. A job only ever moves from waiting to one of the
// terminal states.
const (
	StatusWaiting = "waiting"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Job is a queued unit of deferred work. Action is opaque to the queue.
type Job struct {
	ID            int64      `json:"id"`
	Action        string     `json:"action"`
	Status        string     `json:"status"`
	DateCreated   time.Time  `json:"date_created"`
	DateCompleted *time.Time `json:"date_completed,omitempty"`
}

// IsTerminal reports whether status is a final job state.
func IsTerminal(status string) bool {
	return status == StatusSuccess || status == StatusError
}

// ValidStatus reports whether status is one of the known job states.
func ValidStatus(status string) bool {
	return status == StatusWaiting || IsTerminal(status)
}

// QueueStats is the aggregate view served to operators.
type QueueStats struct {
	Waiting        int64 `json:"waiting"`
	CompletedToday int64 `json:"completed_today"`
}
