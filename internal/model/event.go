package model

import "time"

// Routing keys for assignee events published through the outbox.
const (
	RoutingKeyProgressUpdated   = "assignee.progress.updated"
	RoutingKeyAssigneeCompleted = "assignee.completed"
)

// ProgressEvent is emitted for every successful assignee mutation.
type ProgressEvent struct {
	EventID          string    `json:"event_id"`
	TraceID          string    `json:"trace_id,omitempty"`
	TaskID           string    `json:"task_id"`
	UserID           int       `json:"user_id"`
	Action           string    `json:"action"`
	Status           Status    `json:"status"`
	Progress         int       `json:"progress"`
	TimeSpentMinutes int       `json:"time_spent_minutes"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// OutboundEvent pairs a payload with the routing key it is published under.
type OutboundEvent struct {
	RoutingKey string
	Payload    any
}
