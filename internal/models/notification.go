package models

import "time"

// WorkflowEventType enumerates the logical events the engine emits.
type WorkflowEventType string

const (
	EventAssignedReviewers WorkflowEventType = "ASSIGNED_REVIEWERS"
	EventFeedbackRequested WorkflowEventType = "FEEDBACK_REQUESTED"
	EventDecisionReady     WorkflowEventType = "DECISION_READY"
	EventStatusChanged     WorkflowEventType = "STATUS_CHANGED"
)

// WorkflowEvent is emitted after a change commits. Delivery is the sink's concern.
type WorkflowEvent struct {
	SubmissionID string                 `json:"submissionId"`
	Event        WorkflowEventType      `json:"event"`
	Recipients   []string               `json:"recipients"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	OccurredAt   time.Time              `json:"occurredAt"`
}

// NotificationStatus tracks whether the recipient has seen a notification.
type NotificationStatus string

const (
	NotificationUnread NotificationStatus = "UNREAD"
	NotificationRead   NotificationStatus = "READ"
)

// Notification is an in-app message delivered to one user.
type Notification struct {
	ID           string             `db:"id" json:"id"`
	UserID       string             `db:"user_id" json:"userId"`
	SubmissionID string             `db:"submission_id" json:"submissionId"`
	Event        WorkflowEventType  `db:"event" json:"event"`
	Message      string             `db:"message" json:"message"`
	Payload      []byte             `db:"payload" json:"-"`
	Status       NotificationStatus `db:"status" json:"status"`
	CreatedAt    time.Time          `db:"created_at" json:"createdAt"`
	ReadAt       *time.Time         `db:"read_at" json:"readAt,omitempty"`
}

// NotificationFilter constrains notification listings.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Limit      int
	Offset     int
}
