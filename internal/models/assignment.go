package models

import "time"

// ReviewerAssignment records one reviewer attached to a submission during a round.
// Reassignment deactivates rows instead of deleting them.
type ReviewerAssignment struct {
	ID            string     `db:"id" json:"id"`
	SubmissionID  string     `db:"submission_id" json:"submissionId"`
	ReviewerID    string     `db:"reviewer_id" json:"reviewerId"`
	Round         int        `db:"round" json:"round"`
	Active        bool       `db:"active" json:"active"`
	AssignedBy    string     `db:"assigned_by" json:"assignedBy"`
	AssignedAt    time.Time  `db:"assigned_at" json:"assignedAt"`
	DeactivatedAt *time.Time `db:"deactivated_at" json:"deactivatedAt,omitempty"`
}

// StatusHistory is an append-only record of one applied trigger.
type StatusHistory struct {
	ID           string           `db:"id" json:"id"`
	SubmissionID string           `db:"submission_id" json:"submissionId"`
	Trigger      string           `db:"trigger" json:"trigger"`
	FromStatus   SubmissionStatus `db:"from_status" json:"fromStatus"`
	ToStatus     SubmissionStatus `db:"to_status" json:"toStatus"`
	ActorID      string           `db:"actor_id" json:"actorId"`
	Note         *string          `db:"note" json:"note,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"createdAt"`
}
