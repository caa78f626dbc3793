package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// SubmissionStatus captures the review lifecycle states of a submission.
type SubmissionStatus string

const (
	StatusPending             SubmissionStatus = "PENDING"
	StatusUnderReview         SubmissionStatus = "UNDER_REVIEW"
	StatusUnderReviewRevision SubmissionStatus = "UNDER_REVIEW_REVISION"
	StatusReviewed            SubmissionStatus = "REVIEWED"
	StatusNeedsRevision       SubmissionStatus = "NEEDS_REVISION"
	StatusAccepted            SubmissionStatus = "ACCEPTED"
	StatusRejected            SubmissionStatus = "REJECTED"
	StatusPublished           SubmissionStatus = "PUBLISHED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []SubmissionStatus{
	StatusPending,
	StatusUnderReview,
	StatusUnderReviewRevision,
	StatusReviewed,
	StatusNeedsRevision,
	StatusAccepted,
	StatusRejected,
	StatusPublished,
}

var statusLabels = map[SubmissionStatus]string{
	StatusPending:             "Pending",
	StatusUnderReview:         "Under Review",
	StatusUnderReviewRevision: "Under Review (Revision)",
	StatusReviewed:            "Reviewed",
	StatusNeedsRevision:       "Needs Revision",
	StatusAccepted:            "Accepted",
	StatusRejected:            "Rejected",
	StatusPublished:           "Published",
}

// Valid reports whether the status is a known lifecycle state.
func (s SubmissionStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the human readable name shown by the journal client.
func (s SubmissionStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// InReview reports whether reviewers are currently expected to give feedback.
func (s SubmissionStatus) InReview() bool {
	return s == StatusUnderReview || s == StatusUnderReviewRevision
}

// ParseSubmissionStatus accepts either the constant ("UNDER_REVIEW") or the
// display label ("Under Review (Revision)").
func ParseSubmissionStatus(raw string) (SubmissionStatus, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	candidate := SubmissionStatus(strings.ToUpper(strings.ReplaceAll(raw, "-", "_")))
	if candidate.Valid() {
		return candidate, true
	}
	for status, label := range statusLabels {
		if strings.EqualFold(label, raw) {
			return status, true
		}
	}
	return "", false
}

// Submission is a journal article moving through the review pipeline.
type Submission struct {
	ID              string           `db:"id" json:"id"`
	Title           string           `db:"title" json:"title"`
	AuthorNames     pq.StringArray   `db:"author_names" json:"authorNames"`
	SubmittedBy     string           `db:"submitted_by" json:"submittedBy"`
	Status          SubmissionStatus `db:"status" json:"status"`
	ReviewerIDs     pq.StringArray   `db:"reviewer_ids" json:"reviewerIds"`
	RubricID        *string          `db:"rubric_id" json:"rubricId,omitempty"`
	PublicationDate *time.Time       `db:"publication_date" json:"publicationDate,omitempty"`
	FileRef         string           `db:"file_ref" json:"-"`
	FileName        string           `db:"file_name" json:"fileName"`
	Round           int              `db:"round" json:"round"`
	Version         int64            `db:"version" json:"version"`
	CreatedAt       time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updatedAt"`
}

// HasReviewer reports whether the reviewer belongs to the active assignment set.
func (s *Submission) HasReviewer(reviewerID string) bool {
	for _, id := range s.ReviewerIDs {
		if id == reviewerID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to mutate.
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	cp := *s
	cp.AuthorNames = append(pq.StringArray(nil), s.AuthorNames...)
	cp.ReviewerIDs = append(pq.StringArray(nil), s.ReviewerIDs...)
	if s.RubricID != nil {
		id := *s.RubricID
		cp.RubricID = &id
	}
	if s.PublicationDate != nil {
		ts := *s.PublicationDate
		cp.PublicationDate = &ts
	}
	return &cp
}

// SubmissionFilter constrains listing queries.
type SubmissionFilter struct {
	Statuses    []SubmissionStatus
	ReviewerID  string
	SubmittedBy string
	Limit       int
	Offset      int
}

// FileHandle is the opaque reference to an uploaded manuscript.
type FileHandle struct {
	Ref  string `json:"ref"`
	Name string `json:"name"`
}

// StatusCount is one row of a status histogram.
type StatusCount struct {
	Status SubmissionStatus `db:"status" json:"status"`
	Count  int              `db:"count" json:"count"`
}
