package dto

import (
	"time"

	"github.com/JRCMora/jms-api/internal/models"
	"github.com/JRCMora/jms-api/internal/workflow"
)

// CreateSubmissionRequest is the intake payload. The HTTP layer fills FileRef
// and FileName after storing the uploaded manuscript.
type CreateSubmissionRequest struct {
	Title       string   `json:"title" validate:"required,max=500"`
	AuthorNames []string `json:"authorNames" validate:"required,min=1,dive,required"`
	RubricID    *string  `json:"rubricId"`
	FileRef     string   `json:"-" validate:"required"`
	FileName    string   `json:"-" validate:"required"`
}

// SubmissionQuery mirrors supported listing filters.
type SubmissionQuery struct {
	Status     models.SubmissionStatus
	Group      workflow.StatusGroup
	ReviewerID string
	Mine       bool
	Limit      int
	Offset     int
}

// AssignReviewersRequest carries the reviewer set for assign, reassign and set.
type AssignReviewersRequest struct {
	ReviewerIDs []string `json:"reviewerIds" validate:"required,min=1,dive,required"`
}

// AssignmentActionResponse tells the client which assignment operation applies.
type AssignmentActionResponse struct {
	SubmissionID string           `json:"submissionId"`
	Status       string           `json:"status"`
	Action       workflow.Trigger `json:"action"`
}

// PublishRequest sets the publication timestamp.
type PublishRequest struct {
	PublicationDate time.Time `json:"publicationDate" validate:"required"`
}

// SubmissionDetail aggregates a submission with its current review state.
type SubmissionDetail struct {
	models.Submission
	StatusLabel      string                       `json:"statusLabel"`
	AllowedTriggers  []workflow.Trigger           `json:"allowedTriggers"`
	Feedback         []models.Feedback            `json:"feedback"`
	FeedbackSummary  models.FeedbackSummary       `json:"feedbackSummary"`
	MissingReviewers []string                     `json:"missingReviewers"`
	CurrentDecision  *models.ConsolidatedDecision `json:"currentDecision,omitempty"`
}

// StatsResponse is the grouped status histogram shown on dashboards.
type StatsResponse struct {
	Scope  string                `json:"scope"`
	Total  int                   `json:"total"`
	Groups []workflow.GroupCount `json:"groups"`
}

// FileLinkResponse is a short-lived download link for a manuscript.
type FileLinkResponse struct {
	URL       string    `json:"url"`
	FileName  string    `json:"fileName"`
	ExpiresAt time.Time `json:"expiresAt"`
}
