package models

import (
	"encoding/json"
	"strings"
	"time"
)

// FeedbackChoice is a reviewer's or editor's recommendation.
type FeedbackChoice string

const (
	ChoiceApprove       FeedbackChoice = "APPROVE"
	ChoiceNeedsRevision FeedbackChoice = "NEEDS_REVISION"
	ChoiceReject        FeedbackChoice = "REJECT"
)

// AllChoices lists every recommendation.
var AllChoices = []FeedbackChoice{ChoiceApprove, ChoiceNeedsRevision, ChoiceReject}

// Valid reports whether the choice is one of the known recommendations.
func (c FeedbackChoice) Valid() bool {
	switch c {
	case ChoiceApprove, ChoiceNeedsRevision, ChoiceReject:
		return true
	}
	return false
}

// ParseFeedbackChoice normalises "approve", "needs revision", "needs-revision" etc.
func ParseFeedbackChoice(raw string) (FeedbackChoice, bool) {
	normalised := strings.ToUpper(strings.TrimSpace(raw))
	normalised = strings.NewReplacer(" ", "_", "-", "_").Replace(normalised)
	if normalised == "NEEDS_REVISIONS" {
		normalised = string(ChoiceNeedsRevision)
	}
	choice := FeedbackChoice(normalised)
	return choice, choice.Valid()
}

// Feedback is one reviewer's live recommendation for the current round.
type Feedback struct {
	SubmissionID string         `db:"submission_id" json:"submissionId"`
	ReviewerID   string         `db:"reviewer_id" json:"reviewerId"`
	Round        int            `db:"round" json:"round"`
	Text         string         `db:"text" json:"text"`
	Choice       FeedbackChoice `db:"choice" json:"choice"`
	SubmittedAt  time.Time      `db:"submitted_at" json:"submittedAt"`
}

// FeedbackSummary tallies reviewer choices for a round.
type FeedbackSummary struct {
	Total         int            `json:"total"`
	Approve       int            `json:"approve"`
	NeedsRevision int            `json:"needsRevision"`
	Reject        int            `json:"reject"`
	Majority      FeedbackChoice `json:"majority,omitempty"`
}

// ConsolidatedDecision is the editor's immutable verdict for one review round.
type ConsolidatedDecision struct {
	ID           string          `db:"id" json:"id"`
	SubmissionID string          `db:"submission_id" json:"submissionId"`
	Round        int             `db:"round" json:"round"`
	EditorID     string          `db:"editor_id" json:"editorId"`
	Text         string          `db:"text" json:"text"`
	Choice       FeedbackChoice  `db:"choice" json:"choice"`
	Summary      json.RawMessage `db:"feedback_summary" json:"feedbackSummary,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}
