package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JRCMora/jms-api/internal/models"
	"github.com/JRCMora/jms-api/internal/repository"
	"github.com/JRCMora/jms-api/internal/workflow"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
)

// SubmitFeedback records or replaces a reviewer's recommendation for the
// current round. The last missing piece of feedback moves the submission to
// REVIEWED in the same commit, whatever order reviewers answer in.
func (s *WorkflowService) SubmitFeedback(ctx context.Context, submissionID, reviewerID, text, rawChoice string) (*models.Submission, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, s.reject(workflow.TriggerAllFeedbackCollected, submissionID, appErrors.Clone(appErrors.ErrValidation, "feedback text is required"))
	}
	choice, ok := models.ParseFeedbackChoice(rawChoice)
	if !ok {
		return nil, s.reject(workflow.TriggerAllFeedbackCollected, submissionID,
			appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported feedback choice %q", rawChoice)))
	}

	return s.mutate(ctx, submissionID, workflow.TriggerAllFeedbackCollected, func(sub *models.Submission) (*transition, error) {
		if !sub.Status.InReview() {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("feedback is not accepted while submission is %s", sub.Status.Label()))
		}
		if !sub.HasReviewer(reviewerID) {
			return nil, appErrors.ErrNotAssignedReviewer
		}

		existing, err := s.loadFeedback(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		entry := models.Feedback{
			SubmissionID: sub.ID,
			ReviewerID:   reviewerID,
			Round:        sub.Round,
			Text:         text,
			Choice:       choice,
			SubmittedAt:  s.now().UTC(),
		}
		merged := make([]models.Feedback, 0, len(existing)+1)
		for _, fb := range existing {
			if fb.ReviewerID != reviewerID {
				merged = append(merged, fb)
			}
		}
		merged = append(merged, entry)

		t := &transition{change: repository.Change{Feedback: &entry}}
		if workflow.Complete(sub.ReviewerIDs, merged) {
			steps, err := workflow.Chain(sub.Status, workflow.TriggerAllFeedbackCollected)
			if err != nil {
				return nil, err
			}
			sub.Status = steps[0].To
			t.steps = steps
			t.events = []models.WorkflowEvent{
				s.statusChanged(sub, steps[0], s.editorsOfRecord(ctx, sub.ID)...),
			}
		}
		return t, nil
	}, reviewerID)
}

// Consolidate records the editor's decision for a fully reviewed round and
// applies the matching transition. The choice may differ from the reviewers'
// majority.
func (s *WorkflowService) Consolidate(ctx context.Context, submissionID, text, rawChoice string, editor *models.JWTClaims) (*models.ConsolidatedDecision, *models.Submission, error) {
	if editor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, s.reject(workflow.TriggerConsolidateApprove, submissionID, appErrors.Clone(appErrors.ErrValidation, "decision text is required"))
	}
	choice, ok := models.ParseFeedbackChoice(rawChoice)
	if !ok {
		return nil, nil, s.reject(workflow.TriggerConsolidateApprove, submissionID,
			appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported decision choice %q", rawChoice)))
	}
	trigger, err := workflow.ConsolidationTrigger(choice)
	if err != nil {
		return nil, nil, err
	}

	var decision *models.ConsolidatedDecision
	submission, err := s.mutate(ctx, submissionID, trigger, func(sub *models.Submission) (*transition, error) {
		steps, err := workflow.Chain(sub.Status, trigger)
		if err != nil {
			return nil, err
		}
		feedback, err := s.loadFeedback(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		if missing := workflow.Missing(sub.ReviewerIDs, feedback); len(missing) > 0 || len(sub.ReviewerIDs) == 0 {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("feedback incomplete: waiting on %d reviewer(s)", len(missing)))
		}
		summary := workflow.Summarize(sub.ReviewerIDs, feedback)
		rawSummary, err := json.Marshal(summary)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode feedback summary")
		}
		decision = &models.ConsolidatedDecision{
			SubmissionID: sub.ID,
			Round:        sub.Round,
			EditorID:     editor.UserID,
			Text:         text,
			Choice:       choice,
			Summary:      rawSummary,
			CreatedAt:    s.now().UTC(),
		}
		sub.Status = steps[0].To

		decisionReady := models.WorkflowEvent{
			SubmissionID: sub.ID,
			Event:        models.EventDecisionReady,
			Recipients:   []string{sub.SubmittedBy},
			Payload: map[string]interface{}{
				"title":  sub.Title,
				"round":  sub.Round,
				"choice": string(choice),
				"status": string(sub.Status),
			},
		}
		return &transition{
			change: repository.Change{Decision: decision},
			steps:  steps,
			events: []models.WorkflowEvent{decisionReady, s.statusChanged(sub, steps[0])},
		}, nil
	}, editor.UserID)
	if err != nil {
		return nil, nil, err
	}
	return decision, submission, nil
}

// Summarize tallies the current round's feedback over the active reviewers.
func (s *WorkflowService) Summarize(ctx context.Context, submissionID string) (models.FeedbackSummary, error) {
	submission, err := s.load(ctx, submissionID)
	if err != nil {
		return models.FeedbackSummary{}, err
	}
	feedback, err := s.loadFeedback(ctx, submissionID)
	if err != nil {
		return models.FeedbackSummary{}, err
	}
	return workflow.Summarize(submission.ReviewerIDs, feedback), nil
}
