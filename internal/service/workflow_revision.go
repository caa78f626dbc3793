package service

import (
	"context"
	"strings"

	"github.com/JRCMora/jms-api/internal/models"
	"github.com/JRCMora/jms-api/internal/repository"
	"github.com/JRCMora/jms-api/internal/workflow"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
)

// ResubmitRevision replaces the manuscript of a submission awaiting revision
// and sends it back to the same reviewers for a new round. Previous feedback
// is cleared; the previous decision remains as history.
func (s *WorkflowService) ResubmitRevision(ctx context.Context, submissionID string, file models.FileHandle, actor *models.JWTClaims) (*models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	file.Ref = strings.TrimSpace(file.Ref)
	file.Name = strings.TrimSpace(file.Name)
	if file.Ref == "" || file.Name == "" {
		return nil, s.reject(workflow.TriggerResubmitRevision, submissionID,
			appErrors.Clone(appErrors.ErrValidation, "revised manuscript and its file name are required"))
	}

	return s.mutate(ctx, submissionID, workflow.TriggerResubmitRevision, func(sub *models.Submission) (*transition, error) {
		if sub.SubmittedBy != actor.UserID && !actor.Role.IsEditor() {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the submitting author may resubmit a revision")
		}
		steps, err := workflow.Chain(sub.Status, workflow.TriggerResubmitRevision)
		if err != nil {
			return nil, err
		}
		if len(sub.ReviewerIDs) == 0 {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "submission has no reviewers to resume review")
		}
		sub.FileRef = file.Ref
		sub.FileName = file.Name
		sub.Round++
		sub.Status = steps[0].To

		return &transition{
			change: repository.Change{ClearFeedback: true},
			steps:  steps,
			events: []models.WorkflowEvent{
				reviewerEvent(sub, models.EventFeedbackRequested, sub.ReviewerIDs),
				s.statusChanged(sub, steps[0], s.editorsOfRecord(ctx, sub.ID)...),
			},
		}, nil
	}, actor.UserID)
}
