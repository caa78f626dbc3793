package service

import (
	"context"
	"fmt"

	"github.com/JRCMora/jms-api/internal/models"
	"github.com/JRCMora/jms-api/internal/repository"
	"github.com/JRCMora/jms-api/internal/workflow"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
)

// Assign attaches the first reviewer set of a round. From NEEDS_REVISION it
// opens a new round and discards the previous round's feedback.
func (s *WorkflowService) Assign(ctx context.Context, submissionID string, reviewerIDs []string, actor *models.JWTClaims) (*models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	reviewers, err := s.validateReviewers(ctx, reviewerIDs)
	if err != nil {
		return nil, s.reject(workflow.TriggerAssignReviewers, submissionID, err)
	}
	return s.mutate(ctx, submissionID, workflow.TriggerAssignReviewers, func(sub *models.Submission) (*transition, error) {
		if sub.Status.InReview() {
			return nil, appErrors.Clone(appErrors.ErrAlreadyAssigned,
				fmt.Sprintf("submission is %s; use reassignment to change reviewers", sub.Status.Label()))
		}
		steps, err := workflow.Chain(sub.Status, workflow.TriggerAssignReviewers)
		if err != nil {
			return nil, err
		}
		change := repository.Change{ReplaceAssignments: true}
		if sub.Status == models.StatusNeedsRevision {
			sub.Round++
			change.ClearFeedback = true
		}
		sub.ReviewerIDs = reviewers
		sub.Status = steps[len(steps)-1].To

		return &transition{
			change: change,
			steps:  steps,
			events: []models.WorkflowEvent{
				reviewerEvent(sub, models.EventAssignedReviewers, reviewers),
				reviewerEvent(sub, models.EventFeedbackRequested, reviewers),
				s.statusChanged(sub, steps[0]),
			},
		}, nil
	}, actor.UserID)
}

// Reassign replaces the reviewer set of a submission already under review.
// Feedback of removed reviewers is purged; when every reviewer of the new set
// already holds feedback the collection transition fires in the same commit.
func (s *WorkflowService) Reassign(ctx context.Context, submissionID string, reviewerIDs []string, actor *models.JWTClaims) (*models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	reviewers, err := s.validateReviewers(ctx, reviewerIDs)
	if err != nil {
		return nil, s.reject(workflow.TriggerReassignReviewers, submissionID, err)
	}
	return s.mutate(ctx, submissionID, workflow.TriggerReassignReviewers, func(sub *models.Submission) (*transition, error) {
		if _, err := workflow.Fire(sub.Status, workflow.TriggerReassignReviewers); err != nil {
			return nil, err
		}
		removed := difference(sub.ReviewerIDs, reviewers)
		added := difference(reviewers, sub.ReviewerIDs)

		feedback, err := s.loadFeedback(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		triggers := []workflow.Trigger{workflow.TriggerReassignReviewers}
		if workflow.Complete(reviewers, feedback) {
			triggers = append(triggers, workflow.TriggerAllFeedbackCollected)
		}
		steps, err := workflow.Chain(sub.Status, triggers...)
		if err != nil {
			return nil, err
		}
		sub.ReviewerIDs = reviewers
		sub.Status = steps[len(steps)-1].To

		events := []models.WorkflowEvent{reviewerEvent(sub, models.EventAssignedReviewers, reviewers)}
		if len(steps) == 1 && len(added) > 0 {
			events = append(events, reviewerEvent(sub, models.EventFeedbackRequested, added))
		}
		for _, step := range steps {
			events = append(events, s.statusChanged(sub, step))
		}
		return &transition{
			change: repository.Change{
				ReplaceAssignments: true,
				PurgeReviewers:     removed,
			},
			steps:  steps,
			events: events,
		}, nil
	}, actor.UserID)
}

// SetReviewers assigns or reassigns depending on the current status.
func (s *WorkflowService) SetReviewers(ctx context.Context, submissionID string, reviewerIDs []string, actor *models.JWTClaims) (*models.Submission, error) {
	trigger, _, err := s.AssignmentAction(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if trigger == workflow.TriggerReassignReviewers {
		return s.Reassign(ctx, submissionID, reviewerIDs, actor)
	}
	return s.Assign(ctx, submissionID, reviewerIDs, actor)
}

// AssignmentAction reports whether the next reviewer change is a first
// assignment or a reassignment.
func (s *WorkflowService) AssignmentAction(ctx context.Context, submissionID string) (workflow.Trigger, *models.Submission, error) {
	submission, err := s.load(ctx, submissionID)
	if err != nil {
		return "", nil, err
	}
	trigger, err := workflow.AssignmentTrigger(submission.Status)
	if err != nil {
		return "", submission, err
	}
	return trigger, submission, nil
}

// AssignmentHistory lists every assignment row of the submission.
func (s *WorkflowService) AssignmentHistory(ctx context.Context, submissionID string) ([]models.ReviewerAssignment, error) {
	if _, err := s.load(ctx, submissionID); err != nil {
		return nil, err
	}
	assignments, err := s.store.ListAssignments(ctx, submissionID)
	if err != nil {
		return nil, storageError(err, "list assignments")
	}
	return assignments, nil
}

// validateReviewers normalises the list and checks every id is an active reviewer.
func (s *WorkflowService) validateReviewers(ctx context.Context, reviewerIDs []string) ([]string, error) {
	ids := compactStrings(reviewerIDs)
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one reviewer is required")
	}
	if len(ids) > s.cfg.MaxReviewers {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("at most %d reviewers may be assigned", s.cfg.MaxReviewers))
	}
	if s.users == nil {
		return ids, nil
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, storageError(err, "load reviewers")
	}
	byID := make(map[string]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for _, id := range ids {
		user, ok := byID[id]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("reviewer %s not found", id))
		}
		if user.Role != models.RoleReviewer || !user.Active {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("user %s is not an active reviewer", id))
		}
	}
	return ids, nil
}

// difference returns the members of a that are not in b.
func difference(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]string, 0)
	for _, v := range a {
		if _, ok := set[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
