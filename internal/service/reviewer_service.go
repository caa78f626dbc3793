package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/JRCMora/jms-api/internal/dto"
	"github.com/JRCMora/jms-api/internal/models"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
)

const (
	labelAssigned    = "Assigned"
	labelNotAssigned = "Not Assigned"
)

type reviewerDirectory interface {
	ListReviewersWithWorkload(ctx context.Context) ([]models.ReviewerWorkload, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Deactivate(ctx context.Context, id string) error
}

type submissionGetter interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
}

// ReviewerService lists reviewers for editors choosing an assignment.
type ReviewerService struct {
	directory   reviewerDirectory
	submissions submissionGetter
}

// NewReviewerService constructs a ReviewerService.
func NewReviewerService(directory reviewerDirectory, submissions submissionGetter) *ReviewerService {
	return &ReviewerService{directory: directory, submissions: submissions}
}

// Reviewers lists active reviewers with their workload. When submissionID is
// set each entry is labelled by whether it belongs to that submission's set.
func (s *ReviewerService) Reviewers(ctx context.Context, submissionID string) ([]dto.ReviewerSummary, error) {
	var assigned map[string]struct{}
	if submissionID = strings.TrimSpace(submissionID); submissionID != "" {
		sub, err := s.submissions.GetByID(ctx, submissionID)
		if err != nil {
			return nil, storageError(err, "load submission")
		}
		assigned = make(map[string]struct{}, len(sub.ReviewerIDs))
		for _, id := range sub.ReviewerIDs {
			assigned[id] = struct{}{}
		}
	}

	reviewers, err := s.directory.ListReviewersWithWorkload(ctx)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, "failed to list reviewers")
	}
	out := make([]dto.ReviewerSummary, 0, len(reviewers))
	for _, r := range reviewers {
		_, isAssigned := assigned[r.ID]
		label := labelNotAssigned
		if isAssigned {
			label = labelAssigned
		}
		out = append(out, dto.ReviewerSummary{
			ID:                r.ID,
			FullName:          r.FullName,
			Email:             r.Email,
			ActiveAssignments: r.ActiveAssignments,
			Assigned:          isAssigned,
			AssignmentLabel:   label,
		})
	}
	return out, nil
}

// Users pages through the user directory.
func (s *ReviewerService) Users(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	users, total, err := s.directory.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, "failed to list users")
	}
	return users, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Deactivate disables an account. An inactive reviewer is refused by every
// later assignment; assignments and feedback already recorded are kept.
func (s *ReviewerService) Deactivate(ctx context.Context, userID string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}
	if userID == actor.UserID {
		return appErrors.Clone(appErrors.ErrValidation, "editors cannot deactivate their own account")
	}
	if err := s.directory.Deactivate(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, "failed to deactivate user")
	}
	return nil
}
