package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JRCMora/jms-api/internal/dto"
	"github.com/JRCMora/jms-api/internal/models"
	"github.com/JRCMora/jms-api/internal/workflow"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
)

type submissionReader interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error)
	CountByStatus(ctx context.Context, filter models.SubmissionFilter) ([]models.StatusCount, error)
	ListFeedback(ctx context.Context, submissionID string) ([]models.Feedback, error)
	ListDecisions(ctx context.Context, submissionID string) ([]models.ConsolidatedDecision, error)
	DecisionForRound(ctx context.Context, submissionID string, round int) (*models.ConsolidatedDecision, error)
	History(ctx context.Context, submissionID string) ([]models.StatusHistory, error)
}

// QueryServiceConfig tunes read behaviour.
type QueryServiceConfig struct {
	StatsTTL time.Duration
}

// QueryServiceParams groups constructor dependencies.
type QueryServiceParams struct {
	Store   submissionReader
	Cache   *CacheService
	Metrics *MetricsService
	Logger  *zap.Logger
	Config  QueryServiceConfig
}

// QueryService answers read-only questions about submissions. Results are
// scoped by the caller's role: authors see their own submissions, reviewers
// the ones they are assigned to, editors everything.
type QueryService struct {
	store   submissionReader
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	cfg     QueryServiceConfig
}

// NewQueryService constructs the service with defaults.
func NewQueryService(params QueryServiceParams) *QueryService {
	cfg := params.Config
	if cfg.StatsTTL <= 0 {
		cfg.StatsTTL = time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{
		store:   params.Store,
		cache:   params.Cache,
		metrics: params.Metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// Get returns the submission with its current review state.
func (s *QueryService) Get(ctx context.Context, submissionID string, actor *models.JWTClaims) (*dto.SubmissionDetail, error) {
	submission, err := s.visible(ctx, submissionID, actor)
	if err != nil {
		return nil, err
	}
	feedback, err := s.store.ListFeedback(ctx, submission.ID)
	if err != nil {
		return nil, storageError(err, "list feedback")
	}
	decision, err := s.currentDecision(ctx, submission)
	if err != nil {
		return nil, err
	}

	detail := &dto.SubmissionDetail{
		Submission:       *submission,
		StatusLabel:      submission.Status.Label(),
		AllowedTriggers:  workflow.Allowed(submission.Status),
		Feedback:         feedback,
		FeedbackSummary:  workflow.Summarize(submission.ReviewerIDs, feedback),
		MissingReviewers: workflow.Missing(submission.ReviewerIDs, feedback),
		CurrentDecision:  decision,
	}
	if actor.Role == models.RoleAuthor {
		// Authors learn the outcome through the decision, not individual reviews.
		detail.Feedback = []models.Feedback{}
		detail.MissingReviewers = []string{}
		detail.FeedbackSummary = models.FeedbackSummary{}
		detail.CurrentDecision = forAuthor(decision)
	}
	return detail, nil
}

// List returns submissions matching the query within the caller's scope.
func (s *QueryService) List(ctx context.Context, query dto.SubmissionQuery, actor *models.JWTClaims) ([]models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.SubmissionFilter{Limit: query.Limit, Offset: query.Offset}
	switch {
	case query.Status != "":
		if !query.Status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", query.Status))
		}
		if query.Group != "" {
			if group, _ := workflow.GroupOf(query.Status); group != query.Group {
				return []models.Submission{}, nil
			}
		}
		filter.Statuses = []models.SubmissionStatus{query.Status}
	case query.Group != "":
		if !query.Group.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status group %q", query.Group))
		}
		filter.Statuses = query.Group.Statuses()
	}
	s.scope(&filter, query, actor)

	start := time.Now()
	submissions, err := s.store.List(ctx, filter)
	s.metrics.ObserveDBQuery("submissions_list", time.Since(start))
	if err != nil {
		return nil, storageError(err, "list submissions")
	}
	return submissions, nil
}

// ListByStatus lists submissions in exactly one status.
func (s *QueryService) ListByStatus(ctx context.Context, status models.SubmissionStatus, actor *models.JWTClaims) ([]models.Submission, error) {
	return s.List(ctx, dto.SubmissionQuery{Status: status}, actor)
}

// ListByGroup lists submissions whose status falls in the reporting group.
func (s *QueryService) ListByGroup(ctx context.Context, group workflow.StatusGroup, actor *models.JWTClaims) ([]models.Submission, error) {
	return s.List(ctx, dto.SubmissionQuery{Group: group}, actor)
}

// Stats counts submissions per status group for the caller's scope. The
// boolean reports whether the answer came from cache.
func (s *QueryService) Stats(ctx context.Context, actor *models.JWTClaims) (*dto.StatsResponse, bool, error) {
	if actor == nil {
		return nil, false, appErrors.ErrUnauthorized
	}
	filter := models.SubmissionFilter{}
	s.scope(&filter, dto.SubmissionQuery{}, actor)
	scope := "all"
	switch {
	case filter.SubmittedBy != "":
		scope = "author:" + filter.SubmittedBy
	case filter.ReviewerID != "":
		scope = "reviewer:" + filter.ReviewerID
	}
	key, cacheable := s.cache.StatsKey(ctx, scope)

	if cacheable {
		var cached dto.StatsResponse
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	start := time.Now()
	counts, err := s.store.CountByStatus(ctx, filter)
	s.metrics.ObserveDBQuery("submissions_count_by_status", time.Since(start))
	if err != nil {
		return nil, false, storageError(err, "count submissions")
	}
	resp := &dto.StatsResponse{Scope: scope, Groups: workflow.CountGroups(counts)}
	for _, group := range resp.Groups {
		resp.Total += group.Count
	}
	if cacheable {
		if err := s.cache.Set(ctx, key, resp, s.cfg.StatsTTL); err != nil {
			s.logger.Debug("stats not cached", zap.String("key", key), zap.Error(err))
		}
	}
	return resp, false, nil
}

// Feedback lists the live feedback of the current round. Authors are refused.
func (s *QueryService) Feedback(ctx context.Context, submissionID string, actor *models.JWTClaims) ([]models.Feedback, error) {
	submission, err := s.visible(ctx, submissionID, actor)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleAuthor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "authors cannot read individual reviews")
	}
	feedback, err := s.store.ListFeedback(ctx, submission.ID)
	if err != nil {
		return nil, storageError(err, "list feedback")
	}
	return feedback, nil
}

// Decision returns the consolidated decision of the current round.
func (s *QueryService) Decision(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.ConsolidatedDecision, error) {
	submission, err := s.visible(ctx, submissionID, actor)
	if err != nil {
		return nil, err
	}
	decision, err := s.currentDecision(ctx, submission)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no decision recorded for the current round")
	}
	if actor.Role == models.RoleAuthor {
		return forAuthor(decision), nil
	}
	return decision, nil
}

// Decisions lists every consolidated decision, oldest round first.
func (s *QueryService) Decisions(ctx context.Context, submissionID string, actor *models.JWTClaims) ([]models.ConsolidatedDecision, error) {
	submission, err := s.visible(ctx, submissionID, actor)
	if err != nil {
		return nil, err
	}
	decisions, err := s.store.ListDecisions(ctx, submission.ID)
	if err != nil {
		return nil, storageError(err, "list decisions")
	}
	if actor.Role == models.RoleAuthor {
		redacted := make([]models.ConsolidatedDecision, 0, len(decisions))
		for i := range decisions {
			redacted = append(redacted, *forAuthor(&decisions[i]))
		}
		return redacted, nil
	}
	return decisions, nil
}

// History lists every applied trigger in commit order.
func (s *QueryService) History(ctx context.Context, submissionID string, actor *models.JWTClaims) ([]models.StatusHistory, error) {
	submission, err := s.visible(ctx, submissionID, actor)
	if err != nil {
		return nil, err
	}
	history, err := s.store.History(ctx, submission.ID)
	if err != nil {
		return nil, storageError(err, "list history")
	}
	return history, nil
}

// Visible loads a submission and checks the caller may see it.
func (s *QueryService) Visible(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.Submission, error) {
	return s.visible(ctx, submissionID, actor)
}

func (s *QueryService) visible(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if submissionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission id is required")
	}
	submission, err := s.store.GetByID(ctx, submissionID)
	if err != nil {
		return nil, storageError(err, "load submission")
	}
	switch {
	case actor.Role.IsEditor():
	case actor.Role == models.RoleReviewer && submission.HasReviewer(actor.UserID):
	case submission.SubmittedBy == actor.UserID:
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "submission is not visible to this user")
	}
	return submission, nil
}

func (s *QueryService) currentDecision(ctx context.Context, submission *models.Submission) (*models.ConsolidatedDecision, error) {
	decision, err := s.store.DecisionForRound(ctx, submission.ID, submission.Round)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError(err, "load decision")
	}
	return decision, nil
}

func (s *QueryService) scope(filter *models.SubmissionFilter, query dto.SubmissionQuery, actor *models.JWTClaims) {
	switch {
	case actor.Role == models.RoleAuthor:
		filter.SubmittedBy = actor.UserID
	case actor.Role == models.RoleReviewer:
		filter.ReviewerID = actor.UserID
	case query.Mine:
		filter.SubmittedBy = actor.UserID
	case query.ReviewerID != "":
		filter.ReviewerID = query.ReviewerID
	}
}

// forAuthor drops the reviewer tally from a decision; authors only see the
// editor's verdict and text.
func forAuthor(decision *models.ConsolidatedDecision) *models.ConsolidatedDecision {
	if decision == nil {
		return nil
	}
	cp := *decision
	cp.Summary = nil
	return &cp
}
