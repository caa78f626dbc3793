package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JRCMora/jms-api/internal/dto"
	"github.com/JRCMora/jms-api/internal/models"
	"github.com/JRCMora/jms-api/internal/repository"
	"github.com/JRCMora/jms-api/internal/workflow"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
)

type workflowStore interface {
	Create(ctx context.Context, submission *models.Submission, intake models.StatusHistory) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	Apply(ctx context.Context, change repository.Change) error
	Delete(ctx context.Context, id string, expectedVersion int64) error
	ListFeedback(ctx context.Context, submissionID string) ([]models.Feedback, error)
	ListAssignments(ctx context.Context, submissionID string) ([]models.ReviewerAssignment, error)
}

type userFinder interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type rubricFinder interface {
	FindByID(ctx context.Context, id string) (*models.Rubric, error)
}

// EventSink receives workflow events once the change that caused them has
// committed. Delivery failures never roll a transition back.
type EventSink interface {
	Publish(ctx context.Context, event models.WorkflowEvent) error
}

// WorkflowServiceConfig tunes lifecycle policy.
type WorkflowServiceConfig struct {
	MaxReviewers int
}

// WorkflowServiceParams groups constructor dependencies.
type WorkflowServiceParams struct {
	Store     workflowStore
	Users     userFinder
	Rubrics   rubricFinder
	Events    EventSink
	Cache     *CacheService
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	Config    WorkflowServiceConfig
}

// WorkflowService drives submissions through the review lifecycle. Every
// mutating operation runs under a per-submission lock and commits through a
// single versioned write.
type WorkflowService struct {
	store     workflowStore
	users     userFinder
	rubrics   rubricFinder
	events    EventSink
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	locks     *submissionLocks
	cfg       WorkflowServiceConfig
	now       func() time.Time
}

// NewWorkflowService constructs the service with defaults.
func NewWorkflowService(params WorkflowServiceParams) *WorkflowService {
	cfg := params.Config
	if cfg.MaxReviewers <= 0 {
		cfg.MaxReviewers = 5
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	v := params.Validator
	if v == nil {
		v = validator.New()
	}
	return &WorkflowService{
		store:     params.Store,
		users:     params.Users,
		rubrics:   params.Rubrics,
		events:    params.Events,
		cache:     params.Cache,
		metrics:   params.Metrics,
		validator: v,
		logger:    logger,
		locks:     newSubmissionLocks(),
		cfg:       cfg,
		now:       time.Now,
	}
}

// transition is the outcome of validating an operation against a loaded
// submission: what to write and what to announce afterwards.
type transition struct {
	change repository.Change
	steps  []workflow.Step
	note   *string
	events []models.WorkflowEvent
}

// Create registers a new submission in PENDING.
func (s *WorkflowService) Create(ctx context.Context, req dto.CreateSubmissionRequest, actor *models.JWTClaims) (*models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req.Title = strings.TrimSpace(req.Title)
	req.AuthorNames = compactStrings(req.AuthorNames)
	if err := s.validator.Struct(req); err != nil {
		return nil, s.reject(workflow.TriggerSubmit, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload"))
	}
	if req.RubricID != nil && strings.TrimSpace(*req.RubricID) == "" {
		req.RubricID = nil
	}
	if req.RubricID != nil && s.rubrics != nil {
		if _, err := s.rubrics.FindByID(ctx, *req.RubricID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, s.reject(workflow.TriggerSubmit, "", appErrors.Clone(appErrors.ErrNotFound, "rubric not found"))
			}
			return nil, storageError(err, "load rubric")
		}
	}

	status, err := workflow.Fire("", workflow.TriggerSubmit)
	if err != nil {
		return nil, err
	}
	submission := &models.Submission{
		Title:       req.Title,
		AuthorNames: req.AuthorNames,
		SubmittedBy: actor.UserID,
		Status:      status,
		ReviewerIDs: []string{},
		RubricID:    req.RubricID,
		FileRef:     req.FileRef,
		FileName:    req.FileName,
		Round:       1,
	}
	intake := models.StatusHistory{
		Trigger:  string(workflow.TriggerSubmit),
		ToStatus: status,
		ActorID:  actor.UserID,
	}
	if err := s.store.Create(ctx, submission, intake); err != nil {
		return nil, s.reject(workflow.TriggerSubmit, "", storageError(err, "create submission"))
	}

	s.afterCommit(ctx, submission, []workflow.Step{{Trigger: workflow.TriggerSubmit, To: status}}, []models.WorkflowEvent{
		s.statusChanged(submission, workflow.Step{Trigger: workflow.TriggerSubmit, To: status}),
	})
	return submission, nil
}

// Publish marks an accepted submission as published at the given time.
func (s *WorkflowService) Publish(ctx context.Context, submissionID string, publishedAt time.Time, actor *models.JWTClaims) (*models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if publishedAt.IsZero() {
		return nil, s.reject(workflow.TriggerPublish, submissionID, appErrors.Clone(appErrors.ErrValidation, "publicationDate is required"))
	}
	return s.mutate(ctx, submissionID, workflow.TriggerPublish, func(sub *models.Submission) (*transition, error) {
		steps, err := workflow.Chain(sub.Status, workflow.TriggerPublish)
		if err != nil {
			return nil, err
		}
		ts := publishedAt.UTC()
		sub.PublicationDate = &ts
		sub.Status = steps[len(steps)-1].To
		return &transition{
			change: repository.Change{Submission: sub},
			steps:  steps,
			events: []models.WorkflowEvent{s.statusChanged(sub, steps[0])},
		}, nil
	}, actor.UserID)
}

// Delete irreversibly removes a submission with its feedback, assignments,
// decisions and history. Only editors and the submitting author may delete.
func (s *WorkflowService) Delete(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	unlock := s.locks.lock(submissionID)
	defer unlock()

	submission, err := s.load(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsEditor() && submission.SubmittedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only editors or the submitting author may delete a submission")
	}
	if err := s.store.Delete(ctx, submission.ID, submission.Version); err != nil {
		return nil, storageError(err, "delete submission")
	}
	s.cache.InvalidateStats(ctx)
	s.logger.Info("submission deleted",
		zap.String("submission_id", submission.ID),
		zap.String("actor_id", actor.UserID),
		zap.String("status", string(submission.Status)))
	return submission, nil
}

// mutate loads the submission under its lock, lets plan validate and shape
// the change, then commits it with the version check. Nothing is written
// when plan fails. Metrics, cache invalidation and events follow once the
// lock is released, so a slow sink never stalls the next operation.
func (s *WorkflowService) mutate(ctx context.Context, submissionID string, trigger workflow.Trigger, plan func(sub *models.Submission) (*transition, error), actorID string) (*models.Submission, error) {
	next, t, err := s.commit(ctx, submissionID, trigger, plan, actorID)
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, next, t.steps, t.events)
	return next, nil
}

func (s *WorkflowService) commit(ctx context.Context, submissionID string, trigger workflow.Trigger, plan func(sub *models.Submission) (*transition, error), actorID string) (*models.Submission, *transition, error) {
	unlock := s.locks.lock(submissionID)
	defer unlock()

	current, err := s.load(ctx, submissionID)
	if err != nil {
		return nil, nil, s.reject(trigger, submissionID, err)
	}
	next := current.Clone()
	t, err := plan(next)
	if err != nil {
		return nil, nil, s.reject(trigger, submissionID, err)
	}

	t.change.Submission = next
	t.change.ExpectedVersion = current.Version
	t.change.ActorID = actorID
	t.change.History = make([]models.StatusHistory, 0, len(t.steps))
	for _, step := range t.steps {
		t.change.History = append(t.change.History, models.StatusHistory{
			Trigger:    string(step.Trigger),
			FromStatus: step.From,
			ToStatus:   step.To,
			ActorID:    actorID,
			Note:       t.note,
		})
	}

	start := s.now()
	err = s.store.Apply(ctx, t.change)
	s.metrics.ObserveDBQuery("workflow_apply", s.now().Sub(start))
	if err != nil {
		return nil, nil, s.reject(trigger, submissionID, storageError(err, "apply workflow change"))
	}
	return next, t, nil
}

func (s *WorkflowService) afterCommit(ctx context.Context, submission *models.Submission, steps []workflow.Step, events []models.WorkflowEvent) {
	for _, step := range steps {
		s.metrics.RecordTransition(string(step.Trigger), step.From, step.To)
		s.logger.Info("workflow transition committed",
			zap.String("submission_id", submission.ID),
			zap.String("trigger", string(step.Trigger)),
			zap.String("from", string(step.From)),
			zap.String("to", string(step.To)),
			zap.Int("round", submission.Round),
			zap.Int64("version", submission.Version))
	}
	s.cache.InvalidateStats(ctx)
	s.publish(ctx, events)
}

func (s *WorkflowService) publish(ctx context.Context, events []models.WorkflowEvent) {
	if s.events == nil {
		return
	}
	for _, event := range events {
		if len(event.Recipients) == 0 {
			continue
		}
		if event.OccurredAt.IsZero() {
			event.OccurredAt = s.now().UTC()
		}
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn("workflow event not delivered",
				zap.String("submission_id", event.SubmissionID),
				zap.String("event", string(event.Event)),
				zap.Error(err))
		}
	}
}

func (s *WorkflowService) reject(trigger workflow.Trigger, submissionID string, err error) error {
	appErr := appErrors.FromError(err)
	s.metrics.RecordRejection(string(trigger), appErr.Code)
	s.logger.Debug("workflow operation rejected",
		zap.String("submission_id", submissionID),
		zap.String("trigger", string(trigger)),
		zap.String("code", appErr.Code),
		zap.Error(err))
	return err
}

func (s *WorkflowService) load(ctx context.Context, submissionID string) (*models.Submission, error) {
	if strings.TrimSpace(submissionID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission id is required")
	}
	submission, err := s.store.GetByID(ctx, submissionID)
	if err != nil {
		return nil, storageError(err, "load submission")
	}
	return submission, nil
}

func (s *WorkflowService) loadFeedback(ctx context.Context, submissionID string) ([]models.Feedback, error) {
	feedback, err := s.store.ListFeedback(ctx, submissionID)
	if err != nil {
		return nil, storageError(err, "load feedback")
	}
	return feedback, nil
}

// editorsOfRecord returns the users who assigned the active reviewer set.
func (s *WorkflowService) editorsOfRecord(ctx context.Context, submissionID string) []string {
	assignments, err := s.store.ListAssignments(ctx, submissionID)
	if err != nil {
		s.logger.Warn("could not resolve assigning editors", zap.String("submission_id", submissionID), zap.Error(err))
		return nil
	}
	ids := make([]string, 0, 1)
	for _, a := range assignments {
		if a.Active && a.AssignedBy != "" {
			ids = append(ids, a.AssignedBy)
		}
	}
	return compactStrings(ids)
}

func (s *WorkflowService) statusChanged(sub *models.Submission, step workflow.Step, extra ...string) models.WorkflowEvent {
	return models.WorkflowEvent{
		SubmissionID: sub.ID,
		Event:        models.EventStatusChanged,
		Recipients:   compactStrings(append([]string{sub.SubmittedBy}, extra...)),
		Payload: map[string]interface{}{
			"title":     sub.Title,
			"trigger":   string(step.Trigger),
			"from":      string(step.From),
			"to":        string(step.To),
			"fromLabel": step.From.Label(),
			"toLabel":   step.To.Label(),
			"round":     sub.Round,
		},
	}
}

func reviewerEvent(sub *models.Submission, event models.WorkflowEventType, recipients []string) models.WorkflowEvent {
	return models.WorkflowEvent{
		SubmissionID: sub.ID,
		Event:        event,
		Recipients:   append([]string(nil), recipients...),
		Payload: map[string]interface{}{
			"title":       sub.Title,
			"round":       sub.Round,
			"reviewerIds": []string(sub.ReviewerIDs),
		},
	}
}

// storageError maps repository failures onto workflow error kinds. Errors
// that are already typed pass through.
func storageError(err error, op string) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	case errors.Is(err, repository.ErrVersionConflict):
		return appErrors.WrapAs(appErrors.ErrConcurrentModification, err, "submission changed since it was read; reload and retry")
	default:
		return appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, fmt.Sprintf("%s failed", op))
	}
}

// compactStrings trims, drops empties and removes duplicates, keeping order.
func compactStrings(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
