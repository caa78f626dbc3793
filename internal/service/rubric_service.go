package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JRCMora/jms-api/internal/dto"
	"github.com/JRCMora/jms-api/internal/models"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
)

type rubricStore interface {
	Create(ctx context.Context, rubric *models.Rubric) error
	FindByID(ctx context.Context, id string) (*models.Rubric, error)
	List(ctx context.Context) ([]models.Rubric, error)
	Delete(ctx context.Context, id string) error
}

// RubricService manages the review guidelines submissions may reference.
type RubricService struct {
	store     rubricStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRubricService constructs a RubricService.
func NewRubricService(store rubricStore, validate *validator.Validate, logger *zap.Logger) *RubricService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RubricService{store: store, validator: validate, logger: logger}
}

// Create stores a new rubric authored by the editor.
func (s *RubricService) Create(ctx context.Context, req dto.CreateRubricRequest, actor *models.JWTClaims) (*dto.RubricResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rubric payload")
	}
	if req.Criteria == nil {
		req.Criteria = []models.RubricCriterion{}
	}
	criteria, err := json.Marshal(req.Criteria)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rubric criteria")
	}
	rubric := &models.Rubric{
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		Criteria:    criteria,
		CreatedBy:   actor.UserID,
	}
	if err := s.store.Create(ctx, rubric); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, "failed to create rubric")
	}
	s.logger.Info("rubric created", zap.String("rubric_id", rubric.ID), zap.String("actor_id", actor.UserID))
	return toRubricResponse(*rubric)
}

// Get returns one rubric.
func (s *RubricService) Get(ctx context.Context, id string) (*dto.RubricResponse, error) {
	rubric, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, rubricError(err, "failed to load rubric")
	}
	return toRubricResponse(*rubric)
}

// List returns all rubrics.
func (s *RubricService) List(ctx context.Context) (*dto.RubricListResponse, error) {
	rubrics, err := s.store.List(ctx)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, "failed to list rubrics")
	}
	resp := &dto.RubricListResponse{Items: make([]dto.RubricResponse, 0, len(rubrics))}
	for _, rubric := range rubrics {
		item, err := toRubricResponse(rubric)
		if err != nil {
			return nil, err
		}
		resp.Items = append(resp.Items, *item)
	}
	resp.Total = len(resp.Items)
	return resp, nil
}

// Delete removes a rubric.
func (s *RubricService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return rubricError(err, "failed to delete rubric")
	}
	if actor != nil {
		s.logger.Info("rubric deleted", zap.String("rubric_id", id), zap.String("actor_id", actor.UserID))
	}
	return nil
}

func rubricError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "rubric not found")
	}
	return appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, message)
}

func toRubricResponse(rubric models.Rubric) (*dto.RubricResponse, error) {
	criteria := []models.RubricCriterion{}
	if len(rubric.Criteria) > 0 {
		if err := json.Unmarshal(rubric.Criteria, &criteria); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored rubric criteria are malformed")
		}
	}
	return &dto.RubricResponse{
		ID:          rubric.ID,
		Title:       rubric.Title,
		Description: rubric.Description,
		Criteria:    criteria,
		CreatedBy:   rubric.CreatedBy,
		CreatedAt:   rubric.CreatedAt,
	}, nil
}
