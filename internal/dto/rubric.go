package dto

import (
	"time"

	"github.com/JRCMora/jms-api/internal/models"
)

// CreateRubricRequest defines a new review rubric.
type CreateRubricRequest struct {
	Title       string                   `json:"title" validate:"required,max=200"`
	Description string                   `json:"description"`
	Criteria    []models.RubricCriterion `json:"criteria" validate:"dive"`
}

// RubricResponse exposes a rubric with decoded criteria.
type RubricResponse struct {
	ID          string                   `json:"id"`
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	Criteria    []models.RubricCriterion `json:"criteria"`
	CreatedBy   string                   `json:"createdBy"`
	CreatedAt   time.Time                `json:"createdAt"`
}

// RubricListResponse carries rubrics with the total count.
type RubricListResponse struct {
	Items []RubricResponse `json:"items"`
	Total int              `json:"total"`
}
