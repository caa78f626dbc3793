package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JRCMora/jms-api/internal/dto"
	"github.com/JRCMora/jms-api/internal/models"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
	"github.com/JRCMora/jms-api/pkg/response"
)

type rubricService interface {
	Create(ctx context.Context, req dto.CreateRubricRequest, actor *models.JWTClaims) (*dto.RubricResponse, error)
	Get(ctx context.Context, id string) (*dto.RubricResponse, error)
	List(ctx context.Context) (*dto.RubricListResponse, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

// RubricHandler manages review rubrics.
type RubricHandler struct {
	service rubricService
}

// NewRubricHandler constructs the handler.
func NewRubricHandler(svc rubricService) *RubricHandler {
	return &RubricHandler{service: svc}
}

// List godoc
// @Summary List rubrics
// @Tags Rubrics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /rubrics [get]
func (h *RubricHandler) List(c *gin.Context) {
	result, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Items, &models.Pagination{Page: 1, PageSize: result.Total, TotalCount: result.Total})
}

// Get godoc
// @Summary Get rubric
// @Tags Rubrics
// @Produce json
// @Param id path string true "Rubric ID"
// @Success 200 {object} response.Envelope
// @Router /rubrics/{id} [get]
func (h *RubricHandler) Get(c *gin.Context) {
	rubric, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rubric, nil)
}

// Create godoc
// @Summary Create rubric
// @Tags Rubrics
// @Accept json
// @Produce json
// @Param payload body dto.CreateRubricRequest true "Rubric"
// @Success 201 {object} response.Envelope
// @Router /rubrics [post]
func (h *RubricHandler) Create(c *gin.Context) {
	var req dto.CreateRubricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid rubric payload"))
		return
	}
	rubric, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rubric)
}

// Delete godoc
// @Summary Delete rubric
// @Tags Rubrics
// @Param id path string true "Rubric ID"
// @Success 204
// @Router /rubrics/{id} [delete]
func (h *RubricHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
