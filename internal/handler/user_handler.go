package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/JRCMora/jms-api/internal/dto"
	"github.com/JRCMora/jms-api/internal/models"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
	"github.com/JRCMora/jms-api/pkg/response"
)

type userDirectory interface {
	Reviewers(ctx context.Context, submissionID string) ([]dto.ReviewerSummary, error)
	Users(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error)
	Deactivate(ctx context.Context, userID string, actor *models.JWTClaims) error
}

// UserHandler exposes the user directory editors pick reviewers from.
type UserHandler struct {
	service userDirectory
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userDirectory) *UserHandler {
	return &UserHandler{service: svc}
}

// Me godoc
// @Summary Describe the authenticated caller
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me [get]
func (h *UserHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"id":       claims.UserID,
		"email":    claims.Email,
		"fullName": claims.FullName,
		"role":     claims.Role,
		"isEditor": claims.Role.IsEditor(),
	}, nil)
}

// List godoc
// @Summary List users
// @Description List users with pagination and filtering
// @Tags Users
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param role query string false "Role filter"
// @Param active query bool false "Active filter"
// @Param search query string false "Search term"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	var filter models.UserFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}

	if role := strings.ToUpper(strings.TrimSpace(c.Query("role"))); role != "" {
		r := models.UserRole(role)
		filter.Role = &r
	}

	if active := c.Query("active"); active != "" {
		if val, err := strconv.ParseBool(active); err == nil {
			filter.Active = &val
		}
	}
	filter.Search = c.Query("search")

	users, pagination, err := h.service.Users(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// Reviewers godoc
// @Summary List reviewers with workload
// @Description When submissionId is given each reviewer is labelled Assigned or Not Assigned.
// @Tags Users
// @Produce json
// @Param submissionId query string false "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /reviewers [get]
func (h *UserHandler) Reviewers(c *gin.Context) {
	reviewers, err := h.service.Reviewers(c.Request.Context(), strings.TrimSpace(c.Query("submissionId")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reviewers, nil)
}

// Deactivate godoc
// @Summary Deactivate a user
// @Description Inactive reviewers can no longer be assigned. Existing reviews are kept.
// @Tags Users
// @Param id path string true "User ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [delete]
func (h *UserHandler) Deactivate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Deactivate(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
