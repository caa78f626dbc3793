package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JRCMora/jms-api/internal/dto"
	"github.com/JRCMora/jms-api/internal/models"
	"github.com/JRCMora/jms-api/internal/workflow"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
	"github.com/JRCMora/jms-api/pkg/response"
)

type reviewWorkflow interface {
	Assign(ctx context.Context, submissionID string, reviewerIDs []string, actor *models.JWTClaims) (*models.Submission, error)
	Reassign(ctx context.Context, submissionID string, reviewerIDs []string, actor *models.JWTClaims) (*models.Submission, error)
	SetReviewers(ctx context.Context, submissionID string, reviewerIDs []string, actor *models.JWTClaims) (*models.Submission, error)
	AssignmentAction(ctx context.Context, submissionID string) (workflow.Trigger, *models.Submission, error)
	AssignmentHistory(ctx context.Context, submissionID string) ([]models.ReviewerAssignment, error)
	SubmitFeedback(ctx context.Context, submissionID, reviewerID, text, rawChoice string) (*models.Submission, error)
	Consolidate(ctx context.Context, submissionID, text, rawChoice string, editor *models.JWTClaims) (*models.ConsolidatedDecision, *models.Submission, error)
	ResubmitRevision(ctx context.Context, submissionID string, file models.FileHandle, actor *models.JWTClaims) (*models.Submission, error)
}

type reviewQueries interface {
	Feedback(ctx context.Context, submissionID string, actor *models.JWTClaims) ([]models.Feedback, error)
	Decision(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.ConsolidatedDecision, error)
	Decisions(ctx context.Context, submissionID string, actor *models.JWTClaims) ([]models.ConsolidatedDecision, error)
	Visible(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.Submission, error)
}

// ReviewHandler exposes reviewer assignment, feedback, consolidation and revision.
type ReviewHandler struct {
	workflow reviewWorkflow
	queries  reviewQueries
	files    manuscriptStore
	policy   UploadPolicy
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(workflow reviewWorkflow, queries reviewQueries, files manuscriptStore, policy UploadPolicy) *ReviewHandler {
	return &ReviewHandler{workflow: workflow, queries: queries, files: files, policy: policy}
}

// Assign godoc
// @Summary Assign reviewers to a pending submission
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.AssignReviewersRequest true "Reviewer IDs"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/reviewers/assign [post]
func (h *ReviewHandler) Assign(c *gin.Context) {
	h.changeReviewers(c, h.workflow.Assign)
}

// Reassign godoc
// @Summary Replace the reviewers of a submission under review
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.AssignReviewersRequest true "Reviewer IDs"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/reviewers/reassign [post]
func (h *ReviewHandler) Reassign(c *gin.Context) {
	h.changeReviewers(c, h.workflow.Reassign)
}

// SetReviewers godoc
// @Summary Assign or reassign depending on the submission status
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.AssignReviewersRequest true "Reviewer IDs"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/reviewers [put]
func (h *ReviewHandler) SetReviewers(c *gin.Context) {
	h.changeReviewers(c, h.workflow.SetReviewers)
}

type reviewerChange func(ctx context.Context, submissionID string, reviewerIDs []string, actor *models.JWTClaims) (*models.Submission, error)

func (h *ReviewHandler) changeReviewers(c *gin.Context, apply reviewerChange) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.AssignReviewersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid reviewer payload"))
		return
	}
	submission, err := apply(c.Request.Context(), c.Param("id"), req.ReviewerIDs, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// AssignmentAction godoc
// @Summary Report which assignment operation applies to the submission
// @Tags Reviews
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/reviewers/action [get]
func (h *ReviewHandler) AssignmentAction(c *gin.Context) {
	action, submission, err := h.workflow.AssignmentAction(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.AssignmentActionResponse{
		SubmissionID: submission.ID,
		Status:       string(submission.Status),
		Action:       action,
	}, nil)
}

// Assignments godoc
// @Summary List every reviewer assignment of a submission
// @Tags Reviews
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/assignments [get]
func (h *ReviewHandler) Assignments(c *gin.Context) {
	assignments, err := h.workflow.AssignmentHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// SubmitFeedback godoc
// @Summary Record the caller's feedback for the current round
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.SubmitFeedbackRequest true "Feedback"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/feedback [post]
func (h *ReviewHandler) SubmitFeedback(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid feedback payload"))
		return
	}
	submission, err := h.workflow.SubmitFeedback(c.Request.Context(), c.Param("id"), claims.UserID, req.Text, req.Choice)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Feedback godoc
// @Summary List feedback of the current round
// @Tags Reviews
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/feedback [get]
func (h *ReviewHandler) Feedback(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	feedback, err := h.queries.Feedback(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, feedback, nil)
}

// Consolidate godoc
// @Summary Record the editor's consolidated decision
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.ConsolidateRequest true "Decision"
// @Success 201 {object} response.Envelope
// @Router /submissions/{id}/decision [post]
func (h *ReviewHandler) Consolidate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ConsolidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	decision, submission, err := h.workflow.Consolidate(c.Request.Context(), c.Param("id"), req.Text, req.Choice, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"decision": decision, "submission": submission})
}

// Decision godoc
// @Summary Get the decision of the current round
// @Tags Reviews
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/decision [get]
func (h *ReviewHandler) Decision(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	decision, err := h.queries.Decision(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decision, nil)
}

// Decisions godoc
// @Summary List decisions of every round
// @Tags Reviews
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/decisions [get]
func (h *ReviewHandler) Decisions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	decisions, err := h.queries.Decisions(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decisions, nil)
}

// ResubmitRevision godoc
// @Summary Upload a revised manuscript and restart review
// @Tags Reviews
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Submission ID"
// @Param file formData file true "Revised manuscript"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/revision [post]
func (h *ReviewHandler) ResubmitRevision(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "revised manuscript file is required"))
		return
	}
	submissionID := c.Param("id")
	// Nothing touches the disk until the caller may revise this submission.
	current, err := h.queries.Visible(c.Request.Context(), submissionID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	if current.SubmittedBy != claims.UserID && !claims.Role.IsEditor() {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only the submitting author may resubmit a revision"))
		return
	}
	if !workflow.Can(current.Status, workflow.TriggerResubmitRevision) {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidTransition,
			"revisions are only accepted while the submission is "+models.StatusNeedsRevision.Label()))
		return
	}
	handle, err := storeUpload(h.files, h.policy, submissionID, fileHeader)
	if err != nil {
		response.Error(c, err)
		return
	}
	submission, err := h.workflow.ResubmitRevision(c.Request.Context(), submissionID, handle, claims)
	if err != nil {
		_ = h.files.Delete(handle.Ref)
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}
