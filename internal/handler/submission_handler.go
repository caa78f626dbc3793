package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JRCMora/jms-api/internal/dto"
	"github.com/JRCMora/jms-api/internal/middleware"
	"github.com/JRCMora/jms-api/internal/models"
	"github.com/JRCMora/jms-api/internal/service"
	"github.com/JRCMora/jms-api/internal/workflow"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
	"github.com/JRCMora/jms-api/pkg/response"
	"github.com/JRCMora/jms-api/pkg/storage"
)

type intakeService interface {
	Create(ctx context.Context, req dto.CreateSubmissionRequest, actor *models.JWTClaims) (*models.Submission, error)
	Publish(ctx context.Context, submissionID string, publishedAt time.Time, actor *models.JWTClaims) (*models.Submission, error)
	Delete(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.Submission, error)
}

type submissionQueries interface {
	Get(ctx context.Context, submissionID string, actor *models.JWTClaims) (*dto.SubmissionDetail, error)
	List(ctx context.Context, query dto.SubmissionQuery, actor *models.JWTClaims) ([]models.Submission, error)
	Stats(ctx context.Context, actor *models.JWTClaims) (*dto.StatsResponse, bool, error)
	History(ctx context.Context, submissionID string, actor *models.JWTClaims) ([]models.StatusHistory, error)
}

type submissionExporter interface {
	Submissions(ctx context.Context, query dto.SubmissionQuery, format string, actor *models.JWTClaims) (*service.ExportResult, error)
}

type manuscriptStore interface {
	Save(owner, originalName string, r io.Reader, maxBytes int64) (string, error)
	Delete(ref string) error
	DeleteOwner(owner string) error
}

// UploadPolicy bounds accepted manuscript uploads.
type UploadPolicy struct {
	MaxBytes     int64
	AllowedMIMEs []string
}

func (p UploadPolicy) allows(contentType string) bool {
	if len(p.AllowedMIMEs) == 0 {
		return true
	}
	contentType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, allowed := range p.AllowedMIMEs {
		if strings.EqualFold(allowed, contentType) {
			return true
		}
	}
	return false
}

// SubmissionHandler exposes intake, listing, publication and removal.
type SubmissionHandler struct {
	workflow intakeService
	queries  submissionQueries
	exporter submissionExporter
	files    manuscriptStore
	policy   UploadPolicy
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(workflow intakeService, queries submissionQueries, exporter submissionExporter, files manuscriptStore, policy UploadPolicy) *SubmissionHandler {
	return &SubmissionHandler{workflow: workflow, queries: queries, exporter: exporter, files: files, policy: policy}
}

// Create godoc
// @Summary Submit a manuscript
// @Tags Submissions
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param authorNames formData []string true "Author names" collectionFormat(multi)
// @Param rubricId formData string false "Rubric ID"
// @Param file formData file true "Manuscript"
// @Success 201 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "manuscript file is required"))
		return
	}
	handle, err := storeUpload(h.files, h.policy, claims.UserID, fileHeader)
	if err != nil {
		response.Error(c, err)
		return
	}

	req := dto.CreateSubmissionRequest{
		Title:       c.PostForm("title"),
		AuthorNames: splitAuthors(c.PostFormArray("authorNames")),
		FileRef:     handle.Ref,
		FileName:    handle.Name,
	}
	if rubricID := strings.TrimSpace(c.PostForm("rubricId")); rubricID != "" {
		req.RubricID = &rubricID
	}
	submission, err := h.workflow.Create(c.Request.Context(), req, claims)
	if err != nil {
		_ = h.files.Delete(handle.Ref)
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

// List godoc
// @Summary List submissions visible to the caller
// @Tags Submissions
// @Produce json
// @Param status query string false "Status or status label"
// @Param group query string false "Status group"
// @Param reviewerId query string false "Reviewer filter (editors)"
// @Param mine query bool false "Only submissions I submitted (editors)"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query, err := parseSubmissionQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	submissions, err := h.queries.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCount(c, len(submissions))
	response.JSON(c, http.StatusOK, submissions, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get submission detail
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	detail, err := h.queries.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Stats godoc
// @Summary Count submissions per status group
// @Tags Submissions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /submissions/stats [get]
func (h *SubmissionHandler) Stats(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	stats, hit, err := h.queries.Stats(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Download the submission list as CSV or PDF
// @Tags Submissions
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /submissions/export [get]
func (h *SubmissionHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query, err := parseSubmissionQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.exporter.Submissions(c.Request.Context(), query, c.DefaultQuery("format", "csv"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.FileName, result.ContentType, result.Data)
}

// History godoc
// @Summary List the status history of a submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/history [get]
func (h *SubmissionHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	history, err := h.queries.History(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Publish godoc
// @Summary Publish an accepted submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.PublishRequest true "Publication date"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/publish [post]
func (h *SubmissionHandler) Publish(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "publicationDate must be an RFC 3339 timestamp"))
		return
	}
	submission, err := h.workflow.Publish(c.Request.Context(), c.Param("id"), req.PublicationDate, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Delete godoc
// @Summary Delete a submission and everything attached to it
// @Tags Submissions
// @Param id path string true "Submission ID"
// @Success 204
// @Router /submissions/{id} [delete]
func (h *SubmissionHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	submission, err := h.workflow.Delete(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	// The first upload is filed under the author, revisions under the submission.
	_ = h.files.Delete(submission.FileRef)
	_ = h.files.DeleteOwner(submission.ID)
	response.NoContent(c)
}

func parseSubmissionQuery(c *gin.Context) (dto.SubmissionQuery, error) {
	query := dto.SubmissionQuery{
		ReviewerID: strings.TrimSpace(c.Query("reviewerId")),
		Mine:       queryBool(c, "mine"),
		Limit:      queryInt(c, "limit", 0),
		Offset:     queryInt(c, "offset", 0),
	}
	if raw := c.Query("status"); raw != "" {
		status, ok := models.ParseSubmissionStatus(raw)
		if !ok {
			return query, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", raw))
		}
		query.Status = status
	}
	if raw := c.Query("group"); raw != "" {
		group, ok := workflow.ParseStatusGroup(raw)
		if !ok {
			return query, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status group %q", raw))
		}
		query.Group = group
	}
	return query, nil
}

// splitAuthors accepts repeated fields and comma separated lists.
func splitAuthors(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// storeUpload checks the upload against policy and writes it under owner.
func storeUpload(files manuscriptStore, policy UploadPolicy, owner string, header *multipart.FileHeader) (models.FileHandle, error) {
	if policy.MaxBytes > 0 && header.Size > policy.MaxBytes {
		return models.FileHandle{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes", policy.MaxBytes))
	}
	if !policy.allows(header.Header.Get("Content-Type")) {
		return models.FileHandle{}, appErrors.Clone(appErrors.ErrValidation, "file type not allowed")
	}
	src, err := header.Open()
	if err != nil {
		return models.FileHandle{}, appErrors.Clone(appErrors.ErrValidation, "unreadable upload")
	}
	defer src.Close()

	ref, err := files.Save(owner, header.Filename, src, policy.MaxBytes)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return models.FileHandle{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes", policy.MaxBytes))
		}
		return models.FileHandle{}, appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, "failed to store manuscript")
	}
	return models.FileHandle{Ref: ref, Name: header.Filename}, nil
}
