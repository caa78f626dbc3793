package handler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JRCMora/jms-api/internal/dto"
	"github.com/JRCMora/jms-api/internal/models"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
	"github.com/JRCMora/jms-api/pkg/response"
)

type submissionVisibility interface {
	Visible(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.Submission, error)
}

type linkSigner interface {
	Generate(submissionID, ref string) (string, time.Time, error)
	Parse(token string) (submissionID, ref string, expiresAt time.Time, err error)
}

type fileOpener interface {
	Open(ref string) (*os.File, error)
}

// FileHandler hands out short-lived manuscript links and serves them.
type FileHandler struct {
	queries  submissionVisibility
	signer   linkSigner
	files    fileOpener
	basePath string
}

// NewFileHandler constructs the handler. basePath is the public prefix of
// the download route, for example "/api/v1/files".
func NewFileHandler(queries submissionVisibility, signer linkSigner, files fileOpener, basePath string) *FileHandler {
	return &FileHandler{queries: queries, signer: signer, files: files, basePath: strings.TrimRight(basePath, "/")}
}

// Link godoc
// @Summary Issue a signed download link for the current manuscript
// @Tags Files
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/file [get]
func (h *FileHandler) Link(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	submission, err := h.queries.Visible(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	token, expiresAt, err := h.signer.Generate(submission.ID, submission.FileRef)
	if err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to sign download link"))
		return
	}
	response.JSON(c, http.StatusOK, dto.FileLinkResponse{
		URL:       h.basePath + "/" + token,
		FileName:  submission.FileName,
		ExpiresAt: expiresAt,
	}, nil)
}

// Download godoc
// @Summary Download a manuscript through a signed link
// @Tags Files
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Router /files/{token} [get]
func (h *FileHandler) Download(c *gin.Context) {
	submissionID, ref, _, err := h.signer.Parse(c.Param("token"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or expired"))
		return
	}
	file, err := h.files.Open(ref)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "manuscript not found"))
			return
		}
		response.Error(c, appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, "failed to open manuscript"))
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, "failed to stat manuscript"))
		return
	}
	c.Header("Cache-Control", "private, no-store")
	c.Header("X-Submission-ID", submissionID)
	c.Header("Content-Disposition", "attachment; filename=\""+info.Name()+"\"")
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), file)
}
