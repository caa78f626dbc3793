package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JRCMora/jms-api/internal/dto"
	"github.com/JRCMora/jms-api/internal/models"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
	"github.com/JRCMora/jms-api/pkg/storage"
)

type visibilityStub struct {
	submission *models.Submission
}

func (v *visibilityStub) Visible(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.Submission, error) {
	if v.submission == nil || actor.UserID == "stranger" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "submission is not visible to this user")
	}
	return v.submission, nil
}

func TestFileHandlerLinkAndDownload(t *testing.T) {
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ref, err := files.Save("author-1", "paper.pdf", strings.NewReader("%PDF-1.7 body"), 0)
	require.NoError(t, err)

	signer := storage.NewSignedURLSigner("secret", 0)
	h := NewFileHandler(&visibilityStub{submission: &models.Submission{ID: "sub-1", FileRef: ref, FileName: "paper.pdf"}},
		signer, files, "/api/v1/files/")

	c, rec := newTestContext(http.MethodGet, "/submissions/sub-1/file", nil, authorClaims)
	withID(c, "sub-1")
	h.Link(c)
	require.Equal(t, http.StatusOK, rec.Code)

	var link dto.FileLinkResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &link))
	assert.Equal(t, "paper.pdf", link.FileName)
	require.True(t, strings.HasPrefix(link.URL, "/api/v1/files/"))
	token := strings.TrimPrefix(link.URL, "/api/v1/files/")

	c, rec = newTestContext(http.MethodGet, link.URL, nil, nil)
	c.Params = gin.Params{{Key: "token", Value: token}}
	h.Download(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.7 body", rec.Body.String())
	assert.Equal(t, "sub-1", rec.Header().Get("X-Submission-ID"))
}

func TestFileHandlerRejectsTamperedToken(t *testing.T) {
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", 0)
	token, _, err := signer.Generate("sub-1", "author-1/file.pdf")
	require.NoError(t, err)

	h := NewFileHandler(&visibilityStub{}, storage.NewSignedURLSigner("other-secret", 0), files, "/files")
	c, rec := newTestContext(http.MethodGet, "/files/"+token, nil, nil)
	c.Params = gin.Params{{Key: "token", Value: token}}
	h.Download(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFileHandlerDownloadMissingFile(t *testing.T) {
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", 0)
	token, _, err := signer.Generate("sub-1", "author-1/gone.pdf")
	require.NoError(t, err)

	h := NewFileHandler(&visibilityStub{}, signer, files, "/files")
	c, rec := newTestContext(http.MethodGet, "/files/"+token, nil, nil)
	c.Params = gin.Params{{Key: "token", Value: token}}
	h.Download(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFileHandlerLinkRequiresVisibility(t *testing.T) {
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	h := NewFileHandler(&visibilityStub{submission: &models.Submission{ID: "sub-1", FileRef: "x/y.pdf"}},
		storage.NewSignedURLSigner("secret", 0), files, "/files")

	c, rec := newTestContext(http.MethodGet, "/submissions/sub-1/file", nil, &models.JWTClaims{UserID: "stranger", Role: models.RoleAuthor})
	h.Link(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
