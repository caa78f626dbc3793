package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/JRCMora/jms-api/internal/middleware"
	"github.com/JRCMora/jms-api/internal/models"
)

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

var (
	editorClaims   = &models.JWTClaims{UserID: "editor-1", Role: models.RoleAdmin}
	reviewerClaims = &models.JWTClaims{UserID: "r1", Role: models.RoleReviewer}
	authorClaims   = &models.JWTClaims{UserID: "author-1", Role: models.RoleAuthor}
)

func newTestContext(method, target string, body io.Reader, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, body)
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

func jsonContext(method, target, body string, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	c, rec := newTestContext(method, target, bytes.NewBufferString(body), claims)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, rec
}

// multipartContext builds a form with the given fields and, when fileName is
// set, a file part carrying contentType.
func multipartContext(t *testing.T, target string, fields map[string][]string, fileName, contentType string, content []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, values := range fields {
		for _, v := range values {
			require.NoError(t, writer.WriteField(key, v))
		}
	}
	if fileName != "" {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	c, rec := newTestContext(http.MethodPost, target, &buf, claims)
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())
	return c, rec
}
