package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JRCMora/jms-api/internal/dto"
	"github.com/JRCMora/jms-api/internal/models"
	"github.com/JRCMora/jms-api/internal/workflow"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
	"github.com/JRCMora/jms-api/pkg/storage"
)

type reviewWorkflowMock struct {
	calls       []string
	reviewerIDs []string
	feedbackBy  string
	choice      string
	revision    models.FileHandle
	err         error
}

func (m *reviewWorkflowMock) record(name string, reviewerIDs []string) (*models.Submission, error) {
	m.calls = append(m.calls, name)
	m.reviewerIDs = reviewerIDs
	if m.err != nil {
		return nil, m.err
	}
	return &models.Submission{ID: "sub-1", Status: models.StatusUnderReview, ReviewerIDs: reviewerIDs}, nil
}

func (m *reviewWorkflowMock) Assign(ctx context.Context, submissionID string, reviewerIDs []string, actor *models.JWTClaims) (*models.Submission, error) {
	return m.record("assign", reviewerIDs)
}

func (m *reviewWorkflowMock) Reassign(ctx context.Context, submissionID string, reviewerIDs []string, actor *models.JWTClaims) (*models.Submission, error) {
	return m.record("reassign", reviewerIDs)
}

func (m *reviewWorkflowMock) SetReviewers(ctx context.Context, submissionID string, reviewerIDs []string, actor *models.JWTClaims) (*models.Submission, error) {
	return m.record("set", reviewerIDs)
}

func (m *reviewWorkflowMock) AssignmentAction(ctx context.Context, submissionID string) (workflow.Trigger, *models.Submission, error) {
	return workflow.TriggerReassignReviewers, &models.Submission{ID: submissionID, Status: models.StatusUnderReview}, nil
}

func (m *reviewWorkflowMock) AssignmentHistory(ctx context.Context, submissionID string) ([]models.ReviewerAssignment, error) {
	return []models.ReviewerAssignment{{SubmissionID: submissionID, ReviewerID: "r1"}}, nil
}

func (m *reviewWorkflowMock) SubmitFeedback(ctx context.Context, submissionID, reviewerID, text, rawChoice string) (*models.Submission, error) {
	m.feedbackBy = reviewerID
	m.choice = rawChoice
	if m.err != nil {
		return nil, m.err
	}
	return &models.Submission{ID: submissionID, Status: models.StatusReviewed}, nil
}

func (m *reviewWorkflowMock) Consolidate(ctx context.Context, submissionID, text, rawChoice string, editor *models.JWTClaims) (*models.ConsolidatedDecision, *models.Submission, error) {
	m.choice = rawChoice
	if m.err != nil {
		return nil, nil, m.err
	}
	return &models.ConsolidatedDecision{
			SubmissionID: submissionID,
			Choice:       models.ChoiceApprove,
			Round:        1,
			Summary:      json.RawMessage(`{"total":2,"approve":2,"needsRevision":0,"reject":0,"majority":"APPROVE"}`),
		},
		&models.Submission{ID: submissionID, Status: models.StatusAccepted}, nil
}

func (m *reviewWorkflowMock) ResubmitRevision(ctx context.Context, submissionID string, file models.FileHandle, actor *models.JWTClaims) (*models.Submission, error) {
	m.revision = file
	if m.err != nil {
		return nil, m.err
	}
	return &models.Submission{ID: submissionID, Status: models.StatusUnderReviewRevision, Round: 2}, nil
}

type reviewQueriesMock struct {
	err     error
	current *models.Submission
}

func (m *reviewQueriesMock) Visible(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.Submission, error) {
	if m.current == nil {
		return &models.Submission{ID: submissionID, SubmittedBy: "author-1", Status: models.StatusNeedsRevision}, nil
	}
	return m.current, nil
}

func (m *reviewQueriesMock) Feedback(ctx context.Context, submissionID string, actor *models.JWTClaims) ([]models.Feedback, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []models.Feedback{{SubmissionID: submissionID, ReviewerID: "r1"}}, nil
}

func (m *reviewQueriesMock) Decision(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.ConsolidatedDecision, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "no decision recorded for the current round")
}

func (m *reviewQueriesMock) Decisions(ctx context.Context, submissionID string, actor *models.JWTClaims) ([]models.ConsolidatedDecision, error) {
	return []models.ConsolidatedDecision{}, nil
}

func newReviewHandlerFixture(t *testing.T, wf *reviewWorkflowMock, queries *reviewQueriesMock) (*ReviewHandler, *storage.LocalStorage) {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewReviewHandler(wf, queries, files, UploadPolicy{MaxBytes: 1024}), files
}

func withID(c *gin.Context, id string) {
	c.Params = gin.Params{{Key: "id", Value: id}}
}

func TestReviewHandlerReviewerChanges(t *testing.T) {
	wf := &reviewWorkflowMock{}
	h, _ := newReviewHandlerFixture(t, wf, &reviewQueriesMock{})

	for _, call := range []func(*gin.Context){h.Assign, h.Reassign, h.SetReviewers} {
		c, rec := jsonContext(http.MethodPost, "/submissions/sub-1/reviewers", `{"reviewerIds":["r1","r2"]}`, editorClaims)
		withID(c, "sub-1")
		call(c)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, []string{"assign", "reassign", "set"}, wf.calls)
	assert.Equal(t, []string{"r1", "r2"}, wf.reviewerIDs)
}

func TestReviewHandlerAssignInvalidBody(t *testing.T) {
	wf := &reviewWorkflowMock{}
	h, _ := newReviewHandlerFixture(t, wf, &reviewQueriesMock{})

	c, rec := jsonContext(http.MethodPost, "/submissions/sub-1/reviewers/assign", `{"reviewerIds":`, editorClaims)
	h.Assign(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, wf.calls)
}

func TestReviewHandlerAssignConflict(t *testing.T) {
	wf := &reviewWorkflowMock{err: appErrors.Clone(appErrors.ErrInvalidTransition, "cannot assign from REVIEWED")}
	h, _ := newReviewHandlerFixture(t, wf, &reviewQueriesMock{})

	c, rec := jsonContext(http.MethodPost, "/submissions/sub-1/reviewers/assign", `{"reviewerIds":["r1"]}`, editorClaims)
	h.Assign(c)
	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)
}

func TestReviewHandlerAssignmentAction(t *testing.T) {
	h, _ := newReviewHandlerFixture(t, &reviewWorkflowMock{}, &reviewQueriesMock{})
	c, rec := newTestContext(http.MethodGet, "/submissions/sub-1/reviewers/action", nil, editorClaims)
	withID(c, "sub-1")
	h.AssignmentAction(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var action dto.AssignmentActionResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &action))
	assert.Equal(t, workflow.TriggerReassignReviewers, action.Action)
	assert.Equal(t, "UNDER_REVIEW", action.Status)
}

func TestReviewHandlerSubmitFeedbackUsesCaller(t *testing.T) {
	wf := &reviewWorkflowMock{}
	h, _ := newReviewHandlerFixture(t, wf, &reviewQueriesMock{})

	c, rec := jsonContext(http.MethodPost, "/submissions/sub-1/feedback", `{"text":"fine","choice":"Approve","reviewerId":"someone-else"}`, reviewerClaims)
	withID(c, "sub-1")
	h.SubmitFeedback(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r1", wf.feedbackBy)
	assert.Equal(t, "Approve", wf.choice)
}

func TestReviewHandlerFeedbackForbiddenForAuthors(t *testing.T) {
	h, _ := newReviewHandlerFixture(t, &reviewWorkflowMock{}, &reviewQueriesMock{
		err: appErrors.Clone(appErrors.ErrForbidden, "authors cannot read individual reviews"),
	})
	c, rec := newTestContext(http.MethodGet, "/submissions/sub-1/feedback", nil, authorClaims)
	h.Feedback(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReviewHandlerConsolidate(t *testing.T) {
	wf := &reviewWorkflowMock{}
	h, _ := newReviewHandlerFixture(t, wf, &reviewQueriesMock{})

	c, rec := jsonContext(http.MethodPost, "/submissions/sub-1/decision", `{"text":"accept","choice":"APPROVE"}`, editorClaims)
	withID(c, "sub-1")
	h.Consolidate(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		Decision   models.ConsolidatedDecision `json:"decision"`
		Submission models.Submission           `json:"submission"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &body))
	assert.Equal(t, models.StatusAccepted, body.Submission.Status)
	assert.Equal(t, 1, body.Decision.Round)

	var raw struct {
		Decision struct {
			FeedbackSummary map[string]interface{} `json:"feedbackSummary"`
		} `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &raw))
	total, ok := raw.Decision.FeedbackSummary["total"].(float64)
	require.True(t, ok, "feedbackSummary must be a JSON object")
	assert.Equal(t, float64(2), total)
	assert.Equal(t, "APPROVE", raw.Decision.FeedbackSummary["majority"])
}

func TestReviewHandlerDecisionMissing(t *testing.T) {
	h, _ := newReviewHandlerFixture(t, &reviewWorkflowMock{}, &reviewQueriesMock{})
	c, rec := newTestContext(http.MethodGet, "/submissions/sub-1/decision", nil, authorClaims)
	h.Decision(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewHandlerResubmitRevision(t *testing.T) {
	wf := &reviewWorkflowMock{}
	h, files := newReviewHandlerFixture(t, wf, &reviewQueriesMock{})

	c, rec := multipartContext(t, "/submissions/sub-1/revision", nil, "paper-v2.pdf", "application/pdf", []byte("%PDF"), authorClaims)
	withID(c, "sub-1")
	h.ResubmitRevision(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paper-v2.pdf", wf.revision.Name)
	assert.True(t, files.Exists(wf.revision.Ref))
}

func TestReviewHandlerResubmitRevisionRollsBackFile(t *testing.T) {
	wf := &reviewWorkflowMock{err: appErrors.Clone(appErrors.ErrConcurrentModification, "submission changed since it was read")}
	h, files := newReviewHandlerFixture(t, wf, &reviewQueriesMock{})

	c, rec := multipartContext(t, "/submissions/sub-1/revision", nil, "paper-v2.pdf", "application/pdf", []byte("%PDF"), authorClaims)
	withID(c, "sub-1")
	h.ResubmitRevision(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotEmpty(t, wf.revision.Ref)
	assert.False(t, files.Exists(wf.revision.Ref))
}

func TestReviewHandlerResubmitRevisionChecksBeforeStoring(t *testing.T) {
	cases := []struct {
		name    string
		claims  *models.JWTClaims
		current *models.Submission
		status  int
	}{
		{"other user", reviewerClaims, nil, http.StatusForbidden},
		{"wrong status", authorClaims, &models.Submission{ID: "sub-1", SubmittedBy: "author-1", Status: models.StatusUnderReview}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			files, err := storage.NewLocalStorage(dir)
			require.NoError(t, err)
			wf := &reviewWorkflowMock{}
			h := NewReviewHandler(wf, &reviewQueriesMock{current: tc.current}, files, UploadPolicy{MaxBytes: 1024})

			c, rec := multipartContext(t, "/submissions/sub-1/revision", nil, "paper-v2.pdf", "application/pdf", []byte("%PDF"), tc.claims)
			withID(c, "sub-1")
			h.ResubmitRevision(c)

			assert.Equal(t, tc.status, rec.Code)
			assert.Empty(t, wf.revision.Ref)
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}
