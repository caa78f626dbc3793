package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JRCMora/jms-api/internal/dto"
	"github.com/JRCMora/jms-api/internal/models"
	"github.com/JRCMora/jms-api/internal/repository"
	"github.com/JRCMora/jms-api/internal/workflow"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
)

// memoryWorkflowStore mirrors the versioned write semantics of the SQL store.
type memoryWorkflowStore struct {
	mu          sync.Mutex
	seq         int
	submissions map[string]*models.Submission
	feedback    map[string]map[string]models.Feedback
	assignments map[string][]models.ReviewerAssignment
	decisions   map[string][]models.ConsolidatedDecision
	history     map[string][]models.StatusHistory

	applyErr    error
	beforeApply func()
	applies     int
}

func newMemoryWorkflowStore() *memoryWorkflowStore {
	return &memoryWorkflowStore{
		submissions: make(map[string]*models.Submission),
		feedback:    make(map[string]map[string]models.Feedback),
		assignments: make(map[string][]models.ReviewerAssignment),
		decisions:   make(map[string][]models.ConsolidatedDecision),
		history:     make(map[string][]models.StatusHistory),
	}
}

func (m *memoryWorkflowStore) Create(ctx context.Context, submission *models.Submission, intake models.StatusHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	submission.ID = fmt.Sprintf("sub-%d", m.seq)
	submission.Version = 1
	m.submissions[submission.ID] = submission.Clone()
	intake.SubmissionID = submission.ID
	m.history[submission.ID] = append(m.history[submission.ID], intake)
	return nil
}

func (m *memoryWorkflowStore) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return sub.Clone(), nil
}

func (m *memoryWorkflowStore) Apply(ctx context.Context, change repository.Change) error {
	if m.beforeApply != nil {
		m.beforeApply()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applies++
	if m.applyErr != nil {
		return m.applyErr
	}
	sub := change.Submission
	stored, ok := m.submissions[sub.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if stored.Version != change.ExpectedVersion {
		return repository.ErrVersionConflict
	}

	fb := m.feedback[sub.ID]
	if fb == nil || change.ClearFeedback {
		fb = make(map[string]models.Feedback)
	}
	for _, id := range change.PurgeReviewers {
		delete(fb, id)
	}
	if change.Feedback != nil {
		fb[change.Feedback.ReviewerID] = *change.Feedback
	}
	m.feedback[sub.ID] = fb

	if change.ReplaceAssignments {
		rows := m.assignments[sub.ID]
		for i := range rows {
			rows[i].Active = false
		}
		for _, id := range sub.ReviewerIDs {
			rows = append(rows, models.ReviewerAssignment{
				SubmissionID: sub.ID,
				ReviewerID:   id,
				Round:        sub.Round,
				Active:       true,
				AssignedBy:   change.ActorID,
			})
		}
		m.assignments[sub.ID] = rows
	}
	if change.Decision != nil {
		m.decisions[sub.ID] = append(m.decisions[sub.ID], *change.Decision)
	}
	for _, h := range change.History {
		h.SubmissionID = sub.ID
		m.history[sub.ID] = append(m.history[sub.ID], h)
	}

	sub.Version = change.ExpectedVersion + 1
	m.submissions[sub.ID] = sub.Clone()
	return nil
}

func (m *memoryWorkflowStore) Delete(ctx context.Context, id string, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.submissions[id]
	if !ok {
		return sql.ErrNoRows
	}
	if stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	delete(m.submissions, id)
	delete(m.feedback, id)
	delete(m.assignments, id)
	delete(m.decisions, id)
	delete(m.history, id)
	return nil
}

func (m *memoryWorkflowStore) ListFeedback(ctx context.Context, submissionID string) ([]models.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Feedback, 0, len(m.feedback[submissionID]))
	for _, fb := range m.feedback[submissionID] {
		out = append(out, fb)
	}
	return out, nil
}

func (m *memoryWorkflowStore) ListAssignments(ctx context.Context, submissionID string) ([]models.ReviewerAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ReviewerAssignment(nil), m.assignments[submissionID]...), nil
}

func (m *memoryWorkflowStore) historyTriggers(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.history[id]))
	for _, h := range m.history[id] {
		out = append(out, h.Trigger)
	}
	return out
}

func (m *memoryWorkflowStore) bumpVersion(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[id].Version++
}

type reviewerDirectoryStub struct {
	users map[string]models.User
}

func newReviewerDirectoryStub(ids ...string) *reviewerDirectoryStub {
	stub := &reviewerDirectoryStub{users: make(map[string]models.User)}
	for _, id := range ids {
		stub.users[id] = models.User{ID: id, Role: models.RoleReviewer, Active: true}
	}
	return stub
}

func (r *reviewerDirectoryStub) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *reviewerDirectoryStub) ListReviewersWithWorkload(ctx context.Context) ([]models.ReviewerWorkload, error) {
	out := make([]models.ReviewerWorkload, 0, len(r.users))
	for _, u := range r.users {
		if u.Role == models.RoleReviewer && u.Active {
			out = append(out, models.ReviewerWorkload{User: u})
		}
	}
	return out, nil
}

func (r *reviewerDirectoryStub) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	out := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

func (r *reviewerDirectoryStub) Deactivate(ctx context.Context, id string) error {
	u, ok := r.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Active = false
	r.users[id] = u
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.WorkflowEvent
	err    error
}

func (r *recordingSink) Publish(ctx context.Context, event models.WorkflowEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingSink) ofType(t models.WorkflowEventType) []models.WorkflowEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.WorkflowEvent
	for _, e := range r.events {
		if e.Event == t {
			out = append(out, e)
		}
	}
	return out
}

var (
	testEditor = &models.JWTClaims{UserID: "editor-1", Role: models.RoleAdmin}
	testAuthor = &models.JWTClaims{UserID: "author-1", Role: models.RoleAuthor}
)

func newTestWorkflow(t *testing.T, reviewers ...string) (*WorkflowService, *memoryWorkflowStore, *recordingSink) {
	t.Helper()
	store := newMemoryWorkflowStore()
	sink := &recordingSink{}
	svc := NewWorkflowService(WorkflowServiceParams{
		Store:  store,
		Users:  newReviewerDirectoryStub(reviewers...),
		Events: sink,
	})
	return svc, store, sink
}

func createSubmission(t *testing.T, svc *WorkflowService) *models.Submission {
	t.Helper()
	sub, err := svc.Create(context.Background(), dto.CreateSubmissionRequest{
		Title:       "On Typed Lifecycles",
		AuthorNames: []string{"A. Author", " ", "B. Writer"},
		FileRef:     "author-1/manuscript.pdf",
		FileName:    "manuscript.pdf",
	}, testAuthor)
	require.NoError(t, err)
	return sub
}

func TestWorkflowServiceFullLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, store, sink := newTestWorkflow(t, "r1", "r2")

	sub := createSubmission(t, svc)
	assert.Equal(t, models.StatusPending, sub.Status)
	assert.Equal(t, []string{"A. Author", "B. Writer"}, []string(sub.AuthorNames))
	assert.Equal(t, 1, sub.Round)

	sub, err := svc.Assign(ctx, sub.ID, []string{"r1", "r2"}, testEditor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, sub.Status)
	assert.Equal(t, int64(2), sub.Version)

	sub, err = svc.SubmitFeedback(ctx, sub.ID, "r1", "solid work", "approve")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, sub.Status)

	sub, err = svc.SubmitFeedback(ctx, sub.ID, "r2", "tighten section 3", "needs revision")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReviewed, sub.Status)

	decision, sub, err := svc.Consolidate(ctx, sub.ID, "please revise", "NEEDS_REVISION", testEditor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedsRevision, sub.Status)
	assert.Equal(t, 1, decision.Round)
	assert.JSONEq(t, `{"total":2,"approve":1,"needsRevision":1,"reject":0}`, string(decision.Summary))

	sub, err = svc.ResubmitRevision(ctx, sub.ID, models.FileHandle{Ref: "author-1/v2.pdf", Name: "v2.pdf"}, testAuthor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReviewRevision, sub.Status)
	assert.Equal(t, 2, sub.Round)
	assert.Equal(t, "v2.pdf", sub.FileName)
	feedback, err := store.ListFeedback(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, feedback)

	_, err = svc.SubmitFeedback(ctx, sub.ID, "r2", "fixed", "approve")
	require.NoError(t, err)
	sub, err = svc.SubmitFeedback(ctx, sub.ID, "r1", "still good", "approve")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReviewed, sub.Status)

	decision, sub, err = svc.Consolidate(ctx, sub.ID, "accepted", "approve", testEditor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, sub.Status)
	assert.Equal(t, 2, decision.Round)
	assert.Equal(t, "editor-1", decision.EditorID)

	publishedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sub, err = svc.Publish(ctx, sub.ID, publishedAt, testEditor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, sub.Status)
	require.NotNil(t, sub.PublicationDate)
	assert.True(t, publishedAt.Equal(*sub.PublicationDate))

	_, err = svc.Publish(ctx, sub.ID, publishedAt, testEditor)
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	assert.Equal(t, []string{
		"SUBMIT",
		"ASSIGN_REVIEWERS",
		"ALL_FEEDBACK_COLLECTED",
		"CONSOLIDATE_NEEDS_REVISION",
		"RESUBMIT_REVISION",
		"ALL_FEEDBACK_COLLECTED",
		"CONSOLIDATE_APPROVE",
		"PUBLISH",
	}, store.historyTriggers(sub.ID))

	assert.Len(t, sink.ofType(models.EventDecisionReady), 2)
	for _, e := range sink.ofType(models.EventDecisionReady) {
		assert.Equal(t, []string{"author-1"}, e.Recipients)
	}
}

func TestWorkflowServiceFeedbackOrderIndependent(t *testing.T) {
	orders := [][]string{{"r1", "r2", "r3"}, {"r3", "r1", "r2"}, {"r2", "r3", "r1"}}
	for _, order := range orders {
		svc, store, _ := newTestWorkflow(t, "r1", "r2", "r3")
		sub := createSubmission(t, svc)
		_, err := svc.Assign(context.Background(), sub.ID, []string{"r1", "r2", "r3"}, testEditor)
		require.NoError(t, err)

		var last *models.Submission
		for i, reviewer := range order {
			last, err = svc.SubmitFeedback(context.Background(), sub.ID, reviewer, "text", "approve")
			require.NoError(t, err)
			if i < len(order)-1 {
				assert.Equal(t, models.StatusUnderReview, last.Status)
			}
		}
		assert.Equal(t, models.StatusReviewed, last.Status)
		assert.Equal(t, []string{"SUBMIT", "ASSIGN_REVIEWERS", "ALL_FEEDBACK_COLLECTED"}, store.historyTriggers(sub.ID))
	}
}

func TestWorkflowServiceConcurrentFeedbackCollectsOnce(t *testing.T) {
	reviewers := []string{"r1", "r2", "r3", "r4", "r5"}
	svc, store, _ := newTestWorkflow(t, reviewers...)
	sub := createSubmission(t, svc)
	_, err := svc.Assign(context.Background(), sub.ID, reviewers, testEditor)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, len(reviewers))
	for _, reviewer := range reviewers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.SubmitFeedback(context.Background(), sub.ID, id, "looks fine", "approve")
			errs <- err
		}(reviewer)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	final, err := store.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReviewed, final.Status)

	collected := 0
	for _, trigger := range store.historyTriggers(sub.ID) {
		if trigger == string(workflow.TriggerAllFeedbackCollected) {
			collected++
		}
	}
	assert.Equal(t, 1, collected)
	assert.Equal(t, 0, svc.locks.size())
}

func TestWorkflowServiceRejectsIllegalOperations(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestWorkflow(t, "r1", "r2")
	sub := createSubmission(t, svc)

	_, err := svc.SubmitFeedback(ctx, sub.ID, "r1", "early", "approve")
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	_, _, err = svc.Consolidate(ctx, sub.ID, "too soon", "approve", testEditor)
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	_, err = svc.Reassign(ctx, sub.ID, []string{"r1"}, testEditor)
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	_, err = svc.Assign(ctx, sub.ID, []string{"r1"}, testEditor)
	require.NoError(t, err)

	_, err = svc.Assign(ctx, sub.ID, []string{"r2"}, testEditor)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyAssigned)

	_, err = svc.SubmitFeedback(ctx, sub.ID, "r2", "not mine", "approve")
	assert.ErrorIs(t, err, appErrors.ErrNotAssignedReviewer)

	_, err = svc.SubmitFeedback(ctx, sub.ID, "r1", "   ", "approve")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.SubmitFeedback(ctx, sub.ID, "r1", "text", "maybe")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Assign(ctx, "missing", []string{"r1"}, testEditor)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestWorkflowServiceValidateReviewers(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestWorkflow(t, "r1", "r2", "r3", "r4", "r5", "r6")
	svc.users.(*reviewerDirectoryStub).users["author-2"] = models.User{ID: "author-2", Role: models.RoleAuthor, Active: true}
	sub := createSubmission(t, svc)

	_, err := svc.Assign(ctx, sub.ID, nil, testEditor)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Assign(ctx, sub.ID, []string{"r1", "r2", "r3", "r4", "r5", "r6"}, testEditor)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Assign(ctx, sub.ID, []string{"ghost"}, testEditor)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Assign(ctx, sub.ID, []string{"author-2"}, testEditor)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	assigned, err := svc.Assign(ctx, sub.ID, []string{"r1", "r1", " r2 "}, testEditor)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, []string(assigned.ReviewerIDs))
}

func TestWorkflowServiceReassignPurgesRemovedFeedback(t *testing.T) {
	ctx := context.Background()
	svc, store, sink := newTestWorkflow(t, "r1", "r2", "r3")
	sub := createSubmission(t, svc)
	_, err := svc.Assign(ctx, sub.ID, []string{"r1", "r2"}, testEditor)
	require.NoError(t, err)
	_, err = svc.SubmitFeedback(ctx, sub.ID, "r1", "good", "approve")
	require.NoError(t, err)

	sub, err = svc.Reassign(ctx, sub.ID, []string{"r2", "r3"}, testEditor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, sub.Status)

	feedback, err := store.ListFeedback(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, feedback)

	_, err = svc.SubmitFeedback(ctx, sub.ID, "r1", "late", "approve")
	assert.ErrorIs(t, err, appErrors.ErrNotAssignedReviewer)

	requested := sink.ofType(models.EventFeedbackRequested)
	require.NotEmpty(t, requested)
	assert.Equal(t, []string{"r3"}, requested[len(requested)-1].Recipients)

	assignments, err := svc.AssignmentHistory(ctx, sub.ID)
	require.NoError(t, err)
	active := 0
	for _, a := range assignments {
		if a.Active {
			active++
		}
	}
	assert.Len(t, assignments, 4)
	assert.Equal(t, 2, active)
}

func TestWorkflowServiceReassignCompletingFeedbackCollects(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestWorkflow(t, "r1", "r2", "r3")
	sub := createSubmission(t, svc)
	_, err := svc.Assign(ctx, sub.ID, []string{"r1", "r2", "r3"}, testEditor)
	require.NoError(t, err)
	for _, id := range []string{"r1", "r2"} {
		_, err = svc.SubmitFeedback(ctx, sub.ID, id, "fine", "reject")
		require.NoError(t, err)
	}

	sub, err = svc.SetReviewers(ctx, sub.ID, []string{"r1", "r2"}, testEditor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReviewed, sub.Status)
	assert.Equal(t, []string{"SUBMIT", "ASSIGN_REVIEWERS", "REASSIGN_REVIEWERS", "ALL_FEEDBACK_COLLECTED"}, store.historyTriggers(sub.ID))

	summary, err := svc.Summarize(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Reject)
	assert.Equal(t, models.ChoiceReject, summary.Majority)
}

func TestWorkflowServiceVersionConflict(t *testing.T) {
	ctx := context.Background()
	svc, store, sink := newTestWorkflow(t, "r1")
	sub := createSubmission(t, svc)
	sink.events = nil

	store.beforeApply = func() { store.bumpVersion(sub.ID) }
	_, err := svc.Assign(ctx, sub.ID, []string{"r1"}, testEditor)
	assert.ErrorIs(t, err, appErrors.ErrConcurrentModification)

	current, err := store.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, current.Status)
	assert.Empty(t, sink.events)
}

func TestWorkflowServiceStorageFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestWorkflow(t, "r1", "r2")
	sub := createSubmission(t, svc)
	_, err := svc.Assign(ctx, sub.ID, []string{"r1", "r2"}, testEditor)
	require.NoError(t, err)

	store.applyErr = errors.New("connection reset")
	_, err = svc.SubmitFeedback(ctx, sub.ID, "r1", "text", "approve")
	assert.ErrorIs(t, err, appErrors.ErrStorageUnavailable)

	current, err := store.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, current.Status)
	assert.Equal(t, int64(2), current.Version)
	feedback, err := store.ListFeedback(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, feedback)
}

func TestWorkflowServiceSinkFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	svc, store, sink := newTestWorkflow(t, "r1")
	sink.err = errors.New("smtp down")
	sub := createSubmission(t, svc)

	_, err := svc.Assign(ctx, sub.ID, []string{"r1"}, testEditor)
	require.NoError(t, err)
	current, err := store.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, current.Status)
}

type callbackSink struct {
	onPublish func(models.WorkflowEvent)
}

func (c *callbackSink) Publish(ctx context.Context, event models.WorkflowEvent) error {
	c.onPublish(event)
	return nil
}

func TestWorkflowServicePublishesAfterReleasingLock(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestWorkflow(t, "r1")
	sub := createSubmission(t, svc)

	var feedbackErr error
	svc.events = &callbackSink{onPublish: func(event models.WorkflowEvent) {
		if event.Event != models.EventAssignedReviewers {
			return
		}
		_, feedbackErr = svc.SubmitFeedback(ctx, event.SubmissionID, "r1", "sound", "approve")
	}}

	done := make(chan error, 1)
	go func() {
		_, err := svc.Assign(ctx, sub.ID, []string{"r1"}, testEditor)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Assign still held the submission lock while publishing")
	}
	require.NoError(t, feedbackErr)

	current, err := store.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReviewed, current.Status)
	assert.Zero(t, svc.locks.size())
}

func TestWorkflowServiceFeedbackReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestWorkflow(t, "r1", "r2")
	sub := createSubmission(t, svc)
	_, err := svc.Assign(ctx, sub.ID, []string{"r1", "r2"}, testEditor)
	require.NoError(t, err)

	_, err = svc.SubmitFeedback(ctx, sub.ID, "r1", "first", "reject")
	require.NoError(t, err)
	_, err = svc.SubmitFeedback(ctx, sub.ID, "r1", "second", "approve")
	require.NoError(t, err)

	feedback, err := store.ListFeedback(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, feedback, 1)
	assert.Equal(t, "second", feedback[0].Text)
	assert.Equal(t, models.ChoiceApprove, feedback[0].Choice)
}

func TestWorkflowServiceResubmitRequiresAuthor(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestWorkflow(t, "r1")
	sub := createSubmission(t, svc)
	_, err := svc.Assign(ctx, sub.ID, []string{"r1"}, testEditor)
	require.NoError(t, err)
	_, err = svc.SubmitFeedback(ctx, sub.ID, "r1", "revise", "needs_revision")
	require.NoError(t, err)
	_, _, err = svc.Consolidate(ctx, sub.ID, "revise", "needs-revision", testEditor)
	require.NoError(t, err)

	stranger := &models.JWTClaims{UserID: "author-9", Role: models.RoleAuthor}
	_, err = svc.ResubmitRevision(ctx, sub.ID, models.FileHandle{Ref: "x", Name: "x.pdf"}, stranger)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.ResubmitRevision(ctx, sub.ID, models.FileHandle{}, testAuthor)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestWorkflowServiceAssignAfterRevisionStartsNewRound(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestWorkflow(t, "r1", "r2")
	sub := createSubmission(t, svc)
	_, err := svc.Assign(ctx, sub.ID, []string{"r1"}, testEditor)
	require.NoError(t, err)
	_, err = svc.SubmitFeedback(ctx, sub.ID, "r1", "revise", "needs_revision")
	require.NoError(t, err)
	_, _, err = svc.Consolidate(ctx, sub.ID, "revise", "needs_revision", testEditor)
	require.NoError(t, err)

	trigger, _, err := svc.AssignmentAction(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.TriggerAssignReviewers, trigger)

	sub, err = svc.Assign(ctx, sub.ID, []string{"r2"}, testEditor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, sub.Status)
	assert.Equal(t, 2, sub.Round)
	feedback, err := store.ListFeedback(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, feedback)
}

func TestWorkflowServiceDelete(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestWorkflow(t)
	sub := createSubmission(t, svc)

	_, err := svc.Delete(ctx, sub.ID, &models.JWTClaims{UserID: "someone", Role: models.RoleReviewer})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	deleted, err := svc.Delete(ctx, sub.ID, testAuthor)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, deleted.ID)

	_, err = store.GetByID(ctx, sub.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	_, err = svc.Delete(ctx, sub.ID, testEditor)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestWorkflowServiceCreateValidation(t *testing.T) {
	svc, _, _ := newTestWorkflow(t)
	_, err := svc.Create(context.Background(), dto.CreateSubmissionRequest{
		Title:       "  ",
		AuthorNames: []string{"A"},
		FileRef:     "f",
		FileName:    "f.pdf",
	}, testAuthor)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), dto.CreateSubmissionRequest{Title: "x"}, nil)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestSubmissionLocksSerialise(t *testing.T) {
	locks := newSubmissionLocks()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("sub-1")
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, locks.size())
}
