package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JRCMora/jms-api/internal/models"
)

func TestCompleteIgnoresDroppedReviewers(t *testing.T) {
	feedback := []models.Feedback{
		{ReviewerID: "r1", Choice: models.ChoiceApprove},
		{ReviewerID: "r-dropped", Choice: models.ChoiceReject},
	}

	assert.False(t, Complete([]string{"r1", "r2"}, feedback))
	assert.Equal(t, []string{"r2"}, Missing([]string{"r1", "r2"}, feedback))
	assert.True(t, Complete([]string{"r1"}, feedback))
	assert.False(t, Complete(nil, feedback))
}

func TestSummarizeMajority(t *testing.T) {
	reviewers := []string{"r1", "r2", "r3"}
	summary := Summarize(reviewers, []models.Feedback{
		{ReviewerID: "r1", Choice: models.ChoiceApprove},
		{ReviewerID: "r2", Choice: models.ChoiceNeedsRevision},
		{ReviewerID: "r3", Choice: models.ChoiceNeedsRevision},
		{ReviewerID: "r9", Choice: models.ChoiceReject},
	})

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.NeedsRevision)
	assert.Equal(t, 0, summary.Reject)
	assert.Equal(t, models.ChoiceNeedsRevision, summary.Majority)
}

func TestSummarizeTieHasNoMajority(t *testing.T) {
	summary := Summarize([]string{"r1", "r2"}, []models.Feedback{
		{ReviewerID: "r1", Choice: models.ChoiceApprove},
		{ReviewerID: "r2", Choice: models.ChoiceReject},
	})

	assert.Empty(t, summary.Majority)
	assert.Equal(t, 2, summary.Total)
}
