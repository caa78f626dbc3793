package workflow

import "github.com/JRCMora/jms-api/internal/models"

// Missing returns the reviewers of the active set who have no feedback yet.
// Feedback from reviewers outside the set is ignored.
func Missing(reviewerIDs []string, feedback []models.Feedback) []string {
	have := make(map[string]struct{}, len(feedback))
	for _, fb := range feedback {
		have[fb.ReviewerID] = struct{}{}
	}
	missing := make([]string, 0)
	for _, id := range reviewerIDs {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Complete reports whether every reviewer of a non-empty set has given feedback.
func Complete(reviewerIDs []string, feedback []models.Feedback) bool {
	return len(reviewerIDs) > 0 && len(Missing(reviewerIDs, feedback)) == 0
}

// Summarize tallies the choices of the active reviewers. Majority is left
// empty on ties; the editor decides regardless.
func Summarize(reviewerIDs []string, feedback []models.Feedback) models.FeedbackSummary {
	active := make(map[string]struct{}, len(reviewerIDs))
	for _, id := range reviewerIDs {
		active[id] = struct{}{}
	}
	var summary models.FeedbackSummary
	for _, fb := range feedback {
		if _, ok := active[fb.ReviewerID]; !ok {
			continue
		}
		summary.Total++
		switch fb.Choice {
		case models.ChoiceApprove:
			summary.Approve++
		case models.ChoiceNeedsRevision:
			summary.NeedsRevision++
		case models.ChoiceReject:
			summary.Reject++
		}
	}

	best, bestCount, tied := models.FeedbackChoice(""), 0, false
	for _, candidate := range []struct {
		choice models.FeedbackChoice
		count  int
	}{
		{models.ChoiceApprove, summary.Approve},
		{models.ChoiceNeedsRevision, summary.NeedsRevision},
		{models.ChoiceReject, summary.Reject},
	} {
		switch {
		case candidate.count > bestCount:
			best, bestCount, tied = candidate.choice, candidate.count, false
		case candidate.count == bestCount && candidate.count > 0:
			tied = true
		}
	}
	if !tied {
		summary.Majority = best
	}
	return summary
}
