// Package workflow holds the authoritative review lifecycle: the transition
// table every status change must pass through and the status grouping used
// for reporting.
package workflow

import (
	"fmt"

	"github.com/JRCMora/jms-api/internal/models"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
)

// Trigger names an event that may move a submission between statuses.
type Trigger string

const (
	TriggerSubmit                   Trigger = "SUBMIT"
	TriggerAssignReviewers          Trigger = "ASSIGN_REVIEWERS"
	TriggerReassignReviewers        Trigger = "REASSIGN_REVIEWERS"
	TriggerAllFeedbackCollected     Trigger = "ALL_FEEDBACK_COLLECTED"
	TriggerConsolidateApprove       Trigger = "CONSOLIDATE_APPROVE"
	TriggerConsolidateNeedsRevision Trigger = "CONSOLIDATE_NEEDS_REVISION"
	TriggerConsolidateReject        Trigger = "CONSOLIDATE_REJECT"
	TriggerResubmitRevision         Trigger = "RESUBMIT_REVISION"
	TriggerPublish                  Trigger = "PUBLISH"
)

// none is the pseudo-status a submission has before intake.
const none models.SubmissionStatus = ""

type edge struct {
	from    models.SubmissionStatus
	trigger Trigger
}

// table maps (source, trigger) to destination. Reassignment keeps the
// current status so the revision flag survives.
var table = map[edge]models.SubmissionStatus{
	{none, TriggerSubmit}: models.StatusPending,

	{models.StatusPending, TriggerAssignReviewers}:       models.StatusUnderReview,
	{models.StatusNeedsRevision, TriggerAssignReviewers}: models.StatusUnderReview,

	{models.StatusUnderReview, TriggerReassignReviewers}:         models.StatusUnderReview,
	{models.StatusUnderReviewRevision, TriggerReassignReviewers}: models.StatusUnderReviewRevision,

	{models.StatusUnderReview, TriggerAllFeedbackCollected}:         models.StatusReviewed,
	{models.StatusUnderReviewRevision, TriggerAllFeedbackCollected}: models.StatusReviewed,

	{models.StatusReviewed, TriggerConsolidateApprove}:       models.StatusAccepted,
	{models.StatusReviewed, TriggerConsolidateNeedsRevision}: models.StatusNeedsRevision,
	{models.StatusReviewed, TriggerConsolidateReject}:        models.StatusRejected,

	{models.StatusNeedsRevision, TriggerResubmitRevision}: models.StatusUnderReviewRevision,

	{models.StatusAccepted, TriggerPublish}: models.StatusPublished,
}

// triggerOrder keeps Allowed deterministic.
var triggerOrder = []Trigger{
	TriggerSubmit,
	TriggerAssignReviewers,
	TriggerReassignReviewers,
	TriggerAllFeedbackCollected,
	TriggerConsolidateApprove,
	TriggerConsolidateNeedsRevision,
	TriggerConsolidateReject,
	TriggerResubmitRevision,
	TriggerPublish,
}

// Step is one applied trigger.
type Step struct {
	Trigger Trigger
	From    models.SubmissionStatus
	To      models.SubmissionStatus
}

// Fire validates trigger against from and returns the destination status.
// An illegal pair yields ErrInvalidTransition and no destination.
func Fire(from models.SubmissionStatus, trigger Trigger) (models.SubmissionStatus, error) {
	to, ok := table[edge{from, trigger}]
	if !ok {
		return from, invalid(from, trigger)
	}
	return to, nil
}

// Can reports whether trigger is legal from the status.
func Can(from models.SubmissionStatus, trigger Trigger) bool {
	_, ok := table[edge{from, trigger}]
	return ok
}

// Allowed lists the triggers legal from the status.
func Allowed(from models.SubmissionStatus) []Trigger {
	out := make([]Trigger, 0, 3)
	for _, trigger := range triggerOrder {
		if Can(from, trigger) {
			out = append(out, trigger)
		}
	}
	return out
}

// IsTerminal reports whether no trigger leaves the status.
func IsTerminal(status models.SubmissionStatus) bool {
	return status.Valid() && len(Allowed(status)) == 0
}

// Chain applies triggers in order, failing on the first illegal step.
func Chain(from models.SubmissionStatus, triggers ...Trigger) ([]Step, error) {
	steps := make([]Step, 0, len(triggers))
	current := from
	for _, trigger := range triggers {
		next, err := Fire(current, trigger)
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{Trigger: trigger, From: current, To: next})
		current = next
	}
	return steps, nil
}

// ConsolidationTrigger maps an editor choice to its consolidation trigger.
func ConsolidationTrigger(choice models.FeedbackChoice) (Trigger, error) {
	switch choice {
	case models.ChoiceApprove:
		return TriggerConsolidateApprove, nil
	case models.ChoiceNeedsRevision:
		return TriggerConsolidateNeedsRevision, nil
	case models.ChoiceReject:
		return TriggerConsolidateReject, nil
	}
	return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported decision choice %q", choice))
}

// AssignmentTrigger decides between first assignment and reassignment for
// the current status.
func AssignmentTrigger(status models.SubmissionStatus) (Trigger, error) {
	switch {
	case Can(status, TriggerAssignReviewers):
		return TriggerAssignReviewers, nil
	case Can(status, TriggerReassignReviewers):
		return TriggerReassignReviewers, nil
	}
	return "", appErrors.Clone(appErrors.ErrInvalidTransition,
		fmt.Sprintf("reviewers cannot be assigned while submission is %s", status.Label()))
}

func invalid(from models.SubmissionStatus, trigger Trigger) error {
	label := from.Label()
	if from == none {
		label = "new"
	}
	return appErrors.Clone(appErrors.ErrInvalidTransition,
		fmt.Sprintf("%s is not allowed from %s", trigger, label))
}
