package workflow

import (
	"strings"

	"github.com/JRCMora/jms-api/internal/models"
)

// StatusGroup is a reporting bucket over one or more statuses.
type StatusGroup string

const (
	GroupPending       StatusGroup = "PENDING"
	GroupUnderReview   StatusGroup = "UNDER_REVIEW"
	GroupReviewed      StatusGroup = "REVIEWED"
	GroupNeedsRevision StatusGroup = "NEEDS_REVISION"
	GroupAccepted      StatusGroup = "ACCEPTED"
	GroupRejected      StatusGroup = "REJECTED"
	GroupPublished     StatusGroup = "PUBLISHED"
)

// Groups lists every reporting bucket in lifecycle order.
var Groups = []StatusGroup{
	GroupPending,
	GroupUnderReview,
	GroupReviewed,
	GroupNeedsRevision,
	GroupAccepted,
	GroupRejected,
	GroupPublished,
}

// UNDER_REVIEW_REVISION is a sub-state of review and never has its own bucket.
// ACCEPTED stays separate from PUBLISHED until publication actually happens.
var groupOf = map[models.SubmissionStatus]StatusGroup{
	models.StatusPending:             GroupPending,
	models.StatusUnderReview:         GroupUnderReview,
	models.StatusUnderReviewRevision: GroupUnderReview,
	models.StatusReviewed:            GroupReviewed,
	models.StatusNeedsRevision:       GroupNeedsRevision,
	models.StatusAccepted:            GroupAccepted,
	models.StatusRejected:            GroupRejected,
	models.StatusPublished:           GroupPublished,
}

var groupLabels = map[StatusGroup]string{
	GroupPending:       "Pending",
	GroupUnderReview:   "Under Review",
	GroupReviewed:      "Reviewed",
	GroupNeedsRevision: "Needs Revision",
	GroupAccepted:      "Accepted",
	GroupRejected:      "Rejected",
	GroupPublished:     "Published",
}

// GroupOf returns the reporting bucket for a status.
func GroupOf(status models.SubmissionStatus) (StatusGroup, bool) {
	group, ok := groupOf[status]
	return group, ok
}

// Label returns the display name of the group.
func (g StatusGroup) Label() string {
	if label, ok := groupLabels[g]; ok {
		return label
	}
	return string(g)
}

// Valid reports whether the group is known.
func (g StatusGroup) Valid() bool {
	_, ok := groupLabels[g]
	return ok
}

// Statuses expands the group back to its member statuses.
func (g StatusGroup) Statuses() []models.SubmissionStatus {
	out := make([]models.SubmissionStatus, 0, 2)
	for _, status := range models.AllStatuses {
		if groupOf[status] == g {
			out = append(out, status)
		}
	}
	return out
}

// ParseStatusGroup accepts the constant or the display label.
func ParseStatusGroup(raw string) (StatusGroup, bool) {
	raw = strings.TrimSpace(raw)
	candidate := StatusGroup(strings.ToUpper(strings.ReplaceAll(raw, " ", "_")))
	if candidate.Valid() {
		return candidate, true
	}
	for group, label := range groupLabels {
		if strings.EqualFold(label, raw) {
			return group, true
		}
	}
	return "", false
}

// GroupCount is the size of one reporting bucket.
type GroupCount struct {
	Group StatusGroup `json:"group"`
	Label string      `json:"label"`
	Count int         `json:"count"`
}

// CountGroups folds a status histogram into reporting buckets. Every group
// is present in the result, in lifecycle order, even when empty.
func CountGroups(counts []models.StatusCount) []GroupCount {
	totals := make(map[StatusGroup]int, len(Groups))
	for _, row := range counts {
		if group, ok := groupOf[row.Status]; ok {
			totals[group] += row.Count
		}
	}
	out := make([]GroupCount, 0, len(Groups))
	for _, group := range Groups {
		out = append(out, GroupCount{Group: group, Label: group.Label(), Count: totals[group]})
	}
	return out
}
