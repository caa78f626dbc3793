package dto

// ReviewerSummary lists a reviewer with their workload. Assigned is relative
// to the submission given in the query, if any.
type ReviewerSummary struct {
	ID                string `json:"id"`
	FullName          string `json:"fullName"`
	Email             string `json:"email"`
	ActiveAssignments int    `json:"activeAssignments"`
	Assigned          bool   `json:"assigned"`
	AssignmentLabel   string `json:"assignmentLabel"`
}

// NotificationQuery mirrors notification listing filters.
type NotificationQuery struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}
