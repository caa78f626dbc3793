package dto

// SubmitFeedbackRequest carries one reviewer's recommendation. Choice accepts
// "APPROVE", "Needs Revision" and similar spellings.
type SubmitFeedbackRequest struct {
	Text   string `json:"text" validate:"required"`
	Choice string `json:"choice" validate:"required"`
}

// ConsolidateRequest carries the editor's verdict for the round.
type ConsolidateRequest struct {
	Text   string `json:"text" validate:"required"`
	Choice string `json:"choice" validate:"required"`
}
