// Package grants manages grant applications: the ministry-scoped records
// that applicants submit and reviewers decide. The CRUD surface here is
// deliberately thin; it exists to carry the authorization and sanitization
// path end to end.
package grants

import "time"

// Application status constants.
const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
)

// Application represents a grant application owned by an applicant and
// scoped to a ministry.
type Application struct {
	ID          string `json:"id"`
	MinistryID  string `json:"ministry_id"`
	ApplicantID string `json:"applicant_id"`

	Title string `json:"title"`

	// SummaryHTML is applicant-provided rich text, sanitized before storage.
	SummaryHTML string `json:"summary_html"`

	AmountCents int64  `json:"amount_cents"`
	Status      string `json:"status"`

	DecidedBy  *string    `json:"decided_by,omitempty"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
	DecisionNote string   `json:"decision_note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// --- Request DTOs ---

// CreateRequest holds the data submitted to POST /grants.
type CreateRequest struct {
	Title       string `json:"title"`
	SummaryHTML string `json:"summary_html"`
	AmountCents int64  `json:"amount_cents"`
}

// DecisionRequest holds the data submitted to POST /grants/:id/decision.
type DecisionRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

// --- Service input DTOs ---

// CreateInput is the validated input for creating an application.
type CreateInput struct {
	MinistryID  string
	ApplicantID string
	Title       string
	SummaryHTML string
	AmountCents int64
}

// DecisionInput is the validated input for deciding an application.
type DecisionInput struct {
	ReviewerID string
	Approve    bool
	Note       string
}
