package types

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DiscoveryStatus is the validation state of an email candidate.
type DiscoveryStatus string

// DiscoveryStatus constants
const (
	DiscoveryDiscovered      DiscoveryStatus = "DISCOVERED"
	DiscoveryValidated       DiscoveryStatus = "VALIDATED"
	DiscoveryRejectedRole    DiscoveryStatus = "REJECTED_ROLE"
	DiscoveryRejectedDomain  DiscoveryStatus = "REJECTED_DOMAIN"
	DiscoveryRejectedQuality DiscoveryStatus = "REJECTED_QUALITY"
)

// IsRejected reports whether s is one of the rejection statuses.
func (s DiscoveryStatus) IsRejected() bool {
	return s == DiscoveryRejectedRole || s == DiscoveryRejectedDomain || s == DiscoveryRejectedQuality
}

// CanTransitionDiscovery reports whether a candidate may move between statuses.
// Only DISCOVERED may change; rejections and validations are final.
func CanTransitionDiscovery(from, to DiscoveryStatus) bool {
	if from != DiscoveryDiscovered {
		return false
	}
	return to == DiscoveryValidated || to.IsRejected()
}

// DiscoveryMethod records how an address was found.
type DiscoveryMethod string

// DiscoveryMethod constants
const (
	MethodDirect     DiscoveryMethod = "direct"
	MethodStructured DiscoveryMethod = "structured"
	MethodInferred   DiscoveryMethod = "inferred"
	MethodManual     DiscoveryMethod = "manual"
)

// ConfidenceLevel buckets a confidence score.
type ConfidenceLevel string

// ConfidenceLevel constants
const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// QueueStatus marks whether a validated email is waiting for dispatch.
type QueueStatus string

// QueueStatus constants
const (
	QueueNone   QueueStatus = "NONE"
	QueueQueued QueueStatus = "QUEUED"
)

// QueueEmailsRequest is the payload for queueing validated emails.
type QueueEmailsRequest struct {
	EmailIDs []uuid.UUID `json:"email_ids" validate:"required,min=1,max=1000"`
}

// Validate validates the QueueEmailsRequest using the validator.
func (r *QueueEmailsRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// QueueEmailsResponse reports how many emails were moved to QUEUED.
type QueueEmailsResponse struct {
	Requested int `json:"requested"`
	Queued    int `json:"queued"`
}

// AddEmailRequest is the payload for entering an address by hand.
type AddEmailRequest struct {
	CompanyID uuid.UUID `json:"company_id" validate:"required"`
	Email     string    `json:"email" validate:"required,email,max=254"`
	FullName  string    `json:"full_name" validate:"required,max=200"`
	Role      string    `json:"role" validate:"required,max=200"`
	CheckSMTP bool      `json:"check_smtp,omitempty"`
}

// Validate validates the AddEmailRequest using the validator.
func (r *AddEmailRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// VerifyEmailsRequest is the payload for verifying stored addresses again.
type VerifyEmailsRequest struct {
	EmailIDs  []uuid.UUID `json:"email_ids" validate:"required,min=1,max=100"`
	CheckSMTP bool        `json:"check_smtp,omitempty"`
}

// Validate validates the VerifyEmailsRequest using the validator.
func (r *VerifyEmailsRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// VerifyResult is the outcome of verifying one stored address. Status is the stored
// discovery status afterwards; Passed reports whether this run's checks all passed.
type VerifyResult struct {
	EmailID      uuid.UUID       `json:"email_id"`
	Email        string          `json:"email"`
	Status       DiscoveryStatus `json:"status"`
	Passed       bool            `json:"passed"`
	Reason       string          `json:"reason,omitempty"`
	Confidence   float64         `json:"confidence"`
	QualityScore int             `json:"quality_score"`
	MXValid      bool            `json:"mx_valid"`
	SMTPValid    bool            `json:"smtp_valid"`
	Unqueued     bool            `json:"unqueued,omitempty"`
}

// VerifySummary aggregates a bulk verification.
type VerifySummary struct {
	Requested int            `json:"requested"`
	Verified  int            `json:"verified"`
	Passed    int            `json:"passed"`
	Failed    int            `json:"failed"`
	Missing   []uuid.UUID    `json:"missing,omitempty"`
	Results   []VerifyResult `json:"results"`
}

// ResetQueueResponse reports how many emails left the send queue.
type ResetQueueResponse struct {
	EmailsReset int `json:"emails_reset"`
}
