package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/types"
)

// Person is a decision maker found on a company site
type Person struct {
	ID             uuid.UUID `json:"id"`
	CompanyID      uuid.UUID `json:"company_id"`
	FullName       string    `json:"full_name"`
	NormalizedName string    `json:"normalized_name"`
	Role           string    `json:"role"`
	RoleConfidence float64   `json:"role_confidence"`
	SourceURL      string    `json:"source_url"`
	Strategy       string    `json:"strategy"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PersonInput is used to upsert a person
type PersonInput struct {
	CompanyID      uuid.UUID
	FullName       string
	NormalizedName string
	Role           string
	RoleConfidence float64
	SourceURL      string
	Strategy       string
}

// Source types of email candidates.
const (
	SourceTypeWebsite = "website" // found while crawling the company site
	SourceTypeManual  = "manual"  // entered by an operator
)

// EmailCandidate is a discovered or inferred address for a person
type EmailCandidate struct {
	ID              uuid.UUID             `json:"id"`
	Address         string                `json:"email_address"`
	PersonID        uuid.UUID             `json:"person_id"`
	CompanyID       uuid.UUID             `json:"company_id"`
	ScanJobID       *uuid.UUID            `json:"scan_job_id,omitempty"`
	Method          types.DiscoveryMethod `json:"discovery_method"`
	Pattern         string                `json:"pattern"`
	SourceType      string                `json:"source_type"`
	SourceURL       string                `json:"source_url"`
	Status          types.DiscoveryStatus `json:"discovery_status"`
	RejectionReason *string               `json:"rejection_reason,omitempty"`
	ConfidenceScore float64               `json:"confidence_score"`
	ConfidenceLevel types.ConfidenceLevel `json:"confidence_level"`
	QualityScore    int                   `json:"quality_score"`
	MXValid         bool                  `json:"mx_valid"`
	SMTPValid       bool                  `json:"smtp_valid"`
	IsDisposable    bool                  `json:"is_disposable"`
	QueueStatus     types.QueueStatus     `json:"queue_status"`
	VerifiedAt      *time.Time            `json:"verified_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// ValidationUpdate carries the outcome of validating one candidate
type ValidationUpdate struct {
	Status          types.DiscoveryStatus
	RejectionReason string
	ConfidenceScore float64
	ConfidenceLevel types.ConfidenceLevel
	QualityScore    int
	MXValid         bool
	SMTPValid       bool
	IsDisposable    bool
}

// PendingValidation is a candidate with the evidence needed to validate it
type PendingValidation struct {
	EmailID        uuid.UUID
	Address        string
	Status         types.DiscoveryStatus
	QueueStatus    types.QueueStatus
	CompanyID      uuid.UUID
	CompanyDomain  string
	Method         types.DiscoveryMethod
	Pattern        string
	SourceURL      string
	Role           string
	RoleConfidence float64
}

// EmailFilters filters email candidate listings
type EmailFilters struct {
	CompanyID   *uuid.UUID
	ScanJobID   *uuid.UUID
	Status      types.DiscoveryStatus
	QueueStatus types.QueueStatus
	Limit       int
	Offset      int
}

// ScanJob tracks one scan of a company
type ScanJob struct {
	ID           uuid.UUID          `json:"id"`
	CompanyID    uuid.UUID          `json:"company_id"`
	Config       types.ScanConfig   `json:"config"`
	Status       types.ScanStatus   `json:"status"`
	Progress     int                `json:"progress_percentage"`
	CurrentStep  string             `json:"current_step"`
	Counters     types.ScanCounters `json:"counters"`
	ErrorMessage *string            `json:"error_message,omitempty"`
	StartedAt    *time.Time         `json:"started_at,omitempty"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// View converts the job to its API representation.
func (j *ScanJob) View() *types.ScanStatusView {
	v := &types.ScanStatusView{
		ID:                 j.ID,
		CompanyID:          j.CompanyID,
		Status:             j.Status,
		ProgressPercentage: j.Progress,
		CurrentStep:        j.CurrentStep,
		Counters:           j.Counters,
		StartedAt:          j.StartedAt,
		CompletedAt:        j.CompletedAt,
	}
	if j.ErrorMessage != nil {
		v.ErrorMessage = *j.ErrorMessage
	}
	return v
}

// Campaign is an outreach campaign
type Campaign struct {
	ID              uuid.UUID            `json:"id"`
	Name            string               `json:"name"`
	SubjectTemplate string               `json:"subject_template"`
	BodyTemplate    string               `json:"body_template"`
	FromEmail       string               `json:"from_email"`
	FromName        string               `json:"from_name"`
	DailyLimit      int                  `json:"daily_limit"`
	CooldownDays    int                  `json:"cooldown_days"`
	Status          types.CampaignStatus `json:"status"`
	TotalSent       int                  `json:"total_sent"`
	TotalFailed     int                  `json:"total_failed"`
	TotalBounced    int                  `json:"total_bounced"`
	LastRunAt       *time.Time           `json:"last_run_at,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// CampaignInput is used to create a campaign
type CampaignInput struct {
	Name            string `json:"name" validate:"required,max=200"`
	SubjectTemplate string `json:"subject_template" validate:"required"`
	BodyTemplate    string `json:"body_template" validate:"required"`
	FromEmail       string `json:"from_email" validate:"required,email"`
	FromName        string `json:"from_name"`
	DailyLimit      int    `json:"daily_limit" validate:"gte=0,lte=10000"`
	CooldownDays    int    `json:"cooldown_days" validate:"gte=0,lte=365"`
}

// SendBatch is one dispatch run of a campaign
type SendBatch struct {
	ID           uuid.UUID         `json:"id"`
	CampaignID   uuid.UUID         `json:"campaign_id"`
	Status       types.BatchStatus `json:"status"`
	Total        int               `json:"total"`
	Sent         int               `json:"sent"`
	Failed       int               `json:"failed"`
	Bounced      int               `json:"bounced"`
	Progress     int               `json:"progress_percentage"`
	CurrentIndex int               `json:"current_index"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// SendLog records one delivery attempt
type SendLog struct {
	ID          uuid.UUID        `json:"id"`
	EmailID     uuid.UUID        `json:"email_id"`
	CampaignID  uuid.UUID        `json:"campaign_id"`
	BatchID     *uuid.UUID       `json:"batch_id,omitempty"`
	Status      types.SendStatus `json:"status"`
	Error       *string          `json:"error,omitempty"`
	SubjectSent string           `json:"subject_sent"`
	BodyPreview string           `json:"body_preview"`
	SentAt      time.Time        `json:"sent_at"`
}

// BodyPreviewLength caps the stored body preview, in characters.
const BodyPreviewLength = 500

// Preview truncates body to BodyPreviewLength runes.
func Preview(body string) string {
	r := []rune(body)
	if len(r) <= BodyPreviewLength {
		return body
	}
	return string(r[:BodyPreviewLength])
}

// DomainCooldown tracks when a company domain was last contacted
type DomainCooldown struct {
	Domain        string    `json:"domain"`
	LastContacted time.Time `json:"last_contacted"`
	CooldownDays  int       `json:"cooldown_days"`
	ContactCount  int       `json:"contact_count"`
}

// CoolsDownUntil is the earliest time the domain may be contacted again.
func (c *DomainCooldown) CoolsDownUntil() time.Time {
	return c.LastContacted.Add(time.Duration(c.CooldownDays) * 24 * time.Hour)
}

// InCooldown reports whether the domain may not be contacted at now.
func (c *DomainCooldown) InCooldown(now time.Time) bool {
	return now.Before(c.CoolsDownUntil())
}

// Claim is a recipient reserved for one send. Previous is the domain's cooldown row
// before the claim, nil when the domain had not been contacted yet.
type Claim struct {
	EmailID  uuid.UUID
	Domain   string
	Previous *DomainCooldown
}

// Recipient is a queued, validated email joined with its person and company
type Recipient struct {
	EmailID         uuid.UUID `json:"email_id"`
	Address         string    `json:"email_address"`
	ConfidenceScore float64   `json:"confidence_score"`
	FullName        string    `json:"full_name"`
	Role            string    `json:"role"`
	CompanyName     string    `json:"company_name"`
	CompanyDomain   string    `json:"company_domain"`
}
