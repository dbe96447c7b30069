package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

// CampaignStatus constants
const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignActive    CampaignStatus = "ACTIVE"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignCompleted CampaignStatus = "COMPLETED"
)

// campaignTransitions lists the allowed next states for each campaign state.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:  {CampaignActive},
	CampaignActive: {CampaignPaused, CampaignCompleted},
	CampaignPaused: {CampaignActive, CampaignCompleted},
}

// CanTransitionCampaign reports whether a campaign may move from one status to another.
func CanTransitionCampaign(from, to CampaignStatus) bool {
	for _, next := range campaignTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CampaignAction names a lifecycle operation exposed to callers.
type CampaignAction string

// CampaignAction constants
const (
	ActionActivate CampaignAction = "activate"
	ActionPause    CampaignAction = "pause"
	ActionResume   CampaignAction = "resume"
	ActionComplete CampaignAction = "complete"
)

// Target returns the status an action moves a campaign to.
func (a CampaignAction) Target() (CampaignStatus, bool) {
	switch a {
	case ActionActivate, ActionResume:
		return CampaignActive, true
	case ActionPause:
		return CampaignPaused, true
	case ActionComplete:
		return CampaignCompleted, true
	default:
		return "", false
	}
}

// SendStatus classifies a single delivery attempt.
type SendStatus string

// SendStatus constants
const (
	SendSent    SendStatus = "SENT"
	SendFailed  SendStatus = "FAILED"
	SendBounced SendStatus = "BOUNCED"
)

// BatchStatus is the lifecycle state of a send batch.
type BatchStatus string

// BatchStatus constants
const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchCancelled BatchStatus = "cancelled"
)

// BatchStats summarises one dispatch run.
type BatchStats struct {
	BatchID        uuid.UUID   `json:"batch_id"`
	CampaignID     uuid.UUID   `json:"campaign_id"`
	Status         BatchStatus `json:"status"`
	Eligible       int         `json:"eligible"`
	Attempted      int         `json:"attempted"`
	Sent           int         `json:"sent"`
	Failed         int         `json:"failed"`
	Bounced        int         `json:"bounced"`
	SkippedCooling int         `json:"skipped_cooldown"`
	SkippedDomain  int         `json:"skipped_domain"`
	StartedAt      time.Time   `json:"started_at"`
	CompletedAt    time.Time   `json:"completed_at"`
}

// Record increments the counter for an attempt outcome.
func (s *BatchStats) Record(status SendStatus) {
	s.Attempted++
	switch status {
	case SendSent:
		s.Sent++
	case SendFailed:
		s.Failed++
	case SendBounced:
		s.Bounced++
	}
}

// SendBatchRequest is the payload for triggering a dispatch run.
type SendBatchRequest struct {
	DailyLimit   int `json:"daily_limit" validate:"gte=0,lte=10000"`
	DelaySeconds int `json:"delay_seconds" validate:"gte=0,lte=3600"`
}

// Validate validates the SendBatchRequest using the validator.
func (r *SendBatchRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
