// Package types provides the shared vocabulary of the outreach pipeline: lifecycle statuses,
// transition rules, and request/response payloads used by the scan and dispatch services.
package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ScanStatus is the lifecycle state of a scan job.
type ScanStatus string

// ScanStatus constants
const (
	ScanStatusPending   ScanStatus = "PENDING"
	ScanStatusRunning   ScanStatus = "RUNNING"
	ScanStatusCompleted ScanStatus = "COMPLETED"
	ScanStatusFailed    ScanStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s ScanStatus) IsTerminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed
}

// CanTransitionScan reports whether a scan job may move from one status to another.
// Transitions are one-directional: PENDING -> RUNNING -> COMPLETED | FAILED.
// A PENDING job may also fail directly (e.g. the company no longer exists).
func CanTransitionScan(from, to ScanStatus) bool {
	switch from {
	case ScanStatusPending:
		return to == ScanStatusRunning || to == ScanStatusFailed
	case ScanStatusRunning:
		return to == ScanStatusCompleted || to == ScanStatusFailed
	default:
		return false
	}
}

// Scan progress checkpoints.
const (
	ProgressStarted          = 5
	ProgressCrawlCeiling     = 70
	ProgressBeforeValidation = 75
	ProgressAfterValidation  = 95
	ProgressComplete         = 100
)

// CrawlProgress maps a page boundary to a percentage in [ProgressStarted, ProgressCrawlCeiling].
func CrawlProgress(pagesDone, maxPages int) int {
	if maxPages <= 0 {
		return ProgressStarted
	}
	if pagesDone > maxPages {
		pagesDone = maxPages
	}
	span := ProgressCrawlCeiling - ProgressStarted
	return ProgressStarted + pagesDone*span/maxPages
}

// ScanConfig holds the per-job scan options.
type ScanConfig struct {
	ScanWebsite  bool `json:"scan_website"`
	ScanLinkedIn bool `json:"scan_linkedin"`
	MaxPages     int  `json:"max_pages" validate:"gte=0,lte=50"`
	CheckMX      bool `json:"check_mx"`
	CheckSMTP    bool `json:"check_smtp"`
	UseBrowser   bool `json:"use_browser"`
}

// DefaultScanConfig returns the options used when a caller supplies none.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		ScanWebsite: true,
		MaxPages:    20,
		CheckMX:     true,
	}
}

// Validate validates the ScanConfig using the validator.
func (c *ScanConfig) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// ScanCounters are the per-run statistics recorded on a scan job.
type ScanCounters struct {
	PagesScanned          int `json:"pages_scanned"`
	PagesFailed           int `json:"pages_failed"`
	PeopleFound           int `json:"people_found"`
	RolesRejected         int `json:"roles_rejected"`
	EmailsDiscovered      int `json:"emails_discovered"`
	EmailsDuplicate       int `json:"emails_duplicate"`
	EmailsValidated       int `json:"emails_validated"`
	EmailsRejectedRole    int `json:"emails_rejected_role"`
	EmailsRejectedDomain  int `json:"emails_rejected_domain"`
	EmailsRejectedQuality int `json:"emails_rejected_quality"`
}

// RecordOutcome increments the counter matching a validation status.
func (c *ScanCounters) RecordOutcome(status DiscoveryStatus) {
	switch status {
	case DiscoveryValidated:
		c.EmailsValidated++
	case DiscoveryRejectedRole:
		c.EmailsRejectedRole++
	case DiscoveryRejectedDomain:
		c.EmailsRejectedDomain++
	case DiscoveryRejectedQuality:
		c.EmailsRejectedQuality++
	}
}

// StartScanRequest is the payload for starting a scan.
type StartScanRequest struct {
	CompanyID uuid.UUID   `json:"company_id" validate:"required"`
	Config    *ScanConfig `json:"config,omitempty"`
}

// Validate validates the StartScanRequest using the validator.
func (r *StartScanRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// ScanStatusView is the externally visible state of a scan job.
type ScanStatusView struct {
	ID                 uuid.UUID    `json:"id"`
	CompanyID          uuid.UUID    `json:"company_id"`
	Status             ScanStatus   `json:"status"`
	ProgressPercentage int          `json:"progress_percentage"`
	CurrentStep        string       `json:"current_step,omitempty"`
	Counters           ScanCounters `json:"counters"`
	ErrorMessage       string       `json:"error_message,omitempty"`
	StartedAt          *time.Time   `json:"started_at,omitempty"`
	CompletedAt        *time.Time   `json:"completed_at,omitempty"`
}
