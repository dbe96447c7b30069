// Package scan runs company scan jobs: crawl the site, extract decision makers, discover
// their addresses, validate them and persist everything with job progress.
package scan

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/types"
)

// ErrNotFound is returned when a scan job or its company does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a job is not in the state an operation needs.
var ErrInvalidTransition = db.ErrInvalidTransition

// Errors of manually entered addresses.
var (
	ErrRoleNotAllowed = errors.New("role is not a decision-maker role")
	ErrDuplicateEmail = errors.New("email already exists")
	ErrEmailRejected  = errors.New("email failed validation")
)

// Store is the persistence used by the Manager. *db.DB implements it.
type Store interface {
	GetCompanyByID(ctx context.Context, id uuid.UUID) (*db.Company, error)
	MarkCompanyScanned(ctx context.Context, companyID uuid.UUID) error

	CreateScanJob(ctx context.Context, companyID uuid.UUID, config types.ScanConfig) (*db.ScanJob, error)
	GetScanJob(ctx context.Context, id uuid.UUID) (*db.ScanJob, error)
	StartScanJob(ctx context.Context, id uuid.UUID) error
	UpdateScanProgress(ctx context.Context, id uuid.UUID, progress int, step string) error
	UpdateScanCounters(ctx context.Context, id uuid.UUID, c types.ScanCounters) error
	CompleteScanJob(ctx context.Context, id uuid.UUID, c types.ScanCounters) error
	FailScanJob(ctx context.Context, id uuid.UUID, message string, c types.ScanCounters) error

	UpsertPerson(ctx context.Context, input *db.PersonInput) (*db.Person, error)
	InsertEmailCandidate(ctx context.Context, e *db.EmailCandidate) (bool, error)
	ListPendingValidation(ctx context.Context, companyID uuid.UUID, limit int) ([]db.PendingValidation, error)
	ApplyValidation(ctx context.Context, emailID uuid.UUID, u *db.ValidationUpdate) (bool, error)

	GetEmailByAddress(ctx context.Context, address string) (*db.EmailCandidate, error)
	GetValidationEvidence(ctx context.Context, emailID uuid.UUID) (*db.PendingValidation, error)
	RefreshVerification(ctx context.Context, emailID uuid.UUID, u *db.ValidationUpdate, dequeue bool) error
}

var _ Store = (*db.DB)(nil)
