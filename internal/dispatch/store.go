// Package dispatch sends campaign emails to queued, validated recipients while keeping
// the daily budget, the per-domain cooldown and the one-recipient-per-domain rule.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/types"
)

// Sentinel errors
var (
	ErrNotFound           = errors.New("campaign not found")
	ErrCampaignNotActive  = errors.New("campaign is not active")
	ErrDispatchInProgress = errors.New("a dispatch run is already in progress for this campaign")
)

// Store is the persistence used by the Dispatcher. *db.DB implements it.
type Store interface {
	GetCampaign(ctx context.Context, id uuid.UUID) (*db.Campaign, error)
	AddCampaignTotals(ctx context.Context, id uuid.UUID, sent, failed, bounced int, runAt time.Time) error

	CountSentSince(ctx context.Context, campaignID uuid.UUID, since time.Time) (int, error)
	ListQueuedRecipients(ctx context.Context, campaignID uuid.UUID, limit int) ([]db.Recipient, error)
	GetDomainCooldowns(ctx context.Context, domains []string) (map[string]db.DomainCooldown, error)

	CreateSendBatch(ctx context.Context, campaignID uuid.UUID, total int) (*db.SendBatch, error)
	UpdateSendBatchProgress(ctx context.Context, id uuid.UUID, currentIndex, total int) error
	FinishSendBatch(ctx context.Context, id uuid.UUID, status types.BatchStatus, stats *types.BatchStats) error

	// ClaimRecipient takes a queued email off the queue and records a contact with its
	// domain atomically. It returns nil when the email was claimed elsewhere or the
	// domain is cooling down at at.
	ClaimRecipient(ctx context.Context, emailID uuid.UUID, domain string, at time.Time, cooldownDays int) (*db.Claim, error)
	ReleaseClaim(ctx context.Context, c *db.Claim) error

	RecordSend(ctx context.Context, l *db.SendLog) error
}

var _ Store = (*db.DB)(nil)
