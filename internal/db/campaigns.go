package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/outreach-agent/internal/types"
)

// -----------------------------------------------------------------------------
// Campaign Methods
// -----------------------------------------------------------------------------

const campaignColumns = `id, name, subject_template, body_template, from_email, from_name, daily_limit,
	cooldown_days, status, total_sent, total_failed, total_bounced, last_run_at, created_at, updated_at`

func scanCampaign(row pgx.Row) (*Campaign, error) {
	var c Campaign
	err := row.Scan(&c.ID, &c.Name, &c.SubjectTemplate, &c.BodyTemplate, &c.FromEmail, &c.FromName, &c.DailyLimit,
		&c.CooldownDays, &c.Status, &c.TotalSent, &c.TotalFailed, &c.TotalBounced, &c.LastRunAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCampaign creates a DRAFT campaign
func (db *DB) CreateCampaign(ctx context.Context, input *CampaignInput) (*Campaign, error) {
	c, err := scanCampaign(db.pool.QueryRow(ctx,
		`INSERT INTO campaigns (name, subject_template, body_template, from_email, from_name, daily_limit, cooldown_days)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+campaignColumns,
		input.Name, input.SubjectTemplate, input.BodyTemplate, input.FromEmail, input.FromName,
		input.DailyLimit, input.CooldownDays,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	return c, nil
}

// GetCampaign retrieves a campaign by ID
func (db *DB) GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	c, err := scanCampaign(db.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

// ListCampaigns lists campaigns, newest first
func (db *DB) ListCampaigns(ctx context.Context, limit int) ([]Campaign, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx, `SELECT `+campaignColumns+` FROM campaigns ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

// TransitionCampaign moves a campaign from one status to another. The update only
// applies if the campaign is still in from.
func (db *DB) TransitionCampaign(ctx context.Context, id uuid.UUID, from, to types.CampaignStatus) error {
	if !types.CanTransitionCampaign(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE campaigns SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: campaign %s is not %s", ErrInvalidTransition, id, from)
	}
	return nil
}

// AddCampaignTotals adds a batch's outcomes to the campaign aggregates
func (db *DB) AddCampaignTotals(ctx context.Context, id uuid.UUID, sent, failed, bounced int, runAt time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE campaigns SET total_sent = total_sent + $2, total_failed = total_failed + $3,
		   total_bounced = total_bounced + $4, last_run_at = $5, updated_at = NOW()
		 WHERE id = $1`,
		id, sent, failed, bounced, runAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign totals: %w", err)
	}
	return nil
}
