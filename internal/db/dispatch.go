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
// Send Batch, Send Log and Domain Cooldown Methods
// -----------------------------------------------------------------------------

const batchColumns = `id, campaign_id, status, total, sent, failed, bounced, progress_percentage,
	current_index, started_at, completed_at, created_at`

func scanBatch(row pgx.Row) (*SendBatch, error) {
	var b SendBatch
	err := row.Scan(&b.ID, &b.CampaignID, &b.Status, &b.Total, &b.Sent, &b.Failed, &b.Bounced, &b.Progress,
		&b.CurrentIndex, &b.StartedAt, &b.CompletedAt, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateSendBatch creates a running batch for a campaign
func (db *DB) CreateSendBatch(ctx context.Context, campaignID uuid.UUID, total int) (*SendBatch, error) {
	b, err := scanBatch(db.pool.QueryRow(ctx,
		`INSERT INTO send_batches (campaign_id, status, total, started_at)
		 VALUES ($1, 'running', $2, NOW())
		 RETURNING `+batchColumns,
		campaignID, total,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create send batch: %w", err)
	}
	return b, nil
}

// GetSendBatch retrieves a send batch by ID
func (db *DB) GetSendBatch(ctx context.Context, id uuid.UUID) (*SendBatch, error) {
	b, err := scanBatch(db.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM send_batches WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get send batch: %w", err)
	}
	return b, nil
}

// ListSendBatches lists the batches of a campaign, newest first
func (db *DB) ListSendBatches(ctx context.Context, campaignID uuid.UUID, limit int) ([]SendBatch, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+batchColumns+` FROM send_batches WHERE campaign_id = $1 ORDER BY created_at DESC LIMIT $2`,
		campaignID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list send batches: %w", err)
	}
	defer rows.Close()

	var out []SendBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan send batch: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// UpdateSendBatchProgress records how far a running batch has got
func (db *DB) UpdateSendBatchProgress(ctx context.Context, id uuid.UUID, currentIndex, total int) error {
	progress := 100
	if total > 0 {
		progress = currentIndex * 100 / total
	}
	_, err := db.pool.Exec(ctx,
		`UPDATE send_batches SET current_index = $2, progress_percentage = GREATEST(progress_percentage, $3)
		 WHERE id = $1 AND status = 'running'`,
		id, currentIndex, progress,
	)
	if err != nil {
		return fmt.Errorf("failed to update send batch progress: %w", err)
	}
	return nil
}

// FinishSendBatch writes the final aggregates of a batch
func (db *DB) FinishSendBatch(ctx context.Context, id uuid.UUID, status types.BatchStatus, stats *types.BatchStats) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE send_batches SET status = $2, sent = $3, failed = $4, bounced = $5, current_index = $6,
		   progress_percentage = CASE WHEN $2 = 'completed' THEN 100 ELSE progress_percentage END,
		   completed_at = NOW()
		 WHERE id = $1 AND status IN ('pending', 'running')`,
		id, status, stats.Sent, stats.Failed, stats.Bounced, stats.Attempted,
	)
	if err != nil {
		return fmt.Errorf("failed to finish send batch: %w", err)
	}
	return nil
}

// ListQueuedRecipients returns VALIDATED, QUEUED emails never attempted by the campaign,
// best confidence first. limit bounds the result; cooldown filtering happens in Go.
func (db *DB) ListQueuedRecipients(ctx context.Context, campaignID uuid.UUID, limit int) ([]Recipient, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := db.pool.Query(ctx,
		`SELECT e.id, e.email_address, e.confidence_score, p.full_name, p.role, c.name, c.domain
		 FROM email_candidates e
		 JOIN people p ON p.id = e.person_id
		 JOIN companies c ON c.id = e.company_id
		 WHERE e.discovery_status = 'VALIDATED' AND e.queue_status = 'QUEUED'
		   AND NOT EXISTS (
		     SELECT 1 FROM send_logs l WHERE l.email_id = e.id AND l.campaign_id = $1
		   )
		 ORDER BY e.confidence_score DESC, e.created_at
		 LIMIT $2`,
		campaignID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued recipients: %w", err)
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var r Recipient
		if err := rows.Scan(&r.EmailID, &r.Address, &r.ConfidenceScore, &r.FullName, &r.Role,
			&r.CompanyName, &r.CompanyDomain); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetDomainCooldowns returns the cooldown rows for the given domains, keyed by domain
func (db *DB) GetDomainCooldowns(ctx context.Context, domains []string) (map[string]DomainCooldown, error) {
	out := make(map[string]DomainCooldown, len(domains))
	if len(domains) == 0 {
		return out, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT domain, last_contacted, cooldown_days, contact_count FROM domain_cooldowns WHERE domain = ANY($1)`,
		domains,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get domain cooldowns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c DomainCooldown
		if err := rows.Scan(&c.Domain, &c.LastContacted, &c.CooldownDays, &c.ContactCount); err != nil {
			return nil, fmt.Errorf("failed to scan domain cooldown: %w", err)
		}
		out[c.Domain] = c
	}
	return out, rows.Err()
}

// ClaimRecipient reserves a queued email for one send. In a single transaction it locks
// the domain's cooldown row, takes the email off the queue and records the contact at
// at. It returns nil when the email is no longer queued or the domain is cooling down
// at at, which is how concurrent runs of different campaigns stay apart.
func (db *DB) ClaimRecipient(ctx context.Context, emailID uuid.UUID, domain string, at time.Time, cooldownDays int) (*Claim, error) {
	domain = normalizeDomain(domain)
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// A placeholder row lets first contacts with a domain serialise on the same lock.
	// It only survives when the claim commits.
	if _, err := tx.Exec(ctx,
		`INSERT INTO domain_cooldowns (domain, last_contacted, cooldown_days, contact_count)
		 VALUES ($1, 'epoch', 0, 0) ON CONFLICT (domain) DO NOTHING`,
		domain,
	); err != nil {
		return nil, fmt.Errorf("failed to claim domain: %w", err)
	}
	var cur DomainCooldown
	if err := tx.QueryRow(ctx,
		`SELECT domain, last_contacted, cooldown_days, contact_count FROM domain_cooldowns
		 WHERE domain = $1 FOR UPDATE`,
		domain,
	).Scan(&cur.Domain, &cur.LastContacted, &cur.CooldownDays, &cur.ContactCount); err != nil {
		return nil, fmt.Errorf("failed to lock domain cooldown: %w", err)
	}
	if cur.InCooldown(at) {
		return nil, nil
	}

	tag, err := tx.Exec(ctx,
		`UPDATE email_candidates SET queue_status = 'NONE', updated_at = NOW()
		 WHERE id = $1 AND queue_status = 'QUEUED'`,
		emailID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE domain_cooldowns SET last_contacted = GREATEST(last_contacted, $2),
		   cooldown_days = $3, contact_count = contact_count + 1
		 WHERE domain = $1`,
		domain, at, cooldownDays,
	); err != nil {
		return nil, fmt.Errorf("failed to touch domain cooldown: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	claim := &Claim{EmailID: emailID, Domain: domain}
	if cur.ContactCount > 0 {
		claim.Previous = &cur
	}
	return claim, nil
}

// ReleaseClaim undoes a claim whose send did not go out: the email is queued again and
// the domain's cooldown row goes back to its state before the claim.
func (db *DB) ReleaseClaim(ctx context.Context, c *Claim) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin release: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE email_candidates SET queue_status = 'QUEUED', updated_at = NOW()
		 WHERE id = $1 AND discovery_status = 'VALIDATED' AND queue_status = 'NONE'`,
		c.EmailID,
	); err != nil {
		return fmt.Errorf("failed to requeue email: %w", err)
	}
	if c.Previous == nil {
		_, err = tx.Exec(ctx, `DELETE FROM domain_cooldowns WHERE domain = $1`, c.Domain)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE domain_cooldowns SET last_contacted = $2, cooldown_days = $3, contact_count = $4
			 WHERE domain = $1`,
			c.Domain, c.Previous.LastContacted, c.Previous.CooldownDays, c.Previous.ContactCount,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to restore domain cooldown: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit release: %w", err)
	}
	return nil
}

// RecordSend inserts a send log row
func (db *DB) RecordSend(ctx context.Context, l *SendLog) error {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO send_logs (email_id, campaign_id, batch_id, status, error, subject_sent, body_preview, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		l.EmailID, l.CampaignID, l.BatchID, l.Status, l.Error, l.SubjectSent, Preview(l.BodyPreview), l.SentAt,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("failed to record send: %w", err)
	}
	return nil
}

// CountSentSince counts SENT logs of a campaign since the given time
func (db *DB) CountSentSince(ctx context.Context, campaignID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM send_logs WHERE campaign_id = $1 AND status = 'SENT' AND sent_at >= $2`,
		campaignID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sent emails: %w", err)
	}
	return n, nil
}

// ListSendLogs lists the send logs of a campaign, newest first
func (db *DB) ListSendLogs(ctx context.Context, campaignID uuid.UUID, limit int) ([]SendLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, email_id, campaign_id, batch_id, status, error, subject_sent, body_preview, sent_at
		 FROM send_logs WHERE campaign_id = $1 ORDER BY sent_at DESC LIMIT $2`,
		campaignID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list send logs: %w", err)
	}
	defer rows.Close()

	var logs []SendLog
	for rows.Next() {
		var l SendLog
		if err := rows.Scan(&l.ID, &l.EmailID, &l.CampaignID, &l.BatchID, &l.Status, &l.Error,
			&l.SubjectSent, &l.BodyPreview, &l.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan send log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
