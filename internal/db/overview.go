package db

import (
	"context"
	"fmt"

	"github.com/jonathan/outreach-agent/internal/types"
)

// Overview counts companies, candidates, campaigns and sent emails in one round trip.
func (db *DB) Overview(ctx context.Context) (*types.Overview, error) {
	var o types.Overview
	err := db.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM companies),
		   COUNT(*),
		   COUNT(*) FILTER (WHERE discovery_status = 'DISCOVERED'),
		   COUNT(*) FILTER (WHERE discovery_status = 'VALIDATED'),
		   COUNT(*) FILTER (WHERE discovery_status LIKE 'REJECTED_%'),
		   COUNT(*) FILTER (WHERE queue_status = 'QUEUED'),
		   (SELECT COUNT(*) FROM campaigns),
		   (SELECT COUNT(*) FROM campaigns WHERE status = 'ACTIVE'),
		   (SELECT COUNT(*) FROM send_logs WHERE status = 'SENT')
		 FROM email_candidates`,
	).Scan(
		&o.Companies,
		&o.Emails.Total, &o.Emails.Discovered, &o.Emails.Validated, &o.Emails.Rejected, &o.Emails.Queued,
		&o.Campaigns.Total, &o.Campaigns.Active,
		&o.TotalSent,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load overview: %w", err)
	}
	return &o, nil
}
