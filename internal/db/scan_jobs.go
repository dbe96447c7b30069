package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/outreach-agent/internal/types"
)

// -----------------------------------------------------------------------------
// Scan Job Methods
// -----------------------------------------------------------------------------

const scanJobColumns = `id, company_id, config, status, progress_percentage, current_step,
	pages_scanned, pages_failed, people_found, roles_rejected, emails_discovered, emails_duplicate,
	emails_validated, emails_rejected_role, emails_rejected_domain, emails_rejected_quality,
	error_message, started_at, completed_at, created_at, updated_at`

func scanScanJob(row pgx.Row) (*ScanJob, error) {
	var j ScanJob
	var config []byte
	c := &j.Counters
	err := row.Scan(&j.ID, &j.CompanyID, &config, &j.Status, &j.Progress, &j.CurrentStep,
		&c.PagesScanned, &c.PagesFailed, &c.PeopleFound, &c.RolesRejected, &c.EmailsDiscovered, &c.EmailsDuplicate,
		&c.EmailsValidated, &c.EmailsRejectedRole, &c.EmailsRejectedDomain, &c.EmailsRejectedQuality,
		&j.ErrorMessage, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &j.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scan config: %w", err)
		}
	}
	return &j, nil
}

// CreateScanJob creates a PENDING scan job
func (db *DB) CreateScanJob(ctx context.Context, companyID uuid.UUID, config types.ScanConfig) (*ScanJob, error) {
	configJSON, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scan config: %w", err)
	}

	j, err := scanScanJob(db.pool.QueryRow(ctx,
		`INSERT INTO scan_jobs (company_id, config, status, current_step)
		 VALUES ($1, $2, 'PENDING', 'queued')
		 RETURNING `+scanJobColumns,
		companyID, configJSON,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create scan job: %w", err)
	}
	return j, nil
}

// GetScanJob retrieves a scan job by ID
func (db *DB) GetScanJob(ctx context.Context, id uuid.UUID) (*ScanJob, error) {
	j, err := scanScanJob(db.pool.QueryRow(ctx, `SELECT `+scanJobColumns+` FROM scan_jobs WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get scan job: %w", err)
	}
	return j, nil
}

// ListScanJobs lists the most recent scan jobs of a company
func (db *DB) ListScanJobs(ctx context.Context, companyID uuid.UUID, limit int) ([]ScanJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+scanJobColumns+` FROM scan_jobs WHERE company_id = $1 ORDER BY created_at DESC LIMIT $2`,
		companyID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan jobs: %w", err)
	}
	defer rows.Close()

	var jobs []ScanJob
	for rows.Next() {
		j, err := scanScanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// StartScanJob moves a PENDING job to RUNNING at the starting progress checkpoint
func (db *DB) StartScanJob(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE scan_jobs SET status = 'RUNNING', started_at = NOW(),
		   progress_percentage = GREATEST(progress_percentage, $2), current_step = 'starting', updated_at = NOW()
		 WHERE id = $1 AND status = 'PENDING'`,
		id, types.ProgressStarted,
	)
	if err != nil {
		return fmt.Errorf("failed to start scan job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: scan job %s is not PENDING", ErrInvalidTransition, id)
	}
	return nil
}

// UpdateScanProgress raises the progress of a RUNNING job. Lower values are ignored.
func (db *DB) UpdateScanProgress(ctx context.Context, id uuid.UUID, progress int, step string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE scan_jobs SET progress_percentage = GREATEST(progress_percentage, $2),
		   current_step = $3, updated_at = NOW()
		 WHERE id = $1 AND status = 'RUNNING'`,
		id, progress, step,
	)
	if err != nil {
		return fmt.Errorf("failed to update scan progress: %w", err)
	}
	return nil
}

// UpdateScanCounters overwrites the counters of a RUNNING job
func (db *DB) UpdateScanCounters(ctx context.Context, id uuid.UUID, c types.ScanCounters) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE scan_jobs SET `+counterAssignments+`, updated_at = NOW()
		 WHERE id = $1 AND status = 'RUNNING'`,
		counterArgs(id, c)...,
	)
	if err != nil {
		return fmt.Errorf("failed to update scan counters: %w", err)
	}
	return nil
}

// CompleteScanJob moves a RUNNING job to COMPLETED with its final counters
func (db *DB) CompleteScanJob(ctx context.Context, id uuid.UUID, c types.ScanCounters) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE scan_jobs SET status = 'COMPLETED', progress_percentage = 100, current_step = 'completed',
		   completed_at = NOW(), `+counterAssignments+`, updated_at = NOW()
		 WHERE id = $1 AND status = 'RUNNING'`,
		counterArgs(id, c)...,
	)
	if err != nil {
		return fmt.Errorf("failed to complete scan job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: scan job %s is not RUNNING", ErrInvalidTransition, id)
	}
	return nil
}

// FailScanJob moves a PENDING or RUNNING job to FAILED. Progress is left where it was.
func (db *DB) FailScanJob(ctx context.Context, id uuid.UUID, message string, c types.ScanCounters) error {
	args := append(counterArgs(id, c), message)
	tag, err := db.pool.Exec(ctx,
		`UPDATE scan_jobs SET status = 'FAILED', error_message = $12, current_step = 'failed',
		   completed_at = NOW(), `+counterAssignments+`, updated_at = NOW()
		 WHERE id = $1 AND status IN ('PENDING', 'RUNNING')`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to fail scan job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: scan job %s is already terminal", ErrInvalidTransition, id)
	}
	return nil
}

const counterAssignments = `pages_scanned = $2, pages_failed = $3, people_found = $4, roles_rejected = $5,
	emails_discovered = $6, emails_duplicate = $7, emails_validated = $8, emails_rejected_role = $9,
	emails_rejected_domain = $10, emails_rejected_quality = $11`

func counterArgs(id uuid.UUID, c types.ScanCounters) []any {
	return []any{id, c.PagesScanned, c.PagesFailed, c.PeopleFound, c.RolesRejected,
		c.EmailsDiscovered, c.EmailsDuplicate, c.EmailsValidated, c.EmailsRejectedRole,
		c.EmailsRejectedDomain, c.EmailsRejectedQuality}
}
