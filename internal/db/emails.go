package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/outreach-agent/internal/types"
)

// -----------------------------------------------------------------------------
// Email Candidate Methods
// -----------------------------------------------------------------------------

const emailColumns = `id, email_address, person_id, company_id, scan_job_id, discovery_method, pattern,
	source_type, source_url, discovery_status, rejection_reason, confidence_score, confidence_level,
	quality_score, mx_valid, smtp_valid, is_disposable, queue_status, verified_at, created_at, updated_at`

func scanEmail(row pgx.Row) (*EmailCandidate, error) {
	var e EmailCandidate
	err := row.Scan(&e.ID, &e.Address, &e.PersonID, &e.CompanyID, &e.ScanJobID, &e.Method, &e.Pattern,
		&e.SourceType, &e.SourceURL, &e.Status, &e.RejectionReason, &e.ConfidenceScore, &e.ConfidenceLevel,
		&e.QualityScore, &e.MXValid, &e.SMTPValid, &e.IsDisposable, &e.QueueStatus, &e.VerifiedAt,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// InsertEmailCandidate stores a new DISCOVERED candidate. It returns false without
// error when the address is already known, which leaves the existing row untouched.
func (db *DB) InsertEmailCandidate(ctx context.Context, e *EmailCandidate) (bool, error) {
	sourceType := e.SourceType
	if sourceType == "" {
		sourceType = SourceTypeWebsite
	}

	err := db.pool.QueryRow(ctx,
		`INSERT INTO email_candidates
		   (email_address, person_id, company_id, scan_job_id, discovery_method, pattern, source_type, source_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (email_address) DO NOTHING
		 RETURNING id, discovery_status, confidence_level, queue_status, created_at, updated_at`,
		strings.ToLower(e.Address), e.PersonID, e.CompanyID, e.ScanJobID, e.Method, e.Pattern, sourceType, e.SourceURL,
	).Scan(&e.ID, &e.Status, &e.ConfidenceLevel, &e.QueueStatus, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert email candidate: %w", err)
	}
	e.SourceType = sourceType
	return true, nil
}

// ApplyValidation stores a validation outcome. Only DISCOVERED rows change; the
// method returns false when the row had already left that state.
func (db *DB) ApplyValidation(ctx context.Context, emailID uuid.UUID, u *ValidationUpdate) (bool, error) {
	if !types.CanTransitionDiscovery(types.DiscoveryDiscovered, u.Status) {
		return false, fmt.Errorf("%w: DISCOVERED -> %s", ErrInvalidTransition, u.Status)
	}

	var reason *string
	if u.RejectionReason != "" {
		reason = &u.RejectionReason
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE email_candidates SET
		   discovery_status = $2, rejection_reason = $3, confidence_score = $4, confidence_level = $5,
		   quality_score = $6, mx_valid = $7, smtp_valid = $8, is_disposable = $9,
		   verified_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND discovery_status = 'DISCOVERED'`,
		emailID, u.Status, reason, u.ConfidenceScore, u.ConfidenceLevel,
		u.QualityScore, u.MXValid, u.SMTPValid, u.IsDisposable,
	)
	if err != nil {
		return false, fmt.Errorf("failed to apply validation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetEmailByID retrieves an email candidate by ID
func (db *DB) GetEmailByID(ctx context.Context, id uuid.UUID) (*EmailCandidate, error) {
	e, err := scanEmail(db.pool.QueryRow(ctx, `SELECT `+emailColumns+` FROM email_candidates WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get email candidate: %w", err)
	}
	return e, nil
}

// GetEmailByAddress retrieves an email candidate by address
func (db *DB) GetEmailByAddress(ctx context.Context, address string) (*EmailCandidate, error) {
	e, err := scanEmail(db.pool.QueryRow(ctx,
		`SELECT `+emailColumns+` FROM email_candidates WHERE email_address = $1`, strings.ToLower(address),
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get email candidate: %w", err)
	}
	return e, nil
}

// ListEmails lists email candidates matching filters, best first
func (db *DB) ListEmails(ctx context.Context, filters EmailFilters) ([]EmailCandidate, error) {
	query := `SELECT ` + emailColumns + ` FROM email_candidates WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.CompanyID != nil {
		query += fmt.Sprintf(" AND company_id = $%d", argNum)
		args = append(args, *filters.CompanyID)
		argNum++
	}
	if filters.ScanJobID != nil {
		query += fmt.Sprintf(" AND scan_job_id = $%d", argNum)
		args = append(args, *filters.ScanJobID)
		argNum++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND discovery_status = $%d", argNum)
		args = append(args, filters.Status)
		argNum++
	}
	if filters.QueueStatus != "" {
		query += fmt.Sprintf(" AND queue_status = $%d", argNum)
		args = append(args, filters.QueueStatus)
		argNum++
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY confidence_score DESC, created_at LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, limit, filters.Offset)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list email candidates: %w", err)
	}
	defer rows.Close()

	var emails []EmailCandidate
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email candidate: %w", err)
		}
		emails = append(emails, *e)
	}
	return emails, rows.Err()
}

// ListPendingValidation returns DISCOVERED candidates of a company with the evidence
// needed to validate them.
func (db *DB) ListPendingValidation(ctx context.Context, companyID uuid.UUID, limit int) ([]PendingValidation, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+evidenceColumns+`
		 FROM email_candidates e
		 JOIN people p ON p.id = e.person_id
		 JOIN companies c ON c.id = e.company_id
		 WHERE e.company_id = $1 AND e.discovery_status = 'DISCOVERED'
		 ORDER BY e.created_at
		 LIMIT $2`,
		companyID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending validation: %w", err)
	}
	defer rows.Close()

	var out []PendingValidation
	for rows.Next() {
		p, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending validation: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

const evidenceColumns = `e.id, e.email_address, e.discovery_status, e.queue_status, e.company_id, c.domain,
	e.discovery_method, e.pattern, e.source_url, p.role, p.role_confidence`

func scanEvidence(row pgx.Row) (*PendingValidation, error) {
	var p PendingValidation
	err := row.Scan(&p.EmailID, &p.Address, &p.Status, &p.QueueStatus, &p.CompanyID, &p.CompanyDomain,
		&p.Method, &p.Pattern, &p.SourceURL, &p.Role, &p.RoleConfidence)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetValidationEvidence returns one candidate, whatever its status, with the evidence
// needed to validate it again.
func (db *DB) GetValidationEvidence(ctx context.Context, emailID uuid.UUID) (*PendingValidation, error) {
	p, err := scanEvidence(db.pool.QueryRow(ctx,
		`SELECT `+evidenceColumns+`
		 FROM email_candidates e
		 JOIN people p ON p.id = e.person_id
		 JOIN companies c ON c.id = e.company_id
		 WHERE e.id = $1`,
		emailID,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get validation evidence: %w", err)
	}
	return p, nil
}

// RefreshVerification stores the check results of a repeated verification without
// touching the discovery status. dequeue also takes the email off the send queue.
func (db *DB) RefreshVerification(ctx context.Context, emailID uuid.UUID, u *ValidationUpdate, dequeue bool) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE email_candidates SET
		   confidence_score = $2, confidence_level = $3, quality_score = $4,
		   mx_valid = $5, smtp_valid = $6, is_disposable = $7,
		   queue_status = CASE WHEN $8 THEN 'NONE' ELSE queue_status END,
		   verified_at = NOW(), updated_at = NOW()
		 WHERE id = $1`,
		emailID, u.ConfidenceScore, u.ConfidenceLevel, u.QualityScore,
		u.MXValid, u.SMTPValid, u.IsDisposable, dequeue,
	)
	if err != nil {
		return fmt.Errorf("failed to refresh verification: %w", err)
	}
	return nil
}

// QueueEmails marks VALIDATED emails as QUEUED and returns how many changed.
// Other IDs are ignored.
func (db *DB) QueueEmails(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE email_candidates SET queue_status = 'QUEUED', updated_at = NOW()
		 WHERE id = ANY($1) AND discovery_status = 'VALIDATED' AND queue_status = 'NONE'`,
		ids,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to queue emails: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ResetQueue takes every QUEUED email off the send queue and returns how many changed.
func (db *DB) ResetQueue(ctx context.Context) (int, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE email_candidates SET queue_status = 'NONE', updated_at = NOW() WHERE queue_status = 'QUEUED'`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset queue: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
