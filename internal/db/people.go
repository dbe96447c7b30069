package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Person Methods
// -----------------------------------------------------------------------------

const personColumns = `id, company_id, full_name, normalized_name, role, role_confidence,
	source_url, strategy, created_at, updated_at`

func scanPerson(row pgx.Row) (*Person, error) {
	var p Person
	err := row.Scan(&p.ID, &p.CompanyID, &p.FullName, &p.NormalizedName, &p.Role, &p.RoleConfidence,
		&p.SourceURL, &p.Strategy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPerson inserts a person or returns the existing row for (company, name, role).
// A higher role confidence seen on a later page replaces the stored one.
func (db *DB) UpsertPerson(ctx context.Context, input *PersonInput) (*Person, error) {
	p, err := scanPerson(db.pool.QueryRow(ctx,
		`INSERT INTO people (company_id, full_name, normalized_name, role, role_confidence, source_url, strategy)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (company_id, normalized_name, role) DO UPDATE SET
		   role_confidence = GREATEST(people.role_confidence, EXCLUDED.role_confidence),
		   source_url = CASE WHEN EXCLUDED.role_confidence > people.role_confidence
		                     THEN EXCLUDED.source_url ELSE people.source_url END,
		   strategy = CASE WHEN EXCLUDED.role_confidence > people.role_confidence
		                   THEN EXCLUDED.strategy ELSE people.strategy END,
		   updated_at = NOW()
		 RETURNING `+personColumns,
		input.CompanyID, input.FullName, input.NormalizedName, input.Role, input.RoleConfidence,
		input.SourceURL, input.Strategy,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert person: %w", err)
	}
	return p, nil
}

// GetPersonByID retrieves a person by ID
func (db *DB) GetPersonByID(ctx context.Context, id uuid.UUID) (*Person, error) {
	p, err := scanPerson(db.pool.QueryRow(ctx, `SELECT `+personColumns+` FROM people WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return p, nil
}

// ListPeopleByCompany lists the people found for a company
func (db *DB) ListPeopleByCompany(ctx context.Context, companyID uuid.UUID) ([]Person, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+personColumns+` FROM people WHERE company_id = $1 ORDER BY role_confidence DESC, full_name`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	defer rows.Close()

	var people []Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		people = append(people, *p)
	}
	return people, rows.Err()
}
