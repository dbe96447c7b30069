package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/outreach-agent/internal/emailaddr"
)

// -----------------------------------------------------------------------------
// Company Methods
// -----------------------------------------------------------------------------

const companyColumns = `id, name, domain, website, last_scanned, created_at, updated_at`

func scanCompany(row pgx.Row) (*Company, error) {
	var c Company
	if err := row.Scan(&c.ID, &c.Name, &c.Domain, &c.Website, &c.LastScanned, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindOrCreateCompany finds an existing company by domain or creates a new one
func (db *DB) FindOrCreateCompany(ctx context.Context, name, domain, website string) (*Company, error) {
	domain = normalizeDomain(domain)
	if domain == "" {
		return nil, fmt.Errorf("company domain cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		name = domain
	}

	var site *string
	if website != "" {
		site = &website
	}

	c, err := scanCompany(db.pool.QueryRow(ctx,
		`INSERT INTO companies (name, domain, website)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (domain) DO UPDATE SET
		   website = COALESCE(EXCLUDED.website, companies.website),
		   updated_at = NOW()
		 RETURNING `+companyColumns,
		name, domain, site,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}
	return c, nil
}

// GetCompanyByID retrieves a company by its UUID
func (db *DB) GetCompanyByID(ctx context.Context, id uuid.UUID) (*Company, error) {
	c, err := scanCompany(db.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = $1`, id,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return c, nil
}

// GetCompanyByDomain finds a company by its domain
func (db *DB) GetCompanyByDomain(ctx context.Context, domain string) (*Company, error) {
	c, err := scanCompany(db.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE domain = $1`, normalizeDomain(domain),
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get company by domain: %w", err)
	}
	return c, nil
}

// ListCompanies lists companies by name
func (db *DB) ListCompanies(ctx context.Context, limit, offset int) ([]Company, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+companyColumns+` FROM companies ORDER BY name LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var companies []Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, *c)
	}
	return companies, rows.Err()
}

// MarkCompanyScanned sets last_scanned to now
func (db *DB) MarkCompanyScanned(ctx context.Context, companyID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE companies SET last_scanned = NOW(), updated_at = NOW() WHERE id = $1`,
		companyID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark company scanned: %w", err)
	}
	return nil
}

// normalizeDomain lowercases a domain and strips scheme, path, www. and trailing dots
// Example: "https://www.Acme.com/about" -> "acme.com"
func normalizeDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	if strings.Contains(domain, "://") {
		if parsed, err := url.Parse(domain); err == nil {
			domain = parsed.Hostname()
		}
	}
	if i := strings.IndexByte(domain, '/'); i >= 0 {
		domain = domain[:i]
	}
	return emailaddr.NormalizeDomain(domain)
}

// ExtractDomain extracts the domain from a full URL
func ExtractDomain(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return normalizeDomain(parsed.Hostname()), nil
}
