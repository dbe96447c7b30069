package db

import (
	"time"

	"github.com/google/uuid"
)

// Company represents a company whose site is scanned for decision makers
type Company struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Domain      string     `json:"domain"`
	Website     *string    `json:"website,omitempty"`
	LastScanned *time.Time `json:"last_scanned,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SeedURL is the page a scan starts from: the stored website, or the domain's root.
func (c *Company) SeedURL() string {
	if c.Website != nil && *c.Website != "" {
		return *c.Website
	}
	return "https://" + c.Domain + "/"
}
