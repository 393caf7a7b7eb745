package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidycrm/mailsync/pkg/models"
)

// CreateCompany creates a new company record
func (db *DB) CreateCompany(ctx context.Context, company *models.Company) error {
	query := `
		INSERT INTO companies (name, website, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		company.Name,
		company.Website,
		company.Email,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	company.ID = id
	company.CreatedAt = now
	company.UpdatedAt = now
	return nil
}

// FindCompanyByWebsiteDomain returns the first company whose website field
// contains the domain.
func (db *DB) FindCompanyByWebsiteDomain(ctx context.Context, domain string) (*models.Company, error) {
	var companies []*models.Company
	query := `SELECT * FROM companies WHERE website != '' AND LOWER(website) LIKE ? LIMIT 1`
	if err := db.SelectContext(ctx, &companies, query, "%"+strings.ToLower(domain)+"%"); err != nil {
		return nil, fmt.Errorf("failed to find company by website: %w", err)
	}
	if len(companies) == 0 {
		return nil, ErrNotFound
	}
	return companies[0], nil
}

// FindCompanyByEmailDomain returns the first company whose email field is
// on the given domain.
func (db *DB) FindCompanyByEmailDomain(ctx context.Context, domain string) (*models.Company, error) {
	var companies []*models.Company
	query := `SELECT * FROM companies WHERE email != '' AND LOWER(email) LIKE ? LIMIT 1`
	if err := db.SelectContext(ctx, &companies, query, "%@"+strings.ToLower(domain)+"%"); err != nil {
		return nil, fmt.Errorf("failed to find company by email: %w", err)
	}
	if len(companies) == 0 {
		return nil, ErrNotFound
	}
	return companies[0], nil
}

// FindCompanyByName returns the first company whose name contains the
// fragment, case-insensitively.
func (db *DB) FindCompanyByName(ctx context.Context, fragment string) (*models.Company, error) {
	var companies []*models.Company
	query := `SELECT * FROM companies WHERE LOWER(name) LIKE ? LIMIT 1`
	if err := db.SelectContext(ctx, &companies, query, "%"+strings.ToLower(fragment)+"%"); err != nil {
		return nil, fmt.Errorf("failed to find company by name: %w", err)
	}
	if len(companies) == 0 {
		return nil, ErrNotFound
	}
	return companies[0], nil
}
