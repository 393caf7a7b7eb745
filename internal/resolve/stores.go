// Package resolve maps raw sender information onto CRM contact and company
// records. The CRM data store itself is external; it is consumed through
// the narrow store interfaces below, implemented by internal/database.
package resolve

import (
	"context"

	"github.com/tidycrm/mailsync/pkg/models"
)

// CompanyStore is the slice of the CRM company table the matcher needs.
type CompanyStore interface {
	FindCompanyByWebsiteDomain(ctx context.Context, domain string) (*models.Company, error)
	FindCompanyByEmailDomain(ctx context.Context, domain string) (*models.Company, error)
	FindCompanyByName(ctx context.Context, fragment string) (*models.Company, error)
	CreateCompany(ctx context.Context, company *models.Company) error
}

// ContactStore is the slice of the CRM contact tables the matcher needs.
type ContactStore interface {
	FindContactByEmail(ctx context.Context, addr string) (*models.Contact, error)
	SearchContactsByName(ctx context.Context, first, last string) ([]*models.Contact, error)
	CreateContact(ctx context.Context, contact *models.Contact) error
	CreateNote(ctx context.Context, note *models.Note) error
	CreateActivityArea(ctx context.Context, area *models.ActivityArea) error
}
