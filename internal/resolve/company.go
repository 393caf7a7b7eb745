package resolve

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/tidycrm/mailsync/internal/database"
	"github.com/tidycrm/mailsync/pkg/models"
)

// minFuzzyNameLen bounds false positives of the name-derived fuzzy match.
const minFuzzyNameLen = 4

// CompanyMatcher resolves an email domain to an existing company. Unmatched
// domains return nil unless auto-creation is enabled, so the CRM is not
// polluted with unreviewed organizations.
type CompanyMatcher struct {
	store      CompanyStore
	autoCreate bool
	logger     *slog.Logger
}

// NewCompanyMatcher creates a company matcher. autoCreate controls whether
// unmatched domains produce a new company record.
func NewCompanyMatcher(store CompanyStore, autoCreate bool, logger *slog.Logger) *CompanyMatcher {
	return &CompanyMatcher{
		store:      store,
		autoCreate: autoCreate,
		logger:     logger.With("component", "company_matcher"),
	}
}

// Match returns the id of the company matching the sender's domain, or nil.
// Tiers, first hit wins: website containing the domain, company email on
// the domain, then a fuzzy match of the name derived from the domain.
// Store errors degrade to "no match"; they never abort ingestion.
func (m *CompanyMatcher) Match(ctx context.Context, domain, senderAddr string) *int64 {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil
	}

	if company, err := m.store.FindCompanyByWebsiteDomain(ctx, domain); err == nil {
		return &company.ID
	} else if !errors.Is(err, database.ErrNotFound) {
		m.logger.Warn("website lookup failed", "domain", domain, "error", err)
	}

	if company, err := m.store.FindCompanyByEmailDomain(ctx, domain); err == nil {
		return &company.ID
	} else if !errors.Is(err, database.ErrNotFound) {
		m.logger.Warn("email lookup failed", "domain", domain, "error", err)
	}

	name := NameFromDomain(domain)
	if len(name) >= minFuzzyNameLen {
		if company, err := m.store.FindCompanyByName(ctx, name); err == nil {
			return &company.ID
		} else if !errors.Is(err, database.ErrNotFound) {
			m.logger.Warn("name lookup failed", "domain", domain, "error", err)
		}
	}

	if m.autoCreate && name != "" {
		company := &models.Company{Name: name, Website: domain}
		if err := m.store.CreateCompany(ctx, company); err != nil {
			m.logger.Warn("auto-create failed", "domain", domain, "error", err)
			return nil
		}
		m.logger.Info("auto-created company", "name", name, "sender", senderAddr)
		return &company.ID
	}

	return nil
}

// NameFromDomain derives a displayable company name from an email domain:
// the TLD is stripped, separators become spaces and each word is
// title-cased. "acme-labs.co.uk" becomes "Acme Labs".
func NameFromDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return ""
	}

	base := domain
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}

	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_' || r == '.'
	})
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
