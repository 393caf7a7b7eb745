package resolve

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidycrm/mailsync/internal/database"
	"github.com/tidycrm/mailsync/pkg/models"
)

type fakeCompanyStore struct {
	companies []*models.Company
	nextID    int64
	failAll   bool
}

func (s *fakeCompanyStore) FindCompanyByWebsiteDomain(_ context.Context, domain string) (*models.Company, error) {
	if s.failAll {
		return nil, errors.New("store down")
	}
	for _, c := range s.companies {
		if c.Website != "" && strings.Contains(strings.ToLower(c.Website), domain) {
			return c, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeCompanyStore) FindCompanyByEmailDomain(_ context.Context, domain string) (*models.Company, error) {
	if s.failAll {
		return nil, errors.New("store down")
	}
	for _, c := range s.companies {
		if c.Email != "" && strings.Contains(strings.ToLower(c.Email), "@"+domain) {
			return c, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeCompanyStore) FindCompanyByName(_ context.Context, fragment string) (*models.Company, error) {
	if s.failAll {
		return nil, errors.New("store down")
	}
	for _, c := range s.companies {
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(fragment)) {
			return c, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeCompanyStore) CreateCompany(_ context.Context, company *models.Company) error {
	if s.failAll {
		return errors.New("store down")
	}
	s.nextID++
	company.ID = s.nextID
	s.companies = append(s.companies, company)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCompanyMatchByWebsite(t *testing.T) {
	store := &fakeCompanyStore{companies: []*models.Company{
		{ID: 7, Name: "Acme Corporation", Website: "https://acme.com"},
	}}
	m := NewCompanyMatcher(store, false, testLogger())

	id := m.Match(context.Background(), "acme.com", "mario.rossi@acme.com")
	require.NotNil(t, id)
	assert.Equal(t, int64(7), *id)
}

// A website-field match wins over a fuzzy name match, even when the fuzzy
// match would also succeed.
func TestCompanyWebsitePriorityOverFuzzy(t *testing.T) {
	store := &fakeCompanyStore{companies: []*models.Company{
		{ID: 1, Name: "Acme Holdings"}, // would fuzzy-match "Acme"
		{ID: 2, Name: "Totally Different", Website: "https://acme.com/about"},
	}}
	m := NewCompanyMatcher(store, false, testLogger())

	id := m.Match(context.Background(), "acme.com", "x@acme.com")
	require.NotNil(t, id)
	assert.Equal(t, int64(2), *id)
}

func TestCompanyMatchByEmailDomain(t *testing.T) {
	store := &fakeCompanyStore{companies: []*models.Company{
		{ID: 3, Name: "Initech", Email: "info@initech.io"},
	}}
	m := NewCompanyMatcher(store, false, testLogger())

	id := m.Match(context.Background(), "initech.io", "pm@initech.io")
	require.NotNil(t, id)
	assert.Equal(t, int64(3), *id)
}

func TestCompanyFuzzyNameMatch(t *testing.T) {
	store := &fakeCompanyStore{companies: []*models.Company{
		{ID: 4, Name: "Globex International"},
	}}
	m := NewCompanyMatcher(store, false, testLogger())

	id := m.Match(context.Background(), "globex.com", "hank@globex.com")
	require.NotNil(t, id)
	assert.Equal(t, int64(4), *id)
}

// Names under four characters are not eligible for the fuzzy tier.
func TestCompanyShortNameSkipsFuzzy(t *testing.T) {
	store := &fakeCompanyStore{companies: []*models.Company{
		{ID: 5, Name: "Abc Logistics"},
	}}
	m := NewCompanyMatcher(store, false, testLogger())

	id := m.Match(context.Background(), "abc.com", "x@abc.com")
	assert.Nil(t, id)
}

func TestCompanyNoMatchReturnsNil(t *testing.T) {
	m := NewCompanyMatcher(&fakeCompanyStore{}, false, testLogger())

	id := m.Match(context.Background(), "acme.com", "mario.rossi@acme.com")
	assert.Nil(t, id)
}

func TestCompanyAutoCreateWhenEnabled(t *testing.T) {
	store := &fakeCompanyStore{}
	m := NewCompanyMatcher(store, true, testLogger())

	id := m.Match(context.Background(), "new-venture.io", "ceo@new-venture.io")
	require.NotNil(t, id)
	require.Len(t, store.companies, 1)
	assert.Equal(t, "New Venture", store.companies[0].Name)
}

func TestCompanyStoreErrorDegradesToNil(t *testing.T) {
	m := NewCompanyMatcher(&fakeCompanyStore{failAll: true}, false, testLogger())

	id := m.Match(context.Background(), "acme.com", "x@acme.com")
	assert.Nil(t, id)
}

func TestNameFromDomain(t *testing.T) {
	cases := map[string]string{
		"acme.com":        "Acme",
		"acme-labs.co.uk": "Acme Labs",
		"big_corp.io":     "Big Corp",
		"":                "",
	}
	for domain, want := range cases {
		assert.Equal(t, want, NameFromDomain(domain), "domain %q", domain)
	}
}
