package resolve

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidycrm/mailsync/internal/database"
	"github.com/tidycrm/mailsync/pkg/models"
)

type fakeContactStore struct {
	contacts   []*models.Contact
	notes      []*models.Note
	areas      []*models.ActivityArea
	nextID     int64
	failSearch bool
}

func (s *fakeContactStore) FindContactByEmail(_ context.Context, addr string) (*models.Contact, error) {
	if s.failSearch {
		return nil, errors.New("store down")
	}
	for _, c := range s.contacts {
		if strings.EqualFold(c.Email, addr) || strings.EqualFold(c.SecondaryEmail, addr) {
			return c, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeContactStore) SearchContactsByName(_ context.Context, first, last string) ([]*models.Contact, error) {
	if s.failSearch {
		return nil, errors.New("store down")
	}
	var out []*models.Contact
	for _, c := range s.contacts {
		if first != "" && strings.Contains(strings.ToLower(c.FirstName), strings.ToLower(first)) {
			out = append(out, c)
			continue
		}
		if last != "" && strings.Contains(strings.ToLower(c.LastName), strings.ToLower(last)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeContactStore) CreateContact(_ context.Context, contact *models.Contact) error {
	s.nextID++
	contact.ID = s.nextID
	s.contacts = append(s.contacts, contact)
	return nil
}

func (s *fakeContactStore) CreateNote(_ context.Context, note *models.Note) error {
	s.notes = append(s.notes, note)
	return nil
}

func (s *fakeContactStore) CreateActivityArea(_ context.Context, area *models.ActivityArea) error {
	s.areas = append(s.areas, area)
	return nil
}

func TestContactExactEmailMatch(t *testing.T) {
	store := &fakeContactStore{contacts: []*models.Contact{
		{ID: 11, FirstName: "Mario", LastName: "Rossi", Email: "mario.rossi@acme.com"},
	}}
	m := NewContactMatcher(store, testLogger())

	id, err := m.Resolve(context.Background(), "mario.rossi@acme.com", "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)
	assert.Len(t, store.contacts, 1)
}

// A secondary-email match beats a fuzzy name match against another contact.
func TestContactSecondaryEmailPrecedence(t *testing.T) {
	store := &fakeContactStore{contacts: []*models.Contact{
		{ID: 1, FirstName: "Mario", LastName: "Rossi", Email: "other@elsewhere.com"},
		{ID: 2, FirstName: "M", LastName: "R", Email: "work@corp.com", SecondaryEmail: "mario.rossi@acme.com"},
	}}
	m := NewContactMatcher(store, testLogger())

	profile := &models.SignatureProfile{Name: "Mario Rossi"}
	id, err := m.Resolve(context.Background(), "mario.rossi@acme.com", "Mario Rossi", profile)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
}

func TestContactNameScoring(t *testing.T) {
	store := &fakeContactStore{contacts: []*models.Contact{
		{ID: 1, FirstName: "Maria", LastName: "Rossini", Email: "a@x.com"},
		{ID: 2, FirstName: "Mario", LastName: "Rossi", Email: "b@y.com"},
	}}
	m := NewContactMatcher(store, testLogger())

	// No email match; the exact first+last candidate must win.
	id, err := m.Resolve(context.Background(), "mr@new-domain.com", "Mario Rossi", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
}

func TestContactCreatedFromSignature(t *testing.T) {
	store := &fakeContactStore{}
	m := NewContactMatcher(store, testLogger())

	profile := &models.SignatureProfile{
		Name:        "Mario Rossi",
		Role:        "Sales Director",
		CompanyName: "Acme Corporation",
		MobilePhone: "+39 333 123 4567",
		LinkedIn:    "mario-rossi",
		RawText:     "Mario Rossi\nSales Director\nAcme Corporation",
	}

	id, err := m.Resolve(context.Background(), "mario.rossi@acme.com", "", profile)
	require.NoError(t, err)
	require.Len(t, store.contacts, 1)

	created := store.contacts[0]
	assert.Equal(t, created.ID, id)
	assert.Equal(t, "Mario", created.FirstName)
	assert.Equal(t, "Rossi", created.LastName)
	assert.Equal(t, "mario.rossi@acme.com", created.Email)
	assert.Equal(t, "+39 333 123 4567", created.MobilePhone)
	assert.Equal(t, "mario-rossi", created.LinkedIn)
	assert.Contains(t, created.Tags, ImportTag)

	require.Len(t, store.notes, 1)
	assert.Contains(t, store.notes[0].Body, "mario.rossi@acme.com")
	assert.Contains(t, store.notes[0].Body, "Sales Director")

	require.Len(t, store.areas, 1)
	assert.Equal(t, "Acme Corporation", store.areas[0].CompanyName)
	assert.Equal(t, "Sales Director", store.areas[0].Role)
	assert.Nil(t, store.areas[0].CompanyID)
}

// Without a signature or display name, the local part of the address seeds
// the new contact's name.
func TestContactNameFromLocalPart(t *testing.T) {
	store := &fakeContactStore{}
	m := NewContactMatcher(store, testLogger())

	_, err := m.Resolve(context.Background(), "jane_doe@startup.io", "", nil)
	require.NoError(t, err)
	require.Len(t, store.contacts, 1)
	assert.Equal(t, "Jane", store.contacts[0].FirstName)
	assert.Equal(t, "Doe", store.contacts[0].LastName)
}

// Store failures during matching degrade to creation instead of aborting.
func TestContactSearchFailureStillCreates(t *testing.T) {
	store := &fakeContactStore{failSearch: true}
	m := NewContactMatcher(store, testLogger())

	id, err := m.Resolve(context.Background(), "someone@nowhere.net", "Some One", nil)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Len(t, store.contacts, 1)
}

// Single-letter names are excluded from the fuzzy search, so a fresh
// contact is created instead of matching a random candidate.
func TestContactShortNameSkipsSearch(t *testing.T) {
	store := &fakeContactStore{nextID: 1, contacts: []*models.Contact{
		{ID: 1, FirstName: "Quentin", LastName: "Long", Email: "q@l.com"},
	}}
	m := NewContactMatcher(store, testLogger())

	id, err := m.Resolve(context.Background(), "q@x.com", "Q L", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
	assert.Len(t, store.contacts, 2)
}
