package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tidycrm/mailsync/internal/database"
	"github.com/tidycrm/mailsync/pkg/models"
)

// ImportTag marks contacts auto-created by the mail pipeline.
const ImportTag = "email-import"

// minNameSearchLen excludes very short names from the fuzzy search to
// bound false positives.
const minNameSearchLen = 2

// ContactMatcher resolves a sender address to an existing contact or
// creates a new one. It never returns "no contact": an unmatched sender
// becomes a fresh record tagged for human review.
type ContactMatcher struct {
	store  ContactStore
	logger *slog.Logger
}

// NewContactMatcher creates a contact matcher.
func NewContactMatcher(store ContactStore, logger *slog.Logger) *ContactMatcher {
	return &ContactMatcher{
		store:  store,
		logger: logger.With("component", "contact_matcher"),
	}
}

// Resolve returns the id of the contact responsible for the sender address.
// Precedence: exact email match, then scored name search, then creation.
// Store errors during matching degrade to the next tier; only a failed
// creation is reported as an error.
func (m *ContactMatcher) Resolve(ctx context.Context, senderAddr, displayName string, profile *models.SignatureProfile) (int64, error) {
	senderAddr = strings.ToLower(strings.TrimSpace(senderAddr))

	contact, err := m.store.FindContactByEmail(ctx, senderAddr)
	if err == nil {
		return contact.ID, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		m.logger.Warn("email lookup failed, continuing", "sender", senderAddr, "error", err)
	}

	first, last := deriveName(senderAddr, displayName, profile)

	if match := m.matchByName(ctx, first, last); match != nil {
		return match.ID, nil
	}

	return m.create(ctx, senderAddr, first, last, profile)
}

// scoredContact pairs a candidate with its name-match score.
type scoredContact struct {
	contact *models.Contact
	score   int
}

// matchByName searches contacts by name fragments and returns the best
// scored candidate: base 50, +25 for an exact first name, +25 for an exact
// last name. Names shorter than two characters are not searched.
func (m *ContactMatcher) matchByName(ctx context.Context, first, last string) *models.Contact {
	if len(first) < minNameSearchLen {
		first = ""
	}
	if len(last) < minNameSearchLen {
		last = ""
	}
	if first == "" && last == "" {
		return nil
	}

	candidates, err := m.store.SearchContactsByName(ctx, first, last)
	if err != nil {
		m.logger.Warn("name search failed, continuing", "error", err)
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}

	scored := make([]scoredContact, 0, len(candidates))
	for _, c := range candidates {
		score := 50
		if first != "" && strings.EqualFold(c.FirstName, first) {
			score += 25
		}
		if last != "" && strings.EqualFold(c.LastName, last) {
			score += 25
		}
		scored = append(scored, scoredContact{contact: c, score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	return scored[0].contact
}

// create inserts a new contact seeded from the sender address and the
// signature profile, with a review note and a provenance tag.
func (m *ContactMatcher) create(ctx context.Context, senderAddr, first, last string, profile *models.SignatureProfile) (int64, error) {
	if profile == nil {
		profile = &models.SignatureProfile{}
	}

	tags, _ := json.Marshal([]string{ImportTag})
	contact := &models.Contact{
		FirstName:   first,
		LastName:    last,
		Email:       senderAddr,
		MobilePhone: profile.MobilePhone,
		OfficePhone: profile.OfficePhone,
		LinkedIn:    profile.LinkedIn,
		Tags:        string(tags),
	}
	if contact.OfficePhone == "" {
		contact.OfficePhone = profile.Phone
	}

	if err := m.store.CreateContact(ctx, contact); err != nil {
		return 0, fmt.Errorf("failed to create contact for %s: %w", senderAddr, err)
	}

	note := &models.Note{
		ContactID: contact.ID,
		Body:      reviewNote(senderAddr, profile),
	}
	if err := m.store.CreateNote(ctx, note); err != nil {
		m.logger.Warn("failed to attach review note", "contact_id", contact.ID, "error", err)
	}

	if profile.CompanyName != "" {
		area := &models.ActivityArea{
			ContactID:   contact.ID,
			CompanyName: profile.CompanyName,
			Role:        profile.Role,
		}
		if err := m.store.CreateActivityArea(ctx, area); err != nil {
			m.logger.Warn("failed to link company", "contact_id", contact.ID, "error", err)
		}
	}

	m.logger.Info("created contact from email", "contact_id", contact.ID, "sender", senderAddr)
	return contact.ID, nil
}

func reviewNote(senderAddr string, profile *models.SignatureProfile) string {
	var b strings.Builder
	b.WriteString("Automatically created from an inbound email sent by ")
	b.WriteString(senderAddr)
	b.WriteString(".")
	if profile.RawText != "" {
		b.WriteString("\n\nOriginal signature:\n")
		b.WriteString(profile.RawText)
	}
	return b.String()
}

// deriveName picks the best available person name: the signature, then the
// From header display name, then the local part of the address. The result
// is split into a first name and the remaining words as last name.
func deriveName(senderAddr, displayName string, profile *models.SignatureProfile) (string, string) {
	name := ""
	if profile != nil && profile.Name != "" {
		name = profile.Name
	} else if displayName != "" {
		name = displayName
	} else if i := strings.Index(senderAddr, "@"); i > 0 {
		local := senderAddr[:i]
		name = strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(local)
	}

	words := strings.Fields(name)
	if len(words) == 0 {
		return "", ""
	}

	first := title(words[0])
	last := ""
	if len(words) > 1 {
		rest := make([]string, 0, len(words)-1)
		for _, w := range words[1:] {
			rest = append(rest, title(w))
		}
		last = strings.Join(rest, " ")
	}
	return first, last
}

func title(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}
