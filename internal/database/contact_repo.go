package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidycrm/mailsync/pkg/models"
)

// CreateContact creates a new contact record
func (db *DB) CreateContact(ctx context.Context, contact *models.Contact) error {
	query := `
		INSERT INTO contacts (first_name, last_name, email, secondary_email,
			mobile_phone, office_phone, linkedin, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	tags := contact.Tags
	if tags == "" {
		tags = "[]"
	}
	result, err := db.ExecContext(ctx, query,
		contact.FirstName,
		contact.LastName,
		contact.Email,
		contact.SecondaryEmail,
		contact.MobilePhone,
		contact.OfficePhone,
		contact.LinkedIn,
		tags,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	contact.ID = id
	contact.Tags = tags
	contact.CreatedAt = now
	contact.UpdatedAt = now
	return nil
}

// FindContactByEmail matches an address against primary and secondary
// email fields, case-insensitively.
func (db *DB) FindContactByEmail(ctx context.Context, addr string) (*models.Contact, error) {
	var contacts []*models.Contact
	query := `
		SELECT * FROM contacts
		WHERE LOWER(email) = LOWER(?) OR LOWER(secondary_email) = LOWER(?)
		LIMIT 1
	`
	if err := db.SelectContext(ctx, &contacts, query, addr, addr); err != nil {
		return nil, fmt.Errorf("failed to find contact by email: %w", err)
	}
	if len(contacts) == 0 {
		return nil, ErrNotFound
	}
	return contacts[0], nil
}

// SearchContactsByName returns contacts whose first or last name contains
// either of the given fragments, case-insensitively.
func (db *DB) SearchContactsByName(ctx context.Context, first, last string) ([]*models.Contact, error) {
	var conds []string
	var args []interface{}
	if first != "" {
		conds = append(conds, "LOWER(first_name) LIKE ?")
		args = append(args, "%"+strings.ToLower(first)+"%")
	}
	if last != "" {
		conds = append(conds, "LOWER(last_name) LIKE ?")
		args = append(args, "%"+strings.ToLower(last)+"%")
	}
	if len(conds) == 0 {
		return nil, nil
	}

	query := `SELECT * FROM contacts WHERE ` + strings.Join(conds, " OR ")
	var contacts []*models.Contact
	if err := db.SelectContext(ctx, &contacts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search contacts: %w", err)
	}
	return contacts, nil
}

// CreateNote attaches a free-text note to a contact
func (db *DB) CreateNote(ctx context.Context, note *models.Note) error {
	query := `INSERT INTO notes (contact_id, body, created_at) VALUES (?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, note.ContactID, note.Body, now)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	note.ID = id
	note.CreatedAt = now
	return nil
}

// CreateActivityArea links a contact to a company, by id when resolved or
// by bare name otherwise
func (db *DB) CreateActivityArea(ctx context.Context, area *models.ActivityArea) error {
	query := `
		INSERT INTO activity_areas (contact_id, company_id, company_name, role, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		area.ContactID,
		area.CompanyID,
		area.CompanyName,
		area.Role,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create activity area: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	area.ID = id
	area.CreatedAt = now
	return nil
}

// GetNotesByContact returns all notes of a contact, oldest first
func (db *DB) GetNotesByContact(ctx context.Context, contactID int64) ([]*models.Note, error) {
	var notes []*models.Note
	query := `SELECT * FROM notes WHERE contact_id = ? ORDER BY id`
	if err := db.SelectContext(ctx, &notes, query, contactID); err != nil {
		return nil, fmt.Errorf("failed to get notes: %w", err)
	}
	return notes, nil
}
