package models

import "time"

// Contact is a CRM person record. Only the fields the mail pipeline reads
// and writes are modeled here; the rest of the CRM owns the full shape.
type Contact struct {
	ID             int64     `db:"id"`
	FirstName      string    `db:"first_name"`
	LastName       string    `db:"last_name"`
	Email          string    `db:"email"`
	SecondaryEmail string    `db:"secondary_email"`
	MobilePhone    string    `db:"mobile_phone"`
	OfficePhone    string    `db:"office_phone"`
	LinkedIn       string    `db:"linkedin"`
	Tags           string    `db:"tags"` // JSON array
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// FullName joins first and last name, tolerating either being empty.
func (c *Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Note is a free-text annotation attached to a contact.
type Note struct {
	ID        int64     `db:"id"`
	ContactID int64     `db:"contact_id"`
	Body      string    `db:"body"`
	CreatedAt time.Time `db:"created_at"`
}

// ActivityArea links a contact to a company with role metadata. CompanyID
// may be nil when only a company name was observed.
type ActivityArea struct {
	ID          int64     `db:"id"`
	ContactID   int64     `db:"contact_id"`
	CompanyID   *int64    `db:"company_id"`
	CompanyName string    `db:"company_name"`
	Role        string    `db:"role"`
	CreatedAt   time.Time `db:"created_at"`
}
