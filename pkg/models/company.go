package models

import "time"

// Company is a CRM organization record, modeled down to the fields the
// company matcher inspects.
type Company struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Website   string    `db:"website"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
