package models

// SignatureProfile is the structured data extracted from an email signature
// block. Every field is best-effort; empty means "not found". Consumers must
// treat all values as low-confidence hints.
type SignatureProfile struct {
	Name        string `json:"name,omitempty"`
	Role        string `json:"role,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	MobilePhone string `json:"mobilePhone,omitempty"`
	OfficePhone string `json:"officePhone,omitempty"`
	Website     string `json:"website,omitempty"`
	LinkedIn    string `json:"linkedin,omitempty"`
	Address     string `json:"address,omitempty"`
	RawText     string `json:"rawText,omitempty"`
}

// Empty reports whether nothing at all was extracted.
func (p *SignatureProfile) Empty() bool {
	return p.Name == "" && p.Role == "" && p.CompanyName == "" &&
		p.Email == "" && p.Phone == "" && p.MobilePhone == "" &&
		p.OfficePhone == "" && p.Website == "" && p.LinkedIn == "" &&
		p.Address == ""
}

// Merge overlays other on top of p: fields set in other win, fields only
// set in p are kept. Used to apply HTML-derived data over text-derived data.
func (p *SignatureProfile) Merge(other *SignatureProfile) {
	if other == nil {
		return
	}
	if other.Name != "" {
		p.Name = other.Name
	}
	if other.Role != "" {
		p.Role = other.Role
	}
	if other.CompanyName != "" {
		p.CompanyName = other.CompanyName
	}
	if other.Email != "" {
		p.Email = other.Email
	}
	if other.Phone != "" {
		p.Phone = other.Phone
	}
	if other.MobilePhone != "" {
		p.MobilePhone = other.MobilePhone
	}
	if other.OfficePhone != "" {
		p.OfficePhone = other.OfficePhone
	}
	if other.Website != "" {
		p.Website = other.Website
	}
	if other.LinkedIn != "" {
		p.LinkedIn = other.LinkedIn
	}
	if other.Address != "" {
		p.Address = other.Address
	}
}
