package signature

import (
	"strings"

	"github.com/tidycrm/mailsync/pkg/models"
)

var mobileKeywords = []string{"mobile", "cell", "mob.", "mob:", "m.", "m:", "cel."}
var officeKeywords = []string{"office", "work", "ofc", "o.", "o:", "direct"}

// parseText applies the ordered plain-text heuristics to an isolated
// signature block. Scans are independent: a line can contribute both a
// phone number and a keyword tag.
func (p *Parser) parseText(block string) *models.SignatureProfile {
	profile := &models.SignatureProfile{}
	if block == "" {
		return profile
	}

	lines := strings.Split(block, "\n")

	// First three "plain" lines (no address, no URL, no phone) are taken
	// as name, role and company, in that order.
	plainSeen := 0
	for _, line := range lines {
		trimmed := strings.Trim(line, " \t-|")
		if trimmed == "" || !p.isPlainLine(trimmed) {
			continue
		}
		switch plainSeen {
		case 0:
			profile.Name = strings.TrimRight(trimmed, ",")
		case 1:
			profile.Role = trimmed
		case 2:
			profile.CompanyName = trimmed
		}
		plainSeen++
		if plainSeen == 3 {
			break
		}
	}

	for _, line := range lines {
		p.scanLine(line, profile)
	}

	return profile
}

// isPlainLine reports whether a line carries none of the machine-readable
// tokens, which makes it a candidate for name/role/company.
func (p *Parser) isPlainLine(line string) bool {
	if strings.Contains(line, "@") {
		return false
	}
	if p.urlRegex.MatchString(line) {
		return false
	}
	if p.phoneRegex.MatchString(line) {
		return false
	}
	// Address-like lines are also excluded from the name walk.
	if p.addressRegex.MatchString(line) {
		return false
	}
	return true
}

// scanLine extracts email, phones, website, handle and address from a
// single line, filling only fields that are still empty.
func (p *Parser) scanLine(line string, profile *models.SignatureProfile) {
	if profile.Email == "" {
		if m := p.emailRegex.FindString(line); m != "" {
			profile.Email = m
		}
	}

	if m := p.linkedinRegex.FindStringSubmatch(line); m != nil && profile.LinkedIn == "" {
		profile.LinkedIn = strings.TrimRight(m[1], "/")
	} else if profile.Website == "" {
		if m := p.urlRegex.FindString(line); m != "" && !strings.Contains(strings.ToLower(m), "linkedin.com") {
			profile.Website = strings.TrimRight(m, "/.,")
		}
	}

	// Phone extraction avoids lines that matched as email or URL: numbers
	// inside addresses or URLs are not phone numbers.
	if !strings.Contains(line, "@") && !p.urlRegex.MatchString(line) {
		if m := p.phoneRegex.FindString(line); m != "" {
			assignPhone(profile, strings.ToLower(line), strings.TrimSpace(m))
		}
	}

	if profile.Address == "" {
		if m := p.addressRegex.FindString(strings.TrimSpace(line)); m != "" {
			profile.Address = strings.TrimSpace(line)
		}
	}
}

// assignPhone tags a number as mobile, office or general based on keywords
// found near it on the same line.
func assignPhone(profile *models.SignatureProfile, lowerLine, number string) {
	for _, kw := range mobileKeywords {
		if strings.Contains(lowerLine, kw) {
			if profile.MobilePhone == "" {
				profile.MobilePhone = number
			}
			return
		}
	}
	for _, kw := range officeKeywords {
		if strings.Contains(lowerLine, kw) {
			if profile.OfficePhone == "" {
				profile.OfficePhone = number
			}
			return
		}
	}
	if profile.Phone == "" {
		profile.Phone = number
	}
}
