// Package signature extracts structured contact data from the trailing
// signature block of an email body. Extraction is best-effort: every field
// of the resulting profile is optional and the parser never fails, whatever
// the input looks like.
package signature

import (
	"regexp"
	"strings"

	"github.com/tidycrm/mailsync/pkg/models"
)

// fallbackLines is how many trailing lines are treated as the signature
// when no separator is found.
const fallbackLines = 10

// Closing salutations per locale; a line starting with one of these marks
// the beginning of the signature block.
var salutations = map[string][]string{
	"en": {
		"best regards", "kind regards", "warm regards", "regards",
		"sincerely", "best wishes", "thanks", "thank you", "cheers", "best",
	},
	"it": {
		"cordiali saluti", "distinti saluti", "un saluto", "saluti",
		"grazie", "a presto", "buona giornata",
	},
}

var separatorRegex = regexp.MustCompile(`^(--|__+|—)\s*$`)

// Parser extracts SignatureProfiles from message bodies.
type Parser struct {
	salutations []string

	emailRegex    *regexp.Regexp
	phoneRegex    *regexp.Regexp
	urlRegex      *regexp.Regexp
	linkedinRegex *regexp.Regexp
	addressRegex  *regexp.Regexp
	digitsRegex   *regexp.Regexp
}

// NewParser creates a parser for the given salutation locale. Unknown
// locales fall back to English.
func NewParser(locale string) *Parser {
	sal, ok := salutations[strings.ToLower(locale)]
	if !ok {
		sal = salutations["en"]
	}
	return &Parser{
		salutations:   sal,
		emailRegex:    regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
		phoneRegex:    regexp.MustCompile(`\+?\(?\d[\d\s\-().\/]{6,}\d`),
		urlRegex:      regexp.MustCompile(`(?i)(https?://[^\s<>"]+|www\.[^\s<>"]+)`),
		linkedinRegex: regexp.MustCompile(`(?i)linkedin\.com/(?:in|company)/([A-Za-z0-9\-_%.]+)`),
		// Digit-led fragment followed by a locality after a comma.
		addressRegex: regexp.MustCompile(`^\d+[\w\s.\-]*,\s*[A-Za-z][\w\s.\-]*`),
		digitsRegex:  regexp.MustCompile(`\d`),
	}
}

// Parse returns the profile extracted from the plain-text and/or HTML body.
// HTML-derived fields take precedence over text-derived ones; fields found
// only in plain text are kept. Absence of any field is a valid outcome.
func (p *Parser) Parse(text, html string) *models.SignatureProfile {
	htmlProfile, htmlBlock := p.parseHTML(html)

	block := p.locateBlock(text)
	profile := p.parseText(block)

	if htmlBlock != "" {
		// The explicit container is the more trustworthy block.
		profile.Merge(p.parseText(htmlBlock))
		block = htmlBlock
	}
	profile.Merge(htmlProfile)
	profile.RawText = block
	return profile
}

// locateBlock isolates the signature portion of a plain-text body: the text
// after the first separator or salutation line, or the trailing lines of
// the message when neither is present.
func (p *Parser) locateBlock(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if separatorRegex.MatchString(trimmed) || p.isSalutation(trimmed) {
			if i+1 < len(lines) {
				return strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
			}
			return ""
		}
	}

	// No separator: assume the signature sits in the last few lines.
	start := len(lines) - fallbackLines
	if start < 0 {
		start = 0
	}
	return strings.TrimSpace(strings.Join(lines[start:], "\n"))
}

func (p *Parser) isSalutation(line string) bool {
	lower := strings.ToLower(strings.TrimRight(line, " ,."))
	for _, s := range p.salutations {
		if lower == s || strings.HasPrefix(lower, s+",") {
			return true
		}
	}
	return false
}
