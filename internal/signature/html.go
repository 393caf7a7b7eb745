package signature

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tidycrm/mailsync/pkg/models"
)

// Selectors for containers mail clients conventionally wrap signatures in.
const signatureSelectors = `.gmail_signature, [class*="signature"], [id*="Signature"], [id*="signature"]`

// parseHTML extracts structured fields from hyperlinks in the HTML body and
// returns the plain text of the signature container, when one is present.
// Malformed HTML yields an empty profile, never an error.
func (p *Parser) parseHTML(html string) (*models.SignatureProfile, string) {
	profile := &models.SignatureProfile{}
	if strings.TrimSpace(html) == "" {
		return profile, ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return profile, ""
	}

	root := doc.Selection
	block := ""
	if sig := doc.Find(signatureSelectors).First(); sig.Length() > 0 {
		root = sig
		block = containerText(sig)
	}

	root.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		lower := strings.ToLower(href)
		label := strings.ToLower(strings.TrimSpace(a.Text()))

		switch {
		case strings.HasPrefix(lower, "mailto:"):
			if profile.Email == "" {
				addr := strings.TrimPrefix(href, href[:7])
				if i := strings.IndexAny(addr, "?&"); i >= 0 {
					addr = addr[:i]
				}
				if decoded, err := url.QueryUnescape(addr); err == nil {
					addr = decoded
				}
				profile.Email = strings.TrimSpace(addr)
			}
		case strings.HasPrefix(lower, "tel:"):
			number := strings.TrimSpace(strings.TrimPrefix(href, href[:4]))
			if decoded, err := url.QueryUnescape(number); err == nil {
				number = decoded
			}
			assignPhone(profile, label, number)
		case p.linkedinRegex.MatchString(lower):
			if profile.LinkedIn == "" {
				if m := p.linkedinRegex.FindStringSubmatch(href); m != nil {
					profile.LinkedIn = strings.TrimRight(m[1], "/")
				}
			}
		case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
			if profile.Website == "" {
				profile.Website = strings.TrimRight(href, "/")
			}
		}
	})

	return profile, block
}

// containerText flattens a signature container to line-per-block text so
// the plain-text heuristics can run over it.
func containerText(sel *goquery.Selection) string {
	sel.Find("br, p, div, tr, li").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	lines := strings.Split(sel.Text(), "\n")
	var clean []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			clean = append(clean, line)
		}
	}
	return strings.Join(clean, "\n")
}
