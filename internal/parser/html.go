// Package parser flattens HTML email bodies into the plain text the
// ingestion pipeline stores and runs signature heuristics over.
package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// blockTags are elements that start a new output line.
var blockTags = map[string]struct{}{
	"p": {}, "div": {}, "br": {}, "li": {}, "tr": {}, "table": {},
	"blockquote": {}, "ul": {}, "ol": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
}

// skipTags hold no renderable text.
var skipTags = map[string]struct{}{
	"script": {}, "style": {}, "head": {}, "title": {}, "template": {},
}

// HTMLToText converts an HTML email body to plain text, one line per
// block element, with inline markup dropped and whitespace collapsed.
func HTMLToText(src string) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, node := range doc.Selection.Nodes {
		flatten(&b, node)
	}
	return tidy(b.String()), nil
}

func flatten(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if _, skip := skipTags[n.Data]; skip {
			return
		}
		if _, block := blockTags[n.Data]; block {
			b.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		flatten(b, c)
	}
}

// tidy collapses runs of whitespace within lines and drops lines left
// empty after markup removal.
func tidy(s string) string {
	s = strings.Map(dropInvisible, s)

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// dropInvisible removes zero-width and other non-printing characters that
// mail clients routinely leave behind in HTML bodies.
func dropInvisible(r rune) rune {
	switch {
	case r >= 0x200B && r <= 0x200D, r == 0xFEFF, r == 0x00AD, r == 0x034F,
		r == 0x061C, r == 0x115F, r == 0x1160, r == 0x17B4, r == 0x17B5,
		r == 0x180E, r >= 0x2060 && r <= 0x2064, r >= 0x206A && r <= 0x206F,
		r >= 0xFE00 && r <= 0xFE0F, r >= 0xFFF0 && r <= 0xFFF8:
		return -1
	}
	return r
}
