package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/mikey/mail-triage/internal/core"
)

var bareURL = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"')]+`)

// links returns HTML anchors in document order followed by bare URLs of the
// plain text part that no anchor already points to
func (e *Extractor) links(found *parts) []core.Link {
	var links []core.Link
	seen := make(map[string]bool)

	add := func(link core.Link) bool {
		key := link.Href + "\x00" + link.Text
		if link.Href == "" || seen[key] {
			return len(links) < e.maxLinks
		}
		seen[key] = true
		seen[link.Href] = true
		links = append(links, link)
		return len(links) < e.maxLinks
	}

	if found.html != "" {
		for _, link := range anchors(found.html) {
			if !add(link) {
				return links
			}
		}
	}

	for _, href := range bareURL.FindAllString(found.plain, -1) {
		href = strings.TrimRight(href, ".,;:!?")
		if seen[href] {
			continue
		}
		if !add(core.Link{Href: href}) {
			return links
		}
	}
	return links
}

// anchors extracts <a href> elements with their collapsed visible text
func anchors(doc string) []core.Link {
	var links []core.Link
	z := html.NewTokenizer(strings.NewReader(doc))

	var current *core.Link
	var text strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			if current != nil {
				current.Text = strings.Join(strings.Fields(text.String()), " ")
				links = append(links, *current)
			}
			return links
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if atom.Lookup(name) != atom.A {
				continue
			}
			if current != nil {
				current.Text = strings.Join(strings.Fields(text.String()), " ")
				links = append(links, *current)
				current = nil
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if strings.EqualFold(string(key), "href") {
					if href := strings.TrimSpace(string(val)); href != "" {
						current = &core.Link{Href: href}
						text.Reset()
					}
				}
			}
		case html.TextToken:
			if current != nil {
				text.Write(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if current != nil && atom.Lookup(name) == atom.A {
				current.Text = strings.Join(strings.Fields(text.String()), " ")
				links = append(links, *current)
				current = nil
			}
		}
	}
}
