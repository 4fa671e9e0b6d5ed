package session

import (
	"strings"

	"golang.org/x/net/html"
)

// Defaults shown when the origin metadata lacks a field.
const (
	UnknownTitle  = "Unknown Title"
	NoDescription = "No description available"
)

// Metadata is the display information carried in a book's HTML metadata.
type Metadata struct {
	Title       string
	Description string
	Image       string
	Raw         string
}

// ParseMetadata extracts the title, description and cover image from meta
// tags: name="title", name="description" and property="og:image". The first
// non-empty tag of each kind wins.
func ParseMetadata(raw string) Metadata {
	md := Metadata{Raw: raw}
	doc, err := html.Parse(strings.NewReader(raw))
	if err == nil {
		walk(doc, func(n *html.Node) {
			if n.Type != html.ElementNode || n.Data != "meta" {
				return
			}
			content := strings.TrimSpace(attr(n, "content"))
			if content == "" {
				return
			}
			switch {
			case strings.EqualFold(attr(n, "name"), "title") && md.Title == "":
				md.Title = content
			case strings.EqualFold(attr(n, "name"), "description") && md.Description == "":
				md.Description = content
			case strings.EqualFold(attr(n, "property"), "og:image") && md.Image == "":
				md.Image = content
			}
		})
	}
	if md.Title == "" {
		md.Title = UnknownTitle
	}
	if md.Description == "" {
		md.Description = NoDescription
	}
	return md
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
