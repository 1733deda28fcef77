package readme

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// MaxSummary bounds the length of a summary in runes.
const MaxSummary = 200

// Summary returns the text of the first non-empty paragraph of rendered
// README HTML, whitespace-collapsed and cut to MaxSummary runes.
func Summary(rendered string) string {
	if rendered == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(rendered))
	if err != nil {
		return ""
	}

	var found string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "p" {
			if text := strings.Join(strings.Fields(extractText(n)), " "); text != "" {
				found = text
				return true
			}
			return false
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)

	if utf8.RuneCountInString(found) > MaxSummary {
		r := []rune(found)
		found = strings.TrimSpace(string(r[:MaxSummary-1])) + "…"
	}
	return found
}

func extractText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(extractText(c))
	}
	return b.String()
}
