package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const droppedTags = "script, style, aside, footer, header, nav, form"

// CleanHTML strips markup from a provider title such as "<b>손흥민</b> 골".
func CleanHTML(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(doc.Text())
}

// CleanContent reduces an article body (HTML or text) to its non-empty,
// trimmed lines. Page chrome is dropped and an <article> or div.content
// container wins over the whole document when present.
func CleanContent(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return joinLines(raw)
	}
	doc.Find(droppedTags).Remove()
	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("div.content").First()
	}
	if root.Length() == 0 {
		root = doc.Selection
	}
	return joinLines(nodeText(root))
}

// nodeText concatenates every text node under sel, one per line.
func nodeText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte('\n')
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}

func joinLines(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
