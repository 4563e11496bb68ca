// Package knowledge builds the RAG corpus: fetch configured source pages,
// extract the main content, chunk it, embed each chunk, and store it.
package knowledge

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Element is one extracted piece of page content.
type Element struct {
	Kind string // "heading", "paragraph", "code", "list", "table"
	Text string
}

// containerClasses are class/id fragments that usually mark the main
// content region of a page.
var containerClasses = []string{
	"post-content", "entry-content", "content", "post", "article",
	"page-content", "blog-post", "blog-content", "markdown",
	"documentation", "docs", "doc-content",
	"terms", "legal", "description", "text-content",
}

// skipClasses mark layout chrome that never carries content.
var skipClasses = []string{"nav", "navbar", "header", "footer", "sidebar", "menu"}

// ExtractElements finds the main content region of a parsed page and pulls
// its headings, paragraphs, code blocks, lists, and tables in document
// order. Pages with no recognizable structure degrade to one paragraph of
// all visible text.
func ExtractElements(doc *html.Node) []Element {
	content := findContent(doc)
	if content == nil {
		return nil
	}

	var out []Element
	walkContent(content, &out)

	if len(out) == 0 {
		if text := cleanText(collectText(content)); text != "" {
			out = append(out, Element{Kind: "paragraph", Text: text})
		}
	}
	return out
}

// findContent picks the most likely content container: semantic tags first,
// then well-known content classes, then the text-densest div, then body.
func findContent(doc *html.Node) *html.Node {
	for _, tag := range []string{"article", "main", "section"} {
		if n := findFirst(doc, func(n *html.Node) bool {
			return n.Data == tag && strings.TrimSpace(collectText(n)) != ""
		}); n != nil {
			return n
		}
	}

	if n := findFirst(doc, func(n *html.Node) bool {
		if n.Data != "div" {
			return false
		}
		marker := strings.ToLower(attr(n, "class") + " " + attr(n, "id"))
		for _, c := range containerClasses {
			if strings.Contains(marker, c) {
				return strings.TrimSpace(collectText(n)) != ""
			}
		}
		return false
	}); n != nil {
		return n
	}

	// Text-density fallback: the div with the most text that is not
	// obviously chrome.
	var best *html.Node
	bestLen := 100
	visit(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "div" || isChrome(n) {
			return
		}
		if l := len(collectText(n)); l > bestLen {
			best, bestLen = n, l
		}
	})
	if best != nil {
		return best
	}

	return findFirst(doc, func(n *html.Node) bool { return n.Data == "body" })
}

func walkContent(n *html.Node, out *[]Element) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			if text := cleanText(collectText(n)); text != "" {
				*out = append(*out, Element{Kind: "heading", Text: text})
			}
			return
		case "p", "blockquote":
			if text := cleanText(collectText(n)); text != "" {
				*out = append(*out, Element{Kind: "paragraph", Text: text})
			}
			return
		case "pre", "code":
			if text := cleanText(collectText(n)); text != "" {
				*out = append(*out, Element{Kind: "code", Text: "Code: " + text})
			}
			return
		case "ul", "ol":
			var items []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && c.Data == "li" {
					if text := cleanText(collectText(c)); text != "" {
						items = append(items, "- "+text)
					}
				}
			}
			if len(items) > 0 {
				*out = append(*out, Element{Kind: "list", Text: strings.Join(items, "\n")})
			}
			return
		case "table":
			if text := cleanText(collectText(n)); text != "" {
				*out = append(*out, Element{Kind: "table", Text: "Table: " + text})
			}
			return
		case "script", "style", "nav", "header", "footer":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkContent(c, out)
	}
}

func isChrome(n *html.Node) bool {
	marker := strings.ToLower(attr(n, "class") + " " + attr(n, "id"))
	for _, c := range skipClasses {
		if strings.Contains(marker, c) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func visit(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visit(c, fn)
	}
}

// collectText concatenates the visible text under n, skipping script and
// style subtrees.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return sb.String()
}

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	junkPattern       = regexp.MustCompile(`[^\w\s.,!?;:()\[\]{}/'"-]`)
)

// cleanText collapses whitespace and strips characters that carry no
// semantic weight for embedding.
func cleanText(s string) string {
	s = junkPattern.ReplaceAllString(s, "")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
