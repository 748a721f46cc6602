// Package render turns answer HTML into terminal text.
package render

import (
	"strings"

	"golang.org/x/net/html"
)

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "table": true, "blockquote": true, "pre": true,
}

// Text returns the readable text of an HTML fragment. Block elements start a
// new line and list items get a "- " prefix. Plain text passes through with
// its whitespace normalized.
func Text(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return normalize(fragment)
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{Type: html.ElementNode, Data: "body"})
	if err != nil {
		return normalize(fragment)
	}
	var buf strings.Builder
	for _, n := range nodes {
		walk(&buf, n)
	}
	return normalize(buf.String())
}

func walk(buf *strings.Builder, node *html.Node) {
	switch node.Type {
	case html.TextNode:
		buf.WriteString(node.Data)
	case html.ElementNode:
		switch node.Data {
		case "script", "style":
			return
		case "li":
			buf.WriteString("\n- ")
		default:
			if blockTags[node.Data] {
				buf.WriteString("\n")
			}
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		walk(buf, child)
	}
	if node.Type == html.ElementNode && blockTags[node.Data] && node.Data != "br" {
		buf.WriteString("\n")
	}
}

// normalize collapses runs of spaces inside each line and drops blank lines.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
