// Package parser extracts titles and wikilinks from Markdown content.
package parser

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)

var md = goldmark.New()

// Result holds the output of parsing a Markdown document body.
type Result struct {
	Title string
	Links []string
}

// Parse extracts the title (first heading) and wikilink targets from body.
func Parse(body string) *Result {
	return &Result{
		Title: firstHeading(body),
		Links: ExtractLinks(body),
	}
}

// firstHeading walks the Markdown AST and returns the text of the first
// heading, or empty string when the document has none.
func firstHeading(body string) string {
	src := []byte(body)
	root := md.Parser().Parse(text.NewReader(src))
	var title string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			var sb strings.Builder
			for c := h.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					sb.Write(t.Segment.Value(src))
				}
			}
			title = strings.TrimSpace(sb.String())
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

// ExtractLinks returns deduplicated wikilink targets from body. Aliases
// ([[Target|Alias]]) resolve to the target and heading fragments
// ([[Target#Section]]) are stripped.
func ExtractLinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := m[1]
		if i := strings.Index(target, "|"); i >= 0 {
			target = target[:i]
		}
		if i := strings.Index(target, "#"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}
