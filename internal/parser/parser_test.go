package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTitleFromFirstHeading(t *testing.T) {
	res := Parse("# Getting Started\n\nSome text.\n\n## Later\n")
	assert.Equal(t, "Getting Started", res.Title)
}

func TestParseTitleIgnoresLaterHeadings(t *testing.T) {
	res := Parse("intro paragraph\n\n## Section Two\n\n# Big One\n")
	assert.Equal(t, "Section Two", res.Title)
}

func TestParseNoHeading(t *testing.T) {
	res := Parse("just a paragraph with no heading")
	assert.Empty(t, res.Title)
}

func TestExtractLinks(t *testing.T) {
	body := "See [[alpha]] and [[beta|the second one]] plus [[gamma#setup]]."
	links := ExtractLinks(body)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, links)
}

func TestExtractLinksDeduplicates(t *testing.T) {
	links := ExtractLinks("[[a]] then [[a]] then [[a|alias]]")
	assert.Equal(t, []string{"a"}, links)
}

func TestExtractLinksSkipsEmptyTargets(t *testing.T) {
	links := ExtractLinks("[[]] and [[  ]] and [[#only-heading]] and [[real]]")
	assert.Equal(t, []string{"real"}, links)
}
