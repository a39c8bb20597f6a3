// Package headers locates Markdown headings and the byte span each one owns.
package headers

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Node is a single heading. Start is the offset of the first byte of the
// heading line; End is the offset where the next heading line starts, or the
// document length for the last heading.
type Node struct {
	Level int
	Text  string
	Start int
	End   int
	Line  int
}

// Parse returns the headings of src in document order. ATX and setext
// headings are both recognized; heading-like lines inside code blocks are not.
// Headings with no text cannot be named and are left out.
func Parse(src []byte) []Node {
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var nodes []Node
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		lines := h.Lines()
		if lines.Len() == 0 {
			return ast.WalkSkipChildren, nil
		}
		var b strings.Builder
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			if i > 0 {
				b.WriteByte(' ')
			}
			b.Write(bytes.TrimSpace(seg.Value(src)))
		}
		title := strings.TrimSpace(b.String())
		if title == "" {
			return ast.WalkSkipChildren, nil
		}
		start := lineStart(src, lines.At(0).Start)
		nodes = append(nodes, Node{
			Level: h.Level,
			Text:  title,
			Start: start,
			Line:  bytes.Count(src[:start], []byte("\n")) + 1,
		})
		return ast.WalkSkipChildren, nil
	})

	for i := range nodes {
		if i+1 < len(nodes) {
			nodes[i].End = nodes[i+1].Start
		} else {
			nodes[i].End = len(src)
		}
	}
	return nodes
}

func lineStart(src []byte, pos int) int {
	if pos > len(src) {
		pos = len(src)
	}
	if i := bytes.LastIndexByte(src[:pos], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}

// Query is a parsed header name as written in a manifest.
//
// A name may carry ATX markers ("## Overview"); the marker count then has to
// equal the heading level. A bare name ("Overview") matches at any level.
// Text comparison is Unicode case-insensitive after NFC normalization, with
// runs of whitespace collapsed and any closing "#" sequence ignored.
type Query struct {
	Level int
	Text  string
	Raw   string
}

// ParseQuery splits name into its optional level and normalized text.
func ParseQuery(name string) Query {
	q := Query{Raw: name}
	s := strings.TrimSpace(name)
	hashes := 0
	for hashes < len(s) && s[hashes] == '#' {
		hashes++
	}
	if hashes >= 1 && hashes <= 6 && (hashes == len(s) || s[hashes] == ' ' || s[hashes] == '\t') {
		q.Level = hashes
		s = s[hashes:]
	}
	q.Text = normalize(trimClosing(s))
	return q
}

// Matches reports whether n is the heading q names.
func (q Query) Matches(n Node) bool {
	if q.Level != 0 && q.Level != n.Level {
		return false
	}
	return q.Text == normalize(trimClosing(n.Text))
}

// Find returns the index of the first node at or after from that q matches.
func Find(nodes []Node, q Query, from int) (int, bool) {
	if from < 0 {
		from = 0
	}
	for i := from; i < len(nodes); i++ {
		if q.Matches(nodes[i]) {
			return i, true
		}
	}
	return -1, false
}

func trimClosing(s string) string {
	s = strings.TrimSpace(s)
	t := strings.TrimRight(s, "#")
	if t == s {
		return s
	}
	if t == "" || strings.HasSuffix(t, " ") || strings.HasSuffix(t, "\t") {
		return strings.TrimSpace(t)
	}
	return s
}

func normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	// Casers hold state, so one is built per call.
	return cases.Fold().String(s)
}
