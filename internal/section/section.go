// Package section slices a Markdown document between two named headings.
package section

import (
	"fmt"
	"strings"

	"github.com/hyperifyio/catalogbuilder/internal/headers"
)

// Document is fetched Markdown together with its parsed headings.
type Document struct {
	Name    string
	Source  []byte
	Headers []headers.Node
}

// NewDocument parses src once so several extractions can share the result.
func NewDocument(name string, src []byte) Document {
	return Document{Name: name, Source: src, Headers: headers.Parse(src)}
}

// HeaderNotFoundError reports a requested heading missing from a document.
type HeaderNotFoundError struct {
	Header   string
	Document string
}

func (e *HeaderNotFoundError) Error() string {
	return fmt.Sprintf("header %q not found in %s", e.Header, e.Document)
}

// HeaderOrderError reports an end heading that only occurs before the start heading.
type HeaderOrderError struct {
	Start    string
	End      string
	Document string
}

func (e *HeaderOrderError) Error() string {
	return fmt.Sprintf("end header %q appears before start header %q in %s", e.End, e.Start, e.Document)
}

// Extract returns the part of doc selected by start and end. Blank names are
// treated as not given.
//
//   - neither: the whole document
//   - start only: from the start heading line (included) to the end
//   - end only: from the beginning up to the end heading line (excluded)
//   - both: from the start heading line to the first matching end heading
//     after it
//
// Heading names follow headers.ParseQuery; the first match wins.
func Extract(doc Document, start, end string) (string, error) {
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)
	src := doc.Source

	from, to := 0, len(src)
	startIdx := -1
	if start != "" {
		i, ok := headers.Find(doc.Headers, headers.ParseQuery(start), 0)
		if !ok {
			return "", &HeaderNotFoundError{Header: start, Document: doc.Name}
		}
		startIdx = i
		from = doc.Headers[i].Start
	}
	if end != "" {
		q := headers.ParseQuery(end)
		j, ok := headers.Find(doc.Headers, q, startIdx+1)
		if !ok {
			if startIdx >= 0 {
				if _, before := headers.Find(doc.Headers, q, 0); before {
					return "", &HeaderOrderError{Start: start, End: end, Document: doc.Name}
				}
			}
			return "", &HeaderNotFoundError{Header: end, Document: doc.Name}
		}
		to = doc.Headers[j].Start
	}
	return string(src[from:to]), nil
}
