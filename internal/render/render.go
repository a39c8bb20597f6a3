// Package render turns catalog attribute text into HTML fragments.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
)

// Kind tells the renderer what the input text is.
type Kind string

const (
	KindMarkdown  Kind = "markdown"
	KindHTML      Kind = "already-html"
	KindPlainText Kind = "plain-text"
)

// Options configures Markdown conversion.
type Options struct {
	// Extensions names goldmark extensions; empty selects gfm, linkify and tasklist.
	Extensions []string
	HardWraps  bool
	// HeadingIDs adds id attributes to rendered headings.
	HeadingIDs bool
}

// DefaultOptions is what the catalog uses for project documents.
func DefaultOptions() Options {
	return Options{HeadingIDs: true}
}

// Renderer converts text to sanitized HTML. It holds no per-call state and is
// safe for concurrent use.
type Renderer struct {
	opts Options
}

func New(opts Options) *Renderer {
	return &Renderer{opts: opts}
}

// Error is returned when input cannot be rendered.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("render %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Render produces an HTML fragment for text. The output depends only on text,
// kind and the renderer options.
func (r *Renderer) Render(text string, kind Kind) (string, error) {
	switch kind {
	case KindMarkdown:
		var buf bytes.Buffer
		if err := r.engine().Convert([]byte(text), &buf); err != nil {
			return "", &Error{Kind: kind, Err: err}
		}
		out, err := Sanitize(buf.String())
		if err != nil {
			return "", &Error{Kind: kind, Err: err}
		}
		return out, nil
	case KindHTML:
		out, err := Sanitize(text)
		if err != nil {
			return "", &Error{Kind: kind, Err: err}
		}
		return out, nil
	case KindPlainText:
		return plainText(text), nil
	default:
		return "", &Error{Kind: kind, Err: fmt.Errorf("unknown content kind")}
	}
}

func (r *Renderer) engine() goldmark.Markdown {
	var parserOptions []parser.Option
	if r.opts.HeadingIDs {
		parserOptions = append(parserOptions, parser.WithAutoHeadingID())
	}
	// Raw HTML in READMEs (badges, centered logos) is kept and then sanitized.
	rendererOptions := []renderer.Option{gmhtml.WithUnsafe()}
	if r.opts.HardWraps {
		rendererOptions = append(rendererOptions, gmhtml.WithHardWraps())
	}
	return goldmark.New(
		goldmark.WithExtensions(collectExtensions(r.opts.Extensions)...),
		goldmark.WithParserOptions(parserOptions...),
		goldmark.WithRendererOptions(rendererOptions...),
	)
}

var extensionRegistry = map[string]goldmark.Extender{
	"gfm":           extension.GFM,
	"table":         extension.Table,
	"strikethrough": extension.Strikethrough,
	"linkify":       extension.Linkify,
	"tasklist":      extension.TaskList,
	"definition":    extension.DefinitionList,
	"footnote":      extension.Footnote,
}

// KnownExtension reports whether name selects a Markdown extension.
func KnownExtension(name string) bool {
	_, ok := extensionRegistry[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func collectExtensions(names []string) []goldmark.Extender {
	if len(names) == 0 {
		return []goldmark.Extender{extension.GFM, extension.Linkify, extension.TaskList}
	}
	var out []goldmark.Extender
	seen := map[string]struct{}{}
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := seen[key]; dup {
			continue
		}
		if ext, ok := extensionRegistry[key]; ok {
			out = append(out, ext)
			seen[key] = struct{}{}
		}
	}
	return out
}

// plainText escapes s for literal display. A single paragraph stays inline so
// short values such as a license name render as-is; several paragraphs are
// wrapped in <p> elements. Line breaks inside a paragraph become <br>.
func plainText(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	if s == "" {
		return ""
	}
	paras := splitParagraphs(s)
	if len(paras) == 1 {
		return escapeLines(paras[0])
	}
	var b strings.Builder
	for _, p := range paras {
		b.WriteString("<p>")
		b.WriteString(escapeLines(p))
		b.WriteString("</p>\n")
	}
	return b.String()
}

func splitParagraphs(s string) []string {
	var out []string
	var cur []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				out = append(out, strings.Join(cur, "\n"))
				cur = nil
			}
			continue
		}
		cur = append(cur, strings.TrimSpace(line))
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, "\n"))
	}
	return out
}

func escapeLines(p string) string {
	lines := strings.Split(p, "\n")
	for i, l := range lines {
		lines[i] = html.EscapeString(l)
	}
	return strings.Join(lines, "<br>\n")
}
