package render

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// droppedElements never survive sanitizing, children included.
var droppedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Frame:    true,
	atom.Frameset: true,
	atom.Base:     true,
	atom.Link:     true,
	atom.Meta:     true,
	atom.Template: true,
}

var urlAttributes = map[string]bool{
	"href": true, "src": true, "action": true, "formaction": true,
	"background": true, "poster": true, "cite": true, "xlink:href": true,
}

// Sanitize parses fragment as body content and re-serializes it without
// active content: scripts, embedded frames, event handler attributes and
// script URLs are removed. Entities already present are decoded once and
// re-encoded once, so input is never double-escaped.
func Sanitize(fragment string) (string, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for _, n := range nodes {
		if dropped(n) {
			continue
		}
		clean(n)
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func clean(n *html.Node) {
	if n.Type == html.ElementNode {
		n.Attr = safeAttrs(n.Attr)
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if dropped(c) {
			n.RemoveChild(c)
		} else {
			clean(c)
		}
		c = next
	}
}

func dropped(n *html.Node) bool {
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return true
	case html.ElementNode:
		if droppedElements[n.DataAtom] {
			return true
		}
		// Unknown elements have a zero atom; compare by name for the few
		// dangerous ones that may arrive in odd casing or namespaces.
		name := strings.ToLower(n.Data)
		return name == "script" || name == "iframe"
	}
	return false
}

func safeAttrs(attrs []html.Attribute) []html.Attribute {
	out := attrs[:0]
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "on") || key == "srcdoc" || key == "style" {
			continue
		}
		if urlAttributes[key] && unsafeURL(key, a.Val) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func unsafeURL(key, val string) bool {
	v := strings.Map(func(r rune) rune {
		if r <= ' ' {
			return -1
		}
		return r
	}, strings.ToLower(val))
	switch {
	case strings.HasPrefix(v, "javascript:"), strings.HasPrefix(v, "vbscript:"):
		return true
	case strings.HasPrefix(v, "data:"):
		return !(key == "src" && strings.HasPrefix(v, "data:image/"))
	}
	return false
}

// Detect classifies inline data: text containing known HTML elements or
// character references is HTML, anything else is plain text.
func Detect(data string) Kind {
	z := html.NewTokenizer(strings.NewReader(strings.ReplaceAll(data, "\r\n", "\n")))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return KindPlainText
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) != 0 {
				return KindHTML
			}
		case html.TextToken:
			raw := string(z.Raw())
			if raw != string(z.Text()) {
				return KindHTML
			}
		}
	}
}
