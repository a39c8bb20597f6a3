// Package manifest decodes the per-project catalog manifest and holds the
// allowed attribute table.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// FileName is the manifest every project keeps at its repository root.
const FileName = "psl_catalog.json"

// LegacyFileName is the capitalized spelling older projects still use.
const LegacyFileName = "PSL_catalog.json"

// Kind is the closed set of attribute sources.
type Kind string

const (
	// KindRemoteDocument pulls a section of a Markdown file from the project repository.
	KindRemoteDocument Kind = "github_file"
	// KindInline takes the attribute value from the manifest itself.
	KindInline Kind = "html"
)

// AttributeSpec is one manifest entry. Optional fields are pointers so that
// JSON null and a missing key are both nil.
type AttributeSpec struct {
	Type        string  `json:"type"`
	StartHeader *string `json:"start_header,omitempty"`
	EndHeader   *string `json:"end_header,omitempty"`
	Data        *string `json:"data,omitempty"`
	Source      *string `json:"source,omitempty"`
}

// Manifest maps attribute keys to their specs.
type Manifest map[string]AttributeSpec

// Keys returns the manifest keys in sorted order.
func (m Manifest) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// Start returns the start header name, or "" when unset.
func (s AttributeSpec) Start() string { return deref(s.StartHeader) }

// End returns the end header name, or "" when unset.
func (s AttributeSpec) End() string { return deref(s.EndHeader) }

// Path returns the source path for remote documents.
func (s AttributeSpec) Path() string { return deref(s.Source) }

var markdownExts = map[string]bool{".md": true, ".markdown": true, ".mdown": true, ".mkd": true}

// Validate checks the per-kind invariants and returns the attribute kind.
// An inline spec without data is valid; it renders as an absent attribute.
func (s AttributeSpec) Validate(key string) (Kind, error) {
	switch Kind(s.Type) {
	case KindRemoteDocument:
		p := s.Path()
		if p == "" {
			return "", &InvalidSpecError{Key: key, Reason: "source is required for type github_file"}
		}
		if strings.HasPrefix(p, "/") || strings.Contains(p, "\\") || containsDotDot(p) {
			return "", &InvalidSpecError{Key: key, Reason: fmt.Sprintf("source %q must be a relative repository path", p)}
		}
		if !markdownExts[strings.ToLower(path.Ext(p))] {
			return "", &InvalidSpecError{Key: key, Reason: fmt.Sprintf("source %q is not a markdown file", p)}
		}
		return KindRemoteDocument, nil
	case KindInline:
		return KindInline, nil
	case "":
		return "", &InvalidSpecError{Key: key, Reason: "type is required"}
	default:
		return "", &InvalidSpecError{Key: key, Reason: fmt.Sprintf("unrecognized type %q", s.Type)}
	}
}

func containsDotDot(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// structure is checked before decoding: the manifest is an object of objects
// whose known fields are strings or null. Tag and key checks happen per
// attribute later so one bad entry does not reject the file.
const structure = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "properties": {
      "type":         {"type": "string"},
      "start_header": {"type": ["string", "null"]},
      "end_header":   {"type": ["string", "null"]},
      "data":         {"type": ["string", "null"]},
      "source":       {"type": ["string", "null"]}
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("manifest.json", strings.NewReader(structure)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile("manifest.json")
	})
	return schema, schemaErr
}

// Parse decodes and structurally validates a manifest. Failures are
// *ManifestError without project identity; callers fill it in.
func Parse(data []byte) (Manifest, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ManifestError{Reason: "invalid JSON", Err: err}
	}
	s, err := compiledSchema()
	if err != nil {
		return nil, &ManifestError{Reason: "schema", Err: err}
	}
	if err := s.Validate(raw); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return nil, &ManifestError{Reason: "invalid structure", Err: err, Issues: collectIssues(verr)}
		}
		return nil, &ManifestError{Reason: "invalid structure", Err: err}
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{Reason: "decode", Err: err}
	}
	return m, nil
}

func collectIssues(err *jsonschema.ValidationError) []string {
	var issues []string
	var walk func(*jsonschema.ValidationError)
	walk = func(node *jsonschema.ValidationError) {
		if node == nil {
			return
		}
		if len(node.Causes) == 0 {
			loc := node.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			issues = append(issues, loc+": "+strings.TrimSpace(node.Message))
			return
		}
		for _, c := range node.Causes {
			walk(c)
		}
	}
	walk(err)
	return issues
}
