// Package registry loads the list of projects included in the catalog.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/hyperifyio/catalogbuilder/internal/source"
)

// ErrProjectNotFound is returned by Only when no entry has the requested repo.
var ErrProjectNotFound = errors.New("project not in registry")

// Format is the registry file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Entry is one registered project.
type Entry struct {
	Org    string `json:"org" yaml:"org"`
	Repo   string `json:"repo" yaml:"repo"`
	Branch string `json:"branch" yaml:"branch"`
}

// ID identifies the entry in the catalog.
func (e Entry) ID() string { return e.Ref().String() }

// Ref is the repository branch the entry points at.
func (e Entry) Ref() source.Repo {
	return source.Repo{Org: e.Org, Repo: e.Repo, Branch: e.Branch}
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Validate checks that the entry can be turned into GitHub paths.
func (e Entry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Org, validation.Required, validation.Match(namePattern)),
		validation.Field(&e.Repo, validation.Required, validation.Match(namePattern)),
		validation.Field(&e.Branch, validation.Required, validation.By(func(value any) error {
			b, _ := value.(string)
			if strings.ContainsAny(b, " \t\n\\~^:?*[") || strings.Contains(b, "..") ||
				strings.HasPrefix(b, "/") || strings.HasPrefix(b, "-") || strings.HasSuffix(b, "/") {
				return validation.NewError("registry.branch_invalid", "is not a valid branch name")
			}
			return nil
		})),
	)
}

// Parse decodes and validates a registry document.
func Parse(data []byte, format Format) ([]Entry, error) {
	var entries []Entry
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decode registry yaml: %w", err)
		}
	case FormatJSON, "":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&entries); err != nil {
			return nil, fmt.Errorf("decode registry json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported registry format %q", format)
	}
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		e.Org = strings.TrimSpace(e.Org)
		e.Repo = strings.TrimSpace(e.Repo)
		e.Branch = strings.TrimSpace(e.Branch)
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("registry entry %d: %w", i, err)
		}
		key := strings.ToLower(e.ID())
		if j, dup := seen[key]; dup {
			return nil, fmt.Errorf("registry entry %d duplicates entry %d (%s)", i, j, e.ID())
		}
		seen[key] = i
		entries[i] = e
	}
	return entries, nil
}

// Load reads a registry file; .yaml and .yml are YAML, anything else JSON.
func Load(path string) ([]Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	format := FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}
	return Parse(b, format)
}

// Only keeps the first entry whose repo name equals repo.
func Only(entries []Entry, repo string) ([]Entry, error) {
	for _, e := range entries {
		if e.Repo == repo {
			return []Entry{e}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, repo)
}

// Sort orders entries by repo name, case-insensitively, then by org and branch.
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := strings.ToUpper(entries[i].Repo), strings.ToUpper(entries[j].Repo)
		if a != b {
			return a < b
		}
		if entries[i].Org != entries[j].Org {
			return entries[i].Org < entries[j].Org
		}
		return entries[i].Branch < entries[j].Branch
	})
}
