// Package catalog assembles per-project records into the catalog artifact.
package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hyperifyio/catalogbuilder/internal/resolve"
)

// Status summarizes how much of a project could be rendered.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// ProjectRecord is the catalog entry for one registry entry.
type ProjectRecord struct {
	ID         string                      `json:"id"`
	Org        string                      `json:"org"`
	Repo       string                      `json:"repo"`
	Branch     string                      `json:"branch"`
	Name       string                      `json:"name"`
	RepoURL    string                      `json:"repo_url"`
	Status     Status                      `json:"status"`
	Attributes map[string]resolve.Rendered `json:"attributes"`
	Errors     []resolve.Failure           `json:"errors,omitempty"`
}

// Ordered returns the rendered attributes sorted by key.
func (p *ProjectRecord) Ordered() []resolve.Rendered {
	out := make([]resolve.Rendered, 0, len(p.Attributes))
	for _, a := range p.Attributes {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Catalog maps project IDs to their records.
type Catalog struct {
	RunID       string                    `json:"run_id"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Projects    map[string]*ProjectRecord `json:"projects"`
}

// New returns an empty catalog stamped with a fresh run ID.
func New() *Catalog {
	return &Catalog{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Projects:    make(map[string]*ProjectRecord),
	}
}

// Sorted lists records by repo name, case-insensitively.
func (c *Catalog) Sorted() []*ProjectRecord {
	out := make([]*ProjectRecord, 0, len(c.Projects))
	for _, p := range c.Projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToUpper(out[i].Repo), strings.ToUpper(out[j].Repo)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Counts tallies records by status.
func (c *Catalog) Counts() map[Status]int {
	counts := map[Status]int{}
	for _, p := range c.Projects {
		counts[p.Status]++
	}
	return counts
}
