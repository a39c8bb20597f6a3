package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperifyio/catalogbuilder/internal/catalog"
	"github.com/hyperifyio/catalogbuilder/internal/resolve"
)

func sampleCatalog() *catalog.Catalog {
	c := catalog.New()
	c.Projects["PSLmodels/Tax-Calculator@master"] = &catalog.ProjectRecord{
		ID: "PSLmodels/Tax-Calculator@master", Org: "PSLmodels", Repo: "Tax-Calculator", Branch: "master",
		Name: "Tax-Calculator", RepoURL: "https://github.com/PSLmodels/Tax-Calculator",
		Status: catalog.StatusPartial,
		Attributes: map[string]resolve.Rendered{
			"license": {Key: "license", DisplayName: "License", HTML: "<p>MIT &amp; more</p>"},
		},
		Errors: []resolve.Failure{{Attribute: "citation", Code: resolve.CodeHeaderNotFound, Message: `header "## Cite" not found in README.md`}},
	}
	c.Projects["PSLmodels/OG-USA@master"] = &catalog.ProjectRecord{
		ID: "PSLmodels/OG-USA@master", Repo: "OG-USA", Name: "OG-USA", Status: catalog.StatusOK,
		Attributes: map[string]resolve.Rendered{},
	}
	return c
}

func TestWriteAndLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	cat := sampleCatalog()
	path, err := WriteCatalog(dir, cat)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "\n    \"run_id\"") {
		t.Fatalf("expected four-space indent:\n%s", b)
	}
	loaded, err := LoadCatalog(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.RunID != cat.RunID || len(loaded.Projects) != 2 {
		t.Fatalf("unexpected loaded catalog %+v", loaded)
	}
	rec := loaded.Projects["PSLmodels/Tax-Calculator@master"]
	if rec.Attributes["license"].HTML != "<p>MIT &amp; more</p>" || rec.Errors[0].Code != resolve.CodeHeaderNotFound {
		t.Fatalf("record not preserved: %+v", rec)
	}
}

func TestLoadCatalog_Missing(t *testing.T) {
	if _, err := LoadCatalog(t.TempDir()); err == nil {
		t.Fatalf("expected error for missing catalog")
	}
}

func TestWritePage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "site")
	path, err := WritePage(dir, sampleCatalog())
	if err != nil {
		t.Fatalf("write page: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	page := string(b)
	for _, want := range []string{
		"<h3>License</h3>",
		"<p>MIT &amp; more</p>",
		`<a href="https://github.com/PSLmodels/Tax-Calculator">Tax-Calculator</a>`,
		"<code>header_not_found</code> citation",
	} {
		if !strings.Contains(page, want) {
			t.Fatalf("expected %q in page:\n%s", want, page)
		}
	}
	if strings.Index(page, "OG-USA") > strings.Index(page, "Tax-Calculator") {
		t.Fatalf("projects not in repo order")
	}
}

func TestWritePage_UniqueProjectAnchors(t *testing.T) {
	c := catalog.New()
	for _, branch := range []string{"master", "dev"} {
		id := "PSLmodels/Tax-Calculator@" + branch
		c.Projects[id] = &catalog.ProjectRecord{
			ID: id, Org: "PSLmodels", Repo: "Tax-Calculator", Branch: branch,
			Name: "Tax-Calculator", Status: catalog.StatusOK, Attributes: map[string]resolve.Rendered{},
		}
	}
	path, err := WritePage(t.TempDir(), c)
	if err != nil {
		t.Fatalf("write page: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	page := string(b)
	for _, id := range []string{`id="pslmodels-tax-calculator-master"`, `id="pslmodels-tax-calculator-dev"`} {
		if strings.Count(page, id) != 1 {
			t.Fatalf("expected exactly one %s in page:\n%s", id, page)
		}
	}
}

func TestSlug(t *testing.T) {
	if got := slug("PSLmodels/OG-USA@v1.2_x"); got != "pslmodels-og-usa-v1.2_x" {
		t.Fatalf("slug = %q", got)
	}
}
