// Package output writes the catalog artifact and its listing page.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperifyio/catalogbuilder/internal/catalog"
)

const (
	CatalogFile = "catalog.json"
	PageFile    = "index.html"
)

// WriteCatalog writes dir/catalog.json with four-space indentation.
func WriteCatalog(dir string, cat *catalog.Catalog) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(cat); err != nil {
		return "", fmt.Errorf("encode catalog: %w", err)
	}
	path := filepath.Join(dir, CatalogFile)
	if err := writeFile(path, buf.Bytes()); err != nil {
		return "", err
	}
	return path, nil
}

// LoadCatalog reads dir/catalog.json written by a previous run.
func LoadCatalog(dir string) (*catalog.Catalog, error) {
	b, err := os.ReadFile(filepath.Join(dir, CatalogFile))
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var cat catalog.Catalog
	if err := json.Unmarshal(b, &cat); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if cat.Projects == nil {
		cat.Projects = map[string]*catalog.ProjectRecord{}
	}
	return &cat, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir output: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
