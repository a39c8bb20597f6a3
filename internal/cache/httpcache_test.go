package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHTTPCache_SaveLoad(t *testing.T) {
	t.Parallel()
	c := &HTTPCache{Dir: t.TempDir()}
	url := "https://raw.githubusercontent.com/PSLmodels/Tax-Calculator/master/README.md"
	if err := c.Save(context.Background(), url, "text/plain", `"etag1"`, "Mon, 01 Jan 2024 00:00:00 GMT", []byte("# Tax")); err != nil {
		t.Fatalf("save: %v", err)
	}
	meta, err := c.LoadMeta(context.Background(), url)
	if err != nil {
		t.Fatalf("load meta: %v", err)
	}
	if meta.ETag != `"etag1"` || meta.URL != url {
		t.Fatalf("unexpected meta %+v", meta)
	}
	body, err := c.LoadBody(context.Background(), url)
	if err != nil || string(body) != "# Tax" {
		t.Fatalf("load body = %q, %v", body, err)
	}
}

func TestHTTPCache_StrictPerms(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "http")
	c := &HTTPCache{Dir: dir, StrictPerms: true}
	url := "https://example.com/doc.md"
	if err := c.Save(context.Background(), url, "text/plain", "", "", []byte("x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat dir: %v", err)
	}
	if got := info.Mode() & 0o777; got != 0o700 {
		t.Fatalf("dir mode = %o, want 0700", got)
	}
	finfo, err := os.Stat(filepath.Join(dir, Key(url)+".body"))
	if err != nil {
		t.Fatalf("stat body: %v", err)
	}
	if got := finfo.Mode() & 0o777; got != 0o600 {
		t.Fatalf("body mode = %o, want 0600", got)
	}
}

func TestPurgeByAge(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c := &HTTPCache{Dir: dir}
	ctx := context.Background()
	if err := c.Save(ctx, "https://a.example/old.md", "", "", "", []byte("old")); err != nil {
		t.Fatalf("save old: %v", err)
	}
	if err := c.Save(ctx, "https://a.example/new.md", "", "", "", []byte("new")); err != nil {
		t.Fatalf("save new: %v", err)
	}
	// Backdate the first entry.
	metaPath := filepath.Join(dir, Key("https://a.example/old.md")+".meta.json")
	old := Entry{URL: "https://a.example/old.md", SavedAt: time.Now().Add(-48 * time.Hour)}
	b, _ := json.Marshal(old)
	if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	removed, err := PurgeByAge(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := c.LoadBody(ctx, "https://a.example/old.md"); err == nil {
		t.Fatalf("expected expired body removed")
	}
	if _, err := c.LoadBody(ctx, "https://a.example/new.md"); err != nil {
		t.Fatalf("fresh entry should remain: %v", err)
	}
}

func TestClearDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x.body"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ClearDir(dir); err != nil {
		t.Fatalf("clear: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty dir, got %v %v", entries, err)
	}
	if err := ClearDir("  "); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}
