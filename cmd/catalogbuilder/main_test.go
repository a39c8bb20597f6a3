package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperifyio/catalogbuilder/internal/app"
)

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(cfgPath, []byte("registry: from-file.json\noutput: file-out\nworkers:\n  projects: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CATALOG_OUTPUT_DIR", "env-out")
	t.Setenv("PROJECT_WORKERS", "")

	cfg, err := loadConfig(CLI{Config: cfgPath, ProjectWorkers: 6, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RegistryPath != "from-file.json" {
		t.Fatalf("file value lost: %q", cfg.RegistryPath)
	}
	if cfg.OutputDir != "env-out" {
		t.Fatalf("env should override file: %q", cfg.OutputDir)
	}
	if cfg.ProjectWorkers != 6 || cfg.FetchTimeout != 2*time.Second {
		t.Fatalf("flags should win: %+v", cfg)
	}
	if cfg.AttributeWorkers != 4 {
		t.Fatalf("default lost: %d", cfg.AttributeWorkers)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	if _, err := loadConfig(CLI{Source: "svn"}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(fmt.Errorf("wrap: %w", app.ErrNoUsableProjects)); got != 2 {
		t.Fatalf("no usable projects exit = %d", got)
	}
	if got := exitCode(context.Canceled); got != 130 {
		t.Fatalf("canceled exit = %d", got)
	}
	if got := exitCode(errors.New("boom")); got != 1 {
		t.Fatalf("generic exit = %d", got)
	}
}

func TestRun_MissingRegistry(t *testing.T) {
	cfg := app.DefaultConfig()
	cfg.RegistryPath = filepath.Join(t.TempDir(), "missing.json")
	cfg.OutputDir = t.TempDir()
	cfg.NoCache = true
	if err := run(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for missing registry")
	}
}
