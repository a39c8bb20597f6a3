package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/catalogbuilder/internal/render"
	"github.com/hyperifyio/catalogbuilder/internal/retry"
)

// FileConfig represents the single-file configuration schema.
type FileConfig struct {
	Registry string `yaml:"registry" json:"registry"`
	Output   string `yaml:"output" json:"output"`
	NoPage   bool   `yaml:"noPage" json:"noPage"`

	Source struct {
		Mode   string `yaml:"mode" json:"mode"`
		Dir    string `yaml:"dir" json:"dir"`
		RawURL string `yaml:"rawURL" json:"rawURL"`
		Token  string `yaml:"token" json:"token"`
		UA     string `yaml:"ua" json:"ua"`
	} `yaml:"source" json:"source"`

	Fetch struct {
		Timeout        time.Duration `yaml:"timeout" json:"timeout"`
		Attempts       int           `yaml:"attempts" json:"attempts"`
		MaxConcurrent  int           `yaml:"maxConcurrent" json:"maxConcurrent"`
		BackoffMode    string        `yaml:"backoffMode" json:"backoffMode"`
		BackoffInitial time.Duration `yaml:"backoffInitial" json:"backoffInitial"`
		BackoffMax     time.Duration `yaml:"backoffMax" json:"backoffMax"`
	} `yaml:"fetch" json:"fetch"`

	Workers struct {
		Projects   int `yaml:"projects" json:"projects"`
		Attributes int `yaml:"attributes" json:"attributes"`
	} `yaml:"workers" json:"workers"`

	Strict  bool `yaml:"strict" json:"strict"`
	Verbose bool `yaml:"verbose" json:"verbose"`

	Cache struct {
		Dir          string        `yaml:"dir" json:"dir"`
		MaxAge       time.Duration `yaml:"maxAge" json:"maxAge"`
		Clear        bool          `yaml:"clear" json:"clear"`
		StrictPerms  bool          `yaml:"strictPerms" json:"strictPerms"`
		Disable      bool          `yaml:"disable" json:"disable"`
		NoRevalidate bool          `yaml:"noRevalidate" json:"noRevalidate"`
	} `yaml:"cache" json:"cache"`

	Render struct {
		Extensions []string `yaml:"extensions" json:"extensions"`
		HardWraps  bool     `yaml:"hardWraps" json:"hardWraps"`
	} `yaml:"render" json:"render"`

	Metrics struct {
		File string `yaml:"file" json:"file"`
	} `yaml:"metrics" json:"metrics"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays the values set in fc onto cfg.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	Overlay(cfg, Config{
		RegistryPath:     fc.Registry,
		OutputDir:        fc.Output,
		NoPage:           fc.NoPage,
		SourceMode:       fc.Source.Mode,
		SourceDir:        fc.Source.Dir,
		GitHubRawURL:     fc.Source.RawURL,
		GitHubToken:      fc.Source.Token,
		UserAgent:        fc.Source.UA,
		FetchTimeout:     fc.Fetch.Timeout,
		FetchAttempts:    fc.Fetch.Attempts,
		MaxConcurrent:    fc.Fetch.MaxConcurrent,
		BackoffMode:      fc.Fetch.BackoffMode,
		BackoffInitial:   fc.Fetch.BackoffInitial,
		BackoffMax:       fc.Fetch.BackoffMax,
		ProjectWorkers:   fc.Workers.Projects,
		AttributeWorkers: fc.Workers.Attributes,
		Strict:           fc.Strict,
		Verbose:          fc.Verbose,
		CacheDir:         fc.Cache.Dir,
		CacheMaxAge:      fc.Cache.MaxAge,
		CacheClear:       fc.Cache.Clear,
		CacheStrictPerms: fc.Cache.StrictPerms,
		NoCache:          fc.Cache.Disable,
		NoRevalidate:     fc.Cache.NoRevalidate,
		RenderExtensions: fc.Render.Extensions,
		RenderHardWraps:  fc.Render.HardWraps,
		MetricsFile:      fc.Metrics.File,
	})
}

// ValidateConfig performs minimal validation of required settings.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return errors.New("config: output dir is required")
	}
	if !cfg.Develop && strings.TrimSpace(cfg.RegistryPath) == "" {
		return errors.New("config: registry path is required")
	}
	switch cfg.SourceMode {
	case SourceGitHub:
	case SourceDir:
		if strings.TrimSpace(cfg.SourceDir) == "" {
			return errors.New("config: source dir is required for source mode dir")
		}
	default:
		return fmt.Errorf("config: unknown source mode %q", cfg.SourceMode)
	}
	if cfg.FetchAttempts < 0 || cfg.MaxConcurrent < 0 || cfg.ProjectWorkers < 0 || cfg.AttributeWorkers < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	if cfg.FetchTimeout < 0 || cfg.CacheMaxAge < 0 {
		return errors.New("config: negative durations are not allowed")
	}
	if cfg.BackoffMode != "" && retry.ParseMode(cfg.BackoffMode) == "" {
		return fmt.Errorf("config: unknown backoff mode %q", cfg.BackoffMode)
	}
	for _, name := range cfg.RenderExtensions {
		if !render.KnownExtension(name) {
			return fmt.Errorf("config: unknown markdown extension %q", name)
		}
	}
	return nil
}
