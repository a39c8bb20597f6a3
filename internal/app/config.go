package app

import (
	"time"

	"github.com/hyperifyio/catalogbuilder/internal/source"
)

// Source modes.
const (
	SourceGitHub = "github"
	SourceDir    = "dir"
)

// Config holds runtime configuration for the application.
type Config struct {
	RegistryPath string
	OutputDir    string
	// Only restricts the run to the registry entry with this repo name.
	Only    string
	Develop bool
	// NoPage skips writing index.html.
	NoPage bool

	// Source
	SourceMode   string
	SourceDir    string
	GitHubRawURL string
	GitHubToken  string
	UserAgent    string

	// Transport
	FetchTimeout   time.Duration
	FetchAttempts  int
	BackoffMode    string
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	MaxConcurrent  int

	// Assembly
	ProjectWorkers   int
	AttributeWorkers int
	Strict           bool

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool
	// NoCache disables the HTTP cache even when CacheDir is set.
	NoCache bool
	// NoRevalidate refetches every document instead of sending conditional
	// requests; responses are still stored.
	NoRevalidate bool

	// Markdown rendering. Empty RenderExtensions selects gfm, linkify and tasklist.
	RenderExtensions []string
	RenderHardWraps  bool

	MetricsFile string
	Verbose     bool
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		RegistryPath:     "register.json",
		OutputDir:        ".",
		SourceMode:       SourceGitHub,
		GitHubRawURL:     source.DefaultRawBaseURL,
		UserAgent:        "catalogbuilder/" + BuildVersion + " (+https://github.com/hyperifyio/catalogbuilder)",
		FetchTimeout:     15 * time.Second,
		FetchAttempts:    3,
		BackoffMode:      "exponential",
		BackoffInitial:   250 * time.Millisecond,
		BackoffMax:       5 * time.Second,
		MaxConcurrent:    8,
		ProjectWorkers:   4,
		AttributeWorkers: 4,
		CacheDir:         ".catalogbuilder-cache",
	}
}

// Overlay copies every non-zero field of src onto dst. Booleans can only be
// switched on this way.
func Overlay(dst *Config, src Config) {
	if dst == nil {
		return
	}
	setString(&dst.RegistryPath, src.RegistryPath)
	setString(&dst.OutputDir, src.OutputDir)
	setString(&dst.Only, src.Only)
	setString(&dst.SourceMode, src.SourceMode)
	setString(&dst.SourceDir, src.SourceDir)
	setString(&dst.GitHubRawURL, src.GitHubRawURL)
	setString(&dst.GitHubToken, src.GitHubToken)
	setString(&dst.UserAgent, src.UserAgent)
	setString(&dst.BackoffMode, src.BackoffMode)
	setString(&dst.CacheDir, src.CacheDir)
	setString(&dst.MetricsFile, src.MetricsFile)

	setDuration(&dst.FetchTimeout, src.FetchTimeout)
	setDuration(&dst.BackoffInitial, src.BackoffInitial)
	setDuration(&dst.BackoffMax, src.BackoffMax)
	setDuration(&dst.CacheMaxAge, src.CacheMaxAge)

	setInt(&dst.FetchAttempts, src.FetchAttempts)
	setInt(&dst.MaxConcurrent, src.MaxConcurrent)
	setInt(&dst.ProjectWorkers, src.ProjectWorkers)
	setInt(&dst.AttributeWorkers, src.AttributeWorkers)

	dst.Develop = dst.Develop || src.Develop
	dst.NoPage = dst.NoPage || src.NoPage
	dst.Strict = dst.Strict || src.Strict
	dst.CacheClear = dst.CacheClear || src.CacheClear
	dst.CacheStrictPerms = dst.CacheStrictPerms || src.CacheStrictPerms
	dst.NoCache = dst.NoCache || src.NoCache
	dst.NoRevalidate = dst.NoRevalidate || src.NoRevalidate
	dst.RenderHardWraps = dst.RenderHardWraps || src.RenderHardWraps
	if len(src.RenderExtensions) > 0 {
		dst.RenderExtensions = append([]string(nil), src.RenderExtensions...)
	}
	dst.Verbose = dst.Verbose || src.Verbose
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
