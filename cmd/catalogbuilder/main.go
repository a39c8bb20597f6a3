package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/catalogbuilder/internal/app"
)

// CLI flags. Zero values mean "not given" so that config file and
// environment values underneath are kept.
type CLI struct {
	Config  string   `short:"c" help:"Configuration file (YAML or JSON)."`
	EnvFile []string `name:"env-file" help:"Dotenv files to load; later files win." default:".env"`

	Registry string `short:"r" help:"Registry file listing projects (JSON or YAML)."`
	Output   string `short:"o" help:"Output directory for catalog.json and index.html."`
	Only     string `help:"Build only the project with this repo name."`
	Develop  bool   `help:"Re-render pages from an existing catalog.json without fetching."`
	NoPage   bool   `name:"no-page" help:"Do not write index.html."`

	Source    string `help:"Document source: github or dir."`
	SourceDir string `name:"source-dir" help:"Local mirror root laid out as org/repo/branch/path."`
	RawURL    string `name:"raw-url" help:"Base URL of the raw file host."`
	Token     string `help:"GitHub token (prefer GITHUB_TOKEN)."`
	UserAgent string `name:"user-agent" help:"User-Agent for HTTP requests."`

	Timeout          time.Duration `help:"Per-request timeout."`
	Attempts         int           `help:"Fetch attempts including the first."`
	Backoff          string        `help:"Backoff mode: fixed, linear or exponential."`
	BackoffInitial   time.Duration `name:"backoff-initial" help:"Initial backoff delay."`
	BackoffMax       time.Duration `name:"backoff-max" help:"Maximum backoff delay."`
	MaxConcurrent    int           `name:"max-concurrent" help:"Maximum in-flight HTTP requests."`
	ProjectWorkers   int           `name:"project-workers" help:"Projects processed in parallel."`
	AttributeWorkers int           `name:"attribute-workers" help:"Attributes resolved in parallel per project."`
	Strict           bool          `help:"Fail a project on any attribute error."`

	CacheDir         string        `name:"cache-dir" help:"HTTP cache directory."`
	CacheMaxAge      time.Duration `name:"cache-max-age" help:"Purge cache entries older than this before the run."`
	CacheClear       bool          `name:"cache-clear" help:"Clear the cache directory before the run."`
	CacheStrictPerms bool          `name:"cache-strict-perms" help:"Restrict cache permissions (0700 dirs, 0600 files)."`
	NoCache          bool          `name:"no-cache" help:"Disable the HTTP cache."`
	NoRevalidate     bool          `name:"no-revalidate" help:"Refetch documents without conditional requests; still refresh the cache."`

	MarkdownExt []string `name:"markdown-ext" sep:"," help:"Markdown extensions (gfm, table, strikethrough, linkify, tasklist, definition, footnote)."`
	HardWraps   bool     `name:"hard-wraps" help:"Render single newlines in Markdown as <br>."`

	MetricsFile string           `name:"metrics-file" help:"Write Prometheus metrics in textfile format."`
	Verbose     bool             `short:"v" help:"Verbose logging."`
	Version     kong.VersionFlag `help:"Show version and exit."`
}

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var cli CLI
	kong.Parse(&cli,
		kong.Name("catalogbuilder"),
		kong.Description("Build a project catalog from per-repository psl_catalog.json manifests."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", app.BuildVersion, app.BuildCommit, app.BuildDate)},
	)

	cfg, err := loadConfig(cli)
	if err != nil {
		log.Error().Err(err).Msg("configuration failed")
		os.Exit(1)
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(exitCode(err))
	}
}

// loadConfig layers defaults, config file, environment and flags, in
// increasing precedence.
func loadConfig(cli CLI) (app.Config, error) {
	if err := app.LoadEnvFiles(cli.EnvFile...); err != nil {
		return app.Config{}, fmt.Errorf("load env files: %w", err)
	}
	cfg := app.DefaultConfig()
	if cli.Config != "" {
		fc, err := app.LoadConfigFile(cli.Config)
		if err != nil {
			return app.Config{}, fmt.Errorf("load config file: %w", err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)
	app.Overlay(&cfg, cli.overrides())
	return cfg, app.ValidateConfig(cfg)
}

func (c CLI) overrides() app.Config {
	return app.Config{
		RegistryPath:     c.Registry,
		OutputDir:        c.Output,
		Only:             c.Only,
		Develop:          c.Develop,
		NoPage:           c.NoPage,
		SourceMode:       c.Source,
		SourceDir:        c.SourceDir,
		GitHubRawURL:     c.RawURL,
		GitHubToken:      c.Token,
		UserAgent:        c.UserAgent,
		FetchTimeout:     c.Timeout,
		FetchAttempts:    c.Attempts,
		BackoffMode:      c.Backoff,
		BackoffInitial:   c.BackoffInitial,
		BackoffMax:       c.BackoffMax,
		MaxConcurrent:    c.MaxConcurrent,
		ProjectWorkers:   c.ProjectWorkers,
		AttributeWorkers: c.AttributeWorkers,
		Strict:           c.Strict,
		CacheDir:         c.CacheDir,
		CacheMaxAge:      c.CacheMaxAge,
		CacheClear:       c.CacheClear,
		CacheStrictPerms: c.CacheStrictPerms,
		NoCache:          c.NoCache,
		NoRevalidate:     c.NoRevalidate,
		RenderExtensions: c.MarkdownExt,
		RenderHardWraps:  c.HardWraps,
		MetricsFile:      c.MetricsFile,
		Verbose:          c.Verbose,
	}
}

// exitCode maps run errors: 2 when no project could be built, 130 on
// interrupt, 1 otherwise.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, app.ErrNoUsableProjects):
		return 2
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

func run(ctx context.Context, cfg app.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	_, err = a.Run(ctx)
	return err
}
