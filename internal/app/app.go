package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/catalogbuilder/internal/cache"
	"github.com/hyperifyio/catalogbuilder/internal/catalog"
	"github.com/hyperifyio/catalogbuilder/internal/fetch"
	"github.com/hyperifyio/catalogbuilder/internal/metrics"
	"github.com/hyperifyio/catalogbuilder/internal/output"
	"github.com/hyperifyio/catalogbuilder/internal/registry"
	"github.com/hyperifyio/catalogbuilder/internal/render"
	"github.com/hyperifyio/catalogbuilder/internal/resolve"
	"github.com/hyperifyio/catalogbuilder/internal/retry"
	"github.com/hyperifyio/catalogbuilder/internal/source"
)

// ErrNoUsableProjects is returned when every processed project failed. The
// CLI maps it to exit code 2.
var ErrNoUsableProjects = errors.New("no usable projects")

type App struct {
	cfg       Config
	fetcher   source.Fetcher
	builder   *catalog.Builder
	metrics   *prom.Registry
	httpCache *cache.HTTPCache
	http      *http.Client
}

// New wires the fetch stack, resolver and builder from cfg.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, metrics: prom.NewRegistry()}
	rec := metrics.NewPrometheusRecorder(a.metrics)

	if cfg.CacheDir != "" && !cfg.NoCache {
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				log.Warn().Err(err).Str("path", cfg.CacheDir).Msg("cache clear failed")
			}
		}
		if cfg.CacheMaxAge > 0 {
			if n, err := cache.PurgeByAge(cfg.CacheDir, cfg.CacheMaxAge); err != nil {
				log.Warn().Err(err).Str("path", cfg.CacheDir).Msg("cache purge failed")
			} else if n > 0 {
				log.Debug().Int("removed", n).Msg("purged expired cache entries")
			}
		}
		a.httpCache = &cache.HTTPCache{Dir: filepath.Join(cfg.CacheDir, "http"), StrictPerms: cfg.CacheStrictPerms}
	}

	switch cfg.SourceMode {
	case SourceDir:
		a.fetcher = &source.Dir{Root: cfg.SourceDir}
	default:
		a.fetcher = &source.GitHub{BaseURL: cfg.GitHubRawURL, Client: a.newFetchClient(rec)}
	}

	renderOpts := render.DefaultOptions()
	renderOpts.Extensions = cfg.RenderExtensions
	renderOpts.HardWraps = cfg.RenderHardWraps
	resolver := &resolve.Resolver{Fetcher: a.fetcher, Renderer: render.New(renderOpts), Metrics: rec}
	a.builder = catalog.NewBuilder(a.fetcher, resolver, rec, catalog.Options{
		ProjectWorkers:   cfg.ProjectWorkers,
		AttributeWorkers: cfg.AttributeWorkers,
		Strict:           cfg.Strict,
	})
	log.Debug().Str("source", a.fetcher.Name()).Int("projectWorkers", cfg.ProjectWorkers).Int("attributeWorkers", cfg.AttributeWorkers).Msg("app initialized")
	return a, nil
}

func (a *App) newFetchClient(rec metrics.Recorder) *fetch.Client {
	header := http.Header{}
	if tok := strings.TrimSpace(a.cfg.GitHubToken); tok != "" {
		header.Set("Authorization", "token "+tok)
	}
	a.http = newHighThroughputHTTPClient()
	return &fetch.Client{
		HTTPClient:        a.http,
		UserAgent:         a.cfg.UserAgent,
		Header:            header,
		MaxAttempts:       a.cfg.FetchAttempts,
		PerRequestTimeout: a.cfg.FetchTimeout,
		Backoff:           retry.NewPolicy(retry.Mode(a.cfg.BackoffMode), a.cfg.BackoffInitial, a.cfg.BackoffMax),
		Cache:             a.httpCache,
		BypassCache:       a.cfg.NoRevalidate,
		MaxConcurrent:     a.cfg.MaxConcurrent,
		OnRetry: func(url string, attempt int, err error) {
			rec.IncFetchRetry()
			log.Debug().Err(err).Str("url", url).Int("attempt", attempt).Msg("retrying fetch")
		},
	}
}

// Close releases idle connections held by the HTTP transport.
func (a *App) Close() {
	if a.http != nil {
		a.http.CloseIdleConnections()
	}
}

// Run builds the catalog (or loads it in develop mode) and writes the
// outputs. On cancellation nothing is written and the partial catalog is
// returned with the context error.
func (a *App) Run(ctx context.Context) (*catalog.Catalog, error) {
	start := time.Now()
	if a.cfg.Develop {
		log.Info().Str("path", filepath.Join(a.cfg.OutputDir, output.CatalogFile)).Msg("develop mode: loading catalog")
		cat, err := output.LoadCatalog(a.cfg.OutputDir)
		if err != nil {
			return nil, err
		}
		return cat, a.writePage(cat)
	}

	entries, err := registry.Load(a.cfg.RegistryPath)
	if err != nil {
		return nil, err
	}
	if a.cfg.Only != "" {
		if entries, err = registry.Only(entries, a.cfg.Only); err != nil {
			return nil, err
		}
	}
	registry.Sort(entries)
	log.Info().Int("projects", len(entries)).Str("source", a.fetcher.Name()).Msg("building catalog")

	cat := a.builder.Build(ctx, entries)
	if err := ctx.Err(); err != nil {
		return cat, fmt.Errorf("build interrupted: %w", err)
	}

	path, err := output.WriteCatalog(a.cfg.OutputDir, cat)
	if err != nil {
		return cat, err
	}
	log.Info().Str("path", path).Msg("catalog written")
	if err := a.writePage(cat); err != nil {
		return cat, err
	}
	if a.cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(a.cfg.MetricsFile, a.metrics); err != nil {
			log.Warn().Err(err).Str("path", a.cfg.MetricsFile).Msg("metrics textfile write failed")
		}
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("done")

	counts := cat.Counts()
	if len(cat.Projects) > 0 && counts[catalog.StatusFailed] == len(cat.Projects) {
		return cat, ErrNoUsableProjects
	}
	return cat, nil
}

func (a *App) writePage(cat *catalog.Catalog) error {
	if a.cfg.NoPage {
		return nil
	}
	path, err := output.WritePage(a.cfg.OutputDir, cat)
	if err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("page written")
	return nil
}
