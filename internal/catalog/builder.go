package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/catalogbuilder/internal/manifest"
	"github.com/hyperifyio/catalogbuilder/internal/metrics"
	"github.com/hyperifyio/catalogbuilder/internal/registry"
	"github.com/hyperifyio/catalogbuilder/internal/resolve"
	"github.com/hyperifyio/catalogbuilder/internal/source"
)

// Options bound the build's parallelism.
type Options struct {
	ProjectWorkers   int
	AttributeWorkers int
	// Strict fails a project on its first attribute error and drops its attributes.
	Strict bool
}

// DefaultOptions returns the default worker counts.
func DefaultOptions() Options {
	return Options{ProjectWorkers: 4, AttributeWorkers: 4}
}

// Builder fetches manifests and resolves their attributes.
type Builder struct {
	Fetcher  source.Fetcher
	Resolver *resolve.Resolver
	Metrics  metrics.Recorder
	Options  Options
}

// NewBuilder wires a resolver sharing fetcher and rec.
func NewBuilder(fetcher source.Fetcher, resolver *resolve.Resolver, rec metrics.Recorder, opts Options) *Builder {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if resolver == nil {
		resolver = &resolve.Resolver{Fetcher: fetcher, Metrics: rec}
	}
	return &Builder{Fetcher: fetcher, Resolver: resolver, Metrics: rec, Options: opts}
}

// Build processes entries with a bounded pool of project workers and merges
// the records in a single collector. After ctx is done no new project starts
// and projects interrupted by the cancellation are left out.
func (b *Builder) Build(ctx context.Context, entries []registry.Entry) *Catalog {
	start := time.Now()
	cat := New()

	workers := b.Options.ProjectWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(entries) && len(entries) > 0 {
		workers = len(entries)
	}

	jobs := make(chan registry.Entry)
	results := make(chan ProjectRecord)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range jobs {
				if rec, ok := b.BuildProject(ctx, e); ok {
					results <- rec
				}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, e := range entries {
			select {
			case <-ctx.Done():
				return
			case jobs <- e:
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	for rec := range results {
		cat.Projects[rec.ID] = &rec
	}

	b.recorder().ObserveBuildDuration(time.Since(start))
	counts := cat.Counts()
	log.Info().
		Int("projects", len(cat.Projects)).
		Int("ok", counts[StatusOK]).
		Int("partial", counts[StatusPartial]).
		Int("failed", counts[StatusFailed]).
		Dur("elapsed", time.Since(start)).
		Msg("catalog built")
	return cat
}

// BuildProject produces the record for one entry. It returns false when the
// project was not started or was interrupted by cancellation.
func (b *Builder) BuildProject(ctx context.Context, e registry.Entry) (ProjectRecord, bool) {
	if ctx.Err() != nil {
		return ProjectRecord{}, false
	}
	start := time.Now()
	repo := e.Ref()
	rec := ProjectRecord{
		ID:         e.ID(),
		Org:        e.Org,
		Repo:       e.Repo,
		Branch:     e.Branch,
		Name:       e.Repo,
		RepoURL:    repo.URL(),
		Attributes: map[string]resolve.Rendered{},
	}
	logger := log.With().Str("org", e.Org).Str("repo", e.Repo).Str("branch", e.Branch).Logger()

	m, err := b.loadManifest(ctx, repo)
	if err != nil {
		f := resolve.Classify(err)
		if f.Code == resolve.CodeCanceled || ctx.Err() != nil {
			return ProjectRecord{}, false
		}
		rec.Status = StatusFailed
		rec.Errors = []resolve.Failure{f}
		logger.Warn().Err(err).Msg("manifest unavailable")
		b.finish(&rec, start)
		return rec, true
	}

	results, canceled := b.resolveAll(ctx, repo, m)
	if canceled {
		return ProjectRecord{}, false
	}
	for _, r := range results {
		switch {
		case r.Failure != nil:
			rec.Errors = append(rec.Errors, *r.Failure)
			logger.Warn().Str("attribute", r.Key).Str("code", r.Failure.Code).Msg(r.Failure.Message)
		case r.Attribute != nil:
			rec.Attributes[r.Key] = *r.Attribute
		}
	}

	switch {
	case len(rec.Errors) == 0:
		rec.Status = StatusOK
	case b.Options.Strict:
		rec.Status = StatusFailed
		rec.Attributes = map[string]resolve.Rendered{}
	default:
		rec.Status = StatusPartial
	}
	b.finish(&rec, start)
	return rec, true
}

func (b *Builder) finish(rec *ProjectRecord, start time.Time) {
	b.recorder().IncProjectStatus(string(rec.Status))
	b.recorder().ObserveProjectDuration(time.Since(start))
	log.Info().
		Str("org", rec.Org).
		Str("repo", rec.Repo).
		Str("branch", rec.Branch).
		Str("status", string(rec.Status)).
		Int("attributes", len(rec.Attributes)).
		Int("errors", len(rec.Errors)).
		Msg("project built")
}

// resolveAll runs the attribute resolver with at most AttributeWorkers in
// flight. Each result lands in its own slot so the output order follows the
// sorted manifest keys. In strict mode remaining attributes are skipped after
// the first failure.
func (b *Builder) resolveAll(ctx context.Context, repo source.Repo, m manifest.Manifest) ([]resolve.Result, bool) {
	keys := m.Keys()
	results := make([]resolve.Result, len(keys))
	started := make([]bool, len(keys))

	limit := b.Options.AttributeWorkers
	if limit <= 0 {
		limit = 1
	}
	attrCtx, stop := context.WithCancel(ctx)
	defer stop()
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	var failed sync.Once
	for i, key := range keys {
		select {
		case sem <- struct{}{}:
		case <-attrCtx.Done():
		}
		if attrCtx.Err() != nil {
			break
		}
		started[i] = true
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = b.Resolver.Resolve(attrCtx, repo, key, m[key])
			if results[i].Failure != nil && b.Options.Strict {
				failed.Do(stop)
			}
		}(i, key)
	}
	wg.Wait()

	if ctx.Err() != nil {
		for i := range results {
			if !started[i] || (results[i].Failure != nil && results[i].Failure.Code == resolve.CodeCanceled) {
				return nil, true
			}
		}
	}
	out := results[:0]
	for i, r := range results {
		if !started[i] {
			continue
		}
		// Strict mode cancels siblings; their cancellations are not project errors.
		if r.Failure != nil && r.Failure.Code == resolve.CodeCanceled {
			continue
		}
		out = append(out, r)
	}
	return out, false
}

func (b *Builder) loadManifest(ctx context.Context, repo source.Repo) (manifest.Manifest, error) {
	var firstErr error
	for _, name := range []string{manifest.FileName, manifest.LegacyFileName} {
		loc := source.Location{Repo: repo, Path: name}
		start := time.Now()
		data, err := b.Fetcher.Fetch(ctx, loc)
		b.recorder().ObserveFetch("manifest", time.Since(start), err == nil)
		if err != nil {
			err = resolve.AsFetchError(loc, err)
			if firstErr == nil {
				firstErr = err
			}
			if errors.Is(err, source.ErrNotFound) {
				continue
			}
			return nil, b.manifestError(repo, "fetch failed", err)
		}
		m, err := manifest.Parse(data)
		if err != nil {
			var me *manifest.ManifestError
			if errors.As(err, &me) {
				me.Org, me.Repo, me.Branch = repo.Org, repo.Repo, repo.Branch
				return nil, me
			}
			return nil, b.manifestError(repo, "decode failed", err)
		}
		if name != manifest.FileName {
			log.Debug().Str("org", repo.Org).Str("repo", repo.Repo).Str("path", name).Msg("using legacy manifest name")
		}
		return m, nil
	}
	return nil, b.manifestError(repo, "not found", firstErr)
}

func (b *Builder) manifestError(repo source.Repo, reason string, err error) *manifest.ManifestError {
	return &manifest.ManifestError{Org: repo.Org, Repo: repo.Repo, Branch: repo.Branch, Reason: reason, Err: err}
}

func (b *Builder) recorder() metrics.Recorder {
	if b.Metrics == nil {
		return metrics.NoopRecorder{}
	}
	return b.Metrics
}
